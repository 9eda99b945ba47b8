package logging

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// Summary is the end-of-run report of a driver.
type Summary struct {
	Title  string
	rows   [][2]string
	errors []string
}

// NewSummary returns an empty summary.
func NewSummary(title string) *Summary {
	return &Summary{Title: title}
}

// Add appends a labelled value.
func (s *Summary) Add(label string, value any) *Summary {
	s.rows = append(s.rows, [2]string{label, fmt.Sprint(value)})
	return s
}

// AddBytes appends a labelled byte count in human units.
func (s *Summary) AddBytes(label string, n int64) *Summary {
	if n < 0 {
		n = 0
	}
	return s.Add(label, humanize.Bytes(uint64(n)))
}

// AddError appends an error line.
func (s *Summary) AddError(msg string) *Summary {
	s.errors = append(s.errors, msg)
	return s
}

// Plain renders the summary without styling, one "label: value" per line.
func (s *Summary) Plain() string {
	var b strings.Builder
	for _, r := range s.rows {
		fmt.Fprintf(&b, "%s: %s\n", r[0], r[1])
	}
	for _, e := range s.errors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	return b.String()
}

// Render renders the summary inside a bordered box.
func (s *Summary) Render() string {
	width := 0
	for _, r := range s.rows {
		width = max(width, lipgloss.Width(r[0]))
	}

	lines := []string{titleStyle.Render(s.Title)}
	for _, r := range s.rows {
		label := labelStyle.Render(fmt.Sprintf("%-*s", width, r[0]))
		lines = append(lines, label+"  "+r[1])
	}
	if len(s.errors) > 0 {
		lines = append(lines, "", errorStyle.Render(fmt.Sprintf("%d error(s)", len(s.errors))))
		for _, e := range s.errors {
			lines = append(lines, errorStyle.Render("  "+e))
		}
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
