package convert

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// corrHeader starts with the blank heading of the row index column.
var corrHeader = []string{"", "case", "preop", "intraop"}

// WriteCorrCSV writes the case to StudyInstanceUID table of a run.
func WriteCorrCSV(path string, cases []CaseResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(corrHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, c := range cases {
		if err := w.Write([]string{strconv.Itoa(i), c.Case, c.PreopUID, c.IntraopUID}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
