package config

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user quits the wizard.
var ErrCancelled = errors.New("wizard cancelled")

var (
	wizardTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("63")).
				MarginBottom(1)

	wizardSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))
)

// wizardAnswers holds the string form of the fields huh binds to.
type wizardAnswers struct {
	extraTags string
	policy    string
	save      bool
}

// newWizardForm builds the form editing cfg in place.
func newWizardForm(cfg *Config, a *wizardAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(wizardTitleStyle.Render("remindconv")).
				Description(wizardSubtitleStyle.Render("Settings shared by dicom2img, nrrd2dicom and nrrd2seg")),

			huh.NewInput().
				Key("study_date").
				Title("Study Date").
				Description(describe("study_date")).
				Value(&cfg.StudyDate).
				Validate(validateStudyDate),

			huh.NewInput().
				Key("deidentification_method").
				Title("De-identification Method").
				Description(describe("deidentification_method")).
				Value(&cfg.DeidentificationMethod).
				Validate(validateMethod),

			huh.NewInput().
				Key("extra_clear_tags").
				Title("Extra Tags to Clear").
				Description(describe("extra_clear_tags")).
				Placeholder("e.g., InstitutionName, StationName").
				Value(&a.extraTags).
				Validate(validateTagList),

			huh.NewSelect[string]().
				Key("on_violation").
				Title("On Violation").
				Description(describe("on_violation")).
				Options(
					huh.NewOption("abort - stop the run", string(Abort)),
					huh.NewOption("skip - continue with the next case", string(Skip)),
				).
				Value(&a.policy),
		),
		huh.NewGroup(
			huh.NewInput().
				Key("pixelmed_jar").
				Title("Pixelmed Jar").
				Description(describe("pixelmed_jar")).
				Value(&cfg.Pixelmed.Jar).
				Validate(required("pixelmed jar path")),

			huh.NewInput().
				Key("java").
				Title("Java").
				Description(describe("java")).
				Value(&cfg.Pixelmed.Java).
				Validate(required("java binary")),

			huh.NewInput().
				Key("img2seg").
				Title("itkimage2segimage").
				Description(describe("img2seg")).
				Value(&cfg.Img2Seg),

			huh.NewInput().
				Key("template_dir").
				Title("Template Directory").
				Description(describe("template_dir")).
				Value(&cfg.TemplateDir),

			huh.NewInput().
				Key("corr_csv").
				Title("Correspondence CSV").
				Description(describe("corr_csv")).
				Value(&cfg.CorrCSV),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Key("save").
				Title(fmt.Sprintf("Save configuration to %s?", DefaultFile)).
				Affirmative("Yes").
				Negative("No").
				Value(&a.save),
		),
	)
}

// RunWizard edits cfg interactively. It reports whether the user asked to
// save the answers.
func RunWizard(cfg *Config) (bool, error) {
	a := &wizardAnswers{
		extraTags: strings.Join(cfg.ExtraClearTags, ", "),
		policy:    string(cfg.OnViolation),
	}
	form := newWizardForm(cfg, a)
	form.SubmitCmd = tea.Quit
	form.CancelCmd = tea.Quit

	p := tea.NewProgram(form, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("running wizard: %w", err)
	}
	if f, ok := final.(*huh.Form); ok && f.State == huh.StateAborted {
		return false, ErrCancelled
	}

	a.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	return a.save, nil
}

// apply copies the string answers back into cfg.
func (a *wizardAnswers) apply(cfg *Config) {
	cfg.ExtraClearTags = splitTags(a.extraTags)
	cfg.OnViolation = OnViolation(a.policy)
}

func validateTagList(s string) error {
	c := Config{ExtraClearTags: splitTags(s)}
	_, err := c.ClearTags()
	return err
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}
