// Package config holds the run settings shared by the converters. Settings
// come from defaults, an optional YAML file, the interactive wizard and the
// command-line flags, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"
	"gopkg.in/yaml.v3"

	"github.com/mrsinham/remindconv/internal/dicom"
	"github.com/mrsinham/remindconv/internal/tools"
)

// DefaultFile is where the wizard saves its answers.
const DefaultFile = "remindconv.yaml"

// studyDateLayout is the DICOM DA layout.
const studyDateLayout = "20060102"

// maxLO is the maximum length of a DICOM LO value.
const maxLO = 64

// OnViolation tells a driver what to do with a case that breaks the naming conventions.
type OnViolation string

const (
	// Abort stops the whole run at the first violation.
	Abort OnViolation = "abort"
	// Skip logs the violation and moves on to the next case.
	Skip OnViolation = "skip"
)

// PixelmedConfig locates the pixelmed converter.
type PixelmedConfig struct {
	URL  string `yaml:"url"`
	Jar  string `yaml:"jar"`
	Java string `yaml:"java"`
}

// PathsConfig overrides the folder flags of the drivers. Empty values keep
// the flag defaults.
type PathsConfig struct {
	// TCIA is the source DICOM tree read by dicom2img.
	TCIA string `yaml:"tcia,omitempty"`
	// Images is the volume tree written by dicom2img.
	Images string `yaml:"images,omitempty"`
	// NRRD is the volume tree read by nrrd2dicom and nrrd2seg.
	NRRD string `yaml:"nrrd,omitempty"`
	// DICOM is the tree written by nrrd2dicom and nrrd2seg.
	DICOM string `yaml:"dicom,omitempty"`
}

// Config represents the complete run configuration for YAML serialization.
type Config struct {
	StudyDate              string         `yaml:"study_date"`
	DeidentificationMethod string         `yaml:"deidentification_method"`
	ExtraClearTags         []string       `yaml:"extra_clear_tags,omitempty"`
	Pixelmed               PixelmedConfig `yaml:"pixelmed"`
	Img2Seg                string         `yaml:"img2seg"`
	TemplateDir            string         `yaml:"template_dir"`
	CorrCSV                string         `yaml:"corr_csv"`
	OnViolation            OnViolation    `yaml:"on_violation"`
	Seed                   uint64         `yaml:"seed,omitempty"`
	Paths                  PathsConfig    `yaml:"paths,omitempty"`
}

// Default returns a configuration with the values the dataset was built with.
func Default() *Config {
	return &Config{
		StudyDate:              "19990101",
		DeidentificationMethod: "PyDeface-NiftyReg",
		Pixelmed: PixelmedConfig{
			URL:  tools.DefaultPixelmedURL,
			Jar:  "pixelmed.jar",
			Java: "java",
		},
		Img2Seg:     "../dcmqi-1.2.4-mac/bin/itkimage2segimage",
		TemplateDir: "json",
		CorrCSV:     "corr.csv",
		OnViolation: Abort,
	}
}

// Load reads the configuration at path over the defaults.
// A missing file is an error: the caller asked for it explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating its folder if needed.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks every field a driver depends on.
func (c *Config) Validate() error {
	if err := validateStudyDate(c.StudyDate); err != nil {
		return err
	}
	if err := validateMethod(c.DeidentificationMethod); err != nil {
		return err
	}
	if err := validatePolicy(string(c.OnViolation)); err != nil {
		return err
	}
	if _, err := c.ClearTags(); err != nil {
		return err
	}
	if c.Pixelmed.Jar == "" {
		return fmt.Errorf("pixelmed jar path is required")
	}
	return nil
}

// ClearTags resolves the extra tag names to clear during de-identification.
func (c *Config) ClearTags() ([]tag.Tag, error) {
	tags, err := dicom.ResolveTags(c.ExtraClearTags)
	if err != nil {
		return nil, fmt.Errorf("extra_clear_tags: %w", err)
	}
	return tags, nil
}

// Pick returns the flag value when the flag was set explicitly, else the
// configured value when there is one, else the flag default.
func Pick(flagValue string, changed bool, configured string) string {
	if changed || configured == "" {
		return flagValue
	}
	return configured
}

func validateStudyDate(s string) error {
	if _, err := time.Parse(studyDateLayout, s); err != nil || len(s) != len(studyDateLayout) {
		return fmt.Errorf("study date %q must be YYYYMMDD", s)
	}
	return nil
}

func validateMethod(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("de-identification method is required")
	}
	if len(s) > maxLO {
		return fmt.Errorf("de-identification method exceeds %d characters", maxLO)
	}
	return nil
}

func validatePolicy(s string) error {
	switch OnViolation(s) {
	case Abort, Skip:
		return nil
	default:
		return fmt.Errorf("on_violation %q must be %q or %q", s, Abort, Skip)
	}
}

// splitTags splits a comma separated tag list, dropping blanks.
func splitTags(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
