// Package cli holds the flag handling shared by the converter binaries.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mrsinham/remindconv/internal/config"
	"github.com/mrsinham/remindconv/internal/logging"
)

// Common holds the flags every binary accepts.
type Common struct {
	ConfigFile  string
	SaveConfig  string
	Interactive bool
	Debug       bool
	LogFile     string
	Quiet       bool
	OnViolation string
	Version     bool
}

// Register adds the shared flags to fs.
func Register(fs *pflag.FlagSet) *Common {
	c := &Common{}
	fs.StringVar(&c.ConfigFile, "config", "", "Load configuration from YAML file")
	fs.StringVar(&c.SaveConfig, "save-config", "", "Save the effective configuration to YAML file (after the run)")
	fs.BoolVarP(&c.Interactive, "interactive", "i", false, "Edit the configuration in an interactive form before the run")
	fs.BoolVar(&c.Debug, "debug", false, "Log debug messages")
	fs.StringVar(&c.LogFile, "log-file", "", "Also append JSON log records to this file")
	fs.BoolVarP(&c.Quiet, "quiet", "q", false, "Hide progress bars and the summary box")
	fs.StringVar(&c.OnViolation, "on-violation", "", "What to do with a case breaking the naming conventions: abort or skip")
	fs.BoolVar(&c.Version, "version", false, "Show version")
	return c
}

// Parse parses args into fs. It returns pflag.ErrHelp when help was asked for.
func Parse(fs *pflag.FlagSet, args []string) error {
	fs.SortFlags = false
	return fs.Parse(args)
}

// Config returns the effective configuration: defaults, then the --config
// file, then the interactive form, then --on-violation.
func (c *Common) Config(stdout io.Writer) (*config.Config, error) {
	cfg := config.Default()
	if c.ConfigFile != "" {
		loaded, err := config.Load(c.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if c.Interactive {
		save, err := config.RunWizard(cfg)
		if err != nil {
			return nil, err
		}
		if save {
			if err := config.Save(cfg, config.DefaultFile); err != nil {
				return nil, err
			}
			_, _ = fmt.Fprintf(stdout, "Configuration saved to %s\n", config.DefaultFile)
		}
	}

	if c.OnViolation != "" {
		cfg.OnViolation = config.OnViolation(c.OnViolation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Logger builds the run logger from the shared flags.
func (c *Common) Logger() (*zap.SugaredLogger, func(), error) {
	return logging.New(c.Debug, c.LogFile)
}

// Finish saves cfg when --save-config was given. A failure is only a warning.
func (c *Common) Finish(cfg *config.Config, stdout, stderr io.Writer) {
	if c.SaveConfig == "" {
		return
	}
	if err := config.Save(cfg, c.SaveConfig); err != nil {
		_, _ = fmt.Fprintf(stderr, "Warning: could not save config: %v\n", err)
		return
	}
	_, _ = fmt.Fprintf(stdout, "Configuration saved to %s\n", c.SaveConfig)
}

// Bar returns the case progress bar of a run.
func (c *Common) Bar(total int, description string) logging.Progress {
	return logging.CaseBar(total, description, c.Quiet)
}

// PrintSummary writes the summary box to stderr unless quiet.
func (c *Common) PrintSummary(s *logging.Summary, stderr io.Writer) {
	if c.Quiet {
		return
	}
	_, _ = fmt.Fprintln(stderr, s.Render())
}

// Main runs run, printing "Error: ..." and exiting with status 1 on failure.
func Main(run func(args []string, stdout, stderr io.Writer) error) {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) || errors.Is(err, config.ErrCancelled) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
