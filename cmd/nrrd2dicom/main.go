// Command nrrd2dicom converts the NRRD volumes of the dataset into DICOM
// series and writes the case to StudyInstanceUID table.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/mrsinham/remindconv/internal/cli"
	"github.com/mrsinham/remindconv/internal/config"
	"github.com/mrsinham/remindconv/internal/convert"
	"github.com/mrsinham/remindconv/internal/dicom"
	"github.com/mrsinham/remindconv/internal/layout"
	"github.com/mrsinham/remindconv/internal/logging"
	"github.com/mrsinham/remindconv/internal/tools"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	cli.Main(run)
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("nrrd2dicom", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	pathNRRD := fs.String("path_nrrd", "./nrrd", "Path to the input NRRD dataset")
	pathDICOM := fs.String("path_dicom", "./dicom_folder", "Path to the output DICOM dataset")
	corrCSV := fs.String("corr_csv", "", "Case to StudyInstanceUID table (default from config: corr.csv)")
	common := cli.Register(fs)

	if err := cli.Parse(fs, args); err != nil {
		return err
	}
	if common.Version {
		_, _ = fmt.Fprintf(stdout, "nrrd2dicom %s\n", version)
		return nil
	}

	cfg, err := common.Config(stdout)
	if err != nil {
		return err
	}
	cfg.Paths.NRRD = config.Pick(*pathNRRD, fs.Changed("path_nrrd"), cfg.Paths.NRRD)
	cfg.Paths.DICOM = config.Pick(*pathDICOM, fs.Changed("path_dicom"), cfg.Paths.DICOM)
	if *corrCSV != "" {
		cfg.CorrCSV = *corrCSV
	}
	clearTags, err := cfg.ClearTags()
	if err != nil {
		return err
	}

	log, closeLog, err := common.Logger()
	if err != nil {
		return err
	}
	defer closeLog()

	cases, err := layout.ListCases(cfg.Paths.NRRD)
	if err != nil {
		return fmt.Errorf("list cases: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pixelmed := &tools.Pixelmed{
		Jar:    cfg.Pixelmed.Jar,
		Java:   cfg.Pixelmed.Java,
		URL:    cfg.Pixelmed.URL,
		Runner: tools.NewExecRunner(log),
		Log:    log,
		Quiet:  common.Quiet,
	}
	if err := pixelmed.Ensure(ctx); err != nil {
		return err
	}

	result, err := convert.NRRDToDICOM(ctx, convert.NRRDToDICOMOptions{
		Input:       cfg.Paths.NRRD,
		Output:      cfg.Paths.DICOM,
		StudyDate:   cfg.StudyDate,
		Method:      cfg.DeidentificationMethod,
		ClearTags:   clearTags,
		Converter:   pixelmed,
		UIDs:        dicom.NewUIDFactory(cfg.Seed),
		OnViolation: cfg.OnViolation,
		Log:         log,
		Progress:    common.Bar(len(cases), "cases"),
	})
	if result != nil {
		if csvErr := convert.WriteCorrCSV(cfg.CorrCSV, result.Cases); csvErr != nil && err == nil {
			err = csvErr
		}
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(stdout, "----------- errors -------------")
	for _, e := range result.Errors() {
		_, _ = fmt.Fprintln(stdout, e.Error())
	}

	series := 0
	for _, c := range result.Cases {
		series += c.Series
	}
	summary := logging.NewSummary("nrrd2dicom").
		Add("Output", cfg.Paths.DICOM).
		Add("Cases", len(result.Cases)).
		Add("Series", series).
		Add("Correspondence table", cfg.CorrCSV)
	for _, e := range result.Errors() {
		summary.AddError(e.Error())
	}
	for _, s := range result.Skipped {
		summary.AddError(s.Error())
	}
	common.PrintSummary(summary, stderr)

	common.Finish(cfg, stdout, stderr)
	return nil
}
