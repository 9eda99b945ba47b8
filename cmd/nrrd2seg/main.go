// Command nrrd2seg encodes the NRRD segmentation masks of the dataset as
// DICOM-SEG files referencing the series written by nrrd2dicom.
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
	fs := pflag.NewFlagSet("nrrd2seg", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	pathNRRD := fs.String("path_nrrd", "./nrrd", "Path to the input NRRD dataset")
	pathDICOM := fs.String("path_dicom", "./dicom_folder", "Path to the output DICOM dataset")
	img2seg := fs.String("img2seg", config.Default().Img2Seg, "Path to the DCMQI itkimage2segimage binary")
	templates := fs.String("templates", "", "Folder of <structure>.json segmentation templates (default from config: json)")
	common := cli.Register(fs)

	if err := cli.Parse(fs, args); err != nil {
		return err
	}
	if common.Version {
		_, _ = fmt.Fprintf(stdout, "nrrd2seg %s\n", version)
		return nil
	}

	cfg, err := common.Config(stdout)
	if err != nil {
		return err
	}
	cfg.Paths.NRRD = config.Pick(*pathNRRD, fs.Changed("path_nrrd"), cfg.Paths.NRRD)
	cfg.Paths.DICOM = config.Pick(*pathDICOM, fs.Changed("path_dicom"), cfg.Paths.DICOM)
	cfg.Img2Seg = config.Pick(*img2seg, fs.Changed("img2seg"), cfg.Img2Seg)
	if *templates != "" {
		cfg.TemplateDir = *templates
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

	result, err := convert.NRRDToSeg(ctx, convert.NRRDToSegOptions{
		Input:       cfg.Paths.NRRD,
		Output:      cfg.Paths.DICOM,
		StudyDate:   cfg.StudyDate,
		TemplateDir: cfg.TemplateDir,
		Encoder:     &tools.SegEncoder{Binary: cfg.Img2Seg, Runner: tools.NewExecRunner(log)},
		OnViolation: cfg.OnViolation,
		Log:         log,
		Progress:    common.Bar(len(cases), "cases"),
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Number of segmentations: %d\n", result.Written)

	summary := logging.NewSummary("nrrd2seg").
		Add("Output", cfg.Paths.DICOM).
		Add("Segmentations", result.Written)
	for _, s := range result.Skipped {
		summary.AddError(s.Error())
	}
	common.PrintSummary(summary, stderr)

	common.Finish(cfg, stdout, stderr)
	return nil
}
