// Command dicom2img converts the DICOM series of a TCIA download into NIfTI
// or NRRD volumes, one file per series.
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
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	cli.Main(run)
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("dicom2img", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	pathDICOM := fs.String("path_dicom", "../../data/ReMIND_TCIA/manifest-1695134609823/ReMIND/", "Path to the DICOM images from TCIA")
	pathOutput := fs.String("path_output", "./nifti_imgs", "Path to the output NIfTI image dataset")
	nrrd := fs.Bool("nrrd", false, "Convert to NRRD format")
	nifti := fs.Bool("nifti", false, "Convert to NIfTI format")
	withPreview := fs.Bool("preview", false, "Write a PNG of the middle slice next to every volume")
	common := cli.Register(fs)

	if err := cli.Parse(fs, args); err != nil {
		return err
	}
	if common.Version {
		_, _ = fmt.Fprintf(stdout, "dicom2img %s\n", version)
		return nil
	}

	format, err := convert.FormatFromFlags(*nrrd, *nifti)
	if err != nil {
		return err
	}
	cfg, err := common.Config(stdout)
	if err != nil {
		return err
	}
	cfg.Paths.TCIA = config.Pick(*pathDICOM, fs.Changed("path_dicom"), cfg.Paths.TCIA)
	cfg.Paths.Images = config.Pick(*pathOutput, fs.Changed("path_output"), cfg.Paths.Images)

	log, closeLog, err := common.Logger()
	if err != nil {
		return err
	}
	defer closeLog()

	cases, err := layout.ListCases(cfg.Paths.TCIA)
	if err != nil {
		return fmt.Errorf("list cases: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	counts, err := convert.DicomToImage(ctx, convert.DicomToImageOptions{
		Input:       cfg.Paths.TCIA,
		Output:      cfg.Paths.Images,
		Format:      format,
		Preview:     *withPreview,
		OnViolation: cfg.OnViolation,
		Log:         log,
		Progress:    common.Bar(len(cases), "cases"),
		Out:         stdout,
	})
	if err != nil {
		return err
	}

	for _, p := range layout.Phases() {
		_, _ = fmt.Fprintf(stdout, "Number of %s scans: %d\n", p, counts.Scans[p])
	}

	summary := logging.NewSummary("dicom2img").
		Add("Format", format).
		Add("Output", cfg.Paths.Images).
		Add("Cases", counts.Cases)
	for _, p := range layout.Phases() {
		summary.Add(fmt.Sprintf("%s scans", p), counts.Scans[p])
	}
	summary.AddBytes("Written", counts.Bytes)
	for _, s := range counts.Skipped {
		summary.AddError(s.Error())
	}
	common.PrintSummary(summary, stderr)

	common.Finish(cfg, stdout, stderr)
	return nil
}
