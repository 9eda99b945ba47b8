package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mrsinham/remindconv/internal/config"
	"github.com/mrsinham/remindconv/internal/dicom"
	"github.com/mrsinham/remindconv/internal/layout"
	"github.com/mrsinham/remindconv/internal/logging"
	"github.com/mrsinham/remindconv/internal/preview"
	"github.com/mrsinham/remindconv/internal/volume"
)

// ErrNoFormat is returned when neither or both output formats are requested.
var ErrNoFormat = errors.New("either --nrrd or --nifti are required")

// Format is the output volume format.
type Format int

const (
	NIfTI Format = iota + 1
	NRRD
)

// Ext returns the file extension written for f.
func (f Format) Ext() string {
	if f == NRRD {
		return ".nrrd"
	}
	return ".nii.gz"
}

func (f Format) String() string {
	switch f {
	case NIfTI:
		return "nifti"
	case NRRD:
		return "nrrd"
	default:
		return "unknown"
	}
}

// FormatFromFlags returns the format selected by the mutually exclusive flags.
func FormatFromFlags(nrrd, nifti bool) (Format, error) {
	switch {
	case nrrd && !nifti:
		return NRRD, nil
	case nifti && !nrrd:
		return NIfTI, nil
	default:
		return 0, ErrNoFormat
	}
}

// tempVolume is the intermediate file of the NRRD path.
const tempVolume = "temp.nii.gz"

// DicomToImageOptions configures DicomToImage.
type DicomToImageOptions struct {
	Input       string
	Output      string
	Format      Format
	Preview     bool
	OnViolation config.OnViolation
	Log         *zap.SugaredLogger
	Progress    logging.Progress
	// Out receives the "Found N cases." line. Nil discards it.
	Out io.Writer
}

// Counts reports a DicomToImage run.
type Counts struct {
	Cases   int
	Scans   map[layout.Phase]int
	Bytes   int64
	Skipped []CaseError
}

// DicomToImage converts every image series of every case under Input into
// Output/<case>/<session>/<name><ext>.
func DicomToImage(ctx context.Context, opts DicomToImageOptions) (*Counts, error) {
	if opts.Format != NIfTI && opts.Format != NRRD {
		return nil, ErrNoFormat
	}
	c := newCommon(opts.OnViolation, opts.Log, opts.Progress)
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	cases, err := layout.ListCases(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Found %d cases.\n", len(cases))

	counts := &Counts{Scans: make(map[layout.Phase]int)}
	for _, p := range layout.Phases() {
		counts.Scans[p] = 0
	}
	defer func() { _ = c.progress.Finish() }()

	for _, caseID := range cases {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		err := convertCase(ctx, c, opts, caseID, counts)
		if err != nil {
			if err := c.handle(caseID, err, &counts.Skipped); err != nil {
				return counts, err
			}
		} else {
			counts.Cases++
		}
		c.step(caseID)
	}
	return counts, nil
}

// convertCase resolves every phase folder first so that a broken case writes nothing.
func convertCase(ctx context.Context, c common, opts DicomToImageOptions, caseID string, counts *Counts) error {
	caseDir := filepath.Join(opts.Input, caseID)
	sessions := make([]string, 0, len(layout.Phases()))
	for _, phase := range layout.Phases() {
		session, err := layout.FindPhaseFolder(caseDir, phase)
		if err != nil {
			return err
		}
		sessions = append(sessions, session)
	}

	for i, phase := range layout.Phases() {
		session := sessions[i]
		inDir := filepath.Join(caseDir, session)
		outDir := filepath.Join(opts.Output, caseID, session)
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("create output folder: %w", err)
		}

		folders, err := layout.SeriesFolders(inDir)
		if err != nil {
			return err
		}
		for _, folder := range folders {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := convertSeries(c.log, filepath.Join(inDir, folder), outDir, opts.Format, opts.Preview)
			if err != nil {
				return fmt.Errorf("convert %s/%s: %w", session, folder, err)
			}
			counts.Scans[phase]++
			counts.Bytes += n
		}
	}
	return nil
}

// convertSeries writes the series of seriesDir into outDir and returns the
// size of the written volume.
func convertSeries(log *zap.SugaredLogger, seriesDir, outDir string, format Format, withPreview bool) (int64, error) {
	v, files, err := dicom.ReadSeries(seriesDir)
	if err != nil {
		return 0, err
	}
	name := dicom.SeriesFilename(files[0], log)
	outFile := filepath.Join(outDir, name+format.Ext())

	switch format {
	case NIfTI:
		if err := volume.WriteFile(outFile, v); err != nil {
			return 0, err
		}
	case NRRD:
		// Written through a NIfTI round trip; the temp file stays behind if a step fails.
		temp := filepath.Join(outDir, tempVolume)
		if err := volume.WriteFile(temp, v); err != nil {
			return 0, err
		}
		img, err := volume.ReadNIfTI(temp)
		if err != nil {
			return 0, err
		}
		if err := volume.WriteFile(outFile, img); err != nil {
			return 0, err
		}
		if err := os.Remove(temp); err != nil {
			return 0, fmt.Errorf("remove temp volume: %w", err)
		}
	}
	log.Debugw("converted series", "series", seriesDir, "output", outFile, "slices", v.Dims[2])

	if withPreview {
		png := strings.TrimSuffix(outFile, format.Ext()) + ".png"
		if err := preview.Write(png, v, name); err != nil {
			log.Warnf("Unable to write preview %s: %v", png, err)
		}
	}

	info, err := os.Stat(outFile)
	if err != nil {
		return 0, fmt.Errorf("stat output: %w", err)
	}
	return info.Size(), nil
}
