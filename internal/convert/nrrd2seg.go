package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mrsinham/remindconv/internal/config"
	"github.com/mrsinham/remindconv/internal/layout"
	"github.com/mrsinham/remindconv/internal/logging"
)

// NRRDToSegOptions configures NRRDToSeg.
type NRRDToSegOptions struct {
	Input string
	// Output is the DICOM tree written by NRRDToDICOM.
	Output      string
	StudyDate   string
	TemplateDir string
	Encoder     SegmentationEncoder
	OnViolation config.OnViolation
	Log         *zap.SugaredLogger
	Progress    logging.Progress
}

// SegRun reports a NRRDToSeg run.
type SegRun struct {
	Written int
	Skipped []CaseError
}

// segJob is one planned segmentation export.
type segJob struct {
	name   layout.SegName
	refDir string
}

// NRRDToSeg encodes every mask of the Annotations folder of every case as a
// DICOM-SEG file referencing its series in the Output tree.
func NRRDToSeg(ctx context.Context, opts NRRDToSegOptions) (*SegRun, error) {
	c := newCommon(opts.OnViolation, opts.Log, opts.Progress)
	if opts.Encoder == nil {
		return nil, fmt.Errorf("no segmentation encoder configured")
	}
	cases, err := layout.ListCases(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	c.log.Infof("Found %d cases.", len(cases))

	run := &SegRun{}
	defer func() { _ = c.progress.Finish() }()

	for _, caseID := range cases {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		jobs, err := planSegCase(filepath.Join(opts.Input, caseID), opts.Output, opts.StudyDate)
		if err != nil {
			if err := c.handle(caseID, err, &run.Skipped); err != nil {
				return run, err
			}
			c.step(caseID)
			continue
		}
		for _, j := range jobs {
			if err := ctx.Err(); err != nil {
				return run, err
			}
			if err := encodeSeg(ctx, opts, j); err != nil {
				return run, fmt.Errorf("case %s: %w", caseID, err)
			}
			c.log.Debugw("encoded segmentation", "mask", j.name.Path, "reference", j.refDir)
			run.Written++
		}
		c.step(caseID)
	}
	return run, nil
}

// planSegCase resolves the reference series of every mask of a case.
func planSegCase(caseDir, output, date string) ([]segJob, error) {
	dir := filepath.Join(caseDir, layout.SessionSeg)
	files, err := layout.Volumes(dir, ".nrrd")
	if err != nil {
		return nil, err
	}
	jobs := make([]segJob, 0, len(files))
	for _, f := range files {
		name, err := layout.ParseSegName(filepath.Join(dir, f))
		if err != nil {
			return nil, err
		}
		studyDir := filepath.Join(output, layout.PatientDir(name.PatientID), layout.StudyDir(date, name.StudyID))
		ref, err := layout.FindReferenceSeries(studyDir, name.RefScan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, segJob{name: name, refDir: ref})
	}
	return jobs, nil
}

// SegDescription returns the SeriesDescription of a segmentation.
func SegDescription(structure, refScan string) string {
	return fmt.Sprintf("%s seg - MR ref: %s", structure, refScan)
}

// loadTemplate reads <dir>/<structure>.json and sets its SeriesDescription.
// Numbers are kept as written. Keys come out sorted.
func loadTemplate(dir string, name layout.SegName) ([]byte, error) {
	path := filepath.Join(dir, name.Structure+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	var meta map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	meta["SeriesDescription"] = SegDescription(name.Structure, name.RefScan)
	out, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	return out, nil
}

func encodeSeg(ctx context.Context, opts NRRDToSegOptions, j segJob) error {
	meta, err := loadTemplate(opts.TemplateDir, j.name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "seg-*.json")
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(meta); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata file: %w", err)
	}

	annotations := filepath.Join(opts.Output, layout.PatientDir(j.name.PatientID), layout.SessionSeg)
	if err := os.MkdirAll(annotations, 0755); err != nil {
		return fmt.Errorf("create annotations folder: %w", err)
	}
	out := filepath.Join(annotations, strings.ReplaceAll(filepath.Base(j.name.Path), ".nrrd", ".dcm"))
	return opts.Encoder.Encode(ctx, j.name.Path, j.refDir, out, tmp.Name())
}
