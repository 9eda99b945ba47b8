package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"

	"github.com/mrsinham/remindconv/internal/config"
	"github.com/mrsinham/remindconv/internal/dicom"
	"github.com/mrsinham/remindconv/internal/layout"
	"github.com/mrsinham/remindconv/internal/logging"
	"github.com/mrsinham/remindconv/internal/tools"
	"github.com/mrsinham/remindconv/internal/volume"
)

// dcmMarker selects the files patched after a host export.
const dcmMarker = "dcm"

// strategy is the way a volume is exported.
type strategy int

const (
	// hostExport writes one file per slice with the built-in writer.
	hostExport strategy = iota
	// toolExport writes a single file with the external converter.
	toolExport
)

// sessionPlan describes how the volumes of a session folder are exported.
type sessionPlan struct {
	session  string
	phase    layout.Phase
	marker   string
	strategy strategy
	// offset is added to the 0-based volume index to number the series.
	offset int
}

// sessions lists the NRRD session folders in export order.
var sessions = []sessionPlan{
	{session: layout.SessionPreopMR, phase: layout.Preop, marker: ".nrrd", strategy: hostExport, offset: 1},
	{session: layout.SessionIntraopUS, phase: layout.Intraop, marker: "nrrd", strategy: toolExport, offset: 1},
	{session: layout.SessionIntraopMR, phase: layout.Intraop, marker: ".nrrd", strategy: hostExport, offset: 4},
}

// NRRDToDICOMOptions configures NRRDToDICOM.
type NRRDToDICOMOptions struct {
	Input     string
	Output    string
	StudyDate string
	// Method is written into DeidentificationMethod of host-exported series.
	Method      string
	ClearTags   []tag.Tag
	Converter   VolumeConverter
	UIDs        *dicom.UIDFactory
	OnViolation config.OnViolation
	Log         *zap.SugaredLogger
	Progress    logging.Progress
}

// FolderError records a series folder whose header patch failed.
type FolderError struct {
	Folder string
	Err    error
}

func (e FolderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Folder, e.Err)
}

// CaseResult reports one converted case.
type CaseResult struct {
	Case       string
	PreopUID   string
	IntraopUID string
	Series     int
	Errors     []FolderError
}

// DicomRun reports a NRRDToDICOM run.
type DicomRun struct {
	Cases   []CaseResult
	Skipped []CaseError
}

// Errors returns the patch errors of every case.
func (r *DicomRun) Errors() []FolderError {
	var errs []FolderError
	for _, c := range r.Cases {
		errs = append(errs, c.Errors...)
	}
	return errs
}

// job is one planned volume export.
type job struct {
	name         layout.VolumeName
	phase        layout.Phase
	seriesNumber string
	strategy     strategy
}

// NRRDToDICOM exports the Preop-MR, Intraop-US and Intraop-MR volumes of every
// case under Input into Output/<id>-CASE^<id>/<date>-<study>/<n>-<desc>.
func NRRDToDICOM(ctx context.Context, opts NRRDToDICOMOptions) (*DicomRun, error) {
	c := newCommon(opts.OnViolation, opts.Log, opts.Progress)
	if opts.UIDs == nil {
		opts.UIDs = dicom.NewUIDFactory(0)
	}
	cases, err := layout.ListCases(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	c.log.Infof("Found %d cases.", len(cases))

	e := &exporter{opts: opts, log: c.log}
	run := &DicomRun{}
	defer func() { _ = c.progress.Finish() }()

	for _, caseID := range cases {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		jobs, err := planCase(filepath.Join(opts.Input, caseID))
		if err != nil {
			if err := c.handle(caseID, err, &run.Skipped); err != nil {
				return run, err
			}
			c.step(caseID)
			continue
		}
		res, err := e.exportCase(ctx, caseID, jobs)
		if err != nil {
			return run, fmt.Errorf("case %s: %w", caseID, err)
		}
		run.Cases = append(run.Cases, res)
		c.step(caseID)
	}
	return run, nil
}

// planCase parses every volume name of a case before anything is written.
func planCase(caseDir string) ([]job, error) {
	var jobs []job
	for _, s := range sessions {
		dir := filepath.Join(caseDir, s.session)
		files, err := layout.Volumes(dir, s.marker)
		if err != nil {
			return nil, err
		}
		for i, f := range files {
			name, err := layout.ParseVolumePath(filepath.Join(dir, f))
			if err != nil {
				return nil, err
			}
			number := strconv.Itoa(i + s.offset)
			if name.Ultrasound {
				if number, err = layout.UltrasoundSeriesNumber(name.Path); err != nil {
					return nil, err
				}
			}
			jobs = append(jobs, job{name: name, phase: s.phase, seriesNumber: number, strategy: s.strategy})
		}
	}
	return jobs, nil
}

// exporter runs planned jobs.
type exporter struct {
	opts NRRDToDICOMOptions
	log  *zap.SugaredLogger
	// exports numbers the generic host export folders.
	exports int
}

func (e *exporter) exportCase(ctx context.Context, caseID string, jobs []job) (CaseResult, error) {
	res := CaseResult{
		Case:       caseID,
		PreopUID:   e.opts.UIDs.StudyUID(),
		IntraopUID: e.opts.UIDs.StudyUID(),
	}
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		studyUID := res.IntraopUID
		if j.phase == layout.Preop {
			studyUID = res.PreopUID
		}

		var err error
		switch j.strategy {
		case hostExport:
			err = e.host(j, studyUID, &res)
		case toolExport:
			err = e.tool(ctx, j, studyUID)
		}
		if err != nil {
			return res, err
		}
		res.Series++
	}
	return res, nil
}

func (e *exporter) studyDir(n layout.VolumeName) string {
	return filepath.Join(e.opts.Output, layout.PatientDir(n.PatientID), layout.StudyDir(e.opts.StudyDate, n.StudyID))
}

// host writes the volume with the built-in writer, renames the export folder
// and patches its files. Patch failures are recorded on the case.
func (e *exporter) host(j job, studyUID string, res *CaseResult) error {
	n := j.name
	v, err := volume.ReadFile(n.Path)
	if err != nil {
		return err
	}

	studyDir := e.studyDir(n)
	e.exports++
	exported, err := dicom.WriteSeries(v, e.seriesInfo(n, j.seriesNumber, studyUID), studyDir, e.exports, e.opts.UIDs)
	if err != nil {
		return fmt.Errorf("export %s: %w", n.Path, err)
	}
	final := filepath.Join(studyDir, layout.SeriesDir(j.seriesNumber, n.SeriesDescription))
	if err := os.Rename(exported, final); err != nil {
		return fmt.Errorf("rename export folder: %w", err)
	}

	patch := dicom.DeidentifyPatch(e.opts.Method, e.opts.ClearTags...)
	count, err := patch.ApplyDir(final, dcmMarker)
	if err != nil {
		e.log.Warnw("header patch failed", "folder", final, "patched", count, "error", err)
		res.Errors = append(res.Errors, FolderError{Folder: final, Err: err})
		return nil
	}
	e.log.Debugw("exported series", "folder", final, "files", count)
	return nil
}

// tool writes the volume with the external converter, then attaches the
// file to its study.
func (e *exporter) tool(ctx context.Context, j job, studyUID string) error {
	n := j.name
	if e.opts.Converter == nil {
		return fmt.Errorf("export %s: no converter configured", n.Path)
	}
	seriesDir := filepath.Join(e.studyDir(n), layout.SeriesDir(j.seriesNumber, n.SeriesDescription))
	if err := os.MkdirAll(seriesDir, 0755); err != nil {
		return fmt.Errorf("create series folder: %w", err)
	}
	dcm := filepath.Join(seriesDir, n.SeriesDescription+".dcm")

	id := toolIdentity(n, j.seriesNumber)
	if err := e.opts.Converter.Convert(ctx, n.Path, dcm, id); err != nil {
		return err
	}
	patch := dicom.StudyInfoPatch(studyUID, n.StudyID, n.SeriesDescription, dicom.Modality(n.Modality), e.opts.StudyDate)
	if err := patch.ApplyFile(dcm); err != nil {
		return err
	}
	e.log.Debugw("exported series", "file", dcm)
	return nil
}

func (e *exporter) seriesInfo(n layout.VolumeName, seriesNumber, studyUID string) dicom.SeriesInfo {
	return dicom.SeriesInfo{
		PatientID:         n.PatientID,
		PatientName:       layout.PatientName(n.PatientID),
		StudyID:           n.StudyID,
		StudyDescription:  n.StudyID,
		StudyDate:         e.opts.StudyDate,
		StudyInstanceUID:  studyUID,
		Modality:          dicom.Modality(n.Modality),
		SeriesDescription: n.SeriesDescription,
		SeriesNumber:      seriesNumber,
	}
}

// toolIdentity returns the converter arguments of a volume. The instance
// number repeats the series number.
func toolIdentity(n layout.VolumeName, seriesNumber string) tools.Identity {
	return tools.Identity{
		PatientName:    layout.PatientName(n.PatientID),
		PatientID:      n.PatientID,
		StudyID:        n.StudyID,
		SeriesNumber:   seriesNumber,
		InstanceNumber: seriesNumber,
	}
}
