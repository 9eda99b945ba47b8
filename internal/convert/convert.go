// Package convert implements the three batch conversions of the dataset:
// DICOM series to NIfTI or NRRD volumes, NRRD volumes to DICOM series, and
// NRRD segmentation masks to DICOM-SEG.
//
// Every driver walks the case folders of its input root in natural order and
// returns a typed report. Naming convention violations either stop the run or
// skip the case, following the OnViolation policy of the options.
package convert

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mrsinham/remindconv/internal/config"
	"github.com/mrsinham/remindconv/internal/layout"
	"github.com/mrsinham/remindconv/internal/logging"
	"github.com/mrsinham/remindconv/internal/tools"
)

// VolumeConverter turns one NRRD volume into one DICOM file.
type VolumeConverter interface {
	Convert(ctx context.Context, nrrd, dcm string, id tools.Identity) error
}

// SegmentationEncoder turns one NRRD mask into a DICOM-SEG file.
type SegmentationEncoder interface {
	Encode(ctx context.Context, nrrd, refDir, out, metadata string) error
}

// CaseError records a case left out of a run and why.
type CaseError struct {
	Case string
	Err  error
}

func (e CaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Case, e.Err)
}

// common holds the settings shared by the drivers.
type common struct {
	onViolation config.OnViolation
	log         *zap.SugaredLogger
	progress    logging.Progress
}

func newCommon(policy config.OnViolation, log *zap.SugaredLogger, progress logging.Progress) common {
	if log == nil {
		log = logging.Nop()
	}
	if progress == nil {
		progress = nopProgress{}
	}
	if policy == "" {
		policy = config.Abort
	}
	return common{onViolation: policy, log: log, progress: progress}
}

// handle decides what a case error means for the run. It returns nil when
// the case must be skipped and the run continues.
func (c common) handle(caseID string, err error, skipped *[]CaseError) error {
	v, ok := layout.AsViolation(err)
	if !ok || c.onViolation != config.Skip {
		return fmt.Errorf("case %s: %w", caseID, err)
	}
	c.log.Warnw("skipping case", "case", caseID, "kind", v.Kind.String(), "error", v.Error())
	*skipped = append(*skipped, CaseError{Case: caseID, Err: err})
	return nil
}

// step advances the case bar.
func (c common) step(caseID string) {
	c.progress.Describe(caseID)
	_ = c.progress.Add(1)
}

type nopProgress struct{}

func (nopProgress) Add(int) error   { return nil }
func (nopProgress) Describe(string) {}
func (nopProgress) Finish() error   { return nil }
