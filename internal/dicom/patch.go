package dicom

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrMissingTag is returned when a tag required by a patch is absent.
var ErrMissingTag = errors.New("required tag missing")

// TagValue is a tag and the string value a patch writes into it.
type TagValue struct {
	Tag   tag.Tag
	Value string
}

// Patch is a list of header edits applied to a DICOM file.
type Patch struct {
	// Set writes each value, adding the element when absent.
	Set []TagValue
	// Delete removes each tag when present.
	Delete []tag.Tag
	// Require fails the patch when one of these tags is absent.
	Require []tag.Tag
}

// Clear adds tags whose value is set to empty.
func (p Patch) Clear(tags ...tag.Tag) Patch {
	for _, t := range tags {
		p.Set = append(p.Set, TagValue{Tag: t})
	}
	return p
}

// Apply edits ds in place.
func (p Patch) Apply(ds *dicom.Dataset) error {
	for _, t := range p.Require {
		if _, err := ds.FindElementByTag(t); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingTag, tagName(t))
		}
	}
	for _, tv := range p.Set {
		elem, err := dicom.NewElement(tv.Tag, []string{tv.Value})
		if err != nil {
			return fmt.Errorf("set %s: %w", tagName(tv.Tag), err)
		}
		replaced := false
		for i, e := range ds.Elements {
			if e.Tag == tv.Tag {
				ds.Elements[i] = elem
				replaced = true
				break
			}
		}
		if !replaced {
			ds.Elements = append(ds.Elements, elem)
		}
	}
	if len(p.Delete) > 0 {
		kept := ds.Elements[:0]
		for _, e := range ds.Elements {
			if !containsTag(p.Delete, e.Tag) {
				kept = append(kept, e)
			}
		}
		ds.Elements = kept
	}
	sortElements(ds.Elements)
	return nil
}

// ApplyFile patches the file at path and re-writes it in place through a
// temporary sibling file.
func (p Patch) ApplyFile(path string) error {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := p.Apply(&ds); err != nil {
		return fmt.Errorf("patch %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := writeDatasetToFile(tmp, ds, dicom.SkipVRVerification()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// ApplyDir patches every file of dir whose name contains marker, stopping at
// the first failure.
func (p Patch) ApplyDir(dir, marker string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read series folder: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), marker) {
			continue
		}
		if err := p.ApplyFile(filepath.Join(dir, e.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// DeidentifyPatch returns the header clean-up applied to host-exported series.
// method is written into DeidentificationMethod and extra tags are cleared.
func DeidentifyPatch(method string, extra ...tag.Tag) Patch {
	p := Patch{
		Set: []TagValue{
			{Tag: TagScanningSequence, Value: "RM"},
			{Tag: TagSequenceVariant, Value: "NONE"},
		},
		Require: []tag.Tag{tag.RescaleType},
	}
	p = p.Clear(
		TagMRAcquisitionType,
		TagScanOptions,
		tag.RepetitionTime,
		tag.EchoTime,
		TagEchoTrainLength,
		TagLaterality,
	)
	p.Set = append(p.Set, TagValue{Tag: TagDeidentificationMethod, Value: method})
	return p.Clear(extra...)
}

// StudyInfoPatch returns the edits that attach a tool-converted file to its study.
func StudyInfoPatch(studyInstanceUID, studyDescription, seriesDescription string, modality Modality, date string) Patch {
	return Patch{
		Set: []TagValue{
			{Tag: tag.StudyInstanceUID, Value: studyInstanceUID},
			{Tag: tag.StudyDescription, Value: studyDescription},
			{Tag: tag.SeriesDescription, Value: seriesDescription},
			{Tag: tag.Modality, Value: string(modality)},
			{Tag: tag.StudyDate, Value: date},
		},
	}
}

func containsTag(tags []tag.Tag, t tag.Tag) bool {
	for _, c := range tags {
		if c == t {
			return true
		}
	}
	return false
}

func tagName(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil {
		return info.Keyword
	}
	return t.String()
}
