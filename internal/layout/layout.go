// Package layout encodes the folder and file naming conventions of the dataset.
//
// Every identifier the drivers need (patient ID, study ID, series description,
// ultrasound acquisition, segmentation structure) is taken from a path through a
// compiled Schema, so a path that breaks the convention yields the same *Violation
// whichever driver reads it.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// Phase is an acquisition timepoint.
type Phase string

const (
	Preop   Phase = "Preop"
	Intraop Phase = "Intraop"
)

// Phases returns the acquisition timepoints in processing order.
func Phases() []Phase {
	return []Phase{Preop, Intraop}
}

// Session folders of the NRRD tree.
const (
	SessionPreopMR   = "Preop-MR"
	SessionIntraopUS = "Intraop-US"
	SessionIntraopMR = "Intraop-MR"
	SessionSeg       = "Annotations"
)

// Schema is a compiled naming convention with named fields.
type Schema struct {
	name string
	re   *regexp.Regexp
}

// MustSchema compiles pattern; it panics on an invalid pattern.
func MustSchema(name, pattern string) *Schema {
	return &Schema{name: name, re: regexp.MustCompile(pattern)}
}

// Name returns the convention name used in violations.
func (s *Schema) Name() string {
	return s.name
}

// Match matches value against the schema and returns its named fields.
// path is only used to report a violation.
func (s *Schema) Match(path, value string) (map[string]string, error) {
	m := s.re.FindStringSubmatch(value)
	if m == nil {
		return nil, &Violation{Kind: BadName, Path: path, Label: s.name}
	}
	fields := make(map[string]string, len(m))
	for i, n := range s.re.SubexpNames() {
		if n != "" {
			fields[n] = m[i]
		}
	}
	return fields, nil
}

var (
	// caseSchema: the patient ID is the case folder name minus its 4-character prefix.
	caseSchema = MustSchema("case folder", `^.{4}(?P<patient>.+)$`)
	// sessionSchema: the study ID is the session folder name up to the first hyphen.
	sessionSchema = MustSchema("session folder", `^(?P<study>[^-]*)`)
	// volumeSchema: the series description is the last hyphen field of a volume file.
	volumeSchema = MustSchema("volume file", `^(?:.*-)?(?P<description>[^-]*)\.nrrd$`)
	// segSchema: <f0>-<study>-<f2>-<structure>-<f4>-<ref>[-...]
	segSchema = MustSchema("segmentation file",
		`^[^-]*-(?P<study>[^-]*)-[^-]*-(?P<structure>[^-]*)-[^-]*-(?P<ref>[^-]*)(?:-.*)?$`)
	// seriesSchema: <number>-<token>[-...]
	seriesSchema = MustSchema("series folder", `^[^-]*-(?P<token>[^-]*)`)
)

// ListCases returns the case folders under root in natural order.
func ListCases(root string) ([]string, error) {
	return subdirs(root, func(string) bool { return true })
}

// FindPhaseFolder returns the single sub-folder of caseDir whose name contains the
// phase label.
func FindPhaseFolder(caseDir string, phase Phase) (string, error) {
	matches, err := subdirs(caseDir, func(name string) bool {
		return strings.Contains(name, string(phase))
	})
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", &Violation{Kind: NoMatch, Path: caseDir, Label: string(phase)}
	case 1:
		return matches[0], nil
	default:
		return "", &Violation{Kind: Ambiguous, Path: caseDir, Label: string(phase), Count: len(matches)}
	}
}

// SeriesFolders returns the image series folders of a phase folder.
// Segmentation folders (name containing "seg") are left out.
func SeriesFolders(phaseDir string) ([]string, error) {
	return subdirs(phaseDir, func(name string) bool {
		return !strings.Contains(name, "seg")
	})
}

// Volumes returns the files of dir whose name contains marker, in natural order.
// A missing dir holds no volumes.
func Volumes(dir, marker string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read volume folder: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.Contains(e.Name(), marker) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(natural.StringSlice(names))
	return names, nil
}

func subdirs(dir string, keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && keep(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(natural.StringSlice(names))
	return names, nil
}

// PatientDir returns the output folder name of a patient.
func PatientDir(patientID string) string {
	return fmt.Sprintf("%s-%s", patientID, PatientName(patientID))
}

// PatientName returns the DICOM PatientName written for a patient.
func PatientName(patientID string) string {
	return "CASE^" + patientID
}

// StudyDir returns the output folder name of a study.
func StudyDir(date, studyID string) string {
	return fmt.Sprintf("%s-%s", date, studyID)
}

// SeriesDir returns the output folder name of a series.
func SeriesDir(seriesNumber, description string) string {
	return fmt.Sprintf("%s-%s", seriesNumber, description)
}

// parts returns the last three components of path: case, session, file.
func parts(path string) (caseDir, session, file string, err error) {
	clean := filepath.ToSlash(filepath.Clean(path))
	comps := strings.Split(clean, "/")
	if len(comps) < 3 {
		return "", "", "", &Violation{Kind: BadName, Path: path, Label: "case/session/file"}
	}
	n := len(comps)
	return comps[n-3], comps[n-2], comps[n-1], nil
}

func patientID(path, caseDir string) (string, error) {
	f, err := caseSchema.Match(path, caseDir)
	if err != nil {
		return "", err
	}
	return f["patient"], nil
}
