package layout

import (
	"os"
	"path/filepath"
	"strings"
)

// Modality codes derived from volume paths.
const (
	ModalityMR = "MR"
	ModalityUS = "US"
)

// VolumeName holds the identifiers carried by an NRRD volume path
// (<root>/<case>/<session>/<file>.nrrd).
type VolumeName struct {
	Path              string
	CaseID            string
	PatientID         string
	StudyID           string
	SeriesDescription string
	Modality          string
	Ultrasound        bool
}

// ParseVolumePath reads the identifiers of an NRRD volume from its path.
// Ultrasound volumes get their series description prefixed with "US_".
func ParseVolumePath(path string) (VolumeName, error) {
	caseDir, session, file, err := parts(path)
	if err != nil {
		return VolumeName{}, err
	}
	pid, err := patientID(path, caseDir)
	if err != nil {
		return VolumeName{}, err
	}
	sf, err := sessionSchema.Match(path, session)
	if err != nil {
		return VolumeName{}, err
	}
	vf, err := volumeSchema.Match(path, strings.ReplaceAll(file, "-r.n", ".n"))
	if err != nil {
		return VolumeName{}, err
	}

	rel := session + "/" + file
	v := VolumeName{
		Path:              path,
		CaseID:            caseDir,
		PatientID:         pid,
		StudyID:           sf["study"],
		SeriesDescription: vf["description"],
		Modality:          ModalityUS,
		Ultrasound:        strings.Contains(rel, ModalityUS),
	}
	if strings.Contains(rel, ModalityMR) {
		v.Modality = ModalityMR
	}
	if v.Ultrasound {
		v.SeriesDescription = "US_" + v.SeriesDescription
	}
	return v, nil
}

// ultrasoundTokens maps ultrasound acquisition tokens to series numbers, in match order.
var ultrasoundTokens = []struct {
	token  string
	number string
}{
	{"pre_dura", "1"},
	{"post_dura", "2"},
	{"pre_imri", "3"},
}

// UltrasoundSeriesNumber returns the series number of an ultrasound volume from the
// acquisition token in its path.
func UltrasoundSeriesNumber(path string) (string, error) {
	for _, t := range ultrasoundTokens {
		if strings.Contains(path, t.token) {
			return t.number, nil
		}
	}
	return "", &Violation{Kind: UnknownUltrasound, Path: path, Label: "ultrasound token"}
}

// segStudies maps the study key of a segmentation file name to its study ID.
var segStudies = map[string]Phase{
	"preop":   Preop,
	"intraop": Intraop,
}

// SegName holds the identifiers carried by a segmentation file path.
type SegName struct {
	Path      string
	PatientID string
	StudyID   string
	Structure string
	RefScan   string
}

// ParseSegName reads the identifiers of a segmentation volume from its path.
func ParseSegName(path string) (SegName, error) {
	caseDir, _, file, err := parts(path)
	if err != nil {
		return SegName{}, err
	}
	pid, err := patientID(path, caseDir)
	if err != nil {
		return SegName{}, err
	}
	f, err := segSchema.Match(path, file)
	if err != nil {
		return SegName{}, err
	}
	study, ok := segStudies[f["study"]]
	if !ok {
		return SegName{}, &Violation{Kind: BadName, Path: path, Label: "segmentation study key"}
	}
	return SegName{
		Path:      path,
		PatientID: pid,
		StudyID:   string(study),
		Structure: f["structure"],
		RefScan:   strings.ReplaceAll(f["ref"], ".nrrd", ""),
	}, nil
}

// FindReferenceSeries returns the single series folder of studyDir whose token
// (second hyphen field) equals token.
func FindReferenceSeries(studyDir, token string) (string, error) {
	entries, err := os.ReadDir(studyDir)
	if err != nil {
		return "", &Violation{Kind: NoReference, Path: studyDir, Label: token}
	}
	var matches []string
	for _, e := range entries {
		f, err := seriesSchema.Match(studyDir, e.Name())
		if err != nil {
			continue
		}
		if f["token"] == token {
			matches = append(matches, e.Name())
		}
	}
	if len(matches) != 1 {
		return "", &Violation{Kind: NoReference, Path: studyDir, Label: token, Count: len(matches)}
	}
	return filepath.Join(studyDir, matches[0]), nil
}
