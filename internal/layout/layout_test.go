package layout

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
}

func TestListCases_NaturalOrder(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "Case10", "Case2", "Case1")
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	cases, err := ListCases(root)
	if err != nil {
		t.Fatalf("ListCases failed: %v", err)
	}
	want := []string{"Case1", "Case2", "Case10"}
	if !reflect.DeepEqual(cases, want) {
		t.Errorf("ListCases = %v, want %v", cases, want)
	}
}

func TestFindPhaseFolder(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "01-01-1999-NA-Preop-123", "01-01-1999-NA-Intraop-456")

	got, err := FindPhaseFolder(root, Preop)
	if err != nil {
		t.Fatalf("FindPhaseFolder(Preop) returned error: %v", err)
	}
	if got != "01-01-1999-NA-Preop-123" {
		t.Errorf("FindPhaseFolder(Preop) = %q", got)
	}
}

func TestFindPhaseFolder_Violations(t *testing.T) {
	tests := []struct {
		name  string
		dirs  []string
		kind  ViolationKind
		count int
	}{
		{"missing", []string{"Intraop-1"}, NoMatch, 0},
		{"ambiguous", []string{"Preop-1", "Preop-2", "Intraop-1"}, Ambiguous, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			mkdirs(t, root, tc.dirs...)

			_, err := FindPhaseFolder(root, Preop)
			v, ok := AsViolation(err)
			if !ok {
				t.Fatalf("expected a Violation, got %v", err)
			}
			if v.Kind != tc.kind {
				t.Errorf("Kind = %v, want %v", v.Kind, tc.kind)
			}
			if v.Count != tc.count {
				t.Errorf("Count = %d, want %d", v.Count, tc.count)
			}
		})
	}
}

func TestSeriesFolders_SkipsSegmentations(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1.000000-T1-111", "2.000000-tumor seg-222", "3.000000-FLAIR-333")

	got, err := SeriesFolders(root)
	if err != nil {
		t.Fatalf("SeriesFolders failed: %v", err)
	}
	want := []string{"1.000000-T1-111", "3.000000-FLAIR-333"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SeriesFolders = %v, want %v", got, want)
	}
}

func TestVolumes_MissingFolder(t *testing.T) {
	got, err := Volumes(filepath.Join(t.TempDir(), "nope"), ".nrrd")
	if err != nil {
		t.Fatalf("Volumes returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no volumes, got %v", got)
	}
}

func TestParseVolumePath(t *testing.T) {
	tests := []struct {
		path string
		want VolumeName
	}{
		{
			path: "/data/nrrd/Case001/Preop-MR/Case001-preop-T1-r.nrrd",
			want: VolumeName{
				CaseID: "Case001", PatientID: "001", StudyID: "Preop",
				SeriesDescription: "T1", Modality: ModalityMR,
			},
		},
		{
			path: "/data/nrrd/Case001/Intraop-US/Case001-US-pre_dura.nrrd",
			want: VolumeName{
				CaseID: "Case001", PatientID: "001", StudyID: "Intraop",
				SeriesDescription: "US_pre_dura", Modality: ModalityUS, Ultrasound: true,
			},
		},
		{
			path: "Case042/Intraop-MR/T2.nrrd",
			want: VolumeName{
				CaseID: "Case042", PatientID: "042", StudyID: "Intraop",
				SeriesDescription: "T2", Modality: ModalityMR,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, err := ParseVolumePath(tc.path)
			if err != nil {
				t.Fatalf("ParseVolumePath returned error: %v", err)
			}
			tc.want.Path = tc.path
			if got != tc.want {
				t.Errorf("ParseVolumePath = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseVolumePath_BadName(t *testing.T) {
	for _, p := range []string{"T1.nrrd", "Case001/Preop-MR/T1.nii.gz", "abc/Preop-MR/T1.nrrd"} {
		_, err := ParseVolumePath(p)
		v, ok := AsViolation(err)
		if !ok || v.Kind != BadName {
			t.Errorf("ParseVolumePath(%q) error = %v, want bad-name violation", p, err)
		}
	}
}

func TestUltrasoundSeriesNumber(t *testing.T) {
	tests := map[string]string{
		"Case001/Intraop-US/Case001-US-pre_dura.nrrd":  "1",
		"Case001/Intraop-US/Case001-US-post_dura.nrrd": "2",
		"Case001/Intraop-US/Case001-US-pre_imri.nrrd":  "3",
	}
	for path, want := range tests {
		got, err := UltrasoundSeriesNumber(path)
		if err != nil {
			t.Errorf("UltrasoundSeriesNumber(%q) returned error: %v", path, err)
		}
		if got != want {
			t.Errorf("UltrasoundSeriesNumber(%q) = %s, want %s", path, got, want)
		}
	}

	_, err := UltrasoundSeriesNumber("Case001/Intraop-US/Case001-US-resection.nrrd")
	if v, ok := AsViolation(err); !ok || v.Kind != UnknownUltrasound {
		t.Errorf("expected unknown-ultrasound violation, got %v", err)
	}
}

func TestParseSegName(t *testing.T) {
	got, err := ParseSegName("/nrrd/Case007/Annotations/Case007-preop-SEG-tumor-MR-T1.nrrd")
	if err != nil {
		t.Fatalf("ParseSegName returned error: %v", err)
	}
	if got.PatientID != "007" || got.StudyID != "Preop" || got.Structure != "tumor" || got.RefScan != "T1" {
		t.Errorf("ParseSegName = %+v", got)
	}

	if _, err := ParseSegName("/nrrd/Case007/Annotations/Case007-postop-SEG-tumor-MR-T1.nrrd"); err == nil {
		t.Error("expected error for unknown study key")
	}
	if _, err := ParseSegName("/nrrd/Case007/Annotations/tumor.nrrd"); err == nil {
		t.Error("expected error for short file name")
	}
}

func TestFindReferenceSeries(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "1-T1", "2-T2", "3-US_pre_dura")

	got, err := FindReferenceSeries(root, "T2")
	if err != nil {
		t.Fatalf("FindReferenceSeries returned error: %v", err)
	}
	if got != filepath.Join(root, "2-T2") {
		t.Errorf("FindReferenceSeries = %s", got)
	}

	for _, token := range []string{"FLAIR"} {
		_, err := FindReferenceSeries(root, token)
		if v, ok := AsViolation(err); !ok || v.Kind != NoReference || v.Count != 0 {
			t.Errorf("FindReferenceSeries(%q) error = %v, want no-reference with count 0", token, err)
		}
	}

	mkdirs(t, root, "4-T1")
	_, err = FindReferenceSeries(root, "T1")
	if v, ok := AsViolation(err); !ok || v.Count != 2 {
		t.Errorf("expected no-reference with count 2, got %v", err)
	}
}

func TestOutputNames(t *testing.T) {
	if got := PatientDir("001"); got != "001-CASE^001" {
		t.Errorf("PatientDir = %s", got)
	}
	if got := StudyDir("19990101", "Preop"); got != "19990101-Preop" {
		t.Errorf("StudyDir = %s", got)
	}
	if got := SeriesDir("3", "US_pre_imri"); got != "3-US_pre_imri" {
		t.Errorf("SeriesDir = %s", got)
	}
}
