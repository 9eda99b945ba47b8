package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, closeLog, err := New(false, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Debugw("converted series", "case", "Case001")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if rec["msg"] != "converted series" || rec["case"] != "Case001" {
		t.Errorf("unexpected log record %v", rec)
	}
}

func TestNew_BadLogFile(t *testing.T) {
	if _, _, err := New(false, filepath.Join(t.TempDir(), "missing", "run.log")); err == nil {
		t.Error("expected error for a log file in a missing folder")
	}
}

func TestSummary(t *testing.T) {
	s := NewSummary("dicom2img").
		Add("Number of Preop scans", 3).
		AddBytes("Written", 2048).
		AddError("Case002: no Preop folder")

	plain := s.Plain()
	for _, want := range []string{"Number of Preop scans: 3", "Written: 2.0 kB", "error: Case002: no Preop folder"} {
		if !strings.Contains(plain, want) {
			t.Errorf("Plain() missing %q:\n%s", want, plain)
		}
	}

	rendered := s.Render()
	for _, want := range []string{"dicom2img", "Number of Preop scans", "1 error(s)"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("Render() missing %q:\n%s", want, rendered)
		}
	}
}

func TestBars_Quiet(t *testing.T) {
	bar := CaseBar(2, "cases", true)
	if err := bar.Add(2); err != nil {
		t.Errorf("Add failed: %v", err)
	}
	var _ Progress = bar

	bytes := BytesBar(-1, "download", true)
	if _, err := bytes.Write(make([]byte, 10)); err != nil {
		t.Errorf("Write failed: %v", err)
	}
}
