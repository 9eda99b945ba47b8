package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/mrsinham/remindconv/internal/logging"
)

// recordingRunner records calls and optionally writes a file.
type recordingRunner struct {
	calls  [][]string
	create string
	err    error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.create != "" {
		if err := os.WriteFile(r.create, []byte("DICM"), 0644); err != nil {
			return err
		}
	}
	return r.err
}

func TestPixelmed_Ensure_Downloads(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("jar-bytes"))
	}))
	defer srv.Close()

	jar := filepath.Join(t.TempDir(), "lib", "pixelmed.jar")
	p := &Pixelmed{Jar: jar, URL: srv.URL, Log: logging.Nop(), Quiet: true}
	if err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	data, err := os.ReadFile(jar)
	if err != nil || string(data) != "jar-bytes" {
		t.Fatalf("jar content = %q, %v", data, err)
	}
	if _, err := os.Stat(jar + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary download left behind")
	}

	// Present jar: no second download.
	if err := p.Ensure(context.Background()); err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want 1", hits)
	}
}

func TestPixelmed_Ensure_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	jar := filepath.Join(t.TempDir(), "pixelmed.jar")
	p := &Pixelmed{Jar: jar, URL: srv.URL, Log: logging.Nop(), Quiet: true}
	if err := p.Ensure(context.Background()); err == nil {
		t.Fatal("expected error for HTTP 404")
	}
	for _, path := range []string{jar, jar + ".tmp"} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should not exist after a failed download", path)
		}
	}
}

func TestPixelmed_Convert(t *testing.T) {
	dir := t.TempDir()
	dcm := filepath.Join(dir, "US_pre_dura.dcm")
	runner := &recordingRunner{create: dcm}
	p := &Pixelmed{Jar: "pixelmed.jar", Runner: runner, Log: logging.Nop()}

	id := Identity{PatientName: "CASE^001", PatientID: "001", StudyID: "Intraop", SeriesNumber: "1", InstanceNumber: "1"}
	if err := p.Convert(context.Background(), "in.nrrd", dcm, id); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	want := []string{"java", "-cp", "pixelmed.jar", "-Djava.awt.headless=true", "com.pixelmed.convert.NRRDToDicom",
		"in.nrrd", dcm, "CASE^001", "001", "Intraop", "1", "1"}
	if len(runner.calls) != 1 || !reflect.DeepEqual(runner.calls[0], want) {
		t.Errorf("command = %v, want %v", runner.calls, want)
	}
}

func TestPixelmed_Convert_NoOutput(t *testing.T) {
	p := &Pixelmed{Jar: "pixelmed.jar", Runner: &recordingRunner{}, Log: logging.Nop()}
	err := p.Convert(context.Background(), "in.nrrd", filepath.Join(t.TempDir(), "out.dcm"), Identity{})
	if err == nil {
		t.Error("expected error when the tool writes nothing")
	}
}

func TestSegEncoder_Encode(t *testing.T) {
	boom := errors.New("boom")
	runner := &recordingRunner{err: boom}
	e := &SegEncoder{Binary: "/opt/dcmqi/bin/itkimage2segimage", Runner: runner}

	err := e.Encode(context.Background(), "seg.nrrd", "ref", "out.dcm", "temp.json")
	if !errors.Is(err, boom) {
		t.Errorf("Encode error = %v, want wrapped boom", err)
	}
	want := []string{"/opt/dcmqi/bin/itkimage2segimage",
		"--inputImageList", "seg.nrrd",
		"--inputDICOMDirectory", "ref",
		"--outputDICOM", "out.dcm",
		"--inputMetadata", "temp.json"}
	if !reflect.DeepEqual(runner.calls[0], want) {
		t.Errorf("command = %v, want %v", runner.calls[0], want)
	}
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell")
	}
	r := NewExecRunner(logging.Nop())
	if err := r.Run(context.Background(), "sh", "-c", "echo hello"); err != nil {
		t.Errorf("Run(echo) failed: %v", err)
	}
	if err := r.Run(context.Background(), "sh", "-c", "echo failing >&2; exit 3"); err == nil {
		t.Error("expected error for non-zero exit")
	}
	if err := r.Run(context.Background(), "definitely-not-a-real-binary"); err == nil {
		t.Error("expected error for missing binary")
	}
}
