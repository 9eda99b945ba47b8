package e2e

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/mrsinham/remindconv/internal/dicom"
	"github.com/mrsinham/remindconv/internal/layout"
	"github.com/mrsinham/remindconv/internal/volume"
)

// commands lists the binaries under test.
var commands = []string{"dicom2img", "nrrd2dicom", "nrrd2seg"}

// binaries maps a command name to its compiled path (set once in TestMain)
var binaries = map[string]string{}

// testContext holds state for a single scenario
type testContext struct {
	tmpDir   string
	exitCode int
	output   string
}

// buildBinaries compiles every command into dir
func buildBinaries(dir string) error {
	// Get the directory of this test file to find the project root
	_, thisFile, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")

	for _, name := range commands {
		out := filepath.Join(dir, name)
		cmd := exec.Command("go", "build", "-o", out, "./cmd/"+name)
		cmd.Dir = projectRoot
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("build %s failed: %w\n%s", name, err, stderr.String())
		}
		binaries[name] = out
	}
	return nil
}

// TestMain compiles the binaries once before running all tests
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "remindconv-bin-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create build dir: %v\n", err)
		os.Exit(1)
	}
	if err := buildBinaries(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build binaries: %v\n", err)
		os.RemoveAll(dir)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(sc *godog.ScenarioContext) {
	tc := &testContext{}

	// Setup: create temp directory before each scenario
	sc.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tmpDir, err := os.MkdirTemp("", "remindconv-e2e-*")
		if err != nil {
			return ctx, err
		}
		tc.tmpDir = tmpDir
		return ctx, nil
	})

	// Teardown: cleanup temp directory after each scenario
	sc.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if tc.tmpDir != "" {
			os.RemoveAll(tc.tmpDir)
		}
		return ctx, nil
	})

	// Step definitions
	sc.Step(`^the converters are built$`, tc.theConvertersAreBuilt)
	sc.Step(`^a DICOM dataset with (\d+) cases? in "([^"]*)"$`, tc.aDICOMDataset)
	sc.Step(`^case "([^"]*)" in "([^"]*)" has no "([^"]*)" folder$`, tc.caseHasNoFolder)
	sc.Step(`^an NRRD dataset with (\d+) cases? in "([^"]*)"$`, tc.anNRRDDataset)
	sc.Step(`^an empty file "([^"]*)"$`, tc.anEmptyFile)
	sc.Step(`^a file "([^"]*)" containing:$`, tc.aFileContaining)
	sc.Step(`^I run (\w+) with "([^"]*)"$`, tc.iRunWith)
	sc.Step(`^the exit code should be (\d+)$`, tc.theExitCodeShouldBe)
	sc.Step(`^the output should contain "([^"]*)"$`, tc.theOutputShouldContain)
	sc.Step(`^"([^"]*)" should exist$`, tc.shouldExist)
	sc.Step(`^"([^"]*)" should not exist$`, tc.shouldNotExist)
	sc.Step(`^"([^"]*)" should contain (\d+) files named "([^"]*)"$`, tc.shouldContainFiles)
}

func (tc *testContext) path(p string) string {
	return strings.ReplaceAll(p, "{tmpdir}", tc.tmpDir)
}

func (tc *testContext) theConvertersAreBuilt() error {
	for _, name := range commands {
		bin, ok := binaries[name]
		if !ok {
			return fmt.Errorf("%s not built", name)
		}
		if _, err := os.Stat(bin); os.IsNotExist(err) {
			return fmt.Errorf("binary does not exist at %s", bin)
		}
	}
	return nil
}

// rampVolume returns a small volume whose voxels differ per case.
func rampVolume(seed int) *volume.Volume {
	v := volume.New([3]int{6, 5, 3}, volume.Int16)
	v.Spacing = [3]float64{1, 1, 2}
	for i := range v.Data {
		v.Data[i] = float64((i + seed) % 40)
	}
	return v
}

// aDICOMDataset writes Case001..CaseN, each with a Preop T1 and an Intraop US series.
func (tc *testContext) aDICOMDataset(n int, root string) error {
	root = tc.path(root)
	uids := dicom.NewUIDFactory(1)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%03d", i)
		caseDir := filepath.Join(root, "Case"+id)
		series := []struct {
			session, study, folder, number, desc string
		}{
			{"1999-Preop-brain", "Preop", "3-T1", "3", "T1"},
			{"1999-Intraop-brain", "Intraop", "7-US", "7", "US"},
		}
		for _, s := range series {
			info := dicom.SeriesInfo{
				PatientID:         id,
				PatientName:       layout.PatientName(id),
				StudyID:           s.study,
				StudyDescription:  s.study,
				StudyDate:         "19990101",
				StudyInstanceUID:  uids.NewUID(),
				Modality:          dicom.MR,
				SeriesDescription: s.desc,
				SeriesNumber:      s.number,
			}
			session := filepath.Join(caseDir, s.session)
			if err := os.MkdirAll(session, 0755); err != nil {
				return err
			}
			exported, err := dicom.WriteSeries(rampVolume(i), info, session, 1, uids)
			if err != nil {
				return fmt.Errorf("write series: %w", err)
			}
			if err := os.Rename(exported, filepath.Join(session, s.folder)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (tc *testContext) caseHasNoFolder(caseID, root, phase string) error {
	matches, err := filepath.Glob(filepath.Join(tc.path(root), caseID, "*"+phase+"*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			return err
		}
	}
	return nil
}

// anNRRDDataset writes Case001..CaseN with Preop and Intraop MR volumes only.
func (tc *testContext) anNRRDDataset(n int, root string) error {
	root = tc.path(root)
	for i := 1; i <= n; i++ {
		caseID := fmt.Sprintf("Case%03d", i)
		files := map[string]string{
			layout.SessionPreopMR:   caseID + "-preop-T1.nrrd",
			layout.SessionIntraopMR: caseID + "-intraop-T2.nrrd",
		}
		for session, name := range files {
			dir := filepath.Join(root, caseID, session)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			if err := volume.WriteNRRD(filepath.Join(dir, name), rampVolume(i), true); err != nil {
				return fmt.Errorf("write nrrd: %w", err)
			}
		}
	}
	return nil
}

func (tc *testContext) anEmptyFile(path string) error {
	path = tc.path(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0644)
}

func (tc *testContext) aFileContaining(path string, body *godog.DocString) error {
	path = tc.path(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(tc.path(body.Content)), 0644)
}

func (tc *testContext) iRunWith(name, args string) error {
	bin, ok := binaries[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	cmd := exec.Command(bin, splitArgs(tc.path(args))...)
	cmd.Dir = tc.tmpDir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	tc.output = output.String()

	if exitErr, ok := err.(*exec.ExitError); ok {
		tc.exitCode = exitErr.ExitCode()
	} else if err != nil {
		return fmt.Errorf("failed to run command: %w", err)
	} else {
		tc.exitCode = 0
	}

	return nil
}

func (tc *testContext) theExitCodeShouldBe(expected int) error {
	if tc.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nOutput:\n%s", expected, tc.exitCode, tc.output)
	}
	return nil
}

func (tc *testContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(tc.output, expected) {
		return fmt.Errorf("output does not contain %q\nOutput:\n%s", expected, tc.output)
	}
	return nil
}

func (tc *testContext) shouldExist(path string) error {
	path = tc.path(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("path does not exist: %s", path)
	}
	return nil
}

func (tc *testContext) shouldNotExist(path string) error {
	path = tc.path(path)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("path exists: %s", path)
	}
	return nil
}

func (tc *testContext) shouldContainFiles(root string, count int, pattern string) error {
	files, err := findFiles(tc.path(root), pattern)
	if err != nil {
		return fmt.Errorf("failed to find files: %w", err)
	}
	if len(files) != count {
		return fmt.Errorf("expected %d files named %s, found %d: %v", count, pattern, len(files), files)
	}
	return nil
}

// findFiles finds all files whose name matches pattern recursively
func findFiles(root, pattern string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ok, err := filepath.Match(pattern, info.Name())
		if err != nil {
			return err
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// splitArgs splits a command line string into arguments
func splitArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false

	for _, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}
