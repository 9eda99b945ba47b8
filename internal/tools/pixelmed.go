package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mrsinham/remindconv/internal/logging"
)

// DefaultPixelmedURL is where the pixelmed jar is fetched from.
const DefaultPixelmedURL = "http://www.dclunie.com/pixelmed/software/20221004_current/pixelmed.jar"

// pixelmedMain is the converter entry point inside the jar.
const pixelmedMain = "com.pixelmed.convert.NRRDToDicom"

// Identity holds the patient and series identifiers passed to the converter.
type Identity struct {
	PatientName    string
	PatientID      string
	StudyID        string
	SeriesNumber   string
	InstanceNumber string
}

// Pixelmed converts NRRD volumes to single DICOM files with the pixelmed jar.
type Pixelmed struct {
	Jar    string
	Java   string
	URL    string
	Runner Runner
	Client *http.Client
	Log    *zap.SugaredLogger
	Quiet  bool
}

// Ensure downloads the jar when it is not on disk yet. The download goes to
// <jar>.tmp and is renamed once complete.
func (p *Pixelmed) Ensure(ctx context.Context) error {
	if _, err := os.Stat(p.Jar); err == nil {
		p.Log.Debugf("pixelmed jar found at %s", p.Jar)
		return nil
	}
	url := p.URL
	if url == "" {
		url = DefaultPixelmedURL
	}
	p.Log.Infof("Downloading pixelmed from %s", url)

	if dir := filepath.Dir(p.Jar); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create jar folder: %w", err)
		}
	}
	tempPath := p.Jar + ".tmp"
	if err := p.download(ctx, url, tempPath); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, p.Jar); err != nil {
		return fmt.Errorf("rename jar: %w", err)
	}
	return nil
}

func (p *Pixelmed) download(ctx context.Context, url, tempPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download pixelmed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download pixelmed: HTTP error %d: %s", resp.StatusCode, resp.Status)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open jar file: %w", err)
	}
	defer func() { _ = f.Close() }()

	bar := logging.BytesBar(resp.ContentLength, "pixelmed.jar", p.Quiet)
	if _, err := io.Copy(io.MultiWriter(f, bar), resp.Body); err != nil {
		return fmt.Errorf("write jar: %w", err)
	}
	_ = bar.Finish()
	if err := f.Close(); err != nil {
		return fmt.Errorf("close jar file: %w", err)
	}
	return nil
}

// Args returns the command line converting nrrd into dcm.
func (p *Pixelmed) Args(nrrd, dcm string, id Identity) []string {
	return []string{
		"-cp", p.Jar, "-Djava.awt.headless=true", pixelmedMain,
		nrrd, dcm,
		id.PatientName, id.PatientID, id.StudyID, id.SeriesNumber, id.InstanceNumber,
	}
}

// Convert writes the DICOM file dcm from the NRRD volume nrrd.
func (p *Pixelmed) Convert(ctx context.Context, nrrd, dcm string, id Identity) error {
	java := p.Java
	if java == "" {
		java = "java"
	}
	if err := p.Runner.Run(ctx, java, p.Args(nrrd, dcm, id)...); err != nil {
		return fmt.Errorf("convert %s: %w", nrrd, err)
	}
	if _, err := os.Stat(dcm); err != nil {
		return fmt.Errorf("convert %s: no output written: %w", nrrd, err)
	}
	return nil
}

// SegEncoder encodes segmentation volumes as DICOM-SEG with dcmqi's
// itkimage2segimage.
type SegEncoder struct {
	Binary string
	Runner Runner
}

// Args returns the encoder command line.
func (e *SegEncoder) Args(nrrd, refDir, out, metadata string) []string {
	return []string{
		"--inputImageList", nrrd,
		"--inputDICOMDirectory", refDir,
		"--outputDICOM", out,
		"--inputMetadata", metadata,
	}
}

// Encode writes the DICOM-SEG out for the mask nrrd over the reference series in refDir.
func (e *SegEncoder) Encode(ctx context.Context, nrrd, refDir, out, metadata string) error {
	if err := e.Runner.Run(ctx, e.Binary, e.Args(nrrd, refDir, out, metadata)...); err != nil {
		return fmt.Errorf("encode %s: %w", nrrd, err)
	}
	return nil
}
