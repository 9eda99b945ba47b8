// Package tools wraps the external converters: the pixelmed NRRD to DICOM
// converter and the dcmqi segmentation encoder.
package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Runner runs an external program to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs programs with os/exec and forwards their output to the logger.
type ExecRunner struct {
	Log *zap.SugaredLogger
}

// NewExecRunner returns an ExecRunner logging to log.
func NewExecRunner(log *zap.SugaredLogger) *ExecRunner {
	return &ExecRunner{Log: log}
}

// Run runs name with args. A non-zero exit status is returned as an error
// carrying the last line the tool printed.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	r.Log.Debugf("running %s %s", name, strings.Join(args, " "))
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()

	var last string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			r.Log.Debugw(line, "tool", name)
			last = line
		}
	}
	if err != nil {
		if last != "" {
			return fmt.Errorf("run %s: %w: %s", name, err, last)
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}
