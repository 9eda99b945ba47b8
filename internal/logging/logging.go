// Package logging builds the run logger, progress bars and end-of-run summaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a sugared logger writing human-readable lines to stderr. When
// logFile is set, JSON records are also appended to it. The returned function
// flushes and closes the sinks.
func New(debug bool, logFile string) (*zap.SugaredLogger, func(), error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	}

	closeFile := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closeFile = func() { _ = f.Close() }
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(f), zap.DebugLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...)).Sugar()
	return logger, func() {
		_ = logger.Sync()
		closeFile()
	}, nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// Progress is the minimal progress reporting surface the drivers need.
type Progress interface {
	Add(n int) error
	Describe(description string)
	Finish() error
}

// CaseBar returns a bar counting processed cases. A quiet bar renders nothing.
func CaseBar(total int, description string, quiet bool) *progressbar.ProgressBar {
	var w io.Writer = ansi.NewAnsiStderr()
	if quiet {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// BytesBar returns a download bar. A negative total renders a spinner.
func BytesBar(total int64, description string, quiet bool) *progressbar.ProgressBar {
	var w io.Writer = ansi.NewAnsiStderr()
	if quiet {
		w = io.Discard
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
		progressbar.OptionSpinnerType(14),
	)
}
