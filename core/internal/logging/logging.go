// Package logging builds the run logger: JSON to stderr and to the run log
// file under logs/.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bitprobe/evidence"
)

// FileName is forensic_run_<stamp>.log.
func FileName(t time.Time) string {
	return fmt.Sprintf("forensic_run_%s.log", evidence.Stamp(t))
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

// NewWriters returns a logger writing to console at Info (Debug when
// verbose) and to file at Debug. A nil writer is skipped.
func NewWriters(console, file io.Writer, verbose bool) *zap.Logger {
	enc := zapcore.NewJSONEncoder(encoderConfig())
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	if console != nil {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(console)), level))
	}
	if file != nil {
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(file), zapcore.DebugLevel))
	}
	if len(cores) == 0 {
		return zap.NewNop()
	}
	return zap.New(zapcore.NewTee(cores...))
}

// New opens <logsDir>/forensic_run_<stamp>.log and returns a logger writing
// there and to stderr. The returned close function syncs and closes the file.
func New(fs afero.Fs, logsDir string, started time.Time, verbose bool) (*zap.Logger, string, func() error, error) {
	path := filepath.Join(logsDir, FileName(started))
	if err := fs.MkdirAll(logsDir, 0o755); err != nil {
		return nil, "", nil, err
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, "", nil, err
	}
	log := NewWriters(os.Stderr, f, verbose)
	closeFn := func() error {
		_ = log.Sync()
		return f.Close()
	}
	return log, path, closeFn, nil
}
