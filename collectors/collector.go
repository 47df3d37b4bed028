package collectors

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

// RunContext is the read-only view of a run handed to every collector.
type RunContext struct {
	RunID     string
	StartedAt time.Time
	Layout    evidence.Layout
	Fs        afero.Fs
	Tools     *tools.Resolver
	Runner    tools.Runner
	Log       *zap.Logger
	Now       func() time.Time
}

func (rc RunContext) Clock() time.Time {
	if rc.Now != nil {
		return rc.Now()
	}
	return time.Now()
}

func (rc RunContext) Logger() *zap.Logger {
	if rc.Log == nil {
		return zap.NewNop()
	}
	return rc.Log
}

// Collector wraps one external capability. Collect always returns the
// reference of exactly one written report, whatever happened.
type Collector interface {
	Name() string
	Title() string
	Collect(ctx context.Context, rc RunContext) report.Ref
}
