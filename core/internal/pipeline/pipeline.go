// Package pipeline runs the fixed collector list of a scan and compiles the
// master report, run timeline and manifest.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"bitprobe/analyzers/timeline"
	"bitprobe/collectors"
	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

// ErrInterrupted is returned after a cancelled run has been compiled.
var ErrInterrupted = errors.New("run interrupted")

type Options struct {
	RunID  string
	Layout evidence.Layout
	Fs     afero.Fs
	Tools  *tools.Resolver
	Runner tools.Runner
	Log    *zap.Logger
	Now    func() time.Time

	// OnStart and OnReport are called around each collector, i counting from 1.
	OnStart  func(i, n int, c collectors.Collector)
	OnReport func(i, n int, ref report.Ref)
}

type Result struct {
	RunID        string
	StartedAt    time.Time
	Reports      []report.Ref
	MasterPath   string
	ManifestPath string
	TimelinePath string
	Interrupted  bool
}

// Counts tallies reports per status.
func (r Result) Counts() map[report.Status]int {
	c := map[report.Status]int{}
	for _, ref := range r.Reports {
		c[ref.Status]++
	}
	return c
}

type Orchestrator struct {
	opts       Options
	collectors []collectors.Collector
}

func New(cols []collectors.Collector, opts Options) *Orchestrator {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Runner == nil {
		opts.Runner = tools.OSRunner{}
	}
	return &Orchestrator{opts: opts, collectors: cols}
}

// Run invokes every collector in order. Cancellation is observed between
// collectors; the reports produced so far are still compiled and
// ErrInterrupted is returned with the result. Only setup faults and a master
// report that cannot be written are returned as other errors.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	opts := o.opts
	started := opts.Now()
	log := opts.Log.With(zap.String("run_id", opts.RunID))

	if err := opts.Layout.Ensure(opts.Fs); err != nil {
		return Result{RunID: opts.RunID, StartedAt: started}, errors.Wrap(err, "create output directories")
	}

	rc := collectors.RunContext{
		RunID:     opts.RunID,
		StartedAt: started,
		Layout:    opts.Layout,
		Fs:        opts.Fs,
		Tools:     opts.Tools,
		Runner:    opts.Runner,
		Log:       log,
		Now:       opts.Now,
	}

	res := Result{RunID: opts.RunID, StartedAt: started}
	n := len(o.collectors)
	log.Info("run started", zap.Int("collectors", n), zap.String("output", baseDir(opts.Layout)))

	for i, c := range o.collectors {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		if opts.OnStart != nil {
			opts.OnStart(i+1, n, c)
		}

		ref := collectors.Invoke(ctx, rc, c)
		res.Reports = append(res.Reports, ref)
		if opts.OnReport != nil {
			opts.OnReport(i+1, n, ref)
		}

		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
	}
	if res.Interrupted {
		log.Warn("run interrupted",
			zap.String("kind", string(collectors.KindUserInterrupt)),
			zap.Int("completed", len(res.Reports)),
			zap.Int("collectors", n),
			zap.Error(ctx.Err()))
	}

	master := filepath.Join(opts.Layout.Master, evidence.MasterName(started))
	compiler := report.NewCompiler(opts.Fs, log)
	compiler.Now = opts.Now
	m := compiler.Build(opts.RunID, started, master, res.Reports, o.locations()...)
	m.Interrupted = res.Interrupted
	if err := compiler.Compile(m); err != nil {
		return res, err
	}
	res.MasterPath = master

	finished := opts.Now()
	stamp := evidence.Stamp(started)

	tl := filepath.Join(opts.Layout.Master, fmt.Sprintf("timeline_%s.jsonl", stamp))
	err := timeline.WriteJSONL(opts.Fs, tl, res.Reports, timeline.Options{
		RunID:       opts.RunID,
		StartedAt:   started,
		FinishedAt:  finished,
		Interrupted: res.Interrupted,
	})
	if err != nil {
		log.Warn("timeline not written", zap.String("path", tl), zap.Error(err))
	} else {
		res.TimelinePath = tl
	}

	mf := filepath.Join(opts.Layout.Master, fmt.Sprintf("manifest_%s.json", stamp))
	if err := evidence.WriteManifest(opts.Fs, mf, o.manifest(res, finished, log)); err != nil {
		log.Warn("manifest not written", zap.String("path", mf), zap.Error(err))
	} else {
		res.ManifestPath = mf
	}

	counts := res.Counts()
	log.Info("run finished",
		zap.String("master", master),
		zap.Int("success", counts[report.StatusSuccess]),
		zap.Int("skipped", counts[report.StatusSkipped]),
		zap.Int("failed", counts[report.StatusFailed]),
		zap.Duration("duration", finished.Sub(started)))

	if res.Interrupted {
		return res, ErrInterrupted
	}
	return res, nil
}

func (o *Orchestrator) locations() []report.Location {
	l := o.opts.Layout
	return []report.Location{
		{Label: "Master report", Path: l.Master},
		{Label: "Individual reports", Path: l.Individual},
		{Label: "Artifacts", Path: l.Artifacts},
		{Label: "Logs", Path: l.Logs},
	}
}

func baseDir(l evidence.Layout) string {
	return filepath.Dir(l.Reports)
}

func (o *Orchestrator) manifest(res Result, finished time.Time, log *zap.Logger) evidence.Manifest {
	fs := o.opts.Fs
	base := baseDir(o.opts.Layout)

	entry := func(path, collector, kind, status string, at time.Time) evidence.Entry {
		rel, err := filepath.Rel(base, path)
		if err != nil {
			rel = path
		}
		e := evidence.Entry{
			RelativePath: filepath.ToSlash(rel),
			Collector:    collector,
			Kind:         kind,
			Status:       status,
			CollectedAt:  at.UTC().Format(time.RFC3339Nano),
		}
		if info, err := fs.Stat(path); err == nil && info.IsDir() {
			e.Kind = kind + "_dir"
			return e
		}
		sum, size, err := evidence.SHA256File(fs, path)
		if err != nil {
			log.Warn("manifest entry not hashed",
				zap.String("kind", string(collectors.KindUnreadableArtifact)),
				zap.String("path", path),
				zap.Error(err))
			e.Metadata = map[string]string{"error": err.Error()}
			return e
		}
		e.SHA256 = sum
		e.SizeBytes = size
		return e
	}

	var entries []evidence.Entry
	for _, ref := range res.Reports {
		if ref.Path != "" {
			entries = append(entries, entry(ref.Path, ref.Category, "report", string(ref.Status), ref.StartedAt))
		}
		for _, a := range ref.Artifacts {
			entries = append(entries, entry(a, ref.Category, "artifact", "", ref.StartedAt))
		}
	}
	if res.MasterPath != "" {
		entries = append(entries, entry(res.MasterPath, "", "master_report", "", finished))
	}
	if res.TimelinePath != "" {
		entries = append(entries, entry(res.TimelinePath, "", "timeline", "", finished))
	}

	counts := res.Counts()
	return evidence.Manifest{
		RunID:     res.RunID,
		CreatedAt: finished.UTC().Format(time.RFC3339Nano),
		Entries:   entries,
		Metadata: map[string]string{
			"started_at":  res.StartedAt.UTC().Format(time.RFC3339Nano),
			"interrupted": strconv.FormatBool(res.Interrupted),
			"reports":     strconv.Itoa(len(res.Reports)),
			"success":     strconv.Itoa(counts[report.StatusSuccess]),
			"skipped":     strconv.Itoa(counts[report.StatusSkipped]),
			"failed":      strconv.Itoa(counts[report.StatusFailed]),
		},
	}
}
