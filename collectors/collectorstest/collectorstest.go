// Package collectorstest provides an in-memory run environment and a
// scripted tool runner for collector tests.
package collectorstest

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"bitprobe/collectors"
	"bitprobe/evidence"
	"bitprobe/tools"
)

// Epoch is the fixed clock of every Env.
var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type Env struct {
	Fs     afero.Fs
	Runner *FakeRunner
	RC     collectors.RunContext

	mu   sync.Mutex
	path map[string]string
}

// New builds an environment rooted at /case on an in-memory filesystem with
// the linux tool catalog and nothing installed.
func New(t testing.TB) *Env {
	t.Helper()
	return NewWithCatalog(t, tools.DefaultCatalog("linux"))
}

func NewWithCatalog(t testing.TB, catalog []tools.Tool) *Env {
	t.Helper()
	e := &Env{
		Fs:     afero.NewMemMapFs(),
		Runner: &FakeRunner{},
		path:   map[string]string{},
	}
	layout := evidence.NewLayout("/case")
	if err := layout.Ensure(e.Fs); err != nil {
		t.Fatal(err)
	}
	resolver := tools.NewResolver(e.Fs, layout.Tools, catalog, e.Runner, tools.WithLookPath(e.lookPath))
	e.RC = collectors.RunContext{
		RunID:     "test-run",
		StartedAt: Epoch,
		Layout:    layout,
		Fs:        e.Fs,
		Tools:     resolver,
		Runner:    e.Runner,
		Log:       zap.NewNop(),
		Now:       func() time.Time { return Epoch },
	}
	return e
}

func (e *Env) lookPath(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.path[name]; ok {
		return p, nil
	}
	return "", exec.ErrNotFound
}

// OnPath makes binary resolvable on the executable search path.
func (e *Env) OnPath(binary, path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.path[binary] = path
}

// Install creates a file, e.g. a tool at its fixed install path.
func (e *Env) Install(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := evidence.WriteFileAtomic(e.Fs, path, data, 0o755); err != nil {
		t.Fatal(err)
	}
}

// Read returns a file's content or fails the test.
func (e *Env) Read(t testing.TB, path string) string {
	t.Helper()
	b, err := afero.ReadFile(e.Fs, path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// FakeRunner records every command and answers with Handler. Background
// processes answer Stop with StopResult.
type FakeRunner struct {
	mu    sync.Mutex
	Calls []tools.Command

	Handler    func(ctx context.Context, cmd tools.Command) (tools.Result, error)
	StartErr   error
	StopResult func(cmd tools.Command) tools.Result
	Processes  []*FakeProcess
}

func (f *FakeRunner) Run(ctx context.Context, cmd tools.Command) (tools.Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	h := f.Handler
	f.mu.Unlock()
	if h == nil {
		return tools.Result{}, nil
	}
	return h(ctx, cmd)
}

func (f *FakeRunner) Start(ctx context.Context, cmd tools.Command) (tools.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cmd)
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	p := &FakeProcess{Cmd: cmd, stop: f.StopResult}
	f.Processes = append(f.Processes, p)
	return p, nil
}

// Commands returns the recorded commands.
func (f *FakeRunner) Commands() []tools.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tools.Command(nil), f.Calls...)
}

type FakeProcess struct {
	Cmd   tools.Command
	Stops int

	mu     sync.Mutex
	stop   func(tools.Command) tools.Result
	result *tools.Result
}

func (p *FakeProcess) Stop(context.Context) tools.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Stops++
	if p.result == nil {
		r := tools.Result{}
		if p.stop != nil {
			r = p.stop(p.Cmd)
		}
		p.result = &r
	}
	return *p.result
}
