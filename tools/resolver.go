package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Source records which check made a tool available.
type Source string

const (
	SourceNone  Source = "none"
	SourceFixed Source = "fixed_path"
	SourcePath  Source = "search_path"
	SourceProbe Source = "probe"
)

// ErrUnavailable is the cause attached to collectors skipped for a missing tool.
var ErrUnavailable = errors.New("tool unavailable")

// Tool describes how to find one external capability.
type Tool struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Paths are fixed install locations. Relative entries are resolved
	// against the tools directory. Directories are searched for Search names.
	Paths    []string `yaml:"paths,omitempty"`
	Search   []string `yaml:"search,omitempty"`
	Binaries []string `yaml:"binaries,omitempty"`
	// Probe is a cheap query command, e.g. a package metadata lookup.
	Probe []string `yaml:"probe,omitempty"`
	// Launcher is the argv prefix used when only Probe succeeded.
	Launcher []string `yaml:"launcher,omitempty"`
	Hint     string   `yaml:"hint,omitempty"`
}

type Resolution struct {
	Tool      Tool
	Available bool
	Source    Source
	// Argv is the command prefix that invokes the tool.
	Argv []string
}

// Path is the resolved executable, or "" when unavailable.
func (r Resolution) Path() string {
	if len(r.Argv) == 0 {
		return ""
	}
	return r.Argv[0]
}

// Command builds an invocation of the resolved tool.
func (r Resolution) Command(timeout time.Duration, args ...string) Command {
	var argv []string
	argv = append(argv, r.Argv...)
	argv = append(argv, args...)
	if len(argv) == 0 {
		return Command{Timeout: timeout}
	}
	return Command{Path: argv[0], Args: argv[1:], Timeout: timeout}
}

type ResolverOption func(*Resolver)

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn func(string) (string, error)) ResolverOption {
	return func(r *Resolver) { r.lookPath = fn }
}

func WithProbeTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.probeTimeout = d }
}

// Resolver answers "is tool X usable right now". It keeps no state between
// calls, so a tool installed mid-run is picked up by the next collector.
type Resolver struct {
	fs           afero.Fs
	toolsDir     string
	catalog      map[string]Tool
	runner       Runner
	lookPath     func(string) (string, error)
	probeTimeout time.Duration
}

func NewResolver(fs afero.Fs, toolsDir string, catalog []Tool, runner Runner, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fs:           fs,
		toolsDir:     toolsDir,
		catalog:      make(map[string]Tool, len(catalog)),
		runner:       runner,
		lookPath:     exec.LookPath,
		probeTimeout: 30 * time.Second,
	}
	for _, t := range catalog {
		r.catalog[t.ID] = t
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Tools returns the catalog sorted by ID.
func (r *Resolver) Tools() []Tool {
	out := make([]Tool, 0, len(r.catalog))
	for _, t := range r.catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Resolver) Lookup(id string) (Tool, bool) {
	t, ok := r.catalog[id]
	return t, ok
}

func (r *Resolver) Available(ctx context.Context, id string) bool {
	return r.Resolve(ctx, id).Available
}

// Resolve checks fixed install paths, then the executable search path, then
// the functional probe. Unknown IDs resolve as unavailable.
func (r *Resolver) Resolve(ctx context.Context, id string) Resolution {
	t, ok := r.catalog[id]
	if !ok {
		return Resolution{Tool: Tool{ID: id, Name: id}, Source: SourceNone}
	}

	if p, ok := r.fixed(t); ok {
		return Resolution{Tool: t, Available: true, Source: SourceFixed, Argv: []string{p}}
	}
	for _, b := range t.Binaries {
		if p, err := r.lookPath(b); err == nil {
			return Resolution{Tool: t, Available: true, Source: SourcePath, Argv: []string{p}}
		}
	}
	if r.probe(ctx, t) {
		return Resolution{Tool: t, Available: true, Source: SourceProbe, Argv: append([]string(nil), t.Launcher...)}
	}
	return Resolution{Tool: t, Source: SourceNone}
}

func (r *Resolver) abs(p string) string {
	if filepath.IsAbs(p) || filepath.VolumeName(p) != "" || r.toolsDir == "" {
		return p
	}
	return filepath.Join(r.toolsDir, p)
}

func (r *Resolver) fixed(t Tool) (string, bool) {
	for _, p := range t.Paths {
		full := r.abs(p)
		info, err := r.fs.Stat(full)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			return full, true
		}
		if found, ok := r.search(full, t.Search); ok {
			return found, true
		}
	}
	return "", false
}

var errFound = errors.New("found")

func (r *Resolver) search(root string, names []string) (string, bool) {
	if len(names) == 0 {
		return "", false
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var found string
	err := afero.Walk(r.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && want[info.Name()] {
			found = path
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", false
	}
	return found, found != ""
}

func (r *Resolver) probe(ctx context.Context, t Tool) bool {
	if len(t.Probe) == 0 || len(t.Launcher) == 0 || r.runner == nil {
		return false
	}
	res, err := r.runner.Run(ctx, Command{Path: t.Probe[0], Args: t.Probe[1:], Timeout: r.probeTimeout})
	if err != nil {
		return false
	}
	return res.Err() == nil
}
