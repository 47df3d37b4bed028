package analysis

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"bitprobe/collectors"
	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

// GhidraCollector imports one binary into a fresh headless Ghidra project.
type GhidraCollector struct {
	// Target is analysed when set; otherwise the first existing Defaults entry.
	Target          string
	Defaults        []string
	Timeout         time.Duration
	AnalysisTimeout time.Duration
}

func NewGhidraCollector(target string, timeout time.Duration) *GhidraCollector {
	return &GhidraCollector{
		Target:          target,
		Defaults:        DefaultTargets(runtime.GOOS),
		Timeout:         timeout,
		AnalysisTimeout: 120 * time.Second,
	}
}

// DefaultTargets returns binaries present on every host of goos, followed by
// the running executable.
func DefaultTargets(goos string) []string {
	var out []string
	if goos == "windows" {
		windir := os.Getenv("WINDIR")
		if windir == "" {
			windir = `C:\Windows`
		}
		out = append(out, filepath.Join(windir, "System32", "notepad.exe"))
	} else {
		out = append(out, "/bin/ls")
	}
	if exe, err := os.Executable(); err == nil {
		out = append(out, exe)
	}
	return out
}

func (c *GhidraCollector) Name() string  { return "ghidra" }
func (c *GhidraCollector) Title() string { return "Ghidra Static Analysis" }

func (c *GhidraCollector) target(fs afero.Fs) string {
	candidates := c.Defaults
	if c.Target != "" {
		candidates = []string{c.Target}
	}
	for _, t := range candidates {
		if info, err := fs.Stat(t); err == nil && !info.IsDir() {
			return t
		}
	}
	return ""
}

func (c *GhidraCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	res := rc.Tools.Resolve(ctx, tools.Ghidra)
	if !res.Available {
		return s.Unavailable(res)
	}
	target := c.target(rc.Fs)
	if target == "" {
		return s.Skip("no suitable target binary found", "Pass --ghidra-target or set GHIDRA_TARGET")
	}

	stamp := evidence.Stamp(s.Started())
	project := filepath.Join(rc.Layout.ArtifactDir("ghidra"), "project_"+stamp)
	if err := rc.Fs.MkdirAll(project, 0o755); err != nil {
		return s.Fail(collectors.E(collectors.KindInternal, "create project dir", err))
	}
	name := "analysis_" + stamp

	s.Doc.Field("Target File", target)
	s.Doc.Field("Ghidra Project", project+" ("+name+")")

	cmd := res.Command(c.Timeout,
		project, name,
		"-import", target,
		"-analysisTimeoutPerFile", strconv.Itoa(int(c.AnalysisTimeout.Seconds())),
		"-overwrite",
	)
	out, err := rc.Runner.Run(ctx, cmd)
	if err == nil {
		err = out.Err()
	}
	if err != nil {
		return s.FailRun(cmd, out, err)
	}
	s.AddArtifact(project)

	s.Doc.Block("GHIDRA OUTPUT", out.Stdout)
	return s.Succeed()
}
