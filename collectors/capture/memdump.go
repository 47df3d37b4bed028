package capture

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"bitprobe/collectors"
	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

// MemoryDumpCollector acquires physical memory with WinPMEM or AVML into
// memory/memory_dump_<stamp>.raw, which the volatility collector consumes.
type MemoryDumpCollector struct {
	Timeout time.Duration
	GOOS    string
}

func NewMemoryDumpCollector(timeout time.Duration) *MemoryDumpCollector {
	return &MemoryDumpCollector{Timeout: timeout, GOOS: runtime.GOOS}
}

func (c *MemoryDumpCollector) Name() string  { return "memory_dump" }
func (c *MemoryDumpCollector) Title() string { return "Memory Dump" }

// candidates lists acquisition tools, preferred first.
func (c *MemoryDumpCollector) candidates() []string {
	if c.GOOS == "windows" {
		return []string{tools.WinPmem}
	}
	return []string{tools.AVML, tools.WinPmem}
}

func (c *MemoryDumpCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	var res, preferred tools.Resolution
	for i, id := range c.candidates() {
		r := rc.Tools.Resolve(ctx, id)
		if i == 0 {
			preferred = r
		}
		if r.Available {
			res = r
			break
		}
	}
	if !res.Available {
		return s.Unavailable(preferred)
	}

	dump := s.ArtifactPath("memory", "raw")
	if err := evidence.EnsureParent(rc.Fs, dump); err != nil {
		return s.Fail(collectors.E(collectors.KindInternal, "create artifact dir", err))
	}
	cmd := res.Command(c.Timeout, dump)
	s.Doc.Field("Tool", res.Tool.Name)

	out, err := rc.Runner.Run(ctx, cmd)
	if err == nil {
		err = out.Err()
	}
	if err != nil {
		return s.FailRun(cmd, out, err)
	}
	size, err := sizeMB(rc.Fs, dump)
	if err != nil {
		return s.FailRun(cmd, out, collectors.E(collectors.KindUnreadableArtifact, "dump not written", err))
	}
	s.AddArtifact(dump)

	s.Doc.Field("Command", cmd.String())
	s.Doc.Field("Dump File", dump)
	s.Doc.Field("Size", fmt.Sprintf("%.2f MB", size))
	return s.Succeed()
}
