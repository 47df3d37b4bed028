package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bitprobe/collectors"
	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

// ProcMonCollector runs Process Monitor in the background for Duration and
// asks it to terminate so the backing file is flushed.
type ProcMonCollector struct {
	Duration    time.Duration
	StopTimeout time.Duration
	Grace       time.Duration
}

func NewProcMonCollector(d time.Duration) *ProcMonCollector {
	return &ProcMonCollector{Duration: d, StopTimeout: 30 * time.Second, Grace: 15 * time.Second}
}

func (c *ProcMonCollector) Name() string  { return "procmon" }
func (c *ProcMonCollector) Title() string { return "Process Monitoring (ProcMon)" }

func (c *ProcMonCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	res := rc.Tools.Resolve(ctx, tools.ProcMon)
	if !res.Available {
		return s.Unavailable(res)
	}

	pml := s.ArtifactPath("processes", "pml")
	if err := evidence.EnsureParent(rc.Fs, pml); err != nil {
		return s.Fail(collectors.E(collectors.KindInternal, "create artifact dir", err))
	}
	cmd := res.Command(0, "/AcceptEula", "/BackingFile", pml, "/Quiet", "/Minimized")
	cmd.Stop = []string{res.Path(), "/Terminate"}
	cmd.StopTimeout = c.StopTimeout
	cmd.Grace = c.Grace

	s.Doc.Field("Duration", fmt.Sprintf("%d seconds", int(c.Duration.Seconds())))
	s.Doc.Field("ProcMon Path", res.Path())
	s.Doc.Field("Backing File", pml)

	p, err := rc.Runner.Start(ctx, cmd)
	if err != nil {
		return s.Fail(collectors.E(collectors.KindOf(err), "start procmon", err))
	}
	defer p.Stop(ctx)

	timer := time.NewTimer(c.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		out := p.Stop(ctx)
		return s.FailRun(cmd, out, ctx.Err())
	case <-timer.C:
	}

	out := p.Stop(ctx)
	if out.StopErr != nil {
		rc.Logger().Warn("procmon stop command failed",
			zap.String("collector", s.Category()),
			zap.Error(out.StopErr))
		s.Doc.Line("Stop command failed: %v", out.StopErr)
	}
	if out.Killed {
		s.Doc.Line("ProcMon did not exit after /Terminate and was killed")
	}
	size, err := sizeMB(rc.Fs, pml)
	if err != nil {
		return s.FailRun(cmd, out, collectors.E(collectors.KindUnreadableArtifact, "log file not created", err))
	}
	s.AddArtifact(pml)

	s.Doc.Blank()
	s.Doc.Field("ProcMon Log File", pml)
	s.Doc.Field("File Size", fmt.Sprintf("%.2f MB", size))
	s.Doc.Blank()
	s.Doc.Line("To analyze the ProcMon log, open it with Process Monitor:")
	s.Doc.Line("  %s /OpenLog %s", res.Path(), pml)
	return s.Succeed()
}
