package capture

import (
	"context"
	"time"

	"bitprobe/collectors"
	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

// TCPViewCollector gates on an installed TCPView and records the
// connection table through netstat, since TCPView has no export mode.
type TCPViewCollector struct {
	Timeout time.Duration
}

func NewTCPViewCollector() *TCPViewCollector { return &TCPViewCollector{Timeout: 30 * time.Second} }

func (c *TCPViewCollector) Name() string  { return "tcpview" }
func (c *TCPViewCollector) Title() string { return "Network Connections (TCPView)" }

func (c *TCPViewCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	tcpview := rc.Tools.Resolve(ctx, tools.TCPView)
	if !tcpview.Available {
		return s.Unavailable(tcpview)
	}
	netstat := rc.Tools.Resolve(ctx, tools.Netstat)
	if !netstat.Available {
		return s.Unavailable(netstat)
	}

	cmd := netstat.Command(c.Timeout, "-ano")
	out, err := rc.Runner.Run(ctx, cmd)
	if err == nil {
		err = out.Err()
	}
	if err != nil {
		return s.FailRun(cmd, out, err)
	}

	path := s.ArtifactPath("network", "txt")
	if err := evidence.WriteFileAtomic(rc.Fs, path, out.Stdout, 0o600); err != nil {
		return s.Fail(collectors.E(collectors.KindInternal, "write artifact", err))
	}
	s.AddArtifact(path)

	s.Doc.Line("Note: For GUI view, open TCPView manually:")
	s.Doc.Line("  %s", tcpview.Path())
	s.Doc.Banner("NETSTAT OUTPUT")
	s.Doc.Text(out.Stdout)
	return s.Succeed()
}
