package capture

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitprobe/collectors"
	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

// TrafficCollector records packets with tshark for a fixed duration.
type TrafficCollector struct {
	Duration  time.Duration
	Interface string
	// CountTimeout bounds the second tshark run that counts packets.
	CountTimeout time.Duration
}

func NewTrafficCollector(d time.Duration) *TrafficCollector {
	return &TrafficCollector{Duration: d, Interface: "1", CountTimeout: 30 * time.Second}
}

func (c *TrafficCollector) Name() string  { return "network_traffic" }
func (c *TrafficCollector) Title() string { return "Network Traffic Capture" }

func (c *TrafficCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	res := rc.Tools.Resolve(ctx, tools.TShark)
	if !res.Available {
		return s.Unavailable(res)
	}

	pcap := s.ArtifactPath("network", "pcap")
	if err := evidence.EnsureParent(rc.Fs, pcap); err != nil {
		return s.Fail(collectors.E(collectors.KindInternal, "create artifact dir", err))
	}
	secs := int(c.Duration.Seconds())
	cmd := res.Command(c.Duration+30*time.Second,
		"-i", c.Interface,
		"-w", pcap,
		"-a", "duration:"+strconv.Itoa(secs),
		"-q",
	)
	s.Doc.Field("Duration", fmt.Sprintf("%d seconds", secs))

	out, err := rc.Runner.Run(ctx, cmd)
	if err == nil {
		err = out.Err()
	}
	if err != nil {
		return s.FailRun(cmd, out, err)
	}
	size, err := sizeMB(rc.Fs, pcap)
	if err != nil {
		return s.FailRun(cmd, out, collectors.E(collectors.KindUnreadableArtifact, "no traffic captured", err))
	}
	s.AddArtifact(pcap)

	s.Doc.Field("PCAP File", pcap)
	s.Doc.Field("File Size", fmt.Sprintf("%.2f MB", size))
	if n, err := c.count(ctx, rc, res, pcap); err == nil {
		s.Doc.Field("Packets Captured", n)
	} else {
		s.Doc.Field("Packets Captured", "unknown ("+err.Error()+")")
	}
	s.Doc.Blank()
	s.Doc.Line("To analyze the capture file, use:")
	s.Doc.Line("  tshark -r %s", pcap)
	s.Doc.Line("  wireshark %s", pcap)
	return s.Succeed()
}

func (c *TrafficCollector) count(ctx context.Context, rc collectors.RunContext, res tools.Resolution, pcap string) (int, error) {
	cmd := res.Command(c.CountTimeout, "-r", pcap, "-T", "fields", "-e", "frame.number")
	out, err := rc.Runner.Run(ctx, cmd)
	if err == nil {
		err = out.Err()
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, line := range strings.Split(string(out.Stdout), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n, nil
}
