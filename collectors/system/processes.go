package system

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"bitprobe/collectors"
	"bitprobe/report"
)

const (
	processTableLimit = 50
	topConsumers      = 10
)

type Process struct {
	PID        int32   `json:"pid"`
	PPID       int32   `json:"ppid"`
	Name       string  `json:"name"`
	Exe        string  `json:"exe,omitempty"`
	Username   string  `json:"username"`
	Status     string  `json:"status"`
	Created    string  `json:"created"`
	MemoryMB   float64 `json:"memory_mb"`
	CPUPercent float64 `json:"cpu_percent"`
}

type ProcessSource func(ctx context.Context) ([]Process, error)

type ProcessCollector struct {
	Source ProcessSource
}

func NewProcessCollector() *ProcessCollector { return &ProcessCollector{Source: Processes} }

func (c *ProcessCollector) Name() string  { return "processes" }
func (c *ProcessCollector) Title() string { return "Running Processes" }

func (c *ProcessCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	procs, err := c.Source(ctx)
	if err != nil {
		return s.Fail(collectors.E(collectors.KindInternal, "list processes", err))
	}
	sort.SliceStable(procs, func(i, j int) bool { return procs[i].MemoryMB > procs[j].MemoryMB })

	if _, err := collectors.SaveRecords(s, "processes", procs); err != nil {
		return s.Fail(err)
	}

	s.Doc.Field("Total Processes", len(procs))
	s.Doc.Blank()
	rows := make([][]string, 0, len(procs))
	for _, p := range procs {
		rows = append(rows, []string{
			strconv.Itoa(int(p.PID)), p.Name, p.Username,
			fmt.Sprintf("%.2f", p.MemoryMB), p.Status,
		})
	}
	s.Doc.Table([]report.Column{
		{Header: "PID", Width: 8},
		{Header: "Name", Width: 30},
		{Header: "User", Width: 20},
		{Header: "Memory (MB)", Width: 12},
		{Header: "Status"},
	}, rows, processTableLimit)

	s.Doc.Banner("Top 10 Memory Consumers:")
	for i, p := range procs {
		if i == topConsumers {
			break
		}
		s.Doc.Line("%d. %s (PID: %d) - %.2f MB", i+1, p.Name, p.PID, p.MemoryMB)
	}
	return s.Succeed()
}

// Processes snapshots the process table. Processes that exit or deny access
// while being read keep whatever fields were readable.
func Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		ppid, _ := p.PpidWithContext(ctx)
		exe, _ := p.ExeWithContext(ctx)
		user, _ := p.UsernameWithContext(ctx)
		if user == "" {
			user = "N/A"
		}
		status, _ := p.StatusWithContext(ctx)
		created := "N/A"
		if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
			created = time.UnixMilli(ms).Format(report.TimeLayout)
		}
		var memMB float64
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			memMB = mb(mi.RSS)
		}
		cpuPct, _ := p.CPUPercentWithContext(ctx)

		out = append(out, Process{
			PID:        p.Pid,
			PPID:       ppid,
			Name:       name,
			Exe:        exe,
			Username:   user,
			Status:     strings.Join(status, ","),
			Created:    created,
			MemoryMB:   memMB,
			CPUPercent: cpuPct,
		})
	}
	return out, nil
}
