package system

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/fatih/structs"
	"github.com/iancoleman/strcase"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"bitprobe/collectors"
	"bitprobe/report"
)

// HostSummary is the system information record. Fields are rendered in
// declaration order; the label tag overrides the generated label.
type HostSummary struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os" label:"OS"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platform_version"`
	KernelVersion   string  `json:"kernel_version"`
	Architecture    string  `json:"architecture"`
	BootTime        string  `json:"boot_time"`
	Uptime          string  `json:"uptime"`
	CPUModel        string  `json:"cpu_model" label:"CPU Model"`
	LogicalCPUs     int     `json:"logical_cpus" label:"Logical CPUs"`
	PhysicalCPUs    int     `json:"physical_cpus" label:"Physical CPUs"`
	MemoryTotalMB   float64 `json:"memory_total_mb" label:"Memory Total (MB)"`
	MemoryUsedMB    float64 `json:"memory_used_mb" label:"Memory Used (MB)"`
	MemoryPercent   float64 `json:"memory_percent" label:"Memory Used (%)"`
	Disks           []Disk  `json:"disks"`
}

type Disk struct {
	Mountpoint  string  `json:"mountpoint"`
	Device      string  `json:"device"`
	Fstype      string  `json:"fstype"`
	TotalGB     float64 `json:"total_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// HostSource gathers a HostSummary. Partial failures are returned as notes.
type HostSource func(ctx context.Context) (HostSummary, []string, error)

type InfoCollector struct {
	Source HostSource
}

func NewInfoCollector() *InfoCollector { return &InfoCollector{Source: HostInfo} }

func (c *InfoCollector) Name() string  { return "system_info" }
func (c *InfoCollector) Title() string { return "System Information" }

func (c *InfoCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	summary, notes, err := c.Source(ctx)
	if err != nil {
		return s.Fail(collectors.E(collectors.KindInternal, "host info", err))
	}
	if _, err := collectors.SaveRecords(s, "analysis", []HostSummary{summary}); err != nil {
		return s.Fail(err)
	}

	renderFields(s.Doc, summary)
	if len(summary.Disks) > 0 {
		s.Doc.Heading("Disks")
		rows := make([][]string, 0, len(summary.Disks))
		for _, d := range summary.Disks {
			rows = append(rows, []string{
				d.Mountpoint, d.Device, d.Fstype,
				fmt.Sprintf("%.2f", d.TotalGB), fmt.Sprintf("%.1f", d.UsedPercent),
			})
		}
		s.Doc.Table([]report.Column{
			{Header: "Mountpoint", Width: 24},
			{Header: "Device", Width: 20},
			{Header: "FS", Width: 8},
			{Header: "Total (GB)", Width: 11},
			{Header: "Used (%)"},
		}, rows, 0)
	}
	if len(notes) > 0 {
		s.Doc.Heading("Warnings")
		for _, n := range notes {
			s.Doc.Line("%s", n)
		}
	}
	return s.Succeed()
}

// renderFields writes every scalar field of v as "Label: value".
func renderFields(doc *report.Document, v interface{}) {
	for _, f := range structs.New(v).Fields() {
		if !f.IsExported() {
			continue
		}
		switch f.Kind() {
		case reflect.Slice, reflect.Map, reflect.Struct:
			continue
		}
		label := f.Tag("label")
		if label == "" {
			label = titleWords(strcase.ToDelimited(f.Name(), ' '))
		}
		value := f.Value()
		if fl, ok := value.(float64); ok {
			value = fmt.Sprintf("%.2f", fl)
		}
		doc.Field(label, value)
	}
}

// titleWords upper-cases the first letter of every word.
func titleWords(s string) string {
	b := []byte(s)
	up := true
	for i, c := range b {
		if up && c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
		up = c == ' '
	}
	return string(b)
}

// HostInfo reads the running host through gopsutil.
func HostInfo(ctx context.Context) (HostSummary, []string, error) {
	var notes []string

	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostSummary{}, nil, err
	}
	summary := HostSummary{
		Hostname:        hi.Hostname,
		OS:              hi.OS,
		Platform:        hi.Platform,
		PlatformVersion: hi.PlatformVersion,
		KernelVersion:   hi.KernelVersion,
		Architecture:    hi.KernelArch,
		BootTime:        time.Unix(int64(hi.BootTime), 0).UTC().Format(time.RFC3339),
		Uptime:          (time.Duration(hi.Uptime) * time.Second).String(),
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		summary.LogicalCPUs = n
	} else {
		notes = append(notes, "logical cpu count: "+err.Error())
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		summary.PhysicalCPUs = n
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		summary.CPUModel = infos[0].ModelName
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		summary.MemoryTotalMB = mb(vm.Total)
		summary.MemoryUsedMB = mb(vm.Used)
		summary.MemoryPercent = vm.UsedPercent
	} else {
		notes = append(notes, "memory: "+err.Error())
	}

	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		notes = append(notes, "disk partitions: "+err.Error())
	}
	for _, p := range parts {
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			notes = append(notes, fmt.Sprintf("disk %s: %v", p.Mountpoint, err))
			continue
		}
		summary.Disks = append(summary.Disks, Disk{
			Mountpoint:  p.Mountpoint,
			Device:      p.Device,
			Fstype:      p.Fstype,
			TotalGB:     float64(u.Total) / (1 << 30),
			UsedPercent: u.UsedPercent,
		})
	}
	return summary, notes, nil
}

func mb(b uint64) float64 {
	return float64(b) / (1 << 20)
}
