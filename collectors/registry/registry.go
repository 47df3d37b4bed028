// Package registry captures the autostart Run and RunOnce keys.
package registry

import (
	"context"

	"bitprobe/collectors"
	"bitprobe/report"
)

// Value is one registry value under an autostart key.
type Value struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// Key names one autostart location.
type Key struct {
	Label string
	Hive  string
	Path  string
}

// Keys are the locations read, in report order.
var Keys = []Key{
	{Label: "Run Keys (HKLM)", Hive: "HKLM", Path: `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`},
	{Label: "Run Keys (HKCU)", Hive: "HKCU", Path: `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`},
	{Label: "RunOnce Keys (HKLM)", Hive: "HKLM", Path: `SOFTWARE\Microsoft\Windows\CurrentVersion\RunOnce`},
	{Label: "RunOnce Keys (HKCU)", Hive: "HKCU", Path: `SOFTWARE\Microsoft\Windows\CurrentVersion\RunOnce`},
}

type Collector struct{}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Name() string  { return "registry" }
func (c *Collector) Title() string { return "Registry Artifacts" }

func (c *Collector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	return collect(ctx, collectors.Begin(rc, c.Name(), c.Title()))
}

// render writes the values grouped by key, each key in Keys order.
func render(s *collectors.Session, values []Value, errs map[string]error) {
	byKey := map[string][]Value{}
	for _, v := range values {
		byKey[v.Key] = append(byKey[v.Key], v)
	}
	for _, k := range Keys {
		s.Doc.Heading(k.Label)
		if err := errs[k.Label]; err != nil {
			s.Doc.Line("Error reading key: %v", err)
			s.Doc.Blank()
			continue
		}
		vs := byKey[k.Label]
		if len(vs) == 0 {
			s.Doc.Line("No entries found")
			s.Doc.Blank()
			continue
		}
		for _, v := range vs {
			s.Doc.Field("Name", v.Name)
			s.Doc.Field("Value", v.Value)
			s.Doc.Field("Type", v.Type)
			s.Doc.Blank()
		}
	}
}
