// Package analysis runs the offline analysers: Volatility against the
// latest memory dump and Ghidra headless against a target binary.
package analysis

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"bitprobe/collectors"
	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

const pluginRows = 50

// DumpPattern matches the dumps written by the memory collector.
const DumpPattern = "memory_dump_*.raw"

var DefaultPlugins = []string{"windows.info", "windows.pslist", "windows.netscan"}

type VolatilityCollector struct {
	Plugins []string
	Timeout time.Duration
}

func NewVolatilityCollector(timeout time.Duration) *VolatilityCollector {
	return &VolatilityCollector{Plugins: DefaultPlugins, Timeout: timeout}
}

func (c *VolatilityCollector) Name() string  { return "volatility" }
func (c *VolatilityCollector) Title() string { return "Volatility3 Memory Analysis" }

func (c *VolatilityCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	dump, _, err := evidence.Latest(rc.Fs, rc.Layout.ArtifactDir("memory"), DumpPattern)
	if errors.Is(err, evidence.ErrNoArtifact) {
		return s.Skip("memory dump not found", "Enable the memory dump or make sure memory acquisition succeeded")
	}
	if err != nil {
		return s.Fail(collectors.E(collectors.KindUnreadableArtifact, "find memory dump", err))
	}

	res := rc.Tools.Resolve(ctx, tools.Volatility)
	if !res.Available {
		return s.Unavailable(res)
	}

	s.Doc.Field("Memory Dump", dump)
	s.Doc.Field("Plugins", strings.Join(c.Plugins, ", "))

	var firstErr error
	failed := 0
	for _, plugin := range c.Plugins {
		cmd := res.Command(c.Timeout, "-r", "json", "-f", dump, plugin)
		out, err := rc.Runner.Run(ctx, cmd)
		if err == nil {
			err = out.Err()
		}
		s.Doc.Heading(strings.ToUpper(plugin))
		if collectors.KindOf(err) == collectors.KindUserInterrupt {
			return s.FailRun(cmd, out, err)
		}
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			s.Doc.Line("Error (%v)", err)
			s.Doc.Block("STDERR", out.Stderr)
			continue
		}

		path := filepath.Join(rc.Layout.ArtifactDir("analysis"),
			evidence.ArtifactName(s.Category()+"_"+strings.ReplaceAll(plugin, ".", "_"), s.Started(), "json"))
		if err := evidence.WriteFileAtomic(rc.Fs, path, out.Stdout, 0o600); err != nil {
			return s.Fail(collectors.E(collectors.KindInternal, "write artifact", err))
		}
		s.AddArtifact(path)
		summarize(s.Doc, plugin, out.Stdout)
	}

	if failed == len(c.Plugins) && firstErr != nil {
		return s.Fail(collectors.E(collectors.KindOf(firstErr), "every plugin failed", firstErr))
	}
	return s.Succeed()
}

// pluginColumns are the fields shown for well-known plugins.
var pluginColumns = map[string][]report.Column{
	"windows.pslist": {
		{Header: "PID", Width: 8},
		{Header: "PPID", Width: 8},
		{Header: "ImageFileName", Width: 24},
		{Header: "Threads", Width: 8},
		{Header: "CreateTime"},
	},
	"windows.netscan": {
		{Header: "Proto", Width: 6},
		{Header: "LocalAddr", Width: 18},
		{Header: "LocalPort", Width: 9},
		{Header: "ForeignAddr", Width: 18},
		{Header: "ForeignPort", Width: 11},
		{Header: "State", Width: 12},
		{Header: "Owner"},
	},
}

// summarize renders the JSON renderer output of one plugin. Output that is
// not a JSON array is included as text.
func summarize(doc *report.Document, plugin string, out []byte) {
	if !gjson.ValidBytes(out) || !gjson.ParseBytes(out).IsArray() {
		doc.Text(out)
		return
	}
	rows := gjson.ParseBytes(out).Array()
	doc.Field("Rows", len(rows))
	if len(rows) == 0 {
		return
	}

	if plugin == "windows.info" {
		for _, r := range rows {
			doc.Field(r.Get("Variable").String(), r.Get("Value").String())
		}
		return
	}

	cols, ok := pluginColumns[plugin]
	if !ok {
		var keys []string
		rows[0].ForEach(func(k, _ gjson.Result) bool {
			if !strings.HasPrefix(k.String(), "__") {
				keys = append(keys, k.String())
			}
			return true
		})
		for i, k := range keys {
			w := 16
			if i == len(keys)-1 {
				w = 0
			}
			cols = append(cols, report.Column{Header: k, Width: w})
		}
	}

	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = cell(r.Get(col.Header))
		}
		table = append(table, cells)
	}
	doc.Table(cols, table, pluginRows)
}

func cell(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return "-"
	}
	return v.String()
}
