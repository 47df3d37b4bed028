package signature

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"bitprobe/analyzers/ioc"
	"bitprobe/collectors"
	"bitprobe/report"
)

const iocReportRows = 100

// IOCCollector matches an indicator list against the artifacts written by
// earlier collectors.
type IOCCollector struct {
	File string
}

func NewIOCCollector(file string) *IOCCollector { return &IOCCollector{File: file} }

func (c *IOCCollector) Name() string  { return "ioc_scan" }
func (c *IOCCollector) Title() string { return "IOC Scan" }

func (c *IOCCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())
	if c.File == "" {
		return s.Skip("no IOC file configured", "Pass --ioc-file or set ioc_file in the config")
	}

	res, err := ioc.ScanDir(ctx, rc.Fs, rc.Layout.Artifacts, c.File)
	if err != nil {
		kind := collectors.KindOf(err)
		if os.IsNotExist(err) || errors.Is(err, ioc.ErrNoPatterns) {
			kind = collectors.KindUnreadableArtifact
		}
		return s.Fail(collectors.E(kind, "scan "+c.File, err))
	}
	if _, err := collectors.SaveRecords(s, "signature", res.Matches); err != nil {
		return s.Fail(err)
	}

	s.Doc.Field("IOC File", c.File)
	s.Doc.Field("Patterns", res.Patterns)
	s.Doc.Field("Artifacts Scanned", res.Scanned)
	s.Doc.Field("Artifacts Skipped", res.Skipped)
	s.Doc.Field("Matches", len(res.Matches))
	if len(res.Matches) == 0 {
		return s.Succeed()
	}

	rows := make([][]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		where := m.Artifact
		if m.Field != "" {
			where += " (" + m.Field + ")"
		}
		rows = append(rows, []string{m.Pattern, m.Excerpt, where})
	}
	s.Doc.Blank()
	s.Doc.Table([]report.Column{
		{Header: "Pattern", Width: 20},
		{Header: "Excerpt", Width: 30},
		{Header: "Artifact"},
	}, rows, iocReportRows)
	return s.Succeed()
}
