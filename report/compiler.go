package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"bitprobe/evidence"
)

const masterTitle = "MASTER FORENSIC ANALYSIS REPORT"

// ErrInvalidEncoding is the cause reported for report files that are not UTF-8.
var ErrInvalidEncoding = errors.New("report is not valid UTF-8")

// Compiler merges individual reports into a master report. Unreadable
// reports become inline placeholders; compilation itself only fails when the
// master file cannot be written.
type Compiler struct {
	Fs  afero.Fs
	Log *zap.Logger
	Now func() time.Time
}

func NewCompiler(fs afero.Fs, log *zap.Logger) *Compiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{Fs: fs, Log: log, Now: time.Now}
}

// Build appends refs to a new master in order and seals it.
func (c *Compiler) Build(runID string, startedAt time.Time, path string, refs []Ref, locations ...Location) *Master {
	m := NewMaster(runID, startedAt, path)
	m.Locations = locations
	_ = m.Append(refs...)
	m.Seal()
	return m
}

// Compile renders m and writes it to m.Path.
func (c *Compiler) Compile(m *Master) error {
	var buf bytes.Buffer
	if err := c.Render(&buf, m); err != nil {
		return err
	}
	if err := evidence.WriteFileAtomic(c.Fs, m.Path, buf.Bytes(), 0o600); err != nil {
		return errors.Wrap(err, "write master report")
	}
	c.Log.Info("master report compiled", zap.String("path", m.Path), zap.Int("sections", len(m.sections)))
	return nil
}

// Render writes the master report. Apart from the "Report Generated" line the
// output depends only on m and the report file contents.
func (c *Compiler) Render(w io.Writer, m *Master) error {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	var b bytes.Buffer
	b.WriteString("╔" + strings.Repeat("═", Width-2) + "╗\n")
	b.WriteString("║" + strings.Repeat(" ", Width-2) + "║\n")
	b.WriteString("║" + center(masterTitle, Width-2) + "║\n")
	b.WriteString("║" + strings.Repeat(" ", Width-2) + "║\n")
	b.WriteString("╚" + strings.Repeat("═", Width-2) + "╝\n\n")

	counts := m.Counts()
	var total time.Duration
	for _, s := range m.sections {
		total += s.Duration
	}
	fmt.Fprintf(&b, "Report Generated: %s\n", now().Format(TimeLayout))
	fmt.Fprintf(&b, "Run ID: %s\n", m.RunID)
	if !m.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Run Started: %s\n", m.StartedAt.Format(TimeLayout))
	}
	if m.Interrupted {
		b.WriteString("Run Status: INTERRUPTED (partial report)\n")
	}
	fmt.Fprintf(&b, "Collection Time: %s\n", total.Round(time.Second))
	fmt.Fprintf(&b, "Total Individual Reports: %d\n", len(m.sections))
	fmt.Fprintf(&b, "Status Summary: %d %s, %d %s, %d %s\n\n",
		counts[StatusSuccess], StatusSuccess,
		counts[StatusSkipped], StatusSkipped,
		counts[StatusFailed], StatusFailed)

	b.WriteString(rule("=") + "\nTABLE OF CONTENTS\n" + rule("=") + "\n\n")
	for i, s := range m.sections {
		line := fmt.Sprintf("%d. %s [%s]", i+1, s.Title, s.Status)
		if s.Status != StatusSuccess && s.Reason != "" {
			line += " - " + s.Reason
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + rule("=") + "\nDETAILED FINDINGS\n" + rule("=") + "\n\n")
	for i, s := range m.sections {
		b.WriteString("\n" + rule("─") + "\n")
		fmt.Fprintf(&b, "SECTION %d: %s [%s]\n", i+1, strings.ToUpper(s.Title), s.Status)
		b.WriteString(rule("─") + "\n\n")

		body, err := c.readSection(s)
		if err != nil {
			c.Log.Warn("report unreadable",
				zap.String("kind", "unreadable_artifact"),
				zap.String("collector", s.Category),
				zap.String("path", s.Path),
				zap.Error(err))
			fmt.Fprintf(&b, "Error reading report: %v\n\n", err)
			continue
		}
		b.Write(body)
		b.WriteString("\n\n")
	}

	b.WriteString("\n" + rule("=") + "\nEND OF REPORT\n" + rule("=") + "\n")
	if m.Path != "" {
		fmt.Fprintf(&b, "\nReport saved to: %s\n", m.Path)
	}
	for _, l := range m.Locations {
		fmt.Fprintf(&b, "%s location: %s\n", l.Label, l.Path)
	}

	_, err := w.Write(b.Bytes())
	return err
}

func (c *Compiler) readSection(s Ref) ([]byte, error) {
	if s.Path == "" {
		return nil, errors.New("no report file recorded")
	}
	body, err := afero.ReadFile(c.Fs, s.Path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(body) {
		return nil, errors.Wrap(ErrInvalidEncoding, s.Path)
	}
	return body, nil
}

func center(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}
