package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Width of rules and banners in every text report.
const Width = 80

// TimeLayout is the human timestamp used inside reports.
const TimeLayout = "2006-01-02 15:04:05"

func rule(ch string) string { return strings.Repeat(ch, Width) }

// Column of a fixed-width table.
type Column struct {
	Header string
	Width  int
}

// Document is an individual report under construction. The status line is
// rendered under the banner no matter when it is set.
type Document struct {
	heading    string
	capturedAt time.Time
	status     string
	notes      []string
	body       bytes.Buffer
}

func NewDocument(heading string, capturedAt time.Time) *Document {
	return &Document{heading: heading, capturedAt: capturedAt}
}

// SetStatus sets the "Status:" line and any lines shown right below it.
func (d *Document) SetStatus(status string, notes ...string) {
	d.status = status
	d.notes = notes
}

func (d *Document) Field(label string, value interface{}) {
	fmt.Fprintf(&d.body, "%s: %v\n", label, value)
}

func (d *Document) Line(format string, args ...interface{}) {
	fmt.Fprintf(&d.body, format, args...)
	d.body.WriteByte('\n')
}

func (d *Document) Blank() { d.body.WriteByte('\n') }

func (d *Document) Heading(text string) {
	d.body.WriteString("\n" + rule("-") + "\n")
	d.body.WriteString(text + "\n")
	d.body.WriteString(rule("-") + "\n")
}

func (d *Document) Banner(text string) {
	d.body.WriteString("\n" + rule("=") + "\n")
	d.body.WriteString(text + "\n")
	d.body.WriteString(rule("=") + "\n\n")
}

// Text appends raw tool output. Invalid UTF-8 is replaced so the report
// stays readable by the compiler.
func (d *Document) Text(b []byte) {
	if len(b) == 0 {
		return
	}
	s := strings.ToValidUTF8(string(b), "�")
	d.body.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		d.body.WriteByte('\n')
	}
}

// Block appends output under a "--- LABEL ---" marker when non-empty.
func (d *Document) Block(label string, b []byte) {
	if len(bytes.TrimSpace(b)) == 0 {
		return
	}
	d.body.WriteString("\n--- " + label + " ---\n")
	d.Text(b)
}

// Table writes at most limit rows (all when limit <= 0) and reports how many
// were written.
func (d *Document) Table(cols []Column, rows [][]string, limit int) int {
	d.body.WriteString(rule("-") + "\n")
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Header
	}
	d.body.WriteString(formatRow(cols, header) + "\n")
	d.body.WriteString(rule("-") + "\n")

	n := len(rows)
	if limit > 0 && n > limit {
		n = limit
	}
	for _, r := range rows[:n] {
		d.body.WriteString(formatRow(cols, r) + "\n")
	}
	if n < len(rows) {
		fmt.Fprintf(&d.body, "... %d more rows omitted (see artifact)\n", len(rows)-n)
	}
	return n
}

func formatRow(cols []Column, cells []string) string {
	var b strings.Builder
	for i, c := range cols {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i == len(cols)-1 {
			b.WriteString(cell)
			break
		}
		b.WriteString(pad(truncate(cell, c.Width), c.Width+1))
	}
	return strings.TrimRight(b.String(), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "~"
}

func pad(s string, n int) string {
	if c := utf8.RuneCountInString(s); c < n {
		return s + strings.Repeat(" ", n-c)
	}
	return s
}

// Bytes renders the document. Invalid UTF-8 from fields, lines or table
// cells is replaced, so every written report stays compilable.
func (d *Document) Bytes() []byte {
	var out bytes.Buffer
	out.WriteString(rule("=") + "\n")
	out.WriteString(d.heading + "\n")
	out.WriteString(rule("=") + "\n\n")
	fmt.Fprintf(&out, "Capture Time: %s\n", d.capturedAt.Format(TimeLayout))
	if d.status != "" {
		fmt.Fprintf(&out, "Status: %s\n", d.status)
	}
	for _, n := range d.notes {
		out.WriteString(n + "\n")
	}
	if d.body.Len() > 0 {
		out.WriteByte('\n')
		out.Write(d.body.Bytes())
	}
	return bytes.ToValidUTF8(out.Bytes(), []byte("\uFFFD"))
}
