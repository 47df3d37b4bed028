// Package console prints the human progress lines of a run.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"bitprobe/report"
)

var (
	headerColor  = color.New(color.FgHiCyan, color.Bold)
	phaseColor   = color.New(color.FgHiMagenta, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	skippedColor = color.New(color.FgYellow, color.Bold)
	failedColor  = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgBlue)
)

type Console struct {
	w io.Writer
}

func New(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) Banner(title string) {
	line := strings.Repeat("=", report.Width)
	headerColor.Fprintln(c.w, line)
	headerColor.Fprintln(c.w, title)
	headerColor.Fprintln(c.w, line)
}

// Phase announces collector i of n.
func (c *Console) Phase(i, n int, title string) {
	phaseColor.Fprintf(c.w, "[%d/%d] ", i, n)
	fmt.Fprintln(c.w, title)
}

func (c *Console) Info(format string, args ...interface{}) {
	infoColor.Fprintf(c.w, "[*] ")
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *Console) Warn(format string, args ...interface{}) {
	skippedColor.Fprintf(c.w, "[!] ")
	fmt.Fprintf(c.w, format+"\n", args...)
}

// Result prints the outcome of one collector.
func (c *Console) Result(ref report.Ref) {
	var col *color.Color
	switch ref.Status {
	case report.StatusSuccess:
		col = successColor
	case report.StatusSkipped:
		col = skippedColor
	default:
		col = failedColor
	}
	col.Fprintf(c.w, "    %-8s", ref.Status)
	if ref.Reason != "" {
		fmt.Fprintf(c.w, " %s", ref.Reason)
	}
	fmt.Fprintln(c.w)
}

// Summary prints the status counts of a run.
func (c *Console) Summary(counts map[report.Status]int) {
	successColor.Fprintf(c.w, "%d SUCCESS", counts[report.StatusSuccess])
	fmt.Fprint(c.w, ", ")
	skippedColor.Fprintf(c.w, "%d SKIPPED", counts[report.StatusSkipped])
	fmt.Fprint(c.w, ", ")
	failedColor.Fprintf(c.w, "%d FAILED", counts[report.StatusFailed])
	fmt.Fprintln(c.w)
}
