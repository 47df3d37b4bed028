package report

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDocumentLayout(t *testing.T) {
	d := NewDocument("RUNNING PROCESSES REPORT", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	d.Field("Total Processes", 2)
	d.SetStatus("Success")

	out := string(d.Bytes())
	lines := strings.Split(out, "\n")
	assert.Equal(t, strings.Repeat("=", Width), lines[0])
	assert.Equal(t, "RUNNING PROCESSES REPORT", lines[1])
	assert.Equal(t, "Capture Time: 2024-05-01 10:00:00", lines[4])
	assert.Equal(t, "Status: Success", lines[5])
	assert.Contains(t, out, "\nTotal Processes: 2\n")
}

func TestDocumentStatusNotes(t *testing.T) {
	d := NewDocument("MEMORY DUMP REPORT", time.Now())
	d.SetStatus("Skipped (WinPMEM not installed)", "Hint: Download WinPMEM into tools/winpmem")

	out := string(d.Bytes())
	assert.Contains(t, out, "Status: Skipped (WinPMEM not installed)\nHint: Download WinPMEM into tools/winpmem\n")
}

func TestDocumentTableCap(t *testing.T) {
	var rows [][]string
	for i := 0; i < 75; i++ {
		rows = append(rows, []string{fmt.Sprint(i), "proc", "root"})
	}
	d := NewDocument("T", time.Now())
	n := d.Table([]Column{{"PID", 8}, {"Name", 30}, {"User", 20}}, rows, 50)

	assert.Equal(t, 50, n)
	out := string(d.Bytes())
	assert.Contains(t, out, "PID      Name                           User\n")
	assert.Contains(t, out, "... 25 more rows omitted (see artifact)")
	assert.NotContains(t, out, "\n50       proc")
}

func TestDocumentTableTruncatesCells(t *testing.T) {
	d := NewDocument("T", time.Now())
	d.Table([]Column{{"Name", 5}, {"X", 1}}, [][]string{{"abcdefgh", "y"}}, 0)
	assert.Contains(t, string(d.Bytes()), "abcd~ y\n")
}

func TestDocumentTextSanitizes(t *testing.T) {
	d := NewDocument("T", time.Now())
	d.Block("STDERR", []byte{'o', 'k', 0xff})
	d.Block("STDOUT", []byte("   \n"))

	out := string(d.Bytes())
	assert.Contains(t, out, "--- STDERR ---\nok�\n")
	assert.NotContains(t, out, "STDOUT")
}

func TestDocumentReplacesInvalidUTF8(t *testing.T) {
	bad := "a\xe4\xb8\xad\xe6\x96"
	d := NewDocument("RUNNING PROCESSES REPORT", time.Now())
	d.SetStatus("Success")
	d.Field("Name", bad)
	d.Line("1. %s (PID: %d) - %.2f MB", bad, 42, 1.5)
	d.Table([]Column{{Header: "PID", Width: 8}, {Header: "Name"}}, [][]string{{"42", bad}}, 0)

	out := d.Bytes()
	assert.True(t, utf8.Valid(out))
	assert.Contains(t, string(out), "Name: a中�\n")
	assert.Contains(t, string(out), "1. a中� (PID: 42)")
}
