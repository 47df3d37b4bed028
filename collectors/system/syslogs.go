package system

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"bitprobe/collectors"
	"bitprobe/report"
	"bitprobe/tools"
)

const logEntries = 50

// LogCapture is the artifact record of one queried log.
type LogCapture struct {
	Log      string `json:"log"`
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
	Output   string `json:"output"`
}

// LogCollector queries the newest entries of each configured log with
// wevtutil on Windows and journalctl elsewhere.
type LogCollector struct {
	Logs    []string
	Timeout time.Duration
	GOOS    string
}

func NewLogCollector(logs []string, timeout time.Duration) *LogCollector {
	return &LogCollector{Logs: logs, Timeout: timeout, GOOS: runtime.GOOS}
}

// DefaultLogs returns the logs queried on goos.
func DefaultLogs(goos string) []string {
	if goos == "windows" {
		return []string{"System", "Security", "Application"}
	}
	return []string{"system", "kernel"}
}

func (c *LogCollector) Name() string  { return "system_logs" }
func (c *LogCollector) Title() string { return "System Logs" }

func (c *LogCollector) tool() string {
	if c.GOOS == "windows" {
		return tools.WevtUtil
	}
	return tools.JournalCtl
}

func (c *LogCollector) args(log string) []string {
	if c.GOOS == "windows" {
		return []string{"qe", log, "/c:"+strconv.Itoa(logEntries), "/rd:true", "/f:text"}
	}
	args := []string{"--no-pager", "--reverse", "-n", strconv.Itoa(logEntries)}
	switch log {
	case "system", "":
	case "kernel":
		args = append(args, "-k")
	default:
		args = append(args, "-u", log)
	}
	return args
}

func (c *LogCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	res := rc.Tools.Resolve(ctx, c.tool())
	if !res.Available {
		return s.Unavailable(res)
	}
	logs := c.Logs
	if len(logs) == 0 {
		logs = DefaultLogs(c.GOOS)
	}

	var captures []LogCapture
	var firstErr error
	for _, log := range logs {
		cmd := res.Command(c.Timeout, c.args(log)...)
		out, err := rc.Runner.Run(ctx, cmd)
		if err == nil {
			err = out.Err()
		}
		capture := LogCapture{Log: log, Command: cmd.String(), ExitCode: out.ExitCode, Output: string(out.Stdout)}

		s.Doc.Banner(fmt.Sprintf("%s LOG (Last %d entries)", strings.ToUpper(log), logEntries))
		switch {
		case collectors.KindOf(err) == collectors.KindUserInterrupt:
			s.Doc.Line("Interrupted while capturing %s log", log)
			return s.FailRun(cmd, out, err)
		case err != nil:
			capture.Error = err.Error()
			s.Doc.Line("Error capturing %s log: %v", log, err)
			s.Doc.Block("STDERR", out.Stderr)
			if firstErr == nil {
				firstErr = err
			}
		default:
			s.Doc.Text(out.Stdout)
		}
		captures = append(captures, capture)
	}

	if _, err := collectors.SaveRecords(s, "logs", captures); err != nil {
		return s.Fail(err)
	}

	failed := 0
	for _, cp := range captures {
		if cp.Error != "" {
			failed++
		}
	}
	if failed == len(captures) && firstErr != nil {
		return s.Fail(collectors.E(collectors.KindOf(firstErr), "every log query failed", firstErr))
	}
	return s.Succeed()
}
