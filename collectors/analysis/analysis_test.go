package analysis_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitprobe/collectors"
	"bitprobe/collectors/analysis"
	"bitprobe/collectors/collectorstest"
	"bitprobe/report"
	"bitprobe/tools"
)

const pslist = `[
 {"PID": 4, "PPID": 0, "ImageFileName": "System", "Threads": 120, "CreateTime": "2024-05-01T09:00:00", "__children": []},
 {"PID": 1044, "PPID": 4, "ImageFileName": "svchost.exe", "Threads": 12, "CreateTime": null, "__children": []}
]`

const info = `[{"Variable": "Kernel Base", "Value": "0xf8000000"}, {"Variable": "NtMajorVersion", "Value": "10"}]`

func TestVolatilitySkipsWithoutDump(t *testing.T) {
	env := collectorstest.New(t)
	env.OnPath("vol", "/usr/bin/vol")

	ref := analysis.NewVolatilityCollector(3*time.Minute).Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusSkipped, ref.Status)
	assert.Equal(t, "memory dump not found", ref.Reason)
	assert.Empty(t, env.Runner.Commands())
}

func TestVolatilityUsesLatestDump(t *testing.T) {
	env := collectorstest.New(t)
	env.OnPath("vol", "/usr/bin/vol")
	older := "/case/artifacts/memory/memory_dump_20240501_100000.raw"
	newer := "/case/artifacts/memory/memory_dump_20240501_110000.raw"
	env.Install(t, older, []byte("old"))
	env.Install(t, newer, []byte("new"))
	require.NoError(t, env.Fs.Chtimes(older, collectorstest.Epoch, collectorstest.Epoch.Add(-2*time.Hour)))
	require.NoError(t, env.Fs.Chtimes(newer, collectorstest.Epoch, collectorstest.Epoch.Add(-time.Hour)))

	env.Runner.Handler = func(_ context.Context, cmd tools.Command) (tools.Result, error) {
		switch cmd.Args[len(cmd.Args)-1] {
		case "windows.info":
			return tools.Result{Stdout: []byte(info)}, nil
		case "windows.pslist":
			return tools.Result{Stdout: []byte(pslist)}, nil
		}
		return tools.Result{ExitCode: 1, Stderr: []byte("unsatisfied requirement")}, nil
	}

	ref := analysis.NewVolatilityCollector(3*time.Minute).Collect(context.Background(), env.RC)
	require.Equal(t, report.StatusSuccess, ref.Status)

	cmds := env.Runner.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, []string{"-r", "json", "-f", newer, "windows.info"}, cmds[0].Args)
	assert.Equal(t, 3*time.Minute, cmds[0].Timeout)
	assert.Len(t, ref.Artifacts, 2)
	assert.Equal(t, "/case/artifacts/analysis/volatility_windows_pslist_20240501_120000.json", ref.Artifacts[1])

	body := env.Read(t, ref.Path)
	assert.Contains(t, body, "Memory Dump: "+newer)
	assert.Contains(t, body, "Kernel Base: 0xf8000000\n")
	assert.Contains(t, body, "svchost.exe")
	assert.Contains(t, body, "WINDOWS.NETSCAN")
	assert.Contains(t, body, "Error (exited with code 1)")
	assert.Contains(t, body, "unsatisfied requirement")
}

func TestVolatilityAllPluginsTimeOut(t *testing.T) {
	env := collectorstest.New(t)
	env.OnPath("vol", "/usr/bin/vol")
	env.Install(t, "/case/artifacts/memory/memory_dump_20240501_110000.raw", []byte("x"))
	env.Runner.Handler = func(_ context.Context, cmd tools.Command) (tools.Result, error) {
		return tools.Result{TimedOut: true, Timeout: cmd.Timeout, ExitCode: -1}, nil
	}

	ref := analysis.NewVolatilityCollector(time.Second).Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusFailed, ref.Status)
	assert.Equal(t, string(collectors.KindToolTimeout), ref.Kind)
}

func TestVolatilityProbeLauncher(t *testing.T) {
	env := collectorstest.New(t)
	env.OnPath("python3", "/usr/bin/python3")
	env.Install(t, "/case/artifacts/memory/memory_dump_20240501_110000.raw", []byte("x"))
	env.Runner.Handler = func(_ context.Context, cmd tools.Command) (tools.Result, error) {
		return tools.Result{Stdout: []byte("[]")}, nil
	}

	ref := analysis.NewVolatilityCollector(time.Second).Collect(context.Background(), env.RC)
	require.Equal(t, report.StatusSuccess, ref.Status)
	cmds := env.Runner.Commands()
	assert.Equal(t, "python3 -m pip show volatility3", cmds[0].String())
	assert.True(t, strings.HasPrefix(cmds[1].String(), "python3 -m volatility3 -r json"))
}

func TestGhidraSkippedWithoutAnalyzer(t *testing.T) {
	env := collectorstest.New(t)
	ref := analysis.NewGhidraCollector("/bin/ls", time.Minute).Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusSkipped, ref.Status)
	assert.Contains(t, env.Read(t, ref.Path), "Hint: Run tool installation")
}

func TestGhidraSkippedWithoutTarget(t *testing.T) {
	env := collectorstest.New(t)
	env.Install(t, "/case/tools/ghidra/ghidra_11.0/support/analyzeHeadless", []byte("#!/bin/sh"))
	c := &analysis.GhidraCollector{Target: "/nope", Timeout: time.Minute}

	ref := c.Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusSkipped, ref.Status)
	assert.Equal(t, "no suitable target binary found", ref.Reason)
}

func TestGhidraHeadless(t *testing.T) {
	env := collectorstest.New(t)
	env.Install(t, "/case/tools/ghidra/ghidra_11.0/support/analyzeHeadless", []byte("#!/bin/sh"))
	env.Install(t, "/samples/dropper.exe", []byte("MZ"))
	env.Runner.Handler = func(context.Context, tools.Command) (tools.Result, error) {
		return tools.Result{Stdout: []byte("INFO  ANALYZING all memory and code\n")}, nil
	}
	c := &analysis.GhidraCollector{Defaults: []string{"/missing", "/samples/dropper.exe"}, Timeout: 4 * time.Minute, AnalysisTimeout: 2 * time.Minute}

	ref := c.Collect(context.Background(), env.RC)
	require.Equal(t, report.StatusSuccess, ref.Status)

	cmd := env.Runner.Commands()[0]
	assert.Equal(t, "/case/tools/ghidra/ghidra_11.0/support/analyzeHeadless", cmd.Path)
	assert.Equal(t, []string{
		"/case/artifacts/ghidra/project_20240501_120000", "analysis_20240501_120000",
		"-import", "/samples/dropper.exe",
		"-analysisTimeoutPerFile", "120",
		"-overwrite",
	}, cmd.Args)
	assert.Equal(t, 4*time.Minute, cmd.Timeout)
	assert.Contains(t, env.Read(t, ref.Path), "ANALYZING all memory")

	info, err := env.Fs.Stat("/case/artifacts/ghidra/project_20240501_120000")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDefaultTargetsEndWithExecutable(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	targets := analysis.DefaultTargets("linux")
	assert.Equal(t, exe, targets[len(targets)-1])
}
