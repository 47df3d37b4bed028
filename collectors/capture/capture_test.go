package capture_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitprobe/collectors"
	"bitprobe/collectors/capture"
	"bitprobe/collectors/collectorstest"
	"bitprobe/report"
	"bitprobe/tools"
)

func argAfter(cmd tools.Command, flag string) string {
	for i, a := range cmd.Args {
		if a == flag && i+1 < len(cmd.Args) {
			return cmd.Args[i+1]
		}
	}
	return ""
}

func TestTrafficSkippedWithoutTShark(t *testing.T) {
	env := collectorstest.New(t)
	ref := capture.NewTrafficCollector(time.Minute).Collect(context.Background(), env.RC)

	assert.Equal(t, report.StatusSkipped, ref.Status)
	assert.Empty(t, env.Runner.Commands())
	assert.Contains(t, env.Read(t, ref.Path), "Hint: Install Wireshark")
}

func TestTrafficCapture(t *testing.T) {
	env := collectorstest.New(t)
	env.OnPath("tshark", "/usr/bin/tshark")
	env.Runner.Handler = func(_ context.Context, cmd tools.Command) (tools.Result, error) {
		if w := argAfter(cmd, "-w"); w != "" {
			require.NoError(t, afero.WriteFile(env.Fs, w, []byte("pcapdata"), 0o600))
			return tools.Result{}, nil
		}
		return tools.Result{Stdout: []byte("1\n2\n3\n")}, nil
	}

	ref := capture.NewTrafficCollector(60*time.Second).Collect(context.Background(), env.RC)
	require.Equal(t, report.StatusSuccess, ref.Status)

	cmds := env.Runner.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, 90*time.Second, cmds[0].Timeout)
	assert.Equal(t, "duration:60", argAfter(cmds[0], "-a"))
	assert.Equal(t, "/case/artifacts/network/network_traffic_20240501_120000.pcap", argAfter(cmds[0], "-w"))
	assert.Equal(t, 30*time.Second, cmds[1].Timeout)
	assert.Equal(t, []string{"/case/artifacts/network/network_traffic_20240501_120000.pcap"}, ref.Artifacts)

	body := env.Read(t, ref.Path)
	assert.Contains(t, body, "Duration: 60 seconds\n")
	assert.Contains(t, body, "Packets Captured: 3\n")
}

func TestTrafficTimeoutKeepsOutput(t *testing.T) {
	env := collectorstest.New(t)
	env.OnPath("tshark", "/usr/bin/tshark")
	env.Runner.Handler = func(_ context.Context, cmd tools.Command) (tools.Result, error) {
		return tools.Result{TimedOut: true, Timeout: cmd.Timeout, ExitCode: -1, Stderr: []byte("Capturing on eth0")}, nil
	}

	ref := capture.NewTrafficCollector(time.Second).Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusFailed, ref.Status)
	assert.Equal(t, string(collectors.KindToolTimeout), ref.Kind)
	assert.Contains(t, env.Read(t, ref.Path), "Capturing on eth0")
}

func TestTrafficEmptyCaptureFails(t *testing.T) {
	env := collectorstest.New(t)
	env.OnPath("tshark", "/usr/bin/tshark")

	ref := capture.NewTrafficCollector(time.Second).Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusFailed, ref.Status)
	assert.Equal(t, string(collectors.KindUnreadableArtifact), ref.Kind)
}

func TestTCPViewRequiresTCPView(t *testing.T) {
	env := collectorstest.New(t)
	env.OnPath("netstat", "/bin/netstat")

	ref := capture.NewTCPViewCollector().Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusSkipped, ref.Status)
	assert.Equal(t, "TCPView (Sysinternals) not installed", ref.Reason)
	assert.Empty(t, env.Runner.Commands())
}

func TestTCPViewNetstat(t *testing.T) {
	env := collectorstest.New(t)
	env.Install(t, "/case/tools/sysinternals/tcpview.exe", []byte("MZ"))
	env.OnPath("netstat", "/bin/netstat")
	env.Runner.Handler = func(context.Context, tools.Command) (tools.Result, error) {
		return tools.Result{Stdout: []byte("  TCP    0.0.0.0:135    0.0.0.0:0    LISTENING    1044\n")}, nil
	}

	ref := capture.NewTCPViewCollector().Collect(context.Background(), env.RC)
	require.Equal(t, report.StatusSuccess, ref.Status)
	assert.Equal(t, "/bin/netstat -ano", env.Runner.Commands()[0].String())

	body := env.Read(t, ref.Path)
	assert.Contains(t, body, "/case/tools/sysinternals/tcpview.exe")
	assert.Contains(t, body, "NETSTAT OUTPUT")
	assert.Contains(t, body, "LISTENING    1044")
}

func TestProcMonStopsGracefully(t *testing.T) {
	env := collectorstest.New(t)
	env.Install(t, "/case/tools/sysinternals/procmon.exe", []byte("MZ"))
	env.Runner.StopResult = func(cmd tools.Command) tools.Result {
		require.NoError(t, afero.WriteFile(env.Fs, argAfter(cmd, "/BackingFile"), []byte("pml"), 0o600))
		return tools.Result{}
	}

	c := capture.NewProcMonCollector(time.Millisecond)
	ref := c.Collect(context.Background(), env.RC)
	require.Equal(t, report.StatusSuccess, ref.Status)

	require.Len(t, env.Runner.Processes, 1)
	p := env.Runner.Processes[0]
	assert.Equal(t, []string{"/case/tools/sysinternals/procmon.exe", "/Terminate"}, p.Cmd.Stop)
	assert.Equal(t, 30*time.Second, p.Cmd.StopTimeout)
	assert.Equal(t, 15*time.Second, p.Cmd.Grace)
	assert.GreaterOrEqual(t, p.Stops, 1)
	assert.Equal(t, []string{"/case/artifacts/processes/procmon_20240501_120000.pml"}, ref.Artifacts)
	assert.Contains(t, env.Read(t, ref.Path), "/OpenLog")
}

func TestProcMonMissingLog(t *testing.T) {
	env := collectorstest.New(t)
	env.Install(t, "/case/tools/sysinternals/procmon.exe", []byte("MZ"))
	env.Runner.StopResult = func(tools.Command) tools.Result { return tools.Result{Killed: true} }

	ref := capture.NewProcMonCollector(time.Millisecond).Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusFailed, ref.Status)
	assert.Equal(t, string(collectors.KindUnreadableArtifact), ref.Kind)
	assert.Contains(t, env.Read(t, ref.Path), "was killed")
}

func TestProcMonReportsStopFailure(t *testing.T) {
	env := collectorstest.New(t)
	env.Install(t, "/case/tools/sysinternals/procmon.exe", []byte("MZ"))
	env.Runner.StopResult = func(cmd tools.Command) tools.Result {
		require.NoError(t, afero.WriteFile(env.Fs, argAfter(cmd, "/BackingFile"), []byte("pml"), 0o600))
		return tools.Result{Killed: true, StopErr: errors.New("stop command procmon.exe: exit status 5")}
	}

	ref := capture.NewProcMonCollector(time.Millisecond).Collect(context.Background(), env.RC)
	require.Equal(t, report.StatusSuccess, ref.Status)
	body := env.Read(t, ref.Path)
	assert.Contains(t, body, "Stop command failed: stop command procmon.exe: exit status 5")
	assert.Contains(t, body, "was killed")
}

func TestProcMonInterrupted(t *testing.T) {
	env := collectorstest.New(t)
	env.Install(t, "/case/tools/sysinternals/procmon.exe", []byte("MZ"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ref := capture.NewProcMonCollector(time.Hour).Collect(ctx, env.RC)
	assert.Equal(t, report.StatusFailed, ref.Status)
	assert.Equal(t, string(collectors.KindUserInterrupt), ref.Kind)
	require.Len(t, env.Runner.Processes, 1)
	assert.GreaterOrEqual(t, env.Runner.Processes[0].Stops, 1)
}

func TestMemoryDumpWithAVML(t *testing.T) {
	env := collectorstest.New(t)
	env.Install(t, "/case/tools/avml/avml", []byte("ELF"))
	env.Runner.Handler = func(_ context.Context, cmd tools.Command) (tools.Result, error) {
		require.NoError(t, afero.WriteFile(env.Fs, cmd.Args[0], []byte(strings.Repeat("x", 1024)), 0o600))
		return tools.Result{}, nil
	}

	c := &capture.MemoryDumpCollector{Timeout: 30 * time.Minute, GOOS: "linux"}
	ref := c.Collect(context.Background(), env.RC)
	require.Equal(t, report.StatusSuccess, ref.Status)
	assert.Equal(t, 30*time.Minute, env.Runner.Commands()[0].Timeout)
	assert.Equal(t, []string{"/case/artifacts/memory/memory_dump_20240501_120000.raw"}, ref.Artifacts)
	assert.Contains(t, env.Read(t, ref.Path), "Dump File: /case/artifacts/memory/memory_dump_20240501_120000.raw")
}

func TestMemoryDumpSkipped(t *testing.T) {
	env := collectorstest.New(t)
	c := &capture.MemoryDumpCollector{Timeout: time.Minute, GOOS: "windows"}
	ref := c.Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusSkipped, ref.Status)
	assert.Equal(t, "WinPMEM not installed", ref.Reason)
}

func TestMemoryDumpNonZeroExit(t *testing.T) {
	env := collectorstest.New(t)
	env.OnPath("avml", "/usr/local/bin/avml")
	env.Runner.Handler = func(context.Context, tools.Command) (tools.Result, error) {
		return tools.Result{ExitCode: 2, Stderr: []byte("need root")}, nil
	}

	c := &capture.MemoryDumpCollector{Timeout: time.Minute, GOOS: "linux"}
	ref := c.Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusFailed, ref.Status)
	assert.Equal(t, string(collectors.KindToolNonZeroExit), ref.Kind)
	body := env.Read(t, ref.Path)
	assert.Contains(t, body, "Exit Code: 2\n")
	assert.Contains(t, body, "need root")
}
