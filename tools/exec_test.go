package tools

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireBinary(t *testing.T, name string) string {
	t.Helper()
	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available", name)
	}
	return p
}

func TestRunSuccess(t *testing.T) {
	sh := requireBinary(t, "sh")

	res, err := OSRunner{}.Run(context.Background(), Command{
		Path:    sh,
		Args:    []string{"-c", "echo out; echo err 1>&2"},
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.NoError(t, res.Err())
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
}

func TestRunNonZeroExit(t *testing.T) {
	sh := requireBinary(t, "sh")

	res, err := OSRunner{}.Run(context.Background(), Command{Path: sh, Args: []string{"-c", "echo boom 1>&2; exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)

	var ee *ExitError
	require.True(t, errors.As(res.Err(), &ee))
	assert.Equal(t, 3, ee.Code)
	assert.Equal(t, "boom\n", string(res.Stderr))
}

func TestRunTimeoutIsBounded(t *testing.T) {
	sleep := requireBinary(t, "sleep")

	start := time.Now()
	res, err := OSRunner{}.Run(context.Background(), Command{
		Path:    sleep,
		Args:    []string{"30"},
		Timeout: 200 * time.Millisecond,
		Grace:   time.Second,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.ErrorIs(t, res.Err(), ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunMissingBinary(t *testing.T) {
	_, err := OSRunner{}.Run(context.Background(), Command{Path: "/nonexistent/tool-binary"})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	sleep := requireBinary(t, "sleep")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := OSRunner{}.Run(ctx, Command{Path: sleep, Args: []string{"30"}, Grace: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartStopGraceful(t *testing.T) {
	sh := requireBinary(t, "sh")

	p, err := OSRunner{}.Start(context.Background(), Command{
		Path: sh,
		Args: []string{"-c", "echo started; exit 0"},
	})
	require.NoError(t, err)

	res := p.Stop(context.Background())
	assert.False(t, res.Killed)
	assert.Equal(t, "started\n", string(res.Stdout))
	assert.Equal(t, res, p.Stop(context.Background()))
}

func TestStartStopKillsAfterGrace(t *testing.T) {
	sleep := requireBinary(t, "sleep")

	p, err := OSRunner{}.Start(context.Background(), Command{
		Path:  sleep,
		Args:  []string{"30"},
		Grace: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	res := p.Stop(context.Background())
	assert.True(t, res.Killed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCleanExitAtDeadlineIsNotTimeout(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-expired.Done()

	assert.False(t, timedOut(expired, nil))
	assert.True(t, timedOut(expired, errors.New("signal: killed")))
	assert.False(t, timedOut(context.Background(), errors.New("exit status 1")))
}

func TestStartStopRecordsStopCommandFailure(t *testing.T) {
	sh := requireBinary(t, "sh")

	p, err := OSRunner{}.Start(context.Background(), Command{
		Path: sh,
		Args: []string{"-c", "exit 0"},
		Stop: []string{sh, "-c", "exit 5"},
	})
	require.NoError(t, err)

	res := p.Stop(context.Background())
	require.Error(t, res.StopErr)
	assert.Contains(t, res.StopErr.Error(), "stop command")
	assert.False(t, res.Killed)
}
