package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultGrace is how long a killed tool gets to release its output pipes.
const DefaultGrace = 5 * time.Second

// ErrTimeout matches every *TimeoutError.
var ErrTimeout = errors.New("tool timed out")

type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s", e.After.Round(time.Second))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exited with code %d", e.Code)
}

// Command is one external tool invocation.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Timeout time.Duration
	// Stop asks a background tool to exit on its own before it is killed.
	Stop        []string
	StopTimeout time.Duration
	Grace       time.Duration
}

func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

func (c Command) grace() time.Duration {
	if c.Grace > 0 {
		return c.Grace
	}
	return DefaultGrace
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool
	// Killed is set when a background tool had to be killed after Stop.
	Killed   bool
	// StopErr is the failure of the graceful stop command, if any.
	StopErr  error
	Timeout  time.Duration
	Duration time.Duration
}

// Err classifies a finished invocation: nil on exit code 0, a *TimeoutError
// or an *ExitError otherwise.
func (r Result) Err() error {
	if r.TimedOut {
		return &TimeoutError{After: r.Timeout}
	}
	if r.ExitCode != 0 {
		return &ExitError{Code: r.ExitCode}
	}
	return nil
}

type Runner interface {
	// Run blocks until the tool exits or its timeout expires. The error is
	// non-nil only when the tool could not be run at all or ctx was cancelled;
	// timeouts and exit codes are reported through Result.
	Run(ctx context.Context, cmd Command) (Result, error)
	// Start launches a tool in the background. The caller owns the returned
	// Process and must Stop it on every path.
	Start(ctx context.Context, cmd Command) (Process, error)
}

type Process interface {
	// Stop runs the graceful stop command if any, waits the grace period and
	// kills the tool if it is still alive. Repeated calls return the first result.
	Stop(ctx context.Context) Result
}

type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, c Command) (Result, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = c.grace()

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(cmd, err),
		Timeout:  c.Timeout,
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if timedOut(runCtx, err) {
		res.TimedOut = true
		return res, nil
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) || errors.Is(err, exec.ErrWaitDelay) {
			return res, nil
		}
		return res, errors.Wrapf(err, "run %s", c.Path)
	}
	return res, nil
}

// timedOut reports whether a failed run was ended by its deadline. A tool
// that exits cleanly as the deadline fires is not a timeout.
func timedOut(runCtx context.Context, err error) bool {
	return err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func (OSRunner) Start(ctx context.Context, c Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	p := &osProcess{
		cmd:         cmd,
		stop:        c.Stop,
		stopTimeout: c.StopTimeout,
		grace:       c.grace(),
		done:        make(chan struct{}),
	}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr
	cmd.WaitDelay = p.grace

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", c.Path)
	}
	p.started = time.Now()
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type osProcess struct {
	cmd         *exec.Cmd
	stop        []string
	stopTimeout time.Duration
	grace       time.Duration
	started     time.Time

	stdout bytes.Buffer
	stderr bytes.Buffer
	done   chan struct{}

	once   sync.Once
	result Result
}

func (p *osProcess) Stop(ctx context.Context) Result {
	p.once.Do(func() {
		var stopErr error
		if len(p.stop) > 0 {
			timeout := p.stopTimeout
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			if err := exec.CommandContext(stopCtx, p.stop[0], p.stop[1:]...).Run(); err != nil {
				stopErr = errors.Wrapf(err, "stop command %s", p.stop[0])
			}
			cancel()
		}

		killed := false
		select {
		case <-p.done:
		case <-time.After(p.grace):
			killed = true
			_ = p.cmd.Process.Kill()
			<-p.done
		}

		p.result = Result{
			Stdout:   p.stdout.Bytes(),
			Stderr:   p.stderr.Bytes(),
			ExitCode: exitCode(p.cmd, nil),
			Killed:   killed,
			StopErr:  stopErr,
			Duration: time.Since(p.started),
		}
	})
	return p.result
}
