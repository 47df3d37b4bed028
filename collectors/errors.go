package collectors

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"bitprobe/tools"
)

// Kind categorises collector failures for logs and reports.
type Kind string

const (
	KindNone               Kind = ""
	KindToolUnavailable    Kind = "tool_unavailable"
	KindToolTimeout        Kind = "tool_timeout"
	KindToolNonZeroExit    Kind = "tool_nonzero_exit"
	KindUnreadableArtifact Kind = "unreadable_artifact"
	KindUserInterrupt      Kind = "user_interrupt"
	KindInternal           Kind = "internal"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Cause() error { return e.Err }

func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err. Explicit *Error kinds win over inferred ones.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Kind != KindNone {
		return ce.Kind
	}
	var ee *tools.ExitError
	switch {
	case errors.Is(err, context.Canceled):
		return KindUserInterrupt
	case errors.Is(err, tools.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindToolTimeout
	case errors.As(err, &ee):
		return KindToolNonZeroExit
	case errors.Is(err, tools.ErrUnavailable):
		return KindToolUnavailable
	}
	return KindInternal
}
