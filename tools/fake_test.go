package tools

import (
	"context"
	"sync"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []Command
	run   func(Command) (Result, error)
}

func (f *fakeRunner) Run(_ context.Context, c Command) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.run == nil {
		return Result{}, nil
	}
	return f.run(c)
}

func (f *fakeRunner) Start(context.Context, Command) (Process, error) {
	return nil, ErrUnavailable
}
