package collectors

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"bitprobe/report"
)

// Invoke runs c and guarantees a finished report: a panic or a collector
// that returns without a report yields a FAILED report instead.
func Invoke(ctx context.Context, rc RunContext, c Collector) (ref report.Ref) {
	defer func() {
		if r := recover(); r != nil {
			s := Begin(rc, c.Name(), c.Title())
			ref = s.Fail(E(KindInternal, c.Name(), fmt.Errorf("panic: %v", r)))
		}
	}()

	ref = c.Collect(ctx, rc)
	if ref.Path == "" {
		s := Begin(rc, c.Name(), c.Title())
		ref = s.Fail(E(KindInternal, c.Name(), errors.New("collector returned no report")))
	}
	return ref
}
