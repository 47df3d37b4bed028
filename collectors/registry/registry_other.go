//go:build !windows

package registry

import (
	"context"

	"bitprobe/collectors"
	"bitprobe/report"
)

func collect(_ context.Context, s *collectors.Session) report.Ref {
	return s.Skip("registry is only available on Windows", "Run the scan on a Windows host to capture Run and RunOnce keys")
}
