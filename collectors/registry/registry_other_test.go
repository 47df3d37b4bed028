//go:build !windows

package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"bitprobe/collectors/collectorstest"
	"bitprobe/collectors/registry"
	"bitprobe/report"
)

func TestCollectorSkipsOffWindows(t *testing.T) {
	env := collectorstest.New(t)
	ref := registry.NewCollector().Collect(context.Background(), env.RC)

	assert.Equal(t, report.StatusSkipped, ref.Status)
	assert.Equal(t, "registry_report_20240501_120000.txt", ref.Path[len(env.RC.Layout.Individual)+1:])
	assert.Contains(t, env.Read(t, ref.Path), "Status: Skipped (registry is only available on Windows)\nHint: Run the scan")
}
