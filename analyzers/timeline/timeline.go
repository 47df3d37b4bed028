// Package timeline writes the run timeline: run start, one event per
// collector report, run end.
package timeline

import (
	"strconv"
	"time"

	"github.com/spf13/afero"

	"bitprobe/evidence"
	"bitprobe/report"
)

type Event struct {
	Time       string            `json:"time"`
	Type       string            `json:"type"`
	Collector  string            `json:"collector,omitempty"`
	Status     string            `json:"status,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Report     string            `json:"report,omitempty"`
	Artifacts  []string          `json:"artifacts,omitempty"`
	DurationMS int64             `json:"duration_ms,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type Options struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Interrupted bool
}

// Events builds the timeline of a run from its reports in run order.
func Events(refs []report.Ref, opts Options) []Event {
	events := make([]Event, 0, len(refs)+2)
	events = append(events, Event{
		Time:     stamp(opts.StartedAt),
		Type:     "run_started",
		Metadata: map[string]string{"run_id": opts.RunID},
	})

	counts := map[report.Status]int{}
	for _, r := range refs {
		counts[r.Status]++
		events = append(events, Event{
			Time:       stamp(r.StartedAt),
			Type:       "report_written",
			Collector:  r.Category,
			Status:     string(r.Status),
			Kind:       r.Kind,
			Reason:     r.Reason,
			Report:     r.Path,
			Artifacts:  r.Artifacts,
			DurationMS: r.Duration.Milliseconds(),
		})
	}

	typ := "run_finished"
	if opts.Interrupted {
		typ = "run_interrupted"
	}
	events = append(events, Event{
		Time: stamp(opts.FinishedAt),
		Type: typ,
		Metadata: map[string]string{
			"run_id":  opts.RunID,
			"reports": strconv.Itoa(len(refs)),
			"success": strconv.Itoa(counts[report.StatusSuccess]),
			"skipped": strconv.Itoa(counts[report.StatusSkipped]),
			"failed":  strconv.Itoa(counts[report.StatusFailed]),
		},
	})
	return events
}

// WriteJSONL writes the timeline of a run to path as JSON Lines.
func WriteJSONL(fs afero.Fs, path string, refs []report.Ref, opts Options) error {
	return evidence.WriteRecords(fs, path, Events(refs, opts))
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
