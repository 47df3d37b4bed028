// Package report holds the per-collector report documents and compiles them
// into the master report of a run.
package report

import (
	"time"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusSkipped Status = "SKIPPED"
	StatusFailed  Status = "FAILED"
)

// Label is the status as written inside report bodies.
func (s Status) Label() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusSkipped:
		return "Skipped"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// Ref identifies one individual report. The body lives in the file at Path
// and is never embedded.
type Ref struct {
	Category  string        `json:"category"`
	Title     string        `json:"title"`
	Path      string        `json:"path"`
	Status    Status        `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Kind      string        `json:"kind,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
