package report

import (
	"time"

	"github.com/pkg/errors"
)

var ErrSealed = errors.New("master report is sealed")

// Location is a labelled output directory listed in the trailer.
type Location struct {
	Label string
	Path  string
}

// Master is the ordered list of sections of one run. Sections can only be
// appended until Seal.
type Master struct {
	RunID     string
	StartedAt time.Time
	Path      string
	Locations []Location
	// Interrupted marks a partial run that was cancelled between collectors.
	Interrupted bool

	sections []Ref
	sealed   bool
}

func NewMaster(runID string, startedAt time.Time, path string) *Master {
	return &Master{RunID: runID, StartedAt: startedAt, Path: path}
}

func (m *Master) Append(refs ...Ref) error {
	if m.sealed {
		return ErrSealed
	}
	m.sections = append(m.sections, refs...)
	return nil
}

func (m *Master) Seal() { m.sealed = true }

func (m *Master) Sealed() bool { return m.sealed }

// Sections returns a copy of the sections in invocation order.
func (m *Master) Sections() []Ref {
	return append([]Ref(nil), m.sections...)
}

// Counts tallies sections per status.
func (m *Master) Counts() map[Status]int {
	c := map[Status]int{}
	for _, s := range m.sections {
		c[s.Status]++
	}
	return c
}
