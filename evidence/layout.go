package evidence

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// StampFormat is the timestamp embedded in every artifact and report name.
const StampFormat = "20060102_150405"

// Layout holds the output roots of a run.
type Layout struct {
	Tools      string
	Artifacts  string
	Reports    string
	Individual string
	Master     string
	Logs       string
}

var artifactDirs = []string{
	"memory",
	"network",
	"processes",
	"registry",
	"logs",
	"browser",
	"analysis",
	"ghidra",
	"signature",
}

// NewLayout returns the default layout rooted at base.
func NewLayout(base string) Layout {
	reports := filepath.Join(base, "reports")
	return Layout{
		Tools:      filepath.Join(base, "tools"),
		Artifacts:  filepath.Join(base, "artifacts"),
		Reports:    reports,
		Individual: filepath.Join(reports, "individual"),
		Master:     filepath.Join(reports, "master"),
		Logs:       filepath.Join(base, "logs"),
	}
}

// ArtifactDir returns the artifacts subdirectory for a category group.
func (l Layout) ArtifactDir(group string) string {
	return filepath.Join(l.Artifacts, group)
}

// Dirs lists every directory Ensure creates, roots first.
func (l Layout) Dirs() []string {
	dirs := []string{l.Tools, l.Artifacts, l.Reports, l.Individual, l.Master, l.Logs}
	for _, d := range artifactDirs {
		dirs = append(dirs, l.ArtifactDir(d))
	}
	return dirs
}

// Ensure creates the directory scaffolding. It is safe to call repeatedly.
func (l Layout) Ensure(fs afero.Fs) error {
	for _, d := range l.Dirs() {
		if d == "" {
			continue
		}
		if err := fs.MkdirAll(d, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", d)
		}
	}
	return nil
}

// Stamp formats t the way file names embed it.
func Stamp(t time.Time) string {
	return t.Format(StampFormat)
}

// ArtifactName is <category>_<stamp>.<ext>.
func ArtifactName(category string, t time.Time, ext string) string {
	return fmt.Sprintf("%s_%s.%s", category, Stamp(t), strings.TrimPrefix(ext, "."))
}

// ReportName is <category>_report_<stamp>.txt.
func ReportName(category string, t time.Time) string {
	return fmt.Sprintf("%s_report_%s.txt", category, Stamp(t))
}

// MasterName is the master report file name for a run started at t.
func MasterName(t time.Time) string {
	return fmt.Sprintf("MASTER_FORENSIC_REPORT_%s.txt", Stamp(t))
}
