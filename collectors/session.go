package collectors

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"go.uber.org/zap"

	"bitprobe/evidence"
	"bitprobe/report"
	"bitprobe/tools"
)

// Session produces the single report of one collector invocation. Whatever
// path the collector takes, one of Skip, Fail or Succeed finishes it, and the
// report is written in one atomic step.
type Session struct {
	rc        RunContext
	category  string
	title     string
	started   time.Time
	path      string
	artifacts []string
	finished  bool
	ref       report.Ref

	Doc *report.Document
}

// Begin starts a session. The category is normalised to snake case and
// names the report and artifact files.
func Begin(rc RunContext, category, title string) *Session {
	category = strcase.ToSnake(category)
	started := rc.Clock()
	return &Session{
		rc:       rc,
		category: category,
		title:    title,
		started:  started,
		path:     filepath.Join(rc.Layout.Individual, evidence.ReportName(category, started)),
		Doc:      report.NewDocument(strings.ToUpper(title)+" REPORT", started),
	}
}

func (s *Session) Category() string { return s.category }

func (s *Session) Started() time.Time { return s.started }

func (s *Session) Finished() bool { return s.finished }

// Ref returns the reference of a finished session.
func (s *Session) Ref() report.Ref { return s.ref }

// ArtifactPath names a new artifact of this session inside an artifacts group.
func (s *Session) ArtifactPath(group, ext string) string {
	return filepath.Join(s.rc.Layout.ArtifactDir(group), evidence.ArtifactName(s.category, s.started, ext))
}

// AddArtifact records an artifact written by the collector.
func (s *Session) AddArtifact(path string) {
	s.artifacts = append(s.artifacts, path)
}

// SaveRecords writes records as a JSON Lines artifact and records it.
func SaveRecords[T any](s *Session, group string, records []T) (string, error) {
	path := s.ArtifactPath(group, "jsonl")
	if err := evidence.WriteRecords(s.rc.Fs, path, records); err != nil {
		return "", E(KindInternal, "write artifact", err)
	}
	s.AddArtifact(path)
	return path, nil
}

// Skip finishes with SKIPPED. It is the expected outcome for a missing tool.
func (s *Session) Skip(reason, hint string) report.Ref {
	var notes []string
	if hint != "" {
		notes = append(notes, "Hint: "+hint)
	}
	s.Doc.SetStatus(fmt.Sprintf("%s (%s)", report.StatusSkipped.Label(), reason), notes...)
	return s.finish(report.StatusSkipped, reason, KindToolUnavailable, nil)
}

// Unavailable skips for an unresolved tool, using its catalog hint.
func (s *Session) Unavailable(res tools.Resolution) report.Ref {
	name := res.Tool.Name
	if name == "" {
		name = res.Tool.ID
	}
	return s.Skip(name+" not installed", res.Tool.Hint)
}

// Fail finishes with FAILED.
func (s *Session) Fail(err error) report.Ref {
	if err == nil {
		err = E(KindInternal, s.category, fmt.Errorf("failed without a cause"))
	}
	reason := err.Error()
	s.Doc.SetStatus(fmt.Sprintf("%s (%s)", report.StatusFailed.Label(), reason))
	return s.finish(report.StatusFailed, reason, KindOf(err), err)
}

// FailRun records the captured output of a failed invocation, then fails.
func (s *Session) FailRun(cmd tools.Command, res tools.Result, err error) report.Ref {
	s.Output(cmd, res)
	if err == nil {
		err = res.Err()
	}
	return s.Fail(err)
}

// Output appends command line, exit code and captured streams.
func (s *Session) Output(cmd tools.Command, res tools.Result) {
	s.Doc.Field("Command", cmd.String())
	s.Doc.Field("Exit Code", res.ExitCode)
	s.Doc.Field("Elapsed", res.Duration.Round(time.Millisecond))
	s.Doc.Block("STDOUT", res.Stdout)
	s.Doc.Block("STDERR", res.Stderr)
}

func (s *Session) Succeed() report.Ref {
	s.Doc.SetStatus(report.StatusSuccess.Label())
	return s.finish(report.StatusSuccess, "", KindNone, nil)
}

func (s *Session) finish(status report.Status, reason string, kind Kind, cause error) report.Ref {
	if s.finished {
		return s.ref
	}
	s.finished = true

	elapsed := s.rc.Clock().Sub(s.started)
	log := s.rc.Logger().With(
		zap.String("collector", s.category),
		zap.String("status", string(status)),
		zap.Duration("duration", elapsed),
	)
	if err := evidence.WriteFileAtomic(s.rc.Fs, s.path, s.Doc.Bytes(), 0o600); err != nil {
		log.Error("write report", zap.String("path", s.path), zap.Error(err))
	}

	s.ref = report.Ref{
		Category:  s.category,
		Title:     s.title,
		Path:      s.path,
		Status:    status,
		Reason:    reason,
		Kind:      string(kind),
		Artifacts: s.artifacts,
		StartedAt: s.started,
		Duration:  elapsed,
	}

	switch status {
	case report.StatusSuccess:
		log.Info("collector finished", zap.Strings("artifacts", s.artifacts))
	case report.StatusSkipped:
		log.Warn("collector skipped", zap.String("kind", string(kind)), zap.String("reason", reason))
	default:
		log.Error("collector failed", zap.String("kind", string(kind)), zap.Error(cause))
	}
	return s.ref
}
