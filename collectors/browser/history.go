// Package browser captures recent history from Chromium and Firefox
// profiles.
package browser

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/iancoleman/strcase"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"bitprobe/collectors"
	"bitprobe/evidence"
	"bitprobe/report"
)

const (
	artifactRows = 100
	reportRows   = 50
)

// Engine selects the history schema.
type Engine int

const (
	Chromium Engine = iota
	Firefox
)

// Location is where a browser keeps its history. For Firefox, Path is the
// profiles directory and every "*.default*" profile is read.
type Location struct {
	Browser string
	Engine  Engine
	Path    string
}

type Entry struct {
	Browser   string `json:"browser"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Visits    int64  `json:"visits"`
	LastVisit string `json:"last_visit,omitempty"`
}

type Collector struct {
	Locations []Location
	// TempDir receives the staging copy opened by sqlite. Empty means os.TempDir.
	TempDir string
}

func NewCollector() *Collector {
	home, _ := os.UserHomeDir()
	return &Collector{Locations: DefaultLocations(runtime.GOOS, home, os.Getenv)}
}

// DefaultLocations returns the Chrome, Edge and Firefox history locations for goos.
func DefaultLocations(goos, home string, getenv func(string) string) []Location {
	switch goos {
	case "windows":
		local, roaming := getenv("LOCALAPPDATA"), getenv("APPDATA")
		return []Location{
			{Browser: "Chrome", Engine: Chromium, Path: filepath.Join(local, "Google", "Chrome", "User Data", "Default", "History")},
			{Browser: "Edge", Engine: Chromium, Path: filepath.Join(local, "Microsoft", "Edge", "User Data", "Default", "History")},
			{Browser: "Firefox", Engine: Firefox, Path: filepath.Join(roaming, "Mozilla", "Firefox", "Profiles")},
		}
	case "darwin":
		support := filepath.Join(home, "Library", "Application Support")
		return []Location{
			{Browser: "Chrome", Engine: Chromium, Path: filepath.Join(support, "Google", "Chrome", "Default", "History")},
			{Browser: "Edge", Engine: Chromium, Path: filepath.Join(support, "Microsoft Edge", "Default", "History")},
			{Browser: "Firefox", Engine: Firefox, Path: filepath.Join(support, "Firefox", "Profiles")},
		}
	default:
		return []Location{
			{Browser: "Chrome", Engine: Chromium, Path: filepath.Join(home, ".config", "google-chrome", "Default", "History")},
			{Browser: "Edge", Engine: Chromium, Path: filepath.Join(home, ".config", "microsoft-edge", "Default", "History")},
			{Browser: "Firefox", Engine: Firefox, Path: filepath.Join(home, ".mozilla", "firefox")},
		}
	}
}

func (c *Collector) Name() string  { return "browser_history" }
func (c *Collector) Title() string { return "Browser History" }

type source struct {
	name   string
	label  string
	engine Engine
	db     string
}

func (c *Collector) sources(fs afero.Fs) []source {
	var out []source
	for _, l := range c.Locations {
		if l.Engine == Chromium {
			out = append(out, source{name: strcase.ToSnake(l.Browser), label: l.Browser, engine: Chromium, db: l.Path})
			continue
		}
		matches, _ := afero.Glob(fs, filepath.Join(l.Path, "*.default*", "places.sqlite"))
		if len(matches) == 0 {
			out = append(out, source{name: strcase.ToSnake(l.Browser), label: l.Browser, engine: Firefox, db: filepath.Join(l.Path, "places.sqlite")})
		}
		for _, m := range matches {
			profile := filepath.Base(filepath.Dir(m))
			out = append(out, source{
				name:   strcase.ToSnake(l.Browser + " " + profile),
				label:  l.Browser + " (" + profile + ")",
				engine: Firefox,
				db:     m,
			})
		}
	}
	return out
}

func (c *Collector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())
	log := rc.Logger().With(zap.String("collector", s.Category()))

	var all []Entry
	type section struct {
		label   string
		entries []Entry
		err     error
	}
	var sections []section
	for _, src := range c.sources(rc.Fs) {
		if err := ctx.Err(); err != nil {
			return s.Fail(err)
		}
		if ok, _ := afero.Exists(rc.Fs, src.db); !ok {
			sections = append(sections, section{label: src.label})
			continue
		}

		copyPath := filepath.Join(rc.Layout.ArtifactDir("browser"),
			evidence.ArtifactName(src.name+"_history", s.Started(), "sqlite"))
		entries, err := c.read(ctx, rc.Fs, src, copyPath)
		if err != nil {
			log.Warn("read browser history", zap.String("browser", src.label), zap.Error(err))
		}
		if ok, _ := afero.Exists(rc.Fs, copyPath); ok {
			s.AddArtifact(copyPath)
		}
		sections = append(sections, section{label: src.label, entries: entries, err: err})
		all = append(all, entries...)
	}

	if _, err := collectors.SaveRecords(s, "browser", all); err != nil {
		return s.Fail(err)
	}

	for _, sec := range sections {
		s.Doc.Heading(sec.label + " (Last 100 entries)")
		switch {
		case sec.err != nil:
			s.Doc.Line("Unable to read history: %v", sec.err)
			s.Doc.Blank()
		case len(sec.entries) == 0:
			s.Doc.Line("No history found or unable to access")
			s.Doc.Blank()
		}
		for i, e := range sec.entries {
			if i == reportRows {
				s.Doc.Line("... %d more entries in artifact", len(sec.entries)-reportRows)
				break
			}
			title := e.Title
			if title == "" {
				title = "No Title"
			}
			s.Doc.Line("%d. %s", i+1, title)
			s.Doc.Line("   URL: %s", e.URL)
			s.Doc.Line("   Visits: %d", e.Visits)
			s.Doc.Blank()
		}
	}
	return s.Succeed()
}

// read copies the database into the artifacts and queries a staging copy,
// leaving the browser's own file untouched.
func (c *Collector) read(ctx context.Context, fs afero.Fs, src source, copyPath string) ([]Entry, error) {
	if _, err := evidence.CopyFile(fs, src.db, copyPath); err != nil {
		return nil, collectors.E(collectors.KindUnreadableArtifact, "copy "+src.db, err)
	}

	staged, err := c.stage(fs, copyPath)
	if err != nil {
		return nil, err
	}
	defer os.Remove(staged)

	db, err := sql.Open("sqlite3", staged)
	if err != nil {
		return nil, errors.Wrap(err, "open history")
	}
	defer db.Close()

	query := `SELECT url, title, visit_count, last_visit_time FROM urls ORDER BY last_visit_time DESC LIMIT ?`
	if src.engine == Firefox {
		query = `SELECT url, title, visit_count, last_visit_date FROM moz_places ORDER BY last_visit_date DESC LIMIT ?`
	}
	rows, err := db.QueryContext(ctx, query, artifactRows)
	if err != nil {
		return nil, collectors.E(collectors.KindUnreadableArtifact, "query history", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			url    string
			title  sql.NullString
			visits sql.NullInt64
			last   sql.NullInt64
		)
		if err := rows.Scan(&url, &title, &visits, &last); err != nil {
			continue
		}
		out = append(out, Entry{
			Browser:   src.label,
			URL:       url,
			Title:     title.String,
			Visits:    visits.Int64,
			LastVisit: visitTime(src.engine, last),
		})
	}
	return out, rows.Err()
}

func (c *Collector) stage(fs afero.Fs, path string) (string, error) {
	in, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(c.TempDir, "bitprobe-history-*.sqlite")
	if err != nil {
		return "", errors.Wrap(err, "stage history")
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.Wrap(err, "stage history")
	}
	return tmp.Name(), tmp.Close()
}

// chromiumEpochOffset is the number of seconds from 1601-01-01, the origin
// of Chromium timestamps, to the Unix epoch.
const chromiumEpochOffset = 11644473600

func visitTime(engine Engine, v sql.NullInt64) string {
	if !v.Valid || v.Int64 <= 0 {
		return ""
	}
	if engine == Firefox {
		return time.UnixMicro(v.Int64).UTC().Format(time.RFC3339)
	}
	return time.Unix(v.Int64/1e6-chromiumEpochOffset, 0).UTC().Format(time.RFC3339)
}
