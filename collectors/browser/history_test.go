package browser_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitprobe/collectors/browser"
	"bitprobe/collectors/collectorstest"
	"bitprobe/report"
)

// historyDB builds a sqlite history database on disk and returns its bytes.
func historyDB(t *testing.T, schema string, rows int, insert func(i int) string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.sqlite")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = db.Exec(insert(i))
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func TestCollectorReadsChromiumAndFirefox(t *testing.T) {
	env := collectorstest.New(t)

	chrome := historyDB(t,
		`CREATE TABLE urls (id INTEGER PRIMARY KEY, url TEXT, title TEXT, visit_count INTEGER, last_visit_time INTEGER)`,
		120, func(i int) string {
			return fmt.Sprintf(`INSERT INTO urls (url, title, visit_count, last_visit_time) VALUES ('https://site%03d.example', 'Site %03d', %d, %d)`,
				i, i, i+1, 13350000000000000+int64(i))
		})
	firefox := historyDB(t,
		`CREATE TABLE moz_places (id INTEGER PRIMARY KEY, url TEXT, title TEXT, visit_count INTEGER, last_visit_date INTEGER)`,
		2, func(i int) string {
			if i == 0 {
				return `INSERT INTO moz_places (url, title, visit_count, last_visit_date) VALUES ('https://untitled.example', NULL, 1, NULL)`
			}
			return `INSERT INTO moz_places (url, title, visit_count, last_visit_date) VALUES ('https://mozilla.org', 'Mozilla', 3, 1714564800000000)`
		})

	env.Install(t, "/home/u/chrome/History", chrome)
	env.Install(t, "/home/u/firefox/abcd.default-release/places.sqlite", firefox)

	c := &browser.Collector{
		Locations: []browser.Location{
			{Browser: "Chrome", Engine: browser.Chromium, Path: "/home/u/chrome/History"},
			{Browser: "Edge", Engine: browser.Chromium, Path: "/home/u/edge/History"},
			{Browser: "Firefox", Engine: browser.Firefox, Path: "/home/u/firefox"},
		},
		TempDir: t.TempDir(),
	}

	ref := c.Collect(context.Background(), env.RC)
	require.Equal(t, report.StatusSuccess, ref.Status)
	require.Len(t, ref.Artifacts, 3)
	assert.Equal(t, "/case/artifacts/browser/chrome_history_20240501_120000.sqlite", ref.Artifacts[0])

	records := strings.Split(strings.TrimSpace(env.Read(t, ref.Artifacts[2])), "\n")
	assert.Len(t, records, 102)
	assert.Contains(t, records[0], `"url":"https://site119.example"`)
	assert.Contains(t, env.Read(t, ref.Artifacts[2]), `"last_visit":"2024-05-01T12:00:00Z"`)

	body := env.Read(t, ref.Path)
	assert.Contains(t, body, "Chrome (Last 100 entries)")
	assert.Contains(t, body, "1. Site 119\n   URL: https://site119.example\n   Visits: 120\n")
	assert.Contains(t, body, "50. Site 070\n")
	assert.NotContains(t, body, "51. Site 069")
	assert.Contains(t, body, "... 50 more entries in artifact")
	assert.Contains(t, body, "Edge (Last 100 entries)")
	assert.Contains(t, body, "No history found or unable to access")
	assert.Contains(t, body, "Firefox (abcd.default-release) (Last 100 entries)")
	assert.Contains(t, body, "No Title")
}

func TestCollectorCorruptDatabase(t *testing.T) {
	env := collectorstest.New(t)
	env.Install(t, "/home/u/chrome/History", []byte("not a database"))
	c := &browser.Collector{
		Locations: []browser.Location{{Browser: "Chrome", Engine: browser.Chromium, Path: "/home/u/chrome/History"}},
		TempDir:   t.TempDir(),
	}

	ref := c.Collect(context.Background(), env.RC)
	assert.Equal(t, report.StatusSuccess, ref.Status)
	assert.Contains(t, env.Read(t, ref.Path), "Unable to read history")
}

func TestDefaultLocations(t *testing.T) {
	env := map[string]string{"LOCALAPPDATA": `C:\Users\u\AppData\Local`, "APPDATA": `C:\Users\u\AppData\Roaming`}
	locs := browser.DefaultLocations("windows", "", func(k string) string { return env[k] })
	require.Len(t, locs, 3)
	assert.Equal(t, "Edge", locs[1].Browser)
	assert.Equal(t, browser.Firefox, locs[2].Engine)

	locs = browser.DefaultLocations("linux", "/home/u", func(string) string { return "" })
	assert.Equal(t, filepath.Join("/home/u", ".mozilla", "firefox"), locs[2].Path)
}
