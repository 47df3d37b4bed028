// Package ioc matches indicator patterns against captured artifacts.
package ioc

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

// ErrNoPatterns is returned for an indicator file without patterns.
var ErrNoPatterns = errors.New("IOC file contained no patterns")

// MaxFileSize bounds the artifacts read into memory.
const MaxFileSize = 64 << 20

// Scanned extensions. Binary captures are left to the signature scanner.
var textExtensions = map[string]bool{".jsonl": true, ".json": true, ".txt": true, ".log": true, ".csv": true}

type Match struct {
	Pattern  string `json:"pattern"`
	Artifact string `json:"artifact"`
	Line     int    `json:"line"`
	// Field is the JSON path of the matching value for record artifacts.
	Field   string `json:"field,omitempty"`
	Excerpt string `json:"excerpt"`
}

type Result struct {
	IOCFile  string  `json:"ioc_file"`
	Patterns int     `json:"patterns"`
	Scanned  int     `json:"scanned"`
	Skipped  int     `json:"skipped"`
	Matches  []Match `json:"matches"`
}

// LoadPatterns reads one pattern per line. Blank lines and lines starting
// with '#' are ignored; duplicates are dropped.
func LoadPatterns(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := map[string]bool{}
	var patterns []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		patterns = append(patterns, line)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}
	return patterns, nil
}

// ScanDir matches patterns case-insensitively against every text artifact
// under root. Artifact paths in the result are relative to root.
func ScanDir(ctx context.Context, fs afero.Fs, root, iocFile string) (Result, error) {
	patterns, err := LoadPatterns(fs, iocFile)
	if err != nil {
		return Result{}, err
	}
	res := Result{IOCFile: iocFile, Patterns: len(patterns)}

	lower := make([][]byte, len(patterns))
	for i, p := range patterns {
		lower[i] = bytes.ToLower([]byte(p))
	}

	var files []string
	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !textExtensions[strings.ToLower(filepath.Ext(path))] || info.Size() > MaxFileSize {
			res.Skipped++
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return res, errors.Wrapf(err, "walk %s", root)
	}
	sort.Strings(files)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		b, err := afero.ReadFile(fs, path)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Scanned++
		rel, _ := filepath.Rel(root, path)
		records := strings.HasSuffix(path, ".jsonl")

		for n, line := range bytes.Split(b, []byte("\n")) {
			ll := bytes.ToLower(line)
			for i, p := range lower {
				if !bytes.Contains(ll, p) {
					continue
				}
				m := Match{Pattern: patterns[i], Artifact: filepath.ToSlash(rel), Line: n + 1, Excerpt: excerpt(string(line))}
				if records {
					m.Field = field(line, string(p))
				}
				res.Matches = append(res.Matches, m)
			}
		}
	}
	return res, nil
}

// field finds the first value of a JSON record containing pattern and
// returns its path.
func field(record []byte, pattern string) string {
	if !gjson.ValidBytes(record) {
		return ""
	}
	var found string
	var walk func(prefix string, v gjson.Result) bool
	walk = func(prefix string, v gjson.Result) bool {
		if v.IsObject() || v.IsArray() {
			cont := true
			v.ForEach(func(k, child gjson.Result) bool {
				path := k.String()
				if prefix != "" {
					path = prefix + "." + path
				}
				cont = walk(path, child)
				return cont
			})
			return cont
		}
		if strings.Contains(strings.ToLower(v.String()), pattern) {
			found = prefix
			return false
		}
		return true
	}
	walk("", gjson.ParseBytes(record))
	return found
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
