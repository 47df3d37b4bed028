// Package signature scans captured artifacts for known-bad content with
// YARA rules and IOC pattern lists.
package signature

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"bitprobe/collectors"
	"bitprobe/report"
	"bitprobe/tools"
)

// Severities in report order. Matches without a severity meta are UNKNOWN.
var Severities = []string{"CRITICAL", "HIGH", "MEDIUM", "LOW", "UNKNOWN"}

type Threat struct {
	Rule        string `json:"rule"`
	File        string `json:"file"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type YaraCollector struct {
	Rules   string
	Timeout time.Duration
}

func NewYaraCollector(rules string, timeout time.Duration) *YaraCollector {
	return &YaraCollector{Rules: rules, Timeout: timeout}
}

func (c *YaraCollector) Name() string  { return "yara_scan" }
func (c *YaraCollector) Title() string { return "YARA Malware Detection" }

func (c *YaraCollector) Collect(ctx context.Context, rc collectors.RunContext) report.Ref {
	s := collectors.Begin(rc, c.Name(), c.Title())

	res := rc.Tools.Resolve(ctx, tools.Yara)
	if !res.Available {
		return s.Unavailable(res)
	}
	if ok, _ := afero.Exists(rc.Fs, c.Rules); !ok {
		return s.Skip("YARA rules file not found", "Place the rules at "+c.Rules+" or set yara_rules in the config")
	}

	root := rc.Layout.Artifacts
	scanned := countFiles(rc.Fs, root)
	cmd := res.Command(c.Timeout, "-m", "-r", "-w", c.Rules, root)
	out, err := rc.Runner.Run(ctx, cmd)
	if err == nil {
		err = out.Err()
	}
	if err != nil {
		return s.FailRun(cmd, out, err)
	}

	threats := ParseMatches(string(out.Stdout), root)
	if _, err := collectors.SaveRecords(s, "signature", threats); err != nil {
		return s.Fail(err)
	}

	files := map[string]bool{}
	for _, t := range threats {
		files[t.File] = true
	}
	s.Doc.Field("Rules File", c.Rules)
	s.Doc.Field("Total Files Scanned", scanned)
	s.Doc.Field("Files with Threats", len(files))
	s.Doc.Field("Total Threats Detected", len(threats))
	s.Doc.Blank()

	if len(threats) == 0 {
		s.Doc.Line("NO THREATS DETECTED")
		s.Doc.Line("All scanned artifacts appear clean.")
		return s.Succeed()
	}

	s.Doc.Line("THREATS DETECTED!")
	s.Doc.Banner("THREAT DETAILS")
	for _, sev := range Severities {
		var group []Threat
		for _, t := range threats {
			if t.Severity == sev {
				group = append(group, t)
			}
		}
		if len(group) == 0 {
			continue
		}
		s.Doc.Heading(sev + " Threats (" + strconv.Itoa(len(group)) + ")")
		for _, t := range group {
			s.Doc.Field("Rule", t.Rule)
			s.Doc.Field("File", t.File)
			s.Doc.Field("Category", t.Category)
			s.Doc.Field("Description", t.Description)
			s.Doc.Blank()
		}
	}
	return s.Succeed()
}

func countFiles(fs afero.Fs, root string) int {
	n := 0
	_ = afero.Walk(fs, root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return nil
	})
	return n
}

// ParseMatches reads `yara -m` output lines of the form
//
//	rule_name [key="value",...] /path/to/file
//
// File paths are made relative to root when possible.
func ParseMatches(out, root string) []Threat {
	var threats []Threat
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rule, rest, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		meta := map[string]string{}
		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, "[") {
			end := closingBracket(rest)
			if end < 0 {
				continue
			}
			meta = parseMeta(rest[1:end])
			rest = strings.TrimSpace(rest[end+1:])
		}
		file := rest
		if rel, err := filepath.Rel(root, file); err == nil && !strings.HasPrefix(rel, "..") {
			file = filepath.ToSlash(rel)
		}
		t := Threat{
			Rule:        rule,
			File:        file,
			Severity:    strings.ToUpper(meta["severity"]),
			Category:    meta["category"],
			Description: meta["description"],
		}
		if t.Severity == "" || !known(t.Severity) {
			t.Severity = "UNKNOWN"
		}
		if t.Category == "" {
			t.Category = "UNKNOWN"
		}
		if t.Description == "" {
			t.Description = "No description"
		}
		threats = append(threats, t)
	}
	return threats
}

// closingBracket finds the "]" ending the meta block, skipping quoted values.
func closingBracket(s string) int {
	quoted := false
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			quoted = !quoted
		case ']':
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func parseMeta(s string) map[string]string {
	meta := map[string]string{}
	for len(s) > 0 {
		key, rest, ok := strings.Cut(s, "=")
		if !ok {
			break
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, ","))
		var val string
		if strings.HasPrefix(rest, `"`) {
			end := 1
			for end < len(rest) && rest[end] != '"' {
				if rest[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(rest) {
				end = len(rest) - 1
			}
			val = strings.ReplaceAll(rest[1:end], `\"`, `"`)
			rest = rest[end+1:]
		} else {
			val, rest, _ = strings.Cut(rest, ",")
			rest = "," + rest
		}
		meta[key] = val
		s = strings.TrimPrefix(rest, ",")
	}
	return meta
}

func known(sev string) bool {
	for _, s := range Severities {
		if s == sev {
			return true
		}
	}
	return false
}
