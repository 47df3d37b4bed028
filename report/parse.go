package report

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"
)

var reportName = regexp.MustCompile(`^(.+)_report_(\d{8}_\d{6})\.txt$`)

// ReadRef rebuilds the reference of an existing individual report from its
// file name and header. Files that cannot be read still yield a FAILED ref
// pointing at path, so the compiler renders a placeholder for them.
func ReadRef(fs afero.Fs, path string) Ref {
	ref := Ref{Path: path, Status: StatusFailed}
	base := filepath.Base(path)
	if m := reportName.FindStringSubmatch(base); m != nil {
		ref.Category = m[1]
		if t, err := time.ParseInLocation("20060102_150405", m[2], time.Local); err == nil {
			ref.StartedAt = t
		}
	} else {
		ref.Category = strings.TrimSuffix(base, filepath.Ext(base))
	}
	ref.Title = ref.Category

	body, err := afero.ReadFile(fs, path)
	if err != nil {
		ref.Reason = err.Error()
		return ref
	}

	sc := bufio.NewScanner(bytes.NewReader(body))
	for line := 0; sc.Scan() && line < 16; line++ {
		text := sc.Text()
		switch {
		case line == 1 && text != "":
			ref.Title = strings.TrimSuffix(text, " REPORT")
		case strings.HasPrefix(text, "Status: "):
			ref.Status, ref.Reason = parseStatus(strings.TrimPrefix(text, "Status: "))
			return ref
		}
	}
	ref.Reason = "no status line"
	return ref
}

func parseStatus(s string) (Status, string) {
	label, reason := s, ""
	if i := strings.Index(s, " ("); i >= 0 && strings.HasSuffix(s, ")") {
		label, reason = s[:i], s[i+2:len(s)-1]
	}
	for _, st := range []Status{StatusSuccess, StatusSkipped, StatusFailed} {
		if label == st.Label() {
			return st, reason
		}
	}
	return StatusFailed, s
}
