package evidence

import (
	"encoding/json"

	"github.com/spf13/afero"
)

// Entry describes one file produced by a run.
type Entry struct {
	RelativePath string            `json:"relative_path"`
	Collector    string            `json:"collector"`
	Kind         string            `json:"kind"`
	Status       string            `json:"status,omitempty"`
	CollectedAt  string            `json:"collected_at"`
	SizeBytes    int64             `json:"size_bytes"`
	SHA256       string            `json:"sha256,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type Manifest struct {
	RunID     string            `json:"run_id"`
	CreatedAt string            `json:"created_at"`
	Entries   []Entry           `json:"entries"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func WriteManifest(fs afero.Fs, path string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(fs, path, b, 0o600)
}
