package evidence

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

func EnsureParent(fs afero.Fs, path string) error {
	return fs.MkdirAll(filepath.Dir(path), 0o755)
}

// WriteFileAtomic writes data to a temporary sibling and renames it into
// place, so readers never observe a truncated file.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	if err := EnsureParent(fs, path); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, perm); err != nil {
		return err
	}
	return fs.Rename(tmp, path)
}

// WriteRecords stores records as JSON Lines, one record per line.
func WriteRecords[T any](fs afero.Fs, path string, records []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "encode record")
		}
	}
	return WriteFileAtomic(fs, path, buf.Bytes(), 0o600)
}

// CopyFile copies src to dst on the same filesystem. Locked source files
// (browser databases in use) are read through a plain open, never renamed.
func CopyFile(fs afero.Fs, src, dst string) (int64, error) {
	in, err := fs.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := EnsureParent(fs, dst); err != nil {
		return 0, err
	}
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
