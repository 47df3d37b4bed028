package evidence

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrNoArtifact is returned by Latest when nothing matches.
var ErrNoArtifact = errors.New("no matching artifact")

// Latest returns the most recently modified file in dir whose base name
// matches pattern. Equal modification times are broken by name, so the later
// stamp wins.
func Latest(fs afero.Fs, dir, pattern string) (string, os.FileInfo, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, ErrNoArtifact
		}
		return "", nil, errors.Wrapf(err, "read %s", dir)
	}

	var best os.FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := filepath.Match(pattern, e.Name())
		if err != nil {
			return "", nil, errors.Wrapf(err, "pattern %q", pattern)
		}
		if !ok {
			continue
		}
		if best == nil || e.ModTime().After(best.ModTime()) ||
			(e.ModTime().Equal(best.ModTime()) && e.Name() > best.Name()) {
			best = e
		}
	}
	if best == nil {
		return "", nil, ErrNoArtifact
	}
	return filepath.Join(dir, best.Name()), best, nil
}
