// Package capture drives the external capture tools: packet capture,
// connection tables, process monitoring and memory acquisition.
package capture

import (
	"fmt"

	"github.com/spf13/afero"
)

// sizeMB returns the size of a written capture, or an error when the tool
// produced nothing.
func sizeMB(fs afero.Fs, path string) (float64, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s is empty", path)
	}
	return float64(info.Size()) / (1 << 20), nil
}
