package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"bitprobe/evidence"
	"bitprobe/report"
)

// compileReports builds a master report at out from existing report files in
// the given order.
func compileReports(fs afero.Fs, out, runID string, paths []string, now time.Time) (*report.Master, error) {
	refs := make([]report.Ref, 0, len(paths))
	for _, p := range paths {
		refs = append(refs, report.ReadRef(fs, p))
	}

	c := report.NewCompiler(fs, nil)
	c.Now = func() time.Time { return now }
	m := c.Build(runID, time.Time{}, out, refs,
		report.Location{Label: "Individual reports", Path: filepath.Dir(paths[0])})
	if err := c.Compile(m); err != nil {
		return nil, err
	}
	return m, nil
}

func NewCompileCmd() *cobra.Command {
	var out string
	var runID string

	cmd := &cobra.Command{
		Use:   "compile <report files...>",
		Short: "Compile a master report from existing individual reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if runID == "" {
				runID = uuid.NewString()
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(args[0]), evidence.MasterName(now))
			}
			m, err := compileReports(afero.NewOsFs(), out, runID, args, now)
			if err != nil {
				return err
			}
			counts := m.Counts()
			fmt.Fprintf(cmd.OutOrStdout(), "master=%s sections=%d success=%d skipped=%d failed=%d\n",
				m.Path, len(m.Sections()),
				counts[report.StatusSuccess], counts[report.StatusSkipped], counts[report.StatusFailed])
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "output", "", "Master report path (default: next to the first report)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run ID (default: random UUID)")
	return cmd
}
