package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"bitprobe/core/internal/config"
	"bitprobe/tools"
)

// printTools writes the availability table of every catalog tool.
func printTools(ctx context.Context, w io.Writer, r *tools.Resolver) int {
	ok := color.New(color.FgGreen, color.Bold)
	missing := color.New(color.FgRed, color.Bold)

	available := 0
	fmt.Fprintf(w, "%-14s %-32s %-10s %-12s %s\n", "ID", "Tool", "Status", "Source", "Location / Hint")
	for _, t := range r.Tools() {
		res := r.Resolve(ctx, t.ID)
		fmt.Fprintf(w, "%-14s %-32s ", t.ID, t.Name)
		if res.Available {
			available++
			ok.Fprintf(w, "%-10s", "FOUND")
			fmt.Fprintf(w, " %-12s %s\n", res.Source, res.Path())
			continue
		}
		missing.Fprintf(w, "%-10s", "MISSING")
		fmt.Fprintf(w, " %-12s %s\n", res.Source, t.Hint)
	}
	fmt.Fprintf(w, "\n%d of %d tools available\n", available, len(r.Tools()))
	return available
}

func NewToolsCmd() *cobra.Command {
	var configPath string
	var toolsDir string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Verify which external tools are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			cfg, err := config.Load(fs, configPath)
			if err != nil {
				return err
			}
			if toolsDir != "" {
				cfg.ToolsDir = toolsDir
			}
			cfg = cfg.Resolve()

			runner := tools.OSRunner{}
			r := tools.NewResolver(fs, cfg.ToolsDir, tools.Merge(tools.HostCatalog(), cfg.Tools), runner)
			printTools(cmd.Context(), cmd.OutOrStdout(), r)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	cmd.Flags().StringVar(&toolsDir, "tools-dir", "", "Tools directory (default: <output>/tools)")
	return cmd
}
