package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"bitprobe/core/internal/version"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bitprobe",
		Short:         "BitProbe forensic collection and analysis toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewCompileCmd())
	cmd.AddCommand(NewToolsCmd())
	cmd.AddCommand(NewVersionCmd())

	cmd.SetVersionTemplate(fmt.Sprintf("%s (%s/%s)\n", version.Version, runtime.GOOS, runtime.GOARCH))
	cmd.Version = version.Version

	return cmd
}
