package commands

import (
	"context"
	"fmt"
	"netbank/internal/components/telemetry"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	dumpDir    *string
	verbose    *bool
)

var rootCmd = &cobra.Command{
	Use:   "netbank-cli",
	Short: "netbank-cli is a CLI for logging into NetBank and reading accounts and transactions.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The json5 file to read credentials and settings from.")
	dumpDir = rootCmd.PersistentFlags().String("dump", "", "Write every request and response into files under this directory.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
