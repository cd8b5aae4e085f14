package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"dtvctl/internal/directv"
	"dtvctl/internal/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "dtvctl",
	Short: "dtvctl - control DirecTV receivers from the command line",
	Long: `dtvctl talks to DirecTV set-top boxes over their local HTTP API.
It can query and control a receiver directly, run an interactive terminal
remote, or run a hub that watches several receivers.`,
	Version:      directv.Version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetSilentMode(false)
			logger.SetLevel(logger.LOG_DEBUG)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(cliCmd)
	rootCmd.AddCommand(hubCmd)
	rootCmd.AddCommand(directvCmd)
}
