package cmd

import (
	"github.com/spf13/cobra"

	"dtvctl/cmd/cli"
	"dtvctl/internal/logger"
)

var (
	debugFlag bool
	testFlag  bool
)

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Start the interactive terminal remote",
	Long: `Launch the interactive Terminal User Interface (TUI) for dtvctl.
Connect to a receiver, press remote keys, enter channels and watch the
tuned program update live.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// logging stays silent unless --debug is set
		if debugFlag {
			logger.SetSilentMode(false)
			logger.SetLevel(logger.LOG_DEBUG)
		}

		log := logger.Component("cli")
		log.Info().
			Bool("debug", debugFlag).
			Bool("test", testFlag).
			Msg("Starting dtvctl terminal remote")

		if err := cli.StartTUI(debugFlag, testFlag); err != nil {
			log.Error().Err(err).Msg("Failed to start TUI")
			return err
		}

		return nil
	},
}

func init() {
	cliCmd.Flags().BoolVar(&debugFlag, "debug", false, "Enable debug logging for HTTP requests")
	cliCmd.Flags().BoolVar(&testFlag, "test", false, "Use the built-in receiver simulator instead of the network")
}
