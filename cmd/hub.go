package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dtvctl/internal"
	"dtvctl/internal/hub"
	"dtvctl/internal/logger"
)

var (
	hubConfigPath   string
	hubDebugFlag    bool
	hubTestFlag     bool
	hubTokenTTL     time.Duration
	hubTokenSubject string
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Start the dtvctl hub daemon",
	Long: `The hub watches every receiver listed in its configuration file.
It polls their state, keeps a history in SQLite, publishes changes over MQTT
and serves a REST API with Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetSilentMode(false)
		if hubDebugFlag {
			logger.SetLevel(logger.LOG_DEBUG)
		} else {
			logger.SetLevel(logger.LOG_INFO)
		}

		log := logger.Component("hub")
		log.Info().
			Str("config_path", hubConfigPath).
			Bool("debug", hubDebugFlag).
			Bool("test", hubTestFlag).
			Msg("Starting dtvctl hub daemon")

		if _, err := os.Stat(hubConfigPath); errors.Is(err, fs.ErrNotExist) {
			if err := hub.SaveConfig(hub.NewDefaultConfig(), hubConfigPath); err != nil {
				log.Error().Err(err).Msg("Failed to create default config file")
				return fmt.Errorf("failed to create default config file: %w", err)
			}
			log.Info().
				Str("config_path", hubConfigPath).
				Msg("Created default configuration file. Please edit it with your settings.")
			return nil
		}

		modeOpts := internal.NewModeOptions(internal.WithDebug(hubDebugFlag), internal.WithTest(hubTestFlag))
		daemon, err := hub.NewDaemon(hubConfigPath, modeOpts)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create hub daemon")
			return fmt.Errorf("failed to create hub daemon: %w", err)
		}

		// blocks until SIGINT/SIGTERM
		if err := daemon.Start(); err != nil {
			log.Error().Err(err).Msg("Hub daemon stopped with error")
			return fmt.Errorf("hub daemon error: %w", err)
		}

		return nil
	},
}

var hubConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hub configuration",
	Long:  `Generate or validate hub configuration files.`,
}

var hubConfigGenerateCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Long:  `Generate a default configuration file with example settings.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := hubConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		if err := hub.SaveConfig(hub.NewDefaultConfig(), configPath); err != nil {
			return fmt.Errorf("failed to save default config: %w", err)
		}

		cmd.Printf("Default configuration saved to: %s\n", configPath)
		cmd.Println("Please edit the file with your actual receiver settings.")
		return nil
	},
}

var hubConfigValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate a hub configuration file for syntax and required fields.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := hubConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		config, err := hub.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		cmd.Printf("Configuration file is valid: %s\n", configPath)
		cmd.Printf("Hub ID: %s\n", config.Hub.ID)
		cmd.Printf("API listen address: %s\n", config.API.Listen)
		if config.MQTT.Enabled {
			cmd.Printf("MQTT broker: %s\n", config.MQTT.Broker)
		}
		cmd.Printf("Configured receivers: %d\n", len(config.Receivers))

		for _, receiver := range config.Receivers {
			cmd.Printf("  - %s (%s) at %s:%d clients=%v\n",
				receiver.ID, receiver.Name, receiver.Host, receiver.Port, receiver.WatchedClients())
		}

		return nil
	},
}

var hubTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long:  `Sign a bearer token for the hub API with the configured api.jwt_secret.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := hub.LoadConfig(hubConfigPath)
		if err != nil {
			return err
		}

		token, err := hub.NewTokenService(config.API.JWTSecret, config.API.JWTIssuer).IssueToken(hubTokenSubject, hubTokenTTL)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		cmd.Println(token)
		return nil
	},
}

var hubPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Hash a password for api.users",
	Long: `Read a password from standard input and print its Argon2id hash.
Paste the hash into the password_hash field of an api.users entry.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(cmd.InOrStdin())
		password, err := reader.ReadString('\n')
		if err != nil && password == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}

		hash, err := hub.NewPasswordService().HashPassword(strings.TrimRight(password, "\r\n"))
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		cmd.Println(hash)
		return nil
	},
}

func init() {
	hubCmd.PersistentFlags().StringVarP(&hubConfigPath, "config", "c", "hub.yml", "Path to hub configuration file")
	hubCmd.Flags().BoolVarP(&hubDebugFlag, "debug", "d", false, "Enable debug logging")
	hubCmd.Flags().BoolVar(&hubTestFlag, "test", false, "Enable test mode (simulate receiver responses)")

	hubTokenCmd.Flags().DurationVar(&hubTokenTTL, "ttl", hub.DefaultTokenExpiry, "Token lifetime")
	hubTokenCmd.Flags().StringVar(&hubTokenSubject, "subject", "dtvctl", "Token subject")

	hubCmd.AddCommand(hubConfigCmd)
	hubCmd.AddCommand(hubTokenCmd)
	hubCmd.AddCommand(hubPasswdCmd)
	hubConfigCmd.AddCommand(hubConfigGenerateCmd)
	hubConfigCmd.AddCommand(hubConfigValidateCmd)
}
