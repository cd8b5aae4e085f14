package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"dtvctl/internal"
	"dtvctl/internal/directv"
	"dtvctl/internal/logger"
)

const simulatorHost = "simulator"

// receiverFlags holds the connection settings shared by every directv subcommand
type receiverFlags struct {
	host     string
	port     int
	basePath string
	username string
	password string
	timeout  time.Duration
	client   string
	debug    bool
	test     bool
}

var dtvFlags receiverFlags

func (f receiverFlags) modeOptions() *internal.FnModeOptions {
	return internal.NewModeOptions(internal.WithDebug(f.debug), internal.WithTest(f.test))
}

func (f receiverFlags) options() []directv.Option {
	return []directv.Option{
		directv.WithPort(f.port),
		directv.WithBasePath(f.basePath),
		directv.WithCredentials(f.username, f.password),
		directv.WithTimeout(f.timeout),
		directv.WithModeOptions(f.modeOptions()),
	}
}

func (f receiverFlags) resolvedHost() (string, error) {
	if f.host != "" {
		return f.host, nil
	}
	if f.test {
		return simulatorHost, nil
	}
	return "", fmt.Errorf("--host is required (or use --test for the simulator)")
}

// withReceiver configures logging and runs fn against a receiver built from the flags
func withReceiver(cmd *cobra.Command, fn func(context.Context, *directv.Receiver) error) error {
	if dtvFlags.debug {
		logger.SetSilentMode(false)
		logger.SetLevel(logger.LOG_DEBUG)
	}

	host, err := dtvFlags.resolvedHost()
	if err != nil {
		return err
	}

	return directv.WithReceiver(cmd.Context(), host, fn, dtvFlags.options()...)
}

func printJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

var directvCmd = &cobra.Command{
	Use:     "directv",
	Aliases: []string{"dtv"},
	Short:   "Query and control a DirecTV receiver",
	Long: `Query and control a DirecTV receiver through its local HTTP API (SHEF).
External device access must be enabled on the receiver
(Settings > Whole-Home > External Device).`,
}

var directvInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show receiver identity and software version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReceiver(cmd, func(ctx context.Context, r *directv.Receiver) error {
			device, err := r.Update(ctx, true)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), device.Info)
		})
	},
}

var directvLocationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List the receiver's tuner locations (host and Genie clients)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReceiver(cmd, func(ctx context.Context, r *directv.Receiver) error {
			device, err := r.Update(ctx, true)
			if err != nil {
				return err
			}
			for _, location := range device.Locations {
				cmd.Printf("%-14s %s\n", location.Address, location.Name)
			}
			return nil
		})
	},
}

var directvStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print active, standby, unavailable or unauthorized",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReceiver(cmd, func(ctx context.Context, r *directv.Receiver) error {
			cmd.Println(r.Status(ctx, dtvFlags.client))
			return nil
		})
	},
}

var directvStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the full client state including the current program",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReceiver(cmd, func(ctx context.Context, r *directv.Receiver) error {
			return printJSON(cmd.OutOrStdout(), r.State(ctx, dtvFlags.client))
		})
	},
}

var directvTunedCmd = &cobra.Command{
	Use:   "tuned",
	Short: "Show the program currently tuned",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReceiver(cmd, func(ctx context.Context, r *directv.Receiver) error {
			program, err := r.Tuned(ctx, dtvFlags.client)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), program)
		})
	},
}

var directvTuneCmd = &cobra.Command{
	Use:     "tune <channel>",
	Short:   "Change the channel, e.g. 231 or 8-1",
	Example: "  dtvctl directv tune 231 --host 192.168.1.100",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReceiver(cmd, func(ctx context.Context, r *directv.Receiver) error {
			if err := r.Tune(ctx, args[0], dtvFlags.client); err != nil {
				return err
			}
			cmd.Printf("Tuned to channel %s\n", args[0])
			return nil
		})
	},
}

var directvRemoteCmd = &cobra.Command{
	Use:   "remote <key>",
	Short: "Press a remote control key (see 'dtvctl directv keys')",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReceiver(cmd, func(ctx context.Context, r *directv.Receiver) error {
			if err := r.Remote(ctx, args[0], dtvFlags.client); err != nil {
				return err
			}
			cmd.Printf("Sent key %s\n", args[0])
			return nil
		})
	},
}

var directvKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the remote keys the receiver accepts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, key := range directv.RemoteKeys() {
			cmd.Println(key)
		}
		return nil
	},
}

func init() {
	flags := directvCmd.PersistentFlags()
	flags.StringVarP(&dtvFlags.host, "host", "H", "", "Receiver host name or IP address")
	flags.IntVarP(&dtvFlags.port, "port", "p", directv.DefaultPort, "Receiver API port")
	flags.StringVar(&dtvFlags.basePath, "base-path", directv.DefaultBasePath, "Path prefix in front of every endpoint")
	flags.StringVar(&dtvFlags.username, "username", "", "HTTP basic auth username")
	flags.StringVar(&dtvFlags.password, "password", "", "HTTP basic auth password")
	flags.DurationVar(&dtvFlags.timeout, "timeout", directv.DefaultTimeout, "Per-request timeout")
	flags.StringVarP(&dtvFlags.client, "client", "c", directv.HostClientAddr, "Client address (\"0\" is the host receiver)")
	flags.BoolVarP(&dtvFlags.debug, "debug", "d", false, "Enable debug logging for HTTP requests")
	flags.BoolVar(&dtvFlags.test, "test", false, "Use the built-in receiver simulator instead of the network")

	directvCmd.AddCommand(directvInfoCmd)
	directvCmd.AddCommand(directvLocationsCmd)
	directvCmd.AddCommand(directvStatusCmd)
	directvCmd.AddCommand(directvStateCmd)
	directvCmd.AddCommand(directvTunedCmd)
	directvCmd.AddCommand(directvTuneCmd)
	directvCmd.AddCommand(directvRemoteCmd)
	directvCmd.AddCommand(directvKeysCmd)
}
