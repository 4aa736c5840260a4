package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	noColor    bool

	host     string
	port     int
	insecure bool
	key      string
	token    string
	clientID string
	binary   bool

	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Command line client for Pulse realtime channels",
		Long: `Pulse publishes and subscribes to realtime channels from the terminal.

Settings are read from pulse.json or pulse.yaml in the working directory,
then from PULSE_KEY, PULSE_TOKEN and PULSE_HOST, then from flags.

Examples:
  pulse subscribe chat
  pulse publish chat greeting "hello"
  pulse presence chat --enter '{"status":"online"}' --json
  pulse sandbox --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(g.logLevel)
			if err != nil {
				return errors.Newf(errors.CodeCLIUsage, "--log-level: %v", err)
			}
			if g.noColor {
				color.NoColor = true
				errors.DisableColors()
			}
			g.logger = logging.Setup(cmd.ErrOrStderr(), level, g.noColor)
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (default pulse.json or pulse.yaml)")
	pf.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	pf.StringVarP(&g.host, "host", "H", "", "Realtime host")
	pf.IntVarP(&g.port, "port", "p", 0, "Realtime port")
	pf.BoolVar(&g.insecure, "insecure", false, "Connect with ws:// instead of wss://")
	pf.StringVarP(&g.key, "key", "k", "", "API key")
	pf.StringVar(&g.token, "token", "", "Access token")
	pf.StringVar(&g.clientID, "client-id", "", "Client identifier")
	pf.BoolVar(&g.binary, "binary", false, "Use the binary (CBOR) wire format")

	rootCmd.AddCommand(
		publishCmd(g),
		subscribeCmd(g),
		presenceCmd(g),
		checkCmd(g),
		sandboxCmd(g),
		keygenCmd(),
		versionCmd(),
	)
	return rootCmd
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// success prints a success message.
func success(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", yellow("⚠"), fmt.Sprintf(format, args...))
}
