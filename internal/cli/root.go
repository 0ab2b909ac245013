// Package cli implements the saira command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/saira-network/saira/internal/daemon"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "0.1.0-dev"

var homeFlag string

var rootCmd = &cobra.Command{
	Use:   "saira",
	Short: "Local inference backend for text and speech models",
	Long: `Saira hosts one text-generation model and one speech-recognition model,
serializes requests per model, and bridges audio capture and playback.
Run 'saira serve' to start the HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "data directory (default $SAIRA_HOME or ~/.saira)")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func home() string {
	if homeFlag != "" {
		return homeFlag
	}
	return daemon.Home()
}

// loadConfig reads the config and builds the root logger. One-shot
// commands log to stderr so stdout carries only results.
func loadConfig(cmd *cobra.Command) (daemon.Config, zerolog.Logger, error) {
	cfg, err := daemon.LoadConfig(home())
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, daemon.NewLogger(cfg.Log, cmd.ErrOrStderr()), nil
}

// openDaemon builds the component graph without the HTTP listener.
func openDaemon(cmd *cobra.Command, opts daemon.Options) (*daemon.Daemon, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	// Quiet by default for one-shot commands.
	if cfg.Log.Level == "info" {
		log = log.Level(zerolog.WarnLevel)
	}
	return daemon.New(cfg, home(), opts, log)
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
