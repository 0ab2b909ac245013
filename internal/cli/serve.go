package cli

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/saira-network/saira/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "listen host (overrides [api].host)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides [api].port and PORT)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the Saira HTTP API. The server runs until interrupted; on shutdown
every capture session is stopped, queued work drains and loaded models are
released.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if h, _ := cmd.Flags().GetString("host"); h != "" {
		cfg.API.Host = h
	}
	if p, _ := cmd.Flags().GetInt("port"); p != 0 {
		cfg.API.Port = p
	}

	d, err := daemon.New(cfg, home(), daemon.Options{Audio: true, Journal: true}, log)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.API.Addr())
	if err != nil {
		d.Close(cmd.Context())
		return fmt.Errorf("listen %s: %w", cfg.API.Addr(), err)
	}
	return d.Serve(cmd.Context(), ln)
}
