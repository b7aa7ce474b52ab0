package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ellmo/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override server port from configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if servePort != 0 {
		if servePort < 0 || servePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", servePort)
		}
		cfg.Server.Port = servePort
	}

	orch, _, err := newOrchestrator(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg.Server, orch)
	if err != nil {
		return err
	}

	return srv.Run(cmd.Context())
}
