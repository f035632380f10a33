package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaos-io/fitroom/janitor"
	"github.com/chaos-io/fitroom/server"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.NoArgs(cmd, args); err != nil {
			return newExitCodeError(err, ExitCodeInvalidArguments)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		srv, err := server.New(cfg)
		if err != nil {
			return newExitCodeError(err, ExitCodeInvalidConfig)
		}

		j := janitor.New(cfg.Store.Dir, cfg.Store.TTL)
		if err := j.Start(cfg.Store.SweepSchedule); err != nil {
			return newExitCodeError(err, ExitCodeInvalidConfig)
		}
		defer j.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return newExitCodeError(fmt.Errorf("run server: %w", err), ExitCodeServerError)
		}
		slog.Info("bye")
		return nil
	},
}
