package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"interviewforge/internal/app"
	"interviewforge/internal/server"
)

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and Connect API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if port != "" {
				cfg.Port = ":" + port
			}

			deps, err := app.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer deps.Close()

			mux := server.NewMux(server.NewHandler(deps.Service, log), log)
			srv := server.New(cfg.Port, mux, log)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			log.Info("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Error("server forced to shutdown", zap.Error(err))
				return err
			}
			log.Info("server exiting")
			return nil
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port; defaults to PORT")
	return cmd
}
