package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/admitd/admitd/internal/config"
	"github.com/admitd/admitd/internal/server"
	"github.com/admitd/admitd/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the admission service with graceful shutdown support.

SIGINT or SIGTERM stops accepting new connections, lets in-flight requests
finish within server.shutdown_timeout, then stops the sweeper.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}

		log := logger.New(os.Stdout, cfg.App.LogLevel).With("service", "admitd")
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, cfg, log)
	},
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	srv, err := server.New(cfg, log, server.WithVersion(versionInfo.Version))
	if err != nil {
		return err
	}

	log.Info("initializing server",
		"version", versionInfo.Version,
		"env", cfg.App.Env,
		"address", cfg.Server.Address(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "server host (default 0.0.0.0)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (default 8080)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
