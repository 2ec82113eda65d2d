// Package persistd implements the reference persistence daemon command.
package persistd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sentinelops/sentinel-go/internal/conf"
	"github.com/sentinelops/sentinel-go/internal/logging"
	"github.com/sentinelops/sentinel-go/internal/persistd"
)

const shutdownTimeout = 10 * time.Second

// Command returns the persistd subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persistd",
		Short: "Start the SQLite persistence daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}

	cmd.Flags().String("database", settings.PersistD.Database, "Path of the SQLite database file")
	_ = viper.BindPFlag("persistd.database", cmd.Flags().Lookup("database"))
	return cmd
}

func run(settings *conf.Settings) error {
	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)
	logger := logging.ForService("persistd")

	store, err := persistd.Open(settings.PersistD.Database, logger)
	if err != nil {
		return err
	}

	server := persistd.NewServer(store, settings.PersistD.Host, settings.PersistD.Port, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
