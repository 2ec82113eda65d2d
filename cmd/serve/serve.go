// Package serve implements the main dashboard backend command: it hydrates
// the history store from the persistence service, starts the map engine and
// serves the HTTP API.
package serve

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelops/sentinel-go/internal/api"
	"github.com/sentinelops/sentinel-go/internal/conf"
	"github.com/sentinelops/sentinel-go/internal/geo"
	"github.com/sentinelops/sentinel-go/internal/geoloc"
	"github.com/sentinelops/sentinel-go/internal/history"
	"github.com/sentinelops/sentinel-go/internal/logging"
	"github.com/sentinelops/sentinel-go/internal/persistence"
)

const (
	hydrateTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Command returns the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)
	logger := logging.ForService("serve")

	client := persistence.New(persistence.Config{
		BaseURL: settings.Persistence.BaseURL,
		Timeout: settings.Persistence.Timeout,
	})
	store := history.NewStore(client, nil)
	defer store.Stop()

	hydrateCtx, cancelHydrate := context.WithTimeout(context.Background(), hydrateTimeout)
	store.Hydrate(hydrateCtx)
	cancelHydrate()

	locator := geoloc.New(geoloc.Config{
		Endpoint: settings.Geolocation.Endpoint,
		Timeout:  settings.Geolocation.Timeout,
	})

	engine := geo.NewEngine(store, locator, geoConfig(settings), nil)
	engine.Start(context.Background())
	defer engine.Stop()

	controller := api.New(settings, store, engine)

	errChan := make(chan error, 1)
	go func() {
		errChan <- controller.Start()
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
	return controller.Shutdown(ctx)
}

func geoConfig(settings *conf.Settings) geo.Config {
	cfg := geo.DefaultConfig()
	cfg.DefaultCenter.Lat = settings.Map.DefaultLat
	cfg.DefaultCenter.Lng = settings.Map.DefaultLng
	if settings.Map.DefaultZoom > 0 {
		cfg.DefaultZoom = settings.Map.DefaultZoom
	}
	if settings.Map.FocusZoom > 0 {
		cfg.FocusZoom = settings.Map.FocusZoom
	}
	if settings.Map.DeviceZoom > 0 {
		cfg.DeviceZoom = settings.Map.DeviceZoom
	}
	if settings.Map.AnimationDuration > 0 {
		cfg.AnimationDuration = settings.Map.AnimationDuration
	}
	return cfg
}
