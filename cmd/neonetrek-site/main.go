// main is the entry point of the NeoNetrek site.
// It initializes the configuration, logger, database, GeoIP provider, and starts the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/config"
	"github.com/neonetrek/neonetrek-site/internal/directory"
	"github.com/neonetrek/neonetrek-site/internal/fake"
	"github.com/neonetrek/neonetrek-site/internal/geoip"
	"github.com/neonetrek/neonetrek-site/internal/logger"
	"github.com/neonetrek/neonetrek-site/internal/maintenance"
	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/neonetrek/neonetrek-site/internal/probe"
	"github.com/neonetrek/neonetrek-site/internal/registry"
	"github.com/neonetrek/neonetrek-site/internal/server"
	"github.com/neonetrek/neonetrek-site/internal/storage"
	"github.com/neonetrek/neonetrek-site/internal/vars"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	log.Info().Str("version", vars.Version).Msg("Starting neonetrek-site...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	geoProvider := openGeoIP(ctx, cfg.GeoIP)
	defer func() {
		if err := geoProvider.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing GeoIP provider")
		}
	}()

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	reg := registry.New(registry.Sample(), registry.SampleSource)
	loader := registry.NewLoader(reg, cfg.Registry, store)
	prober := probe.New(cfg.Probe, cfg.A2S)

	// data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		servers := fake.GenerateServers(cfg.Storage.GenerateCount)
		fake.SeedStatuses(store, servers)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(servers); err != nil {
			log.Error().Err(err).Msg("Failed to write fake server list")
		}
		return
	}

	loadOnce := func(ctx context.Context) ([]models.ServerDescriptor, error) {
		snap, err := loader.Load(ctx)
		return snap.Servers, err
	}
	if maintenance.Run(ctx, cfg, store, loadOnce, prober) {
		return
	}

	// Last known list first, so the first render is not the sample
	if snap, err := loader.Restore(); err == nil {
		log.Info().Str("source", snap.Source).Int("servers", len(snap.Servers)).Msg("Restored cached server list")
	} else if !errors.Is(err, registry.ErrEmpty) {
		log.Warn().Err(err).Msg("Failed to restore cached server list")
	}

	dir := directory.New(prober, store)
	if geoProvider != nil {
		dir.UseLocator(geoProvider)
	}
	go dir.Watch(ctx, reg)
	go loader.Run(ctx, cfg.Registry.Interval)

	// Init server
	srvHandler, err := server.New(dir, reg, store, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srvHandler.Run(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		// Event streams stay open, so writes are not bounded
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	stop()

	log.Info().Msg("Shutting down server...")

	// End event streams before Shutdown waits for active requests
	srvHandler.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Probes may have no timeout; do not let one hold the exit
	waitOrTimeout(dir.Wait, 5*time.Second)

	log.Info().Msg("Server exited")
}

// openGeoIP refreshes and opens the GeoIP database. It returns nil when
// GeoIP is disabled or unavailable.
func openGeoIP(ctx context.Context, cfg config.GeoIP) *geoip.Provider {
	if cfg.Disable {
		log.Info().Msg("GeoIP disabled, locations come only from the server list")
		return nil
	}

	log.Info().Msg("Checking GeoIP database...")
	if err := geoip.EnsureDB(ctx, cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	provider, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, location lookup disabled")
		return nil
	}

	return provider
}

func waitOrTimeout(wait func(), timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Msg("Probes still running at exit")
	}
}
