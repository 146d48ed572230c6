// Package maintenance provide tools for clean and update database
package maintenance

import (
	"context"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/config"
	"github.com/neonetrek/neonetrek-site/internal/directory"
	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// workers bounds concurrent probes during a full check.
const workers = 10

// Store is the storage surface maintenance tasks work on.
type Store interface {
	DeleteStatusesBefore(cutoff time.Time) (int64, error)
	RecordStatus(rec models.StatusRecord) error
}

// ServerSource loads the current server list once.
type ServerSource func(ctx context.Context) ([]models.ServerDescriptor, error)

// Result counts the outcome of a full check.
type Result struct {
	Online  int
	Offline int
	Skipped int
}

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(ctx context.Context, cfg *config.Config, store Store, servers ServerSource, prober directory.Prober) bool {
	if cfg.Storage.PruneOlder > 0 {
		cutoff := time.Now().Add(-cfg.Storage.PruneOlder)
		log.Info().Time("cutoff", cutoff).Msg("Pruning stale status rows...")

		count, err := store.DeleteStatusesBefore(cutoff)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune statuses")
		} else {
			log.Info().Int64("deleted", count).Msg("Prune finished")
		}

		return true
	}

	if !cfg.Storage.CheckAll {
		return false
	}

	list, err := servers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load server list")
		return true
	}

	log.Info().Int("count", len(list)).Msgf("Starting 'Check All' task with %d workers...", workers)
	res := CheckAll(ctx, list, prober, store)
	log.Info().
		Int("online", res.Online).
		Int("offline", res.Offline).
		Int("skipped", res.Skipped).
		Msg("Maintenance task completed")

	return true
}

// CheckAll probes every server once and records one settled status per card.
// Servers without a URL are skipped. Names sharing a card ID are checked once,
// with the later entry winning as on the directory page.
func CheckAll(ctx context.Context, servers []models.ServerDescriptor, prober directory.Prober, store Store) Result {
	targets := make(map[string]models.ServerDescriptor, len(servers))
	order := make([]string, 0, len(servers))
	for _, s := range servers {
		id := directory.CardID(s.Name)
		if _, ok := targets[id]; !ok {
			order = append(order, id)
		}
		targets[id] = s
	}

	records := make([]models.StatusRecord, len(order))
	skipped := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, id := range order {
		s := targets[id]
		if !s.Probeable() {
			skipped++
			continue
		}

		g.Go(func() error {
			records[i] = check(gctx, id, s, prober)
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	res.Skipped = skipped
	for _, rec := range records {
		switch rec.Status {
		case "":
			continue
		case string(directory.StatusOnline):
			res.Online++
		default:
			res.Offline++
		}

		if err := store.RecordStatus(rec); err != nil {
			log.Error().Err(err).Str("card", rec.CardID).Msg("Failed to record status")
		}
	}

	return res
}

// check runs both probes of one server and folds them the way a card does:
// a multi-instance breakdown owns the player count.
func check(ctx context.Context, id string, s models.ServerDescriptor, prober directory.Prober) models.StatusRecord {
	logCtx := log.With().Str("card", id).Str("url", s.URL).Logger()

	rec := models.StatusRecord{
		CardID:      id,
		Name:        s.DisplayName(),
		BaseURL:     s.BaseURL(),
		Status:      string(directory.StatusOffline),
		LastChecked: time.Now(),
	}

	report, err := prober.Health(ctx, s)
	if err != nil {
		logCtx.Debug().Err(err).Msg("Server unreachable")
	} else {
		rec.Status = string(directory.StatusOnline)
		rec.Players = report.Players
	}

	instances, err := prober.Instances(ctx, s)
	if err == nil && len(instances) > 1 {
		total := 0
		for _, inst := range instances {
			total += inst.Connections
		}
		players := float64(total)
		rec.Players = &players
		rec.Instances = len(instances)
	}

	logCtx.Trace().Str("status", rec.Status).Int("instances", rec.Instances).Msg("Server checked")
	return rec
}
