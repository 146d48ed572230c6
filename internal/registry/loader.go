package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/neonetrek/neonetrek-site/internal/config"
	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/neonetrek/neonetrek-site/internal/vars"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// maxPayloadSize caps a registry payload read from disk or network.
const maxPayloadSize = 4 << 20

// Cache persists the last successfully loaded payload across restarts.
type Cache interface {
	SaveRegistry(source string, digest uint64, payload []byte) error
	LoadRegistry() (source string, payload []byte, err error)
}

// Loader fetches the server list from its source and publishes it to a Registry.
type Loader struct {
	registry *Registry
	client   *http.Client
	cache    Cache
	source   string
	timeout  time.Duration
}

// NewLoader creates a loader for cfg.Source. cache is optional.
func NewLoader(reg *Registry, cfg config.Registry, cache Cache) *Loader {
	return &Loader{
		registry: reg,
		client:   &http.Client{},
		cache:    cache,
		source:   cfg.Source,
		timeout:  cfg.Timeout,
	}
}

// Load fetches, decodes and publishes the server list once. On any error the
// registry keeps its previous list.
func (l *Loader) Load(ctx context.Context) (Snapshot, error) {
	payload, err := l.fetch(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch %s: %w", l.source, err)
	}

	snap, err := l.publish(l.source, payload)
	if err != nil {
		return Snapshot{}, err
	}

	if l.cache != nil {
		if err := l.cache.SaveRegistry(l.source, snap.Digest, payload); err != nil {
			log.Warn().Err(err).Msg("Failed to cache server list")
		}
	}

	return snap, nil
}

// Restore publishes the cached payload, if any. It is used at startup so the
// first render shows the last known list rather than the sample.
func (l *Loader) Restore() (Snapshot, error) {
	if l.cache == nil {
		return Snapshot{}, ErrEmpty
	}

	source, payload, err := l.cache.LoadRegistry()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read cached server list: %w", err)
	}
	if len(payload) == 0 {
		return Snapshot{}, ErrEmpty
	}

	return l.publish(source, payload)
}

// Run loads the list immediately and then every interval until ctx is done.
// A zero interval loads once.
func (l *Loader) Run(ctx context.Context, interval time.Duration) {
	l.loadAndLog(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.loadAndLog(ctx)
		}
	}
}

func (l *Loader) loadAndLog(ctx context.Context) {
	before := l.registry.Snapshot().Revision

	snap, err := l.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source", l.source).Msg("Server list load failed, keeping previous list")
		return
	}
	if snap.Revision == before {
		return
	}

	log.Info().
		Str("source", snap.Source).
		Int("servers", len(snap.Servers)).
		Uint64("revision", snap.Revision).
		Msg("Server list loaded")
}

// publish decodes payload and replaces the registry list. A payload identical
// to the current one from the same source is not republished, so periodic
// reloads of an unchanged list keep the current cards.
func (l *Loader) publish(source string, payload []byte) (Snapshot, error) {
	digest := xxhash.Sum64(payload)
	if cur := l.registry.Snapshot(); cur.Revision > 0 && cur.Digest == digest && cur.Source == source {
		log.Debug().Str("source", source).Uint64("revision", cur.Revision).Msg("Server list unchanged")
		return cur, nil
	}

	servers, err := Decode(source, payload)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", source, err)
	}
	if len(servers) == 0 {
		return Snapshot{}, ErrEmpty
	}

	return l.registry.Replace(servers, source, digest)
}

func (l *Loader) fetch(ctx context.Context) ([]byte, error) {
	if !isRemote(l.source) {
		f, err := os.Open(l.source)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()

		return io.ReadAll(io.LimitReader(f, maxPayloadSize))
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", vars.UserAgent())
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
}

// Decode parses a server list payload. Sources ending in .yaml or .yml are
// YAML, anything else JSON. YAML may wrap the list in a "servers" key.
func Decode(source string, payload []byte) ([]models.ServerDescriptor, error) {
	var v any

	if isYAML(source) {
		if err := yaml.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		if m, ok := v.(map[string]any); ok {
			v = m["servers"]
		}
	} else if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}

	return models.ServersFromList(v)
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func isYAML(source string) bool {
	p := source
	if u, err := url.Parse(source); err == nil && isRemote(source) {
		p = u.Path
	}

	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return true
	}

	return false
}
