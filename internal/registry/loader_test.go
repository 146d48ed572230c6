package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serversJSON = `[
	{"name": "Alpha", "url": "https://alpha.example", "location": "Berlin, DE"},
	{"name": "Bravo", "url": "https://bravo.example"}
]`

const serversYAML = `servers:
  - name: Alpha
    url: https://alpha.example
    location: Berlin, DE
  - name: Bravo
    url: https://bravo.example
`

type memoryCache struct {
	source  string
	payload []byte
	err     error
}

func (c *memoryCache) SaveRegistry(source string, _ uint64, payload []byte) error {
	c.source = source
	c.payload = payload
	return c.err
}

func (c *memoryCache) LoadRegistry() (string, []byte, error) {
	return c.source, c.payload, c.err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadFromFile(t *testing.T) {
	reg := New(Sample(), SampleSource)
	cache := &memoryCache{}
	src := writeFile(t, "servers.json", serversJSON)

	loader := NewLoader(reg, config.Registry{Source: src}, cache)
	snap, err := loader.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Servers, 2)
	assert.Equal(t, "Berlin, DE", snap.Servers[0].Location)
	assert.Empty(t, snap.Servers[1].Location)
	assert.Equal(t, uint64(1), snap.Revision)
	assert.NotZero(t, snap.Digest)

	assert.Equal(t, src, cache.source)
	assert.Equal(t, serversJSON, string(cache.payload))
}

func TestLoadUnchangedKeepsRevision(t *testing.T) {
	reg := New(Sample(), SampleSource)
	src := writeFile(t, "servers.json", serversJSON)
	loader := NewLoader(reg, config.Registry{Source: src}, &memoryCache{})

	updates, cancel := reg.Subscribe()
	defer cancel()

	first, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Revision)
	<-updates

	again, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), again.Revision)
	assert.Equal(t, first.Digest, again.Digest)
	assert.Len(t, again.Servers, 2)

	select {
	case snap := <-updates:
		t.Fatalf("unchanged list republished at revision %d", snap.Revision)
	default:
	}

	// An edit is published
	require.NoError(t, os.WriteFile(src, []byte(`[{"name": "Alpha", "url": "https://alpha.example"}]`), 0o600))
	changed, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), changed.Revision)
	assert.Len(t, changed.Servers, 1)
}

func TestRestoreThenSameLoadIsNotRepublished(t *testing.T) {
	reg := New(Sample(), SampleSource)
	src := writeFile(t, "servers.json", serversJSON)
	cache := &memoryCache{source: src, payload: []byte(serversJSON)}
	loader := NewLoader(reg, config.Registry{Source: src}, cache)

	restored, err := loader.Restore()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), restored.Revision)

	loaded, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loaded.Revision)
}

func TestLoadYAMLMatchesJSON(t *testing.T) {
	fromJSON, err := Decode("servers.json", []byte(serversJSON))
	require.NoError(t, err)

	fromYAML, err := Decode("servers.yaml", []byte(serversYAML))
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)
}

func TestLoadFailuresKeepPreviousList(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty list", content: `[]`},
		{name: "malformed", content: `{"name": "Alpha"`},
		{name: "object payload", content: `{"servers": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(Sample(), SampleSource)
			src := writeFile(t, "servers.json", tt.content)

			_, err := NewLoader(reg, config.Registry{Source: src}, nil).Load(context.Background())
			assert.Error(t, err)

			snap := reg.Snapshot()
			assert.Equal(t, SampleSource, snap.Source)
			assert.Zero(t, snap.Revision)
		})
	}

	reg := New(Sample(), SampleSource)
	_, err := NewLoader(reg, config.Registry{Source: filepath.Join(t.TempDir(), "missing.json")}, nil).
		Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.UserAgent(), "neonetrek-site/") {
			http.Error(w, "bad agent", http.StatusBadRequest)
			return
		}
		if r.URL.Path != "/servers.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(serversJSON))
	}))
	defer srv.Close()

	reg := New(Sample(), SampleSource)
	snap, err := NewLoader(reg, config.Registry{Source: srv.URL + "/servers.json", Timeout: time.Second}, nil).
		Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Servers, 2)

	_, err = NewLoader(reg, config.Registry{Source: srv.URL + "/missing.json"}, nil).Load(context.Background())
	assert.ErrorContains(t, err, "unexpected status 404")
	assert.Equal(t, uint64(1), reg.Snapshot().Revision)
}

func TestRestoreFromCache(t *testing.T) {
	reg := New(Sample(), SampleSource)
	cache := &memoryCache{source: "https://example.org/servers.yaml", payload: []byte(serversYAML)}

	snap, err := NewLoader(reg, config.Registry{Source: "servers.json"}, cache).Restore()
	require.NoError(t, err)
	assert.Len(t, snap.Servers, 2)
	assert.Equal(t, "https://example.org/servers.yaml", snap.Source)

	_, err = NewLoader(New(Sample(), SampleSource), config.Registry{}, &memoryCache{}).Restore()
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = NewLoader(New(Sample(), SampleSource), config.Registry{}, &memoryCache{err: errors.New("disk")}).Restore()
	assert.ErrorContains(t, err, "disk")
}

func TestIsYAML(t *testing.T) {
	assert.True(t, isYAML("servers.yaml"))
	assert.True(t, isYAML("/etc/neonetrek/SERVERS.YML"))
	assert.True(t, isYAML("https://example.org/servers.yml?ref=main"))
	assert.False(t, isYAML("servers.json"))
	assert.False(t, isYAML("https://example.org/servers"))
}
