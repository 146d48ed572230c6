package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/config"
	"github.com/neonetrek/neonetrek-site/internal/directory"
	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/neonetrek/neonetrek-site/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	players float64
}

func (p stubProber) Health(context.Context, models.ServerDescriptor) (models.HealthReport, error) {
	n := p.players
	return models.HealthReport{Players: &n}, nil
}

func (p stubProber) Instances(context.Context, models.ServerDescriptor) ([]models.InstanceDescriptor, error) {
	return nil, errors.New("not found")
}

type stubStatuses struct {
	records []models.StatusRecord
	err     error
}

func (s stubStatuses) GetStatuses() ([]models.StatusRecord, error) {
	return s.records, s.err
}

func (s stubStatuses) GetStatus(cardID string) (*models.StatusRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, rec := range s.records {
		if rec.CardID == cardID {
			return &rec, nil
		}
	}
	return nil, nil
}

type fixture struct {
	srv *Server
	dir *directory.Directory
	reg *registry.Registry
}

func newFixture(t *testing.T, statuses StatusSource, limit int) fixture {
	t.Helper()

	cfg := &config.Config{
		RateLimit: config.RateLimit{HardLimitCount: limit, HardLimitWin: time.Minute},
	}

	reg := registry.New(registry.Sample(), registry.SampleSource)
	dir := directory.New(stubProber{players: 3}, nil)
	dir.Rebuild(context.Background(), reg.Snapshot())

	srv, err := New(dir, reg, statuses, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		srv.Close()
		dir.Wait()
	})

	return fixture{srv: srv, dir: dir, reg: reg}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIndexRendersCards(t *testing.T) {
	f := newFixture(t, nil, 100)
	h := f.srv.Run()

	w := get(t, h, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	body := w.Body.String()
	assert.Contains(t, body, `id="server-example-server-1"`)
	assert.Contains(t, body, "Example Server 3")
	assert.Contains(t, body, "Tokyo, JP")
	assert.Contains(t, body, "Checking...")
	assert.Contains(t, body, `data-generation="1"`)
	assert.Contains(t, body, `<script src="/js/directory.js" defer></script>`)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/missing").Code)
}

func TestIndexEscapesServerText(t *testing.T) {
	f := newFixture(t, nil, 100)
	f.dir.Rebuild(context.Background(), registry.Snapshot{
		Servers:  []models.ServerDescriptor{{Name: "<script>alert(1)</script>"}},
		Revision: 1,
	})

	body := get(t, f.srv.Run(), "/").Body.String()
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestServerListJSON(t *testing.T) {
	f := newFixture(t, nil, 100)

	w := get(t, f.srv.Run(), "/servers.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-Registry-Revision"))

	var servers []models.ServerDescriptor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &servers))
	assert.Equal(t, registry.Sample(), servers)
}

func TestCardsJSON(t *testing.T) {
	f := newFixture(t, nil, 100)
	h := f.srv.Run()

	w := get(t, h, "/api/servers")
	require.Equal(t, http.StatusOK, w.Code)

	var view directory.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, uint64(1), view.Generation)
	require.Len(t, view.Cards, 3)
	assert.Equal(t, "server-example-server-2", view.Cards[1].ID)

	w = get(t, h, "/api/servers/server-example-server-2")
	require.Equal(t, http.StatusOK, w.Code)
	var card directory.Card
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	assert.Equal(t, "Frankfurt, DE", card.Location)
	assert.Equal(t, directory.StatusUnknown, card.Status)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/servers/server-nope").Code)
}

func TestStatusEndpoint(t *testing.T) {
	two := 2.0
	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("records", func(t *testing.T) {
		f := newFixture(t, stubStatuses{records: []models.StatusRecord{
			{CardID: "server-alpha", Name: "Alpha", Status: "online", Players: &two, LastChecked: checked},
		}}, 100)

		w := get(t, f.srv.Run(), "/api/status")
		require.Equal(t, http.StatusOK, w.Code)

		var records []models.StatusRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "server-alpha", records[0].CardID)
		assert.Equal(t, 2.0, *records[0].Players)
	})

	t.Run("empty is an array", func(t *testing.T) {
		f := newFixture(t, stubStatuses{}, 100)
		w := get(t, f.srv.Run(), "/api/status")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("database error", func(t *testing.T) {
		f := newFixture(t, stubStatuses{err: errors.New("locked")}, 100)
		assert.Equal(t, http.StatusInternalServerError, get(t, f.srv.Run(), "/api/status").Code)
	})

	t.Run("no database", func(t *testing.T) {
		f := newFixture(t, nil, 100)
		assert.Equal(t, http.StatusNotFound, get(t, f.srv.Run(), "/api/status").Code)
	})
}

func TestCardStatusEndpoint(t *testing.T) {
	four := 4.0
	f := newFixture(t, stubStatuses{records: []models.StatusRecord{
		{CardID: "server-alpha", Name: "Alpha", Status: "online", Players: &four, Updates: 3},
	}}, 100)
	h := f.srv.Run()

	w := get(t, h, "/api/status/server-alpha")
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.StatusRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "Alpha", rec.Name)
	assert.Equal(t, int64(3), rec.Updates)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/status/server-nope").Code)

	failing := newFixture(t, stubStatuses{err: errors.New("locked")}, 100)
	assert.Equal(t, http.StatusInternalServerError, get(t, failing.srv.Run(), "/api/status/server-alpha").Code)

	none := newFixture(t, nil, 100)
	assert.Equal(t, http.StatusNotFound, get(t, none.srv.Run(), "/api/status/server-alpha").Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, 100)

	w := get(t, f.srv.Run(), "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Build struct {
			Name string `json:"name"`
		} `json:"build"`
		Status     string `json:"status"`
		Generation uint64 `json:"generation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "neonetrek-site", body.Build.Name)
	assert.Equal(t, uint64(1), body.Generation)
}

func TestStaticAssets(t *testing.T) {
	f := newFixture(t, nil, 100)
	h := f.srv.Run()

	for _, path := range []string{"/css/site.css", "/img/logo.svg", "/js/directory.js", "/data/servers.example.json"} {
		assert.Equal(t, http.StatusOK, get(t, h, path).Code, path)
	}
	assert.Equal(t, http.StatusNotFound, get(t, h, "/migrations/0001_init.sql").Code)
}

func TestDirectoryScriptFollowsEventStream(t *testing.T) {
	f := newFixture(t, nil, 100)

	w := get(t, f.srv.Run(), "/js/directory.js")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `new EventSource("/api/events")`)
	for _, name := range []string{eventView, string(directory.EventRebuild), string(directory.EventCard)} {
		assert.Contains(t, body, `addEventListener("`+name+`"`, name)
	}
}

func TestRateLimitSharedAcrossAPI(t *testing.T) {
	f := newFixture(t, stubStatuses{}, 2)
	h := f.srv.Run()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/servers").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/servers.json").Code)

	w := get(t, h, "/api/status")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Page and health are not limited
	assert.Equal(t, http.StatusOK, get(t, h, "/").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	// Another client has its own budget
	req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	other := httptest.NewRecorder()
	h.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

type sseEvent struct {
	name string
	data string
}

// readEvent returns the next event frame, skipping comment lines.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()

	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func openStream(t *testing.T, ts *httptest.Server) (*http.Response, *bufio.Reader) {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	return resp, bufio.NewReader(resp.Body)
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t, nil, 100)
	ts := httptest.NewServer(f.srv.Run())
	t.Cleanup(ts.Close)

	_, r := openStream(t, ts)

	first := readEvent(t, r)
	require.Equal(t, "view", first.name)
	var view directory.View
	require.NoError(t, json.Unmarshal([]byte(first.data), &view))
	assert.Len(t, view.Cards, 3)

	gen := f.dir.Rebuild(context.Background(), registry.Snapshot{
		Servers:  []models.ServerDescriptor{{Name: "Alpha", URL: "https://alpha.example"}},
		Revision: 1,
	})

	rebuild := readEvent(t, r)
	require.Equal(t, "rebuild", rebuild.name)
	var re directory.Event
	require.NoError(t, json.Unmarshal([]byte(rebuild.data), &re))
	assert.Equal(t, gen, re.Generation)
	assert.Nil(t, re.Card)

	card := readEvent(t, r)
	require.Equal(t, "card", card.name)
	var ce directory.Event
	require.NoError(t, json.Unmarshal([]byte(card.data), &ce))
	require.NotNil(t, ce.Card)
	assert.Equal(t, gen, ce.Generation)
	assert.Equal(t, "server-alpha", ce.Card.ID)
	assert.Equal(t, directory.StatusOnline, ce.Card.Status)
	assert.Equal(t, "3 players", ce.Card.PlayerText)
}

func TestEventsKeepAlive(t *testing.T) {
	f := newFixture(t, nil, 100)
	f.srv.keepAlive = 10 * time.Millisecond
	ts := httptest.NewServer(f.srv.Run())
	t.Cleanup(ts.Close)

	_, r := openStream(t, ts)
	require.Equal(t, "view", readEvent(t, r).name)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": keep-alive\n", line)
}

func TestEventsEndOnClose(t *testing.T) {
	f := newFixture(t, nil, 100)
	ts := httptest.NewServer(f.srv.Run())
	t.Cleanup(ts.Close)

	_, r := openStream(t, ts)
	require.Equal(t, "view", readEvent(t, r).name)

	f.srv.Close()

	_, err := io.ReadAll(r)
	assert.NoError(t, err)
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
		trust   bool
	}{
		{name: "remote addr", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "remote without port", remote: "192.0.2.1", want: "192.0.2.1"},
		{name: "untrusted header ignored", remote: "192.0.2.1:5555", headers: map[string]string{"X-Forwarded-For": "203.0.113.9"}, want: "192.0.2.1"},
		{name: "forwarded first hop", remote: "192.0.2.1:5555", headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, want: "203.0.113.9", trust: true},
		{name: "cloudflare preferred", remote: "192.0.2.1:5555", headers: map[string]string{"CF-Connecting-IP": "198.51.100.2", "X-Forwarded-For": "203.0.113.9"}, want: "198.51.100.2", trust: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetRealIP(req, tt.trust))
		})
	}
}
