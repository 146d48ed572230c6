// Package probe checks community servers for liveness, player counts and
// the game instances they host.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/config"
	"github.com/neonetrek/neonetrek-site/internal/game"
	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/neonetrek/neonetrek-site/internal/vars"
)

const (
	// HealthPath is appended to a server base URL for the health probe.
	HealthPath = "/health"

	// InstancesPath is appended to a server base URL for the instance probe.
	InstancesPath = "/api/instances"
)

var (
	// ErrStatus is returned for any non-2xx probe response.
	ErrStatus = errors.New("unexpected status")

	// ErrBodyTooLarge is returned when a response exceeds the configured body size.
	ErrBodyTooLarge = errors.New("response body too large")
)

// Client runs health and instance probes.
type Client struct {
	http    *http.Client
	a2s     config.A2S
	timeout time.Duration
	maxBody int64
}

// New creates a probe client. A zero cfg.Timeout leaves probes unbounded.
func New(cfg config.Probe, a2sOpts config.A2S) *Client {
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = 64 << 10
	}

	return &Client{
		http:    &http.Client{},
		a2s:     a2sOpts,
		timeout: cfg.Timeout,
		maxBody: maxBody,
	}
}

// Health probes the server's health endpoint, or its A2S address when set.
// Any error means the server is offline.
func (c *Client) Health(ctx context.Context, s models.ServerDescriptor) (models.HealthReport, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if s.Query != "" {
		info, err := game.QueryServer(ctx, s.Query, c.a2s)
		if err != nil {
			return models.HealthReport{}, err
		}
		players := float64(info.Players)
		return models.HealthReport{Players: &players}, nil
	}

	body, err := c.get(ctx, s.BaseURL()+HealthPath)
	if err != nil {
		return models.HealthReport{}, err
	}

	return models.DecodeHealth(body)
}

// Instances fetches the server's instance list. Callers treat any error as
// "no instance data".
func (c *Client) Instances(ctx context.Context, s models.ServerDescriptor) ([]models.InstanceDescriptor, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	body, err := c.get(ctx, s.BaseURL()+InstancesPath)
	if err != nil {
		return nil, err
	}

	return models.DecodeInstances(body)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", vars.UserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %d from %s", ErrStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: over %d bytes from %s", ErrBodyTooLarge, c.maxBody, url)
	}

	return body, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}
