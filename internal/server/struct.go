package server

import (
	"html/template"
	"sync"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/directory"
	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/neonetrek/neonetrek-site/internal/registry"
	"github.com/neonetrek/neonetrek-site/internal/vars"
)

// StatusSource reads the stored status history of directory cards.
type StatusSource interface {
	GetStatuses() ([]models.StatusRecord, error)
	GetStatus(cardID string) (*models.StatusRecord, error)
}

// Server holds the dependencies and configuration required to serve the
// directory page and its JSON and event stream endpoints.
type Server struct {
	// directory holds the rendered cards of the current generation.
	directory *directory.Directory

	// registry holds the loaded server list, served verbatim as servers.json.
	registry *registry.Registry

	// statuses provides the persisted card history. It can be nil when no
	// database is configured.
	statuses StatusSource

	// index is the parsed landing page template.
	index *template.Template

	// shutdown is closed to end open event streams and background cleanup.
	shutdown  chan struct{}
	closeOnce sync.Once

	// hardLimitCount is the maximum number of requests allowed per IP address
	// within the hardLimitWin duration.
	hardLimitCount int

	// hardLimitWin is the time window duration for the hard rate limiter.
	hardLimitWin time.Duration

	// keepAlive is the interval between comment lines on idle event streams.
	keepAlive time.Duration

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool
}

// pageData is passed to the landing page template.
type pageData struct {
	Cards      []directory.Card
	Generation uint64
	Build      vars.BuildInfo
}
