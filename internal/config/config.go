// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/neonetrek/neonetrek-site/internal/logger"
	"github.com/neonetrek/neonetrek-site/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"NEONETREK"`
	Registry  Registry      `group:"Registry Options" namespace:"registry" env-namespace:"NEONETREK_REGISTRY"`
	Probe     Probe         `group:"Probe Options" namespace:"probe" env-namespace:"NEONETREK_PROBE"`
	A2S       A2S           `group:"A2S Options" namespace:"a2s" env-namespace:"NEONETREK_A2S"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"NEONETREK_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"NEONETREK_GEOIP"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"NEONETREK_RATE_LIMIT"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"NEONETREK_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address    string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	TrustProxy bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Registry holds the server list source configuration.
type Registry struct {
	// betteralign:ignore

	Source   string        `short:"s" long:"source" env:"SOURCE" description:"Server list path or http(s) URL (JSON, or YAML by extension)" default:"servers.json"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Reload interval, 0 loads once" default:"5m"`
	Timeout  time.Duration `long:"timeout" env:"TIMEOUT" description:"Timeout for fetching a remote server list" default:"10s"`
}

// Probe holds server health and instance probe configuration.
type Probe struct {
	// betteralign:ignore

	Timeout     time.Duration `long:"timeout" env:"TIMEOUT" description:"Per-probe timeout, 0 waits indefinitely" default:"0s"`
	MaxBodySize int64         `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max response body size read from a probed server" default:"65536"`
}

// A2S holds Source Query protocol configuration.
type A2S struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Query timeout" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response body buffer size" default:"1400"`
}

// Storage holds database configuration and maintenance tasks.
type Storage struct {
	// betteralign:ignore

	Path          string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"neonetrek.db"`
	PruneOlder    time.Duration `long:"prune-older" description:"Delete status rows not checked within the duration and exit"`
	CheckAll      bool          `long:"check-all" description:"Probe every registry server once, store results and exit"`
	GenerateCount int           `long:"gen-fake-registry" hidden:"true"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"neonetrek.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	Disable  bool          `long:"disable" env:"DISABLE" description:"Do not download or use the GeoIP database"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"60"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}

// ParseArgs parses args and the environment into a validated Config.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints go-flags cannot express.
func (c *Config) Validate() error {
	if c.Registry.Source == "" {
		return errors.New("registry source must not be empty, set `--registry-source' or `NEONETREK_REGISTRY_SOURCE'")
	}
	if c.Registry.Interval < 0 || c.Probe.Timeout < 0 || c.Storage.PruneOlder < 0 {
		return errors.New("durations must not be negative")
	}
	if c.RateLimit.HardLimitCount <= 0 || c.RateLimit.HardLimitWin <= 0 {
		return errors.New("rate limit count and window must be positive")
	}

	return nil
}
