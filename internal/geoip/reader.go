package geoip

import (
	"context"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Provider wraps the GeoIP2 database reader to provide country lookup functionality.
// A nil Provider answers every lookup with an empty string.
type Provider struct {
	db       *geoip2.Reader
	resolver *net.Resolver
}

// Open initializes the GeoIP database reader from a specific file path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db, resolver: net.DefaultResolver}, nil
}

// Close closes the underlying GeoIP database reader.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	return p.db.Close()
}

// GetCountryCode looks up the ISO country code (e.g., "US", "DE") for a given IP address string.
// It returns an empty string if the IP is invalid or the country cannot be determined.
func (p *Provider) GetCountryCode(ipStr string) string {
	if p == nil {
		return ""
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}

	record, err := p.db.Country(ip)
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}

// Locate resolves host (a name or IP literal) and returns the country code
// of its first address that the database knows.
func (p *Provider) Locate(ctx context.Context, host string) string {
	if p == nil || host == "" {
		return ""
	}

	if net.ParseIP(host) != nil {
		return p.GetCountryCode(host)
	}

	addrs, err := p.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return ""
	}

	for _, a := range addrs {
		if code := p.GetCountryCode(a.IP.String()); code != "" {
			return code
		}
	}

	return ""
}
