// Package game queries game servers over the Source Engine Query (A2S) protocol.
package game

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/neonetrek/neonetrek-site/internal/config"
	"github.com/woozymasta/a2s/pkg/a2s"
)

// Info is the subset of an A2S_INFO reply the directory displays.
type Info struct {
	Name       string
	Map        string
	Players    int
	MaxPlayers int
}

// QueryServer resolves addr (host:port) and requests A2S_INFO over UDP.
// It returns an error if the address is invalid or the server is unreachable.
func QueryServer(ctx context.Context, addr string, options config.A2S) (*Info, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid query address %q: %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid query port %q", portStr)
	}

	ip, err := resolveIPv4(ctx, host)
	if err != nil {
		return nil, err
	}

	client, err := a2s.New(ip, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	client.BufferSize = options.BufferSize
	client.Timeout = options.Timeout

	info, err := client.GetInfo()
	if err != nil {
		return nil, err
	}

	return &Info{
		Name:       info.Name,
		Map:        info.Map,
		Players:    int(info.Players),
		MaxPlayers: int(info.MaxPlayers),
	}, nil
}

// resolveIPv4 returns host itself when it is an IPv4 literal, otherwise the
// first IPv4 address it resolves to.
func resolveIPv4(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() == nil {
			return "", fmt.Errorf("A2S query requires IPv4, got %s", host)
		}
		return ip.String(), nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}

	return "", fmt.Errorf("no IPv4 address for %s", host)
}
