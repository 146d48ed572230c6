package game

import (
	"context"
	"testing"

	"github.com/neonetrek/neonetrek-site/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestQueryServerInvalidAddress(t *testing.T) {
	opts := config.A2S{BufferSize: 1400}

	_, err := QueryServer(context.Background(), "no-port", opts)
	assert.ErrorContains(t, err, "invalid query address")

	_, err = QueryServer(context.Background(), "127.0.0.1:99999", opts)
	assert.ErrorContains(t, err, "invalid query port")

	_, err = QueryServer(context.Background(), "[::1]:27015", opts)
	assert.ErrorContains(t, err, "requires IPv4")
}

func TestResolveIPv4Literal(t *testing.T) {
	ip, err := resolveIPv4(context.Background(), "10.0.0.7")
	assert.NoError(t, err)
	assert.Equal(t, "10.0.0.7", ip)
}
