package directory

import (
	"net/url"
	"testing"

	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardID(t *testing.T) {
	tests := map[string]string{
		"Example Server 1":        "server-example-server-1",
		"NeoNetrek  EU -- Bronco": "server-neonetrek-eu-bronco",
		"Tokyo!":                  "server-tokyo-",
		"":                        "server-unnamed-server",
		"Ünïcode":                 "server--n-code",
	}

	for name, want := range tests {
		assert.Equal(t, want, CardID(name), name)
		assert.Equal(t, CardID(name), CardID(name), "deterministic for %q", name)
	}

	assert.Equal(t, CardID("Alpha Server"), CardID("alpha-server"))
}

func TestPlayerText(t *testing.T) {
	assert.Equal(t, "0 players", PlayerText(0))
	assert.Equal(t, "1 player", PlayerText(1))
	assert.Equal(t, "5 players", PlayerText(5))
	assert.Equal(t, "2.5 players", PlayerText(2.5))
}

func TestPlayURL(t *testing.T) {
	assert.Equal(t, "https://a.example/play/", PlayURL("https://a.example"))
	assert.Equal(t, "https://a.example/play/", PlayURL("https://a.example///"))
}

func TestInstanceURLRoundTrip(t *testing.T) {
	ids := []string{"bronco", "chaos mode", "a&b=c", "100%/ok?#frag", "ünï+code", ""}

	for _, id := range ids {
		u, err := url.Parse(InstanceURL("https://a.example/", id))
		require.NoError(t, err, id)
		assert.Equal(t, "/play/", u.Path)
		assert.Equal(t, id, u.Query().Get("server"), "round trip of %q", id)
	}
}

func TestNewCard(t *testing.T) {
	c := newCard(models.ServerDescriptor{
		Name:        "Alpha",
		URL:         "https://alpha.example/",
		Description: "Bronco",
		Established: "1994",
		Features:    []string{"INL"},
	})

	assert.Equal(t, "server-alpha", c.ID)
	assert.Equal(t, models.DefaultLocation, c.Location)
	assert.Equal(t, "https://alpha.example", c.BaseURL)
	assert.Equal(t, "https://alpha.example/play/", c.JoinURL)
	assert.Equal(t, StatusUnknown, c.Status)
	assert.Equal(t, "Checking...", c.Status.Text())
	assert.True(t, c.Joinable())

	bare := newCard(models.ServerDescriptor{})
	assert.Equal(t, models.DefaultServerName, bare.Name)
	assert.False(t, bare.Joinable())
}
