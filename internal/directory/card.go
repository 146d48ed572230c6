package directory

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/neonetrek/neonetrek-site/internal/models"
)

// Status is the health axis of a card.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Text returns the label shown next to the status dot.
func (s Status) Text() string {
	switch s {
	case StatusOnline:
		return "Online"
	case StatusOffline:
		return "Offline"
	}
	return "Checking..."
}

// Instance is one row of a card's game mode breakdown.
type Instance struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
	PlayerText  string   `json:"player_text"`
	JoinURL     string   `json:"join_url"`
	Players     int      `json:"players"`
}

// Card is the rendered state of one server.
type Card struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Established string     `json:"established,omitempty"`
	Features    []string   `json:"features,omitempty"`
	BaseURL     string     `json:"base_url,omitempty"`
	JoinURL     string     `json:"join_url,omitempty"`
	Status      Status     `json:"status"`
	Players     *float64   `json:"players,omitempty"`
	PlayerText  string     `json:"player_text,omitempty"`
	Instances   []Instance `json:"instances,omitempty"`

	healthSettled  bool
	instancesShown bool
}

// newCard renders a descriptor in its initial, unprobed state.
func newCard(s models.ServerDescriptor) Card {
	c := Card{
		ID:          CardID(s.Name),
		Name:        s.DisplayName(),
		Location:    s.DisplayLocation(),
		Description: s.Description,
		Established: s.Established,
		Features:    append([]string(nil), s.Features...),
		Status:      StatusUnknown,
	}

	if s.Probeable() {
		c.BaseURL = s.BaseURL()
		c.JoinURL = PlayURL(c.BaseURL)
	}

	return c
}

// Joinable reports whether the card has a join link.
func (c Card) Joinable() bool {
	return c.JoinURL != ""
}

func (c *Card) setPlayers(n float64) {
	c.Players = &n
	c.PlayerText = PlayerText(n)
}

func (c Card) clone() Card {
	c.Features = append([]string(nil), c.Features...)
	if c.Players != nil {
		n := *c.Players
		c.Players = &n
	}
	if c.Instances != nil {
		instances := make([]Instance, len(c.Instances))
		for i, inst := range c.Instances {
			inst.Features = append([]string(nil), inst.Features...)
			instances[i] = inst
		}
		c.Instances = instances
	}
	return c
}

// CardID derives the card identifier from a server name: "server-" followed
// by the lower-cased name with every run of non-alphanumerics collapsed to "-".
// A missing name uses the default display name.
func CardID(name string) string {
	if name == "" {
		name = models.DefaultServerName
	}

	var b strings.Builder
	b.WriteString("server-")

	sep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			sep = false
			continue
		}
		if !sep {
			b.WriteByte('-')
			sep = true
		}
	}

	return b.String()
}

// PlayURL is the browser client entry point of a server.
func PlayURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/play/"
}

// InstanceURL deep-links into one instance of a server.
func InstanceURL(baseURL, instanceID string) string {
	return PlayURL(baseURL) + "?" + url.Values{"server": {instanceID}}.Encode()
}

// PlayerText formats a player count, singular only for exactly one.
func PlayerText(n float64) string {
	if n == 1 {
		return "1 player"
	}
	return strconv.FormatFloat(n, 'f', -1, 64) + " players"
}
