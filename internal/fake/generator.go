// Package fake provides utilities for generating random server lists and status history
// for testing and development purposes.
package fake

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/directory"
	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/rs/zerolog/log"
)

// Recorder receives generated status rows.
type Recorder interface {
	RecordStatus(rec models.StatusRecord) error
}

var (
	prefixes = []string{"Bronco", "Hockey", "Sturgeon", "Chaos", "Paradise", "Galaxy", "Vanilla", "Dogfight"}
	suffixes = []string{"Central", "League", "Arena", "Outpost", "Station", "Frontier"}
	features = []string{"Bronco", "Hockey", "Sturgeon", "Chaos", "Dogfight", "INL rules", "Robots", "Newbie friendly"}

	// Locations list
	locationsHigh = []string{"New York, US", "Chicago, US", "Frankfurt, DE", "London, GB", "Amsterdam, NL"}
	locationsMid  = []string{"Toronto, CA", "Stockholm, SE", "Paris, FR", "Tokyo, JP", "Sydney, AU"}
	locationsLow  = []string{"Sao Paulo, BR", "Singapore, SG", "Warsaw, PL", "Helsinki, FI", "Cape Town, ZA"}
)

// GenerateServers returns count randomized server descriptors. Roughly one
// in ten has no URL and one in five leaves its location to be resolved.
func GenerateServers(count int) []models.ServerDescriptor {
	servers := make([]models.ServerDescriptor, 0, count)

	for i := 0; i < count; i++ {
		name := fmt.Sprintf("%s %s #%d", pick(prefixes), pick(suffixes), i+1)
		s := models.ServerDescriptor{
			Name:        name,
			Description: fmt.Sprintf("Generated test server %d.", i+1),
			Established: fmt.Sprint(1989 + rand.Intn(37)),
			Features:    pickN(features, 1+rand.Intn(3)),
		}

		// 10% chance the server is listed without a URL
		if rand.Float32() >= 0.1 {
			s.URL = fmt.Sprintf("https://srv%03d.netrek.test", i+1)
		}

		// 20% chance the location is left to GeoIP
		if rand.Float32() >= 0.2 {
			s.Location = pickLocation()
		}

		servers = append(servers, s)
	}

	return servers
}

// SeedStatuses records a random history row for every probeable server.
func SeedStatuses(store Recorder, servers []models.ServerDescriptor) {
	for _, s := range servers {
		if !s.Probeable() {
			continue
		}

		// Random date-time in 30 days range
		daysAgo := rand.Intn(30)
		seenTime := time.Now().Add(-time.Duration(daysAgo) * 24 * time.Hour).
			Add(-time.Duration(rand.Intn(1440)) * time.Minute)

		rec := models.StatusRecord{
			CardID:      directory.CardID(s.Name),
			Name:        s.DisplayName(),
			BaseURL:     s.BaseURL(),
			Status:      string(directory.StatusOffline),
			LastChecked: seenTime,
		}

		// 70% chance online
		if rand.Float32() < 0.7 {
			players := float64(rand.Intn(17))
			rec.Status = string(directory.StatusOnline)
			rec.Players = &players
			if rand.Float32() < 0.3 {
				rec.Instances = 2 + rand.Intn(3)
			}
		}

		if err := store.RecordStatus(rec); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake status")
		}
	}
}

func pickLocation() string {
	roll := rand.Float32()
	switch {
	case roll < 0.70:
		return pick(locationsHigh)
	case roll < 0.90:
		return pick(locationsMid)
	default:
		return pick(locationsLow)
	}
}

func pick(list []string) string {
	return list[rand.Intn(len(list))]
}

func pickN(list []string, n int) []string {
	out := make([]string, 0, n)
	for _, i := range rand.Perm(len(list))[:n] {
		out = append(out, list[i])
	}
	return out
}
