// Package registry owns the community server list: a single-writer store
// handing out immutable snapshots, and the loader that refreshes it from a
// file or URL.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/models"
)

// ErrEmpty is returned when a load produced no servers.
var ErrEmpty = errors.New("server list is empty")

// Snapshot is an immutable view of the server list at one revision.
type Snapshot struct {
	LoadedAt time.Time                 `json:"loaded_at"`
	Source   string                    `json:"source"`
	Servers  []models.ServerDescriptor `json:"servers"`
	Revision uint64                    `json:"revision"`
	Digest   uint64                    `json:"digest"`
}

// Registry holds the current server list. Replace is the only writer;
// readers get deep copies so they never observe a later replacement.
type Registry struct {
	mu          sync.RWMutex
	current     Snapshot
	subscribers map[chan Snapshot]struct{}
}

// New creates a registry pre-populated with seed (usually the sample list).
func New(seed []models.ServerDescriptor, source string) *Registry {
	return &Registry{
		current: Snapshot{
			LoadedAt: time.Now(),
			Source:   source,
			Servers:  cloneServers(seed),
		},
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Snapshot returns a copy of the current list.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.current.clone()
}

// Replace swaps in a new non-empty list, bumps the revision and notifies
// subscribers. An empty list leaves the registry untouched.
func (r *Registry) Replace(servers []models.ServerDescriptor, source string, digest uint64) (Snapshot, error) {
	if len(servers) == 0 {
		return Snapshot{}, ErrEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = Snapshot{
		LoadedAt: time.Now(),
		Source:   source,
		Servers:  cloneServers(servers),
		Revision: r.current.Revision + 1,
		Digest:   digest,
	}

	for ch := range r.subscribers {
		publish(ch, r.current.clone())
	}

	return r.current.clone(), nil
}

// Subscribe returns a channel receiving every snapshot published after the
// call, and a function to stop the subscription. A slow reader only ever
// misses intermediate snapshots, never the latest one.
func (r *Registry) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscribers, ch)
			close(ch)
			r.mu.Unlock()
		})
	}

	return ch, cancel
}

// publish replaces any undelivered snapshot with snap. Called with r.mu held,
// so nothing else sends on ch concurrently.
func publish(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}
	ch <- snap
}

func (s Snapshot) clone() Snapshot {
	s.Servers = cloneServers(s.Servers)
	return s
}

func cloneServers(servers []models.ServerDescriptor) []models.ServerDescriptor {
	out := make([]models.ServerDescriptor, len(servers))
	for i, s := range servers {
		if s.Features != nil {
			s.Features = append([]string(nil), s.Features...)
		}
		out[i] = s
	}

	return out
}
