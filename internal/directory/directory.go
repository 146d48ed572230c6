// Package directory renders the community server list into cards and keeps
// them current as probe results arrive.
//
// Every rebuild starts a new generation. Probes capture the generation they
// were issued under and their results are dropped once it is superseded, so
// a slow server can never patch a card from an older list.
package directory

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/neonetrek/neonetrek-site/internal/models"
	"github.com/neonetrek/neonetrek-site/internal/registry"
	"github.com/rs/zerolog/log"
)

const (
	// eventBufferSize is the per-subscriber backlog before events are dropped.
	eventBufferSize = 64

	// locateTimeout bounds one location lookup.
	locateTimeout = 5 * time.Second
)

// Prober checks a server's health and lists its instances.
type Prober interface {
	Health(ctx context.Context, s models.ServerDescriptor) (models.HealthReport, error)
	Instances(ctx context.Context, s models.ServerDescriptor) ([]models.InstanceDescriptor, error)
}

// Locator resolves a server host to a display location (country code).
type Locator interface {
	Locate(ctx context.Context, host string) string
}

// Recorder persists settled card states.
type Recorder interface {
	RecordStatus(rec models.StatusRecord) error
}

// EventType distinguishes directory events.
type EventType string

const (
	// EventRebuild announces a new generation; all previous cards are gone.
	EventRebuild EventType = "rebuild"

	// EventCard carries the new state of one card.
	EventCard EventType = "card"
)

// Event is published to subscribers on every rebuild and card change.
type Event struct {
	Card       *Card     `json:"card,omitempty"`
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
}

// View is a consistent copy of all cards of one generation.
type View struct {
	BuiltAt    time.Time `json:"built_at"`
	Cards      []Card    `json:"cards"`
	Generation uint64    `json:"generation"`
	Revision   uint64    `json:"revision"`
}

// Directory holds the cards of the current generation.
type Directory struct {
	prober   Prober
	recorder Recorder
	locator  Locator

	mu         sync.RWMutex
	cards      map[string]*Card
	order      []string
	builtAt    time.Time
	generation uint64
	revision   uint64

	subMu       sync.Mutex
	subscribers map[chan Event]struct{}

	// inflight tracks running probes so shutdown and tests can wait for them.
	inflight sync.WaitGroup
}

// New creates an empty directory. recorder may be nil.
func New(prober Prober, recorder Recorder) *Directory {
	return &Directory{
		prober:      prober,
		recorder:    recorder,
		cards:       make(map[string]*Card),
		subscribers: make(map[chan Event]struct{}),
	}
}

// UseLocator sets the lookup used to fill missing card locations.
// Cards built before the call are not located.
func (d *Directory) UseLocator(l Locator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locator = l
}

// Rebuild replaces every card with fresh unprobed cards for snap, then fires
// a health and an instance probe for each card with a URL, plus a location
// lookup when the server lists none. It returns as soon as the cards exist;
// probes complete in the background.
//
// Names that normalize to the same card ID share one slot: the later
// descriptor wins and only it is probed.
func (d *Directory) Rebuild(ctx context.Context, snap registry.Snapshot) uint64 {
	cards := make(map[string]*Card, len(snap.Servers))
	targets := make(map[string]models.ServerDescriptor, len(snap.Servers))
	order := make([]string, 0, len(snap.Servers))

	for _, s := range snap.Servers {
		card := newCard(s)
		if _, taken := cards[card.ID]; taken {
			log.Debug().Str("card", card.ID).Str("name", s.Name).Msg("Card ID collision, later server wins")
		} else {
			order = append(order, card.ID)
		}
		cards[card.ID] = &card
		targets[card.ID] = s
	}

	d.mu.Lock()
	locator := d.locator

	hosts := make(map[string]string)
	probes := 0
	for _, id := range order {
		s := targets[id]
		if !s.Probeable() {
			continue
		}
		probes += 2
		if locator != nil && s.Location == "" {
			if host := hostOf(s.URL); host != "" {
				hosts[id] = host
				probes++
			}
		}
	}

	d.generation++
	gen := d.generation
	d.cards = cards
	d.order = order
	d.revision = snap.Revision
	d.builtAt = time.Now()
	// Registered before the new generation becomes visible, so Wait never
	// misses probes of a pass a reader has already observed.
	d.inflight.Add(probes)
	d.broadcast(Event{Type: EventRebuild, Generation: gen})
	d.mu.Unlock()

	log.Debug().
		Uint64("generation", gen).
		Uint64("revision", snap.Revision).
		Int("cards", len(order)).
		Msg("Directory rebuilt")

	for _, id := range order {
		s := targets[id]
		if !s.Probeable() {
			continue
		}

		go d.probeHealth(ctx, gen, id, s)
		go d.probeInstances(ctx, gen, id, s)
		if host, ok := hosts[id]; ok {
			go d.locate(ctx, gen, id, host, locator)
		}
	}

	return gen
}

// Watch renders the registry's current list and rebuilds on every published
// snapshot until ctx is done.
func (d *Directory) Watch(ctx context.Context, reg *registry.Registry) {
	updates, cancel := reg.Subscribe()
	defer cancel()

	d.Rebuild(ctx, reg.Snapshot())

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.Revision <= d.Revision() {
				continue
			}
			d.Rebuild(ctx, snap)
		}
	}
}

// View returns a copy of all cards in display order.
func (d *Directory) View() View {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cards := make([]Card, 0, len(d.order))
	for _, id := range d.order {
		cards = append(cards, d.cards[id].clone())
	}

	return View{
		BuiltAt:    d.builtAt,
		Cards:      cards,
		Generation: d.generation,
		Revision:   d.revision,
	}
}

// Card returns a copy of one card of the current generation.
func (d *Directory) Card(id string) (Card, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.cards[id]
	if !ok {
		return Card{}, false
	}
	return c.clone(), true
}

// Generation returns the current render generation.
func (d *Directory) Generation() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation
}

// Revision returns the registry revision the current cards were built from.
func (d *Directory) Revision() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// Wait blocks until every probe issued so far has completed.
func (d *Directory) Wait() {
	d.inflight.Wait()
}

// Subscribe returns a channel of directory events and a function ending the
// subscription. Events are dropped for subscribers that fall behind.
func (d *Directory) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBufferSize)

	d.subMu.Lock()
	d.subscribers[ch] = struct{}{}
	d.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subscribers, ch)
			close(ch)
			d.subMu.Unlock()
		})
	}
}

func (d *Directory) broadcast(e Event) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	for ch := range d.subscribers {
		select {
		case ch <- e:
		default:
			log.Trace().Str("type", string(e.Type)).Msg("Subscriber behind, event dropped")
		}
	}
}

func (d *Directory) probeHealth(ctx context.Context, gen uint64, id string, s models.ServerDescriptor) {
	defer d.inflight.Done()

	report, err := d.prober.Health(ctx, s)
	if err != nil {
		log.Debug().Err(err).Str("card", id).Str("url", s.URL).Msg("Health probe failed")
	}

	d.apply(gen, id, func(c *Card) bool {
		if c.healthSettled {
			return false
		}
		c.healthSettled = true

		if err != nil {
			c.Status = StatusOffline
			return true
		}

		c.Status = StatusOnline
		// An instance breakdown already owns the count
		if report.Players != nil && !c.instancesShown {
			c.setPlayers(*report.Players)
		}
		return true
	})
}

func (d *Directory) probeInstances(ctx context.Context, gen uint64, id string, s models.ServerDescriptor) {
	defer d.inflight.Done()

	instances, err := d.prober.Instances(ctx, s)
	if err != nil {
		log.Trace().Err(err).Str("card", id).Msg("No instance data")
		return
	}
	if len(instances) <= 1 {
		return
	}

	d.apply(gen, id, func(c *Card) bool {
		if c.instancesShown {
			return false
		}
		c.instancesShown = true

		total := 0
		c.Instances = make([]Instance, 0, len(instances))
		for _, inst := range instances {
			total += inst.Connections
			c.Instances = append(c.Instances, Instance{
				ID:          inst.ID,
				Name:        inst.Name,
				Description: inst.Description,
				Features:    append([]string(nil), inst.Features...),
				Players:     inst.Connections,
				PlayerText:  PlayerText(float64(inst.Connections)),
				JoinURL:     InstanceURL(c.BaseURL, inst.ID),
			})
		}

		c.setPlayers(float64(total))
		c.JoinURL = InstanceURL(c.BaseURL, instances[0].ID)
		return true
	})
}

// apply mutates a card of generation gen. It is a no-op when the generation
// has been superseded, the card is gone, or mutate reports no change.
func (d *Directory) apply(gen uint64, id string, mutate func(c *Card) bool) {
	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		log.Trace().Uint64("generation", gen).Str("card", id).Msg("Stale probe result ignored")
		return
	}

	c, ok := d.cards[id]
	if !ok || !mutate(c) {
		d.mu.Unlock()
		return
	}
	updated := c.clone()
	// Broadcast under the lock so subscribers see updates in apply order
	d.broadcast(Event{Type: EventCard, Generation: gen, Card: &updated})
	d.mu.Unlock()

	d.record(updated)
}

// locate fills a card's missing location from its host. The card keeps the
// default location when the lookup finds nothing.
func (d *Directory) locate(ctx context.Context, gen uint64, id, host string, locator Locator) {
	defer d.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, locateTimeout)
	defer cancel()

	code := locator.Locate(ctx, host)
	if code == "" {
		return
	}

	d.apply(gen, id, func(c *Card) bool {
		if c.Location == code {
			return false
		}
		c.Location = code
		return true
	})
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (d *Directory) record(c Card) {
	// Nothing settled yet, e.g. only the location changed
	if d.recorder == nil || (c.Status == StatusUnknown && len(c.Instances) == 0) {
		return
	}

	rec := models.StatusRecord{
		CardID:      c.ID,
		Name:        c.Name,
		BaseURL:     c.BaseURL,
		Status:      string(c.Status),
		Players:     c.Players,
		Instances:   len(c.Instances),
		LastChecked: time.Now(),
	}

	if err := d.recorder.RecordStatus(rec); err != nil {
		log.Warn().Err(err).Str("card", c.ID).Msg("Failed to record server status")
	}
}
