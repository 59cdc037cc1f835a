package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kiliankoe/georacer/internal/game"
	"github.com/rs/zerolog/log"
)

// Feed periodically picks a random target and broadcasts it to everyone watching,
// independent of any lobby.
type Feed struct {
	catalog game.Catalog
	clock   clockwork.Clock
	period  time.Duration
	hub     *game.Hub

	mu      sync.RWMutex
	current *game.GameObject
}

func New(catalog game.Catalog, clock clockwork.Clock, period time.Duration, buffer int) *Feed {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Feed{catalog: catalog, clock: clock, period: period, hub: game.NewHub(buffer)}
}

// Run picks a target right away and then once per period until ctx ends.
func (f *Feed) Run(ctx context.Context) error {
	ticker := f.clock.NewTicker(f.period)
	defer ticker.Stop()
	defer f.hub.Close()

	f.rotate(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			f.rotate(ctx)
		}
	}
}

func (f *Feed) rotate(ctx context.Context) {
	obj, err := f.catalog.Sample(ctx)
	if errors.Is(err, game.ErrNoObjects) {
		log.Warn().Msg("no game objects to sample for the feed")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("feed could not sample target")
		return
	}

	f.mu.Lock()
	f.current = &obj
	f.mu.Unlock()
	f.hub.Publish(game.FeedTargetMessage(obj))
	log.Info().Str("target", obj.Name).Int("receivers", f.hub.Len()).Msg("selected new feed target")
}

func (f *Feed) Current() (game.GameObject, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return game.GameObject{}, false
	}
	return *f.current, true
}

// Subscribe starts with the current target, if there is one.
func (f *Feed) Subscribe() *game.Subscription {
	sub := f.hub.Subscribe("")
	if obj, ok := f.Current(); ok {
		sub.Offer(game.FeedTargetMessage(obj))
	}
	return sub
}
