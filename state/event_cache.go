package state

import (
	"sync"

	"go.uber.org/zap"
)

// cachedEvent is a deferred continuation: replaying it re-enters the event's
// normal entry point with the original sequence number.
type cachedEvent struct {
	seq    int64
	replay func()
}

// cacheKey identifies one park point.
type cacheKey struct {
	kind EntityKind
	id   int64
}

// EventCache parks events that reference an entity not yet known locally.
// The instant the missing (kind, id) becomes resolvable the parked
// continuations replay in enqueue order. A continuation that fails again on
// the same key simply re-enqueues; there is no backoff or eviction.
type EventCache struct {
	logger  *zap.Logger
	store   *Store
	metrics *Metrics

	mu        sync.Mutex
	cache     map[EntityKind]map[int64][]cachedEvent
	replaying map[cacheKey]bool
}

func NewEventCache(logger *zap.Logger, store *Store, metrics *Metrics) *EventCache {
	return &EventCache{
		logger:    logger.With(zap.String("module", "event_cache")),
		store:     store,
		metrics:   metrics,
		cache:     make(map[EntityKind]map[int64][]cachedEvent),
		replaying: make(map[cacheKey]bool),
	}
}

// Cache defers a continuation on (kind, id), or invokes it immediately if
// the entity is already resolvable.
//
// Resolvability is a namespace check, not the handler's full dependency: a
// user can exist globally while the presence handler still needs it as a
// member of one particular guild. A continuation that parks on its own key
// while being replayed therefore re-enqueues instead of replaying again,
// otherwise the two would recurse into each other without bound.
func (c *EventCache) Cache(kind EntityKind, id int64, seq int64, replay func()) {
	key := cacheKey{kind: kind, id: id}

	c.mu.Lock()
	if !c.replaying[key] && c.store.Resolvable(kind, id) {
		c.replaying[key] = true
		c.mu.Unlock()

		replay()

		c.mu.Lock()
		delete(c.replaying, key)
		c.mu.Unlock()
		return
	}
	byID, ok := c.cache[kind]
	if !ok {
		byID = make(map[int64][]cachedEvent)
		c.cache[kind] = byID
	}
	byID[id] = append(byID[id], cachedEvent{seq: seq, replay: replay})
	c.mu.Unlock()

	c.metrics.eventCached()
	c.logger.Debug("Cached event on missing entity",
		zap.String("kind", kind.String()), zap.Int64("id", id), zap.Int64("seq", seq))
}

// Play drains and replays every continuation parked on (kind, id), in
// enqueue order, removing the key. Call it whenever an entity of that kind
// and id becomes known.
func (c *EventCache) Play(kind EntityKind, id int64) {
	c.mu.Lock()
	byID, ok := c.cache[kind]
	if !ok {
		c.mu.Unlock()
		return
	}
	events, ok := byID[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(byID, id)
	c.replaying[cacheKey{kind: kind, id: id}] = true
	c.mu.Unlock()

	for _, ev := range events {
		c.metrics.cacheReplayed()
		ev.replay()
	}

	c.mu.Lock()
	delete(c.replaying, cacheKey{kind: kind, id: id})
	c.mu.Unlock()
}

// Size returns the number of parked continuations.
func (c *EventCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, byID := range c.cache {
		for _, events := range byID {
			n += len(events)
		}
	}
	return n
}

// Clear drops every parked continuation, for use on reconnect.
func (c *EventCache) Clear() {
	c.mu.Lock()
	c.cache = make(map[EntityKind]map[int64][]cachedEvent)
	c.mu.Unlock()
}
