package state

import (
	"sync"

	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

// chunkTracker accumulates member chunk batches for one guild until the
// running total reaches the expected member count.
type chunkTracker struct {
	expected int
	received int
	batches  [][]wire.Member
}

// ChunkCoordinator tracks guilds whose bootstrap is waiting for member
// chunks from the control channel. When a guild's cumulative received count
// reaches the expected member count, the entry is removed and the
// completion callback fires with the batches in arrival order.
type ChunkCoordinator struct {
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	tracking map[int64]*chunkTracker

	// onComplete is the bootstrap's second pass.
	onComplete func(guildID int64, batches [][]wire.Member)
}

func NewChunkCoordinator(logger *zap.Logger, metrics *Metrics) *ChunkCoordinator {
	return &ChunkCoordinator{
		logger:   logger.With(zap.String("module", "chunk_coordinator")),
		metrics:  metrics,
		tracking: make(map[int64]*chunkTracker),
	}
}

// OnComplete registers the completion callback. Must be set before any
// chunk can arrive.
func (c *ChunkCoordinator) OnComplete(fn func(guildID int64, batches [][]wire.Member)) {
	c.onComplete = fn
}

// SetExpected opens a tracking entry for the guild. Registration must
// precede dispatch of any chunk request for the guild.
func (c *ChunkCoordinator) SetExpected(guildID int64, count int) {
	c.mu.Lock()
	c.tracking[guildID] = &chunkTracker{expected: count}
	c.mu.Unlock()
}

// Expected returns the remaining member count the guild is waiting on.
func (c *ChunkCoordinator) Expected(guildID int64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tracking[guildID]
	if !ok {
		return 0, false
	}
	return t.expected - t.received, true
}

// Accept appends a batch and, once the cumulative count reaches the
// expectation, atomically removes the entry and triggers the second pass.
// Batches for a guild without a tracking entry are dropped; that happens
// legitimately when an unavailability event cancelled the wait.
func (c *ChunkCoordinator) Accept(guildID int64, members []wire.Member) {
	c.mu.Lock()
	t, ok := c.tracking[guildID]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("Dropping member chunk for guild with no pending bootstrap",
			zap.Int64("guild_id", guildID), zap.Int("count", len(members)))
		return
	}

	t.batches = append(t.batches, members)
	t.received += len(members)
	c.metrics.chunkAccepted()

	if t.received < t.expected {
		remaining := t.expected - t.received
		c.mu.Unlock()
		c.logger.Debug("Accepted member chunk",
			zap.Int64("guild_id", guildID), zap.Int("count", len(members)), zap.Int("remaining", remaining))
		return
	}

	delete(c.tracking, guildID)
	batches := t.batches
	c.mu.Unlock()

	c.onComplete(guildID, batches)
}

// Cancel discards the tracking entry; further batches for the guild are
// ignored. Used when a guild becomes unavailable mid-bootstrap or the
// chunk wait times out.
func (c *ChunkCoordinator) Cancel(guildID int64) {
	c.mu.Lock()
	_, ok := c.tracking[guildID]
	delete(c.tracking, guildID)
	c.mu.Unlock()
	if ok {
		c.logger.Debug("Cancelled member chunk wait", zap.Int64("guild_id", guildID))
	}
}

// Clear discards every tracking entry, for use on reconnect.
func (c *ChunkCoordinator) Clear() {
	c.mu.Lock()
	c.tracking = make(map[int64]*chunkTracker)
	c.mu.Unlock()
}
