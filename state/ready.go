package state

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ReadyState is the initial-handshake collaborator. It tracks which guilds
// the handshake payload promised, batches their chunk and sync requests
// into single burst control messages, and flips the client ready once every
// promised guild has finished bootstrapping.
type ReadyState struct {
	logger *zap.Logger
	ctrl   ControlSender

	completed atomic.Bool

	mu          sync.Mutex
	awaiting    map[int64]struct{}
	chunkGuilds []int64
	syncGuilds  []int64
	burstSent   bool

	onComplete func()
}

func NewReadyState(logger *zap.Logger, ctrl ControlSender) *ReadyState {
	return &ReadyState{
		logger:   logger.With(zap.String("module", "ready")),
		ctrl:     ctrl,
		awaiting: make(map[int64]struct{}),
	}
}

// OnComplete registers the callback fired once when the handshake finishes.
func (r *ReadyState) OnComplete(fn func()) {
	r.onComplete = fn
}

// Completed reports whether the initial handshake has finished; past this
// point guild bootstraps issue their own chunk and sync requests.
func (r *ReadyState) Completed() bool {
	return r.completed.Load()
}

// Expect registers a guild the handshake payload promised. The handshake
// is not complete until every expected guild reports ready.
func (r *ReadyState) Expect(guildID int64) {
	r.mu.Lock()
	r.awaiting[guildID] = struct{}{}
	r.mu.Unlock()
}

// AcknowledgeGuild queues the guild's chunk/sync needs for the burst
// request sent at the end of the handshake pass. Once the burst has gone
// out the requests are sent directly instead: bot accounts receive their
// real guild payloads one GUILD_CREATE at a time after READY, long after
// the burst, and queueing those would strand the guild locked with no
// request ever on the wire.
func (r *ReadyState) AcknowledgeGuild(guild *Guild, needsChunk, needsSync bool) {
	r.mu.Lock()
	if !r.burstSent {
		if needsChunk {
			r.chunkGuilds = append(r.chunkGuilds, guild.ID)
		}
		if needsSync {
			r.syncGuilds = append(r.syncGuilds, guild.ID)
		}
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if needsSync {
		if err := r.ctrl.SendGuildSyncRequest(guild.ID); err != nil {
			r.logger.Warn("Failed to send guild sync request", zap.Int64("guild_id", guild.ID), zap.Error(err))
		}
	}
	if needsChunk {
		if err := r.ctrl.SendMemberChunkRequest(guild.ID); err != nil {
			r.logger.Warn("Failed to send member chunk request", zap.Int64("guild_id", guild.ID), zap.Error(err))
		}
	}
}

// FinishHandshakePass sends the accumulated burst requests. Called once the
// handshake payload's guilds have all been through their first pass.
func (r *ReadyState) FinishHandshakePass() {
	r.mu.Lock()
	chunkGuilds := r.chunkGuilds
	syncGuilds := r.syncGuilds
	r.chunkGuilds = nil
	r.syncGuilds = nil
	r.burstSent = true
	r.mu.Unlock()

	if len(syncGuilds) > 0 {
		if err := r.ctrl.SendGuildSyncRequest(syncGuilds...); err != nil {
			r.logger.Warn("Failed to send handshake sync burst", zap.Error(err))
		}
	}
	if len(chunkGuilds) > 0 {
		if err := r.ctrl.SendMemberChunkRequest(chunkGuilds...); err != nil {
			r.logger.Warn("Failed to send handshake chunk burst", zap.Error(err))
		}
	}

	r.maybeComplete()
}

// GuildReady marks one expected guild as fully bootstrapped.
func (r *ReadyState) GuildReady(guildID int64) {
	r.mu.Lock()
	delete(r.awaiting, guildID)
	r.mu.Unlock()
	r.maybeComplete()
}

// Awaiting returns the guild ids the handshake is still waiting on.
func (r *ReadyState) Awaiting() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.awaiting))
	for id := range r.awaiting {
		out = append(out, id)
	}
	return out
}

// Reset rearms the handshake for a reconnect.
func (r *ReadyState) Reset() {
	r.mu.Lock()
	r.awaiting = make(map[int64]struct{})
	r.chunkGuilds = nil
	r.syncGuilds = nil
	r.burstSent = false
	r.mu.Unlock()
	r.completed.Store(false)
}

func (r *ReadyState) maybeComplete() {
	r.mu.Lock()
	done := r.burstSent && len(r.awaiting) == 0
	r.mu.Unlock()

	if done && r.completed.CompareAndSwap(false, true) {
		r.logger.Info("Initial handshake complete")
		if r.onComplete != nil {
			r.onComplete()
		}
	}
}
