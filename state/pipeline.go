package state

import (
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

// HandlerFunc processes one dispatch event. A non-zero guild id return
// means the event was deferred because that guild is locked; the pipeline
// requeues the raw event by sequence number and replays it after unlock.
// An error return drops the event after logging.
type HandlerFunc func(seq int64, data json.RawMessage) (deferredGuildID int64, err error)

type pendingEvent struct {
	seq       int64
	eventType string
	data      json.RawMessage
}

// Pipeline routes decoded gateway events to their handlers.
//
// Events scoped to the same guild are serialized through a per-guild mutex;
// events for different guilds process fully in parallel. Continuations
// replayed from the event cache run inline on the goroutine that resolved
// the missing entity.
type Pipeline struct {
	logger     *zap.Logger
	config     *Config
	store      *Store
	builder    *Builder
	guildLock  *GuildLock
	eventCache *EventCache
	chunks     *ChunkCoordinator
	ready      *ReadyState
	dispatcher Dispatcher
	metrics    *Metrics

	handlers map[string]HandlerFunc
	readySeq atomic.Int64

	guildMu   MapOf[int64, *sync.Mutex]
	pendingMu sync.Mutex
	pending   map[int64][]pendingEvent
}

// NewPipeline wires the state core together. metrics may be nil.
func NewPipeline(logger *zap.Logger, config *Config, store *Store, dispatcher Dispatcher, ctrl ControlSender, metrics *Metrics) *Pipeline {
	guildLock := NewGuildLock(metrics)
	chunks := NewChunkCoordinator(logger, metrics)
	ready := NewReadyState(logger, ctrl)
	builder := NewBuilder(logger, store, config.Account(), guildLock, chunks, ctrl, ready)

	p := &Pipeline{
		logger:     logger.With(zap.String("module", "pipeline")),
		config:     config,
		store:      store,
		builder:    builder,
		guildLock:  guildLock,
		eventCache: NewEventCache(logger, store, metrics),
		chunks:     chunks,
		ready:      ready,
		dispatcher: dispatcher,
		metrics:    metrics,
		pending:    make(map[int64][]pendingEvent),
	}

	chunks.OnComplete(builder.CreateGuildSecondPass)
	ready.OnComplete(func() {
		dispatcher.Dispatch(ReadyEvent{Seq: p.readySeq.Load(), Self: store.SelfUser()})
	})

	p.handlers = map[string]HandlerFunc{
		wire.EventReady:             p.handleReady,
		wire.EventGuildCreate:       p.handleGuildCreate,
		wire.EventGuildDelete:       p.handleGuildDelete,
		wire.EventGuildSync:         p.handleGuildSync,
		wire.EventGuildMembersChunk: p.handleGuildMembersChunk,
		wire.EventMessageCreate:     p.handleMessageCreate,
		wire.EventMessageDelete:     p.handleMessageDelete,
		wire.EventMessageDeleteBulk: p.handleMessageDeleteBulk,
		wire.EventPresenceUpdate:    p.handlePresenceUpdate,
		wire.EventVoiceStateUpdate:  p.handleVoiceStateUpdate,
	}

	return p
}

func (p *Pipeline) Store() *Store                       { return p.store }
func (p *Pipeline) Builder() *Builder                   { return p.builder }
func (p *Pipeline) GuildLock() *GuildLock               { return p.guildLock }
func (p *Pipeline) EventCache() *EventCache             { return p.eventCache }
func (p *Pipeline) ChunkCoordinator() *ChunkCoordinator { return p.chunks }
func (p *Pipeline) ReadyState() *ReadyState             { return p.ready }

// bootstrapEvents must process even while their guild is locked; they are
// the events that drive the bootstrap itself.
var bootstrapEvents = map[string]bool{
	wire.EventReady:             true,
	wire.EventGuildCreate:       true,
	wire.EventGuildDelete:       true,
	wire.EventGuildSync:         true,
	wire.EventGuildMembersChunk: true,
}

// Dispatch routes one decoded gateway event by its event-type tag. seq is
// the transport-assigned sequence number.
func (p *Pipeline) Dispatch(eventType string, seq int64, data json.RawMessage) {
	p.metrics.eventDispatched(eventType)

	handler, ok := p.handlers[eventType]
	if !ok {
		p.logger.Debug("No handler for event type, dropping", zap.String("type", eventType))
		return
	}

	guildID := p.scopeGuildID(eventType, data)
	if guildID != 0 {
		mu, _ := p.guildMu.LoadOrStore(guildID, &sync.Mutex{})
		mu.Lock()
		defer mu.Unlock()

		if p.guildLock.IsLocked(guildID) && !bootstrapEvents[eventType] {
			p.requeue(guildID, eventType, seq, data)
			return
		}
	}

	p.run(eventType, handler, seq, data)

	if guildID != 0 {
		p.drainPending(guildID)
	}
}

// run executes one handler invocation with the top-level recovery the error
// taxonomy requires: invariant violations are logged and the single event
// dropped, never crashing the process.
func (p *Pipeline) run(eventType string, handler HandlerFunc, seq int64, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Dropping event after internal invariant violation",
				zap.String("type", eventType), zap.Int64("seq", seq), zap.Any("panic", r))
		}
	}()

	deferredGuildID, err := handler(seq, data)
	if err != nil {
		p.logger.Warn("Dropping event",
			zap.String("type", eventType), zap.Int64("seq", seq), zap.Error(err))
		return
	}
	if deferredGuildID != 0 {
		p.requeue(deferredGuildID, eventType, seq, data)
	}
}

// replayFunc captures an event for the event cache; replaying re-enters
// the handler with the original sequence number.
func (p *Pipeline) replayFunc(eventType string, seq int64, data json.RawMessage) func() {
	return func() {
		p.run(eventType, p.handlers[eventType], seq, data)
	}
}

func (p *Pipeline) requeue(guildID int64, eventType string, seq int64, data json.RawMessage) {
	p.metrics.eventDeferred()
	p.pendingMu.Lock()
	p.pending[guildID] = append(p.pending[guildID], pendingEvent{seq: seq, eventType: eventType, data: data})
	p.pendingMu.Unlock()
	p.logger.Debug("Requeued event for locked guild",
		zap.String("type", eventType), zap.Int64("guild_id", guildID), zap.Int64("seq", seq))
}

// drainPending replays events requeued for the guild, lowest sequence
// first, until the queue empties or the guild locks again. Runs with the
// guild's mutex already held.
func (p *Pipeline) drainPending(guildID int64) {
	for !p.guildLock.IsLocked(guildID) {
		p.pendingMu.Lock()
		events := p.pending[guildID]
		delete(p.pending, guildID)
		p.pendingMu.Unlock()

		if len(events) == 0 {
			return
		}

		sort.SliceStable(events, func(i, j int) bool { return events[i].seq < events[j].seq })

		for i, ev := range events {
			if p.guildLock.IsLocked(guildID) {
				p.pendingMu.Lock()
				p.pending[guildID] = append(events[i:], p.pending[guildID]...)
				p.pendingMu.Unlock()
				return
			}
			p.run(ev.eventType, p.handlers[ev.eventType], ev.seq, ev.data)
		}
	}
}

// scopeGuildID extracts the guild an event is scoped to, or 0 for global
// events and events whose guild cannot be determined yet.
func (p *Pipeline) scopeGuildID(eventType string, data json.RawMessage) int64 {
	switch eventType {
	case wire.EventGuildCreate, wire.EventGuildDelete, wire.EventGuildSync:
		var probe struct {
			ID wire.Snowflake `json:"id"`
		}
		_ = json.Unmarshal(data, &probe)
		return probe.ID.Int64()
	case wire.EventGuildMembersChunk, wire.EventPresenceUpdate, wire.EventVoiceStateUpdate:
		var probe struct {
			GuildID wire.Snowflake `json:"guild_id"`
		}
		_ = json.Unmarshal(data, &probe)
		return probe.GuildID.Int64()
	case wire.EventMessageCreate, wire.EventMessageDelete, wire.EventMessageDeleteBulk:
		var probe struct {
			ChannelID wire.Snowflake `json:"channel_id"`
		}
		_ = json.Unmarshal(data, &probe)
		if ch := p.store.TextChannel(probe.ChannelID.Int64()); ch != nil {
			return ch.Guild.ID
		}
		return 0
	default:
		return 0
	}
}

// afterGuildReady replays everything parked on entities the finished
// bootstrap just made resolvable.
func (p *Pipeline) afterGuildReady(guild *Guild) {
	p.metrics.guildReady()
	p.eventCache.Play(KindGuild, guild.ID)
	for id := range guild.TextChannels {
		p.eventCache.Play(KindChannel, id)
	}
	for id := range guild.VoiceChannels {
		p.eventCache.Play(KindChannel, id)
	}
	for id := range guild.Categories {
		p.eventCache.Play(KindChannel, id)
	}
	for id := range guild.Roles {
		p.eventCache.Play(KindRole, id)
	}
	for userID := range guild.Members {
		p.eventCache.Play(KindUser, userID)
		p.eventCache.Play(KindMember, userID)
	}
}

// CancelBootstrap aborts a guild's in-flight chunk wait: the coordinator
// entry and parked payload are discarded and the guild unlocks so queued
// events flow again against whatever state the first pass built. The
// transport calls this when the chunk wait times out.
func (p *Pipeline) CancelBootstrap(guildID int64) {
	mu, _ := p.guildMu.LoadOrStore(guildID, &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	p.logger.Warn("Cancelling guild bootstrap", zap.Int64("guild_id", guildID))
	p.chunks.Cancel(guildID)
	p.builder.ClearCachedGuild(guildID)
	p.ready.GuildReady(guildID)
	p.guildLock.Unlock(guildID)
	p.drainPending(guildID)
}

// Reset clears all state for a reconnect: the store, the event cache, the
// guild locks, the chunk coordinator, parked bootstrap payloads and the
// handshake tracker.
func (p *Pipeline) Reset() {
	p.pendingMu.Lock()
	p.pending = make(map[int64][]pendingEvent)
	p.pendingMu.Unlock()

	p.store.Reset()
	p.eventCache.Clear()
	p.guildLock.Clear()
	p.chunks.Clear()
	p.builder.ClearCache()
	p.ready.Reset()
}
