package state

import (
	"encoding/json"
	"fmt"

	wire "github.com/echotools/concord/protocol"
)

// handleGuildCreate covers three cases sharing one payload shape: a guild
// joined after the handshake, a previously unavailable guild coming back,
// and the completion payload for a guild the handshake promised.
func (p *Pipeline) handleGuildCreate(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.Guild
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}

	guildID := payload.ID.Int64()
	existing := p.store.Guild(guildID)
	wasUnavailable := existing != nil && !existing.Available

	if !p.ready.Completed() {
		p.builder.CreateGuildFirstPass(&payload, p.handshakeGuildCallback)
		return 0, nil
	}

	p.builder.CreateGuildFirstPass(&payload, func(guild *Guild) {
		if !guild.Available {
			// Arrived unavailable; a later GUILD_CREATE completes it.
			p.dispatcher.Dispatch(GuildUnavailableEvent{Seq: seq, Guild: guild})
			return
		}
		p.afterGuildReady(guild)
		if wasUnavailable {
			p.dispatcher.Dispatch(GuildAvailableEvent{Seq: seq, Guild: guild})
		} else {
			p.dispatcher.Dispatch(GuildJoinEvent{Seq: seq, Guild: guild})
		}
	})
	return 0, nil
}

// handleGuildDelete distinguishes an outage (unavailable flag set) from an
// actual removal. An outage mid-bootstrap supersedes the chunk wait: the
// coordinator entry and parked payload are discarded and further batches
// for the guild are ignored.
func (p *Pipeline) handleGuildDelete(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.GuildDelete
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}

	guildID := payload.ID.Int64()
	guild := p.store.Guild(guildID)
	if guild == nil {
		p.eventCache.Cache(KindGuild, guildID, seq, p.replayFunc(wire.EventGuildDelete, seq, data))
		return 0, nil
	}

	if payload.Unavailable {
		guild.Available = false
		p.chunks.Cancel(guildID)
		p.builder.ClearCachedGuild(guildID)
		p.guildLock.Lock(guildID)
		p.dispatcher.Dispatch(GuildUnavailableEvent{Seq: seq, Guild: guild})
		return 0, nil
	}

	for id := range guild.TextChannels {
		p.store.textChannels.Delete(id)
	}
	for id := range guild.VoiceChannels {
		p.store.voiceChannels.Delete(id)
	}
	for id := range guild.Categories {
		p.store.categories.Delete(id)
	}
	p.chunks.Cancel(guildID)
	p.builder.ClearCachedGuild(guildID)
	p.store.guilds.Delete(guildID)
	p.guildLock.Unlock(guildID)

	p.dispatcher.Dispatch(GuildLeaveEvent{Seq: seq, Guild: guild})
	return 0, nil
}

// handleGuildMembersChunk feeds one member batch to the coordinator; the
// coordinator triggers the bootstrap second pass when the running total
// reaches the expected member count.
func (p *Pipeline) handleGuildMembersChunk(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.MembersChunk
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}
	p.chunks.Accept(payload.GuildID.Int64(), payload.Members)
	return 0, nil
}

// handleGuildSync applies a presence sync pass to a bootstrapped guild.
func (p *Pipeline) handleGuildSync(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.GuildSync
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}

	guild := p.store.Guild(payload.GuildID.Int64())
	if guild == nil {
		return 0, fmt.Errorf("sync pass for unknown guild %d", payload.GuildID.Int64())
	}
	p.builder.HandleGuildSync(guild, payload.Members, payload.Presences)
	return 0, nil
}
