package state

import (
	"fmt"

	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

// CreateGuildFirstPass runs the first bootstrap pass over a guild payload.
//
// An unavailable payload upserts the guild as unavailable, locks it and
// returns control through the callback. An available payload fills in
// everything that does not depend on the full member list, then either
// finishes inline (payload carried every member) or parks the raw payload
// and callback, registers the expected count with the chunk coordinator and
// leaves the guild locked until CreateGuildSecondPass.
func (b *Builder) CreateGuildFirstPass(payload *wire.Guild, secondPassCallback func(*Guild)) {
	id := payload.ID.Int64()
	guild := b.store.Guild(id)
	if guild == nil {
		guild = newGuild(id)
		b.store.guilds.Store(id, guild)
	}

	if payload.Unavailable {
		guild.Available = false
		b.guildLock.Lock(id)
		if secondPassCallback != nil {
			secondPassCallback(guild)
		}
		return
	}

	guild.Available = true
	guild.Name = payload.Name
	guild.Region = payload.Region
	guild.Icon = payload.Icon
	guild.Splash = payload.Splash
	guild.AFKTimeout = payload.AFKTimeout
	guild.VerificationLevel = payload.VerificationLevel
	guild.NotificationLevel = payload.NotificationLevel
	guild.MFALevel = payload.MFALevel
	guild.ExplicitContentLevel = payload.ExplicitContent

	for i := range payload.Roles {
		role := b.CreateRole(guild, &payload.Roles[i])
		if role.ID == guild.ID {
			guild.PublicRole = role
		}
	}

	for i := range payload.Emotes {
		b.CreateEmote(guild, &payload.Emotes[i])
	}

	b.createGuildMemberPass(guild, payload.Members)

	// The owner may not be resolvable yet; the second pass retries.
	if owner, ok := guild.Members[payload.OwnerID.Int64()]; ok {
		guild.Owner = owner
	}

	for i := range payload.Presences {
		presence := &payload.Presences[i]
		member, ok := guild.Members[presence.User.ID.Int64()]
		if !ok {
			b.logger.Debug("Ghost presence in guild first pass, skipping",
				zap.Int64("guild_id", guild.ID),
				zap.Int64("user_id", presence.User.ID.Int64()))
			continue
		}
		if err := b.CreatePresence(member, presence); err != nil {
			b.logger.Warn("Failed to merge first-pass presence", zap.Error(err))
		}
	}

	for i := range payload.Channels {
		channel := &payload.Channels[i]
		switch channel.Type {
		case wire.ChannelTypeText:
			b.CreateTextChannel(channel, guild.ID, false)
		case wire.ChannelTypeVoice:
			b.CreateVoiceChannel(channel, guild.ID, false)
		case wire.ChannelTypeCategory:
			b.CreateCategory(channel, guild.ID, false)
		default:
			b.logger.Error("Guild payload carries a channel of unknown type, skipping",
				zap.Int64("guild_id", guild.ID),
				zap.Int64("channel_id", channel.ID.Int64()),
				zap.Int("channel_type", channel.Type))
		}
	}

	if payload.SystemChannelID != 0 {
		guild.SystemChannel = guild.TextChannels[payload.SystemChannelID.Int64()]
	}
	if payload.AFKChannelID != 0 {
		guild.AFKChannel = guild.VoiceChannels[payload.AFKChannelID.Int64()]
	}

	// If the payload did not carry the whole member list we need one or
	// more chunk rounds before anything that depends on members (overrides,
	// voice states) can be built. Park the payload for the second pass.
	if len(payload.Members) != payload.MemberCount {
		b.mu.Lock()
		b.cachedGuilds[id] = payload
		b.cachedCallbacks[id] = secondPassCallback
		b.mu.Unlock()

		b.chunks.SetExpected(id, payload.MemberCount)

		if b.handshake.Completed() {
			if b.accountType == AccountTypeClient {
				if err := b.ctrl.SendGuildSyncRequest(id); err != nil {
					b.logger.Warn("Failed to send guild sync request", zap.Int64("guild_id", id), zap.Error(err))
				}
			}
			if err := b.ctrl.SendMemberChunkRequest(id); err != nil {
				b.logger.Warn("Failed to send member chunk request", zap.Int64("guild_id", id), zap.Error(err))
			}
		} else {
			b.handshake.AcknowledgeGuild(guild, true, b.accountType == AccountTypeClient)
		}

		b.guildLock.Lock(id)
		return
	}

	// Small guild: everything needed arrived in one payload. Run the
	// lightweight second pass inline and hand the guild over.
	b.createGuildChannelPass(guild, payload.Channels)
	b.createGuildVoiceStatePass(guild, payload.VoiceStates)

	b.guildLock.Unlock(id)
	if secondPassCallback != nil {
		secondPassCallback(guild)
	}
}

// CreateGuildSecondPass completes a bootstrap that waited for member
// chunks: the accumulated batches are applied, the owning member is
// re-resolved, and the parts of the original payload that depend on the
// full member list (permission overrides, voice states) are built. Finally
// the deferred callback fires and the guild unlocks.
//
// Calling this for a guild with no parked payload is a coordinator bug and
// panics; the dispatch loop recovers, logs and drops the triggering event.
func (b *Builder) CreateGuildSecondPass(guildID int64, memberChunks [][]wire.Member) {
	b.mu.Lock()
	payload := b.cachedGuilds[guildID]
	callback := b.cachedCallbacks[guildID]
	delete(b.cachedGuilds, guildID)
	delete(b.cachedCallbacks, guildID)
	b.mu.Unlock()

	guild := b.store.Guild(guildID)
	if guild == nil {
		panic(fmt.Errorf("second pass for guild %d: guild not in store", guildID))
	}
	if payload == nil {
		panic(fmt.Errorf("second pass for guild %d: no cached bootstrap payload", guildID))
	}

	for _, chunk := range memberChunks {
		b.createGuildMemberPass(guild, chunk)
	}

	if owner, ok := guild.Members[payload.OwnerID.Int64()]; ok {
		guild.Owner = owner
	}
	if guild.Owner == nil {
		b.logger.Error("Guild owner still unresolvable after second pass",
			zap.Int64("guild_id", guild.ID),
			zap.Int64("owner_id", payload.OwnerID.Int64()))
	}

	b.createGuildChannelPass(guild, payload.Channels)
	b.createGuildVoiceStatePass(guild, payload.VoiceStates)

	if callback != nil {
		callback(guild)
	}
	b.guildLock.Unlock(guildID)
}

// HandleGuildSync applies a sync pass (members plus presences) to an
// already bootstrapped guild. Client accounts use this to complete
// presences the chunk responses do not carry.
func (b *Builder) HandleGuildSync(guild *Guild, members []wire.Member, presences []wire.Presence) {
	b.createGuildMemberPass(guild, members)

	for i := range presences {
		presence := &presences[i]
		member, ok := guild.Members[presence.User.ID.Int64()]
		if !ok {
			b.logger.Error("Sync pass presence for a member that does not exist, skipping",
				zap.Int64("guild_id", guild.ID),
				zap.Int64("user_id", presence.User.ID.Int64()))
			continue
		}
		if err := b.CreatePresence(member, presence); err != nil {
			b.logger.Warn("Failed to merge sync-pass presence", zap.Error(err))
		}
	}
}

func (b *Builder) createGuildMemberPass(guild *Guild, members []wire.Member) {
	for i := range members {
		b.CreateMember(guild, &members[i])
	}
}

// createGuildChannelPass builds the permission overrides of every channel
// in the payload, now that the member list is complete.
func (b *Builder) createGuildChannelPass(guild *Guild, channels []wire.Channel) {
	for i := range channels {
		channel := &channels[i]
		id := channel.ID.Int64()

		var overrides map[int64]*PermissionOverride
		switch channel.Type {
		case wire.ChannelTypeText:
			if c := guild.TextChannels[id]; c != nil {
				overrides = c.Overrides
			}
		case wire.ChannelTypeVoice:
			if c := guild.VoiceChannels[id]; c != nil {
				overrides = c.Overrides
			}
		case wire.ChannelTypeCategory:
			if c := guild.Categories[id]; c != nil {
				overrides = c.Overrides
			}
		default:
			b.logger.Error("Channel pass hit a channel of unknown type, skipping",
				zap.Int64("guild_id", guild.ID),
				zap.Int64("channel_id", id),
				zap.Int("channel_type", channel.Type))
			continue
		}

		if overrides == nil {
			b.logger.Error("Permission overrides for a channel that was never built, skipping",
				zap.Int64("guild_id", guild.ID),
				zap.Int64("channel_id", id))
			continue
		}

		b.CreateOverridesPass(guild, overrides, channel.Overwrites)
	}
}

// createGuildVoiceStatePass applies the payload's voice states, now that
// every member exists.
func (b *Builder) createGuildVoiceStatePass(guild *Guild, states []wire.VoiceState) {
	for i := range states {
		stateJSON := &states[i]
		userID := stateJSON.UserID.Int64()
		member, ok := guild.Members[userID]
		if !ok {
			b.logger.Error("Voice state for an unknown member, skipping",
				zap.Int64("guild_id", guild.ID), zap.Int64("user_id", userID))
			continue
		}

		channelID := stateJSON.ChannelID.Int64()
		channel := guild.VoiceChannels[channelID]
		if channel != nil {
			channel.Connected[userID] = member
		} else {
			b.logger.Error("Voice state references a non-existent channel",
				zap.Int64("guild_id", guild.ID),
				zap.Int64("channel_id", channelID),
				zap.Int64("user_id", userID))
		}

		vs := member.VoiceState
		vs.SelfMute = stateJSON.SelfMute
		vs.SelfDeaf = stateJSON.SelfDeaf
		vs.GuildMute = stateJSON.Mute
		vs.GuildDeaf = stateJSON.Deaf
		vs.Suppressed = stateJSON.Suppress
		vs.SessionID = stateJSON.SessionID
		vs.Channel = channel
	}
}
