package state

import (
	"encoding/json"

	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

// handleVoiceStateUpdate mutates the member's owned voice state and moves
// the member between the connected sets of the affected voice channels.
func (p *Pipeline) handleVoiceStateUpdate(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.VoiceState
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}

	guildID := payload.GuildID.Int64()
	userID := payload.UserID.Int64()

	guild := p.store.Guild(guildID)
	if guild == nil {
		p.eventCache.Cache(KindGuild, guildID, seq,
			p.replayFunc(wire.EventVoiceStateUpdate, seq, data))
		return 0, nil
	}

	member, ok := guild.Members[userID]
	if !ok {
		p.eventCache.Cache(KindMember, userID, seq,
			p.replayFunc(wire.EventVoiceStateUpdate, seq, data))
		return 0, nil
	}

	vs := member.VoiceState
	if vs.Channel != nil {
		delete(vs.Channel.Connected, userID)
	}

	var channel *VoiceChannel
	if channelID := payload.ChannelID.Int64(); channelID != 0 {
		channel = guild.VoiceChannels[channelID]
		if channel == nil {
			p.logger.Error("Voice state update references a non-existent channel",
				zap.Int64("guild_id", guildID),
				zap.Int64("channel_id", channelID),
				zap.Int64("user_id", userID))
		} else {
			channel.Connected[userID] = member
		}
	}

	vs.Channel = channel
	vs.SessionID = payload.SessionID
	vs.GuildMute = payload.Mute
	vs.GuildDeaf = payload.Deaf
	vs.SelfMute = payload.SelfMute
	vs.SelfDeaf = payload.SelfDeaf
	vs.Suppressed = payload.Suppress

	p.dispatcher.Dispatch(VoiceStateUpdateEvent{Seq: seq, VoiceState: vs})
	return 0, nil
}
