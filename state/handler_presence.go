package state

import (
	"encoding/json"

	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

// handlePresenceUpdate merges a presence into either a guild member or a
// friend, depending on whether the payload is guild scoped. A target that
// is not yet known parks the event on the missing entity.
func (p *Pipeline) handlePresenceUpdate(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.Presence
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}

	userID := payload.User.ID.Int64()

	if payload.GuildID != 0 {
		guildID := payload.GuildID.Int64()
		guild := p.store.Guild(guildID)
		if guild == nil {
			p.eventCache.Cache(KindGuild, guildID, seq,
				p.replayFunc(wire.EventPresenceUpdate, seq, data))
			return 0, nil
		}

		member, ok := guild.Members[userID]
		if !ok {
			p.logger.Debug("Presence for a member not yet known, caching",
				zap.Int64("guild_id", guildID), zap.Int64("user_id", userID))
			p.eventCache.Cache(KindMember, userID, seq,
				p.replayFunc(wire.EventPresenceUpdate, seq, data))
			return 0, nil
		}

		// Presence payloads also carry user field changes.
		if payload.User.Username != "" {
			p.builder.CreateUser(&payload.User)
		}

		if err := p.builder.CreatePresence(member, &payload); err != nil {
			return 0, err
		}
		p.dispatcher.Dispatch(PresenceUpdateEvent{Seq: seq, Member: member})
		return 0, nil
	}

	friend := p.store.Friend(userID)
	if friend == nil {
		p.eventCache.Cache(KindUser, userID, seq,
			p.replayFunc(wire.EventPresenceUpdate, seq, data))
		return 0, nil
	}
	if err := p.builder.CreatePresence(friend, &payload); err != nil {
		return 0, err
	}
	p.dispatcher.Dispatch(PresenceUpdateEvent{Seq: seq, Friend: friend})
	return 0, nil
}
