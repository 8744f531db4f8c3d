package state

import (
	"encoding/json"
	"errors"

	wire "github.com/echotools/concord/protocol"
)

// handleMessageCreate builds the message strictly: a missing channel or
// author parks the event on the missing entity instead of falling back to
// a fake author.
func (p *Pipeline) handleMessageCreate(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.Message
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}

	msg, err := p.builder.CreateMessage(&payload, true)
	switch {
	case errors.Is(err, ErrMissingChannel):
		p.eventCache.Cache(KindChannel, payload.ChannelID.Int64(), seq,
			p.replayFunc(wire.EventMessageCreate, seq, data))
		return 0, nil
	case errors.Is(err, ErrMissingUser):
		p.eventCache.Cache(KindUser, payload.Author.ID.Int64(), seq,
			p.replayFunc(wire.EventMessageCreate, seq, data))
		return 0, nil
	case err != nil:
		return 0, err
	}

	if guildID := msg.GuildID(); guildID != 0 && p.guildLock.IsLocked(guildID) {
		return guildID, nil
	}

	if msg.TextChannel != nil {
		msg.TextChannel.LastMessageID = msg.ID
	} else if msg.Private != nil {
		msg.Private.LastMessageID = msg.ID
	}

	p.dispatcher.Dispatch(MessageCreateEvent{Seq: seq, Message: msg})
	return 0, nil
}

// handleMessageDelete is the single-deletion entry point. Synthesized
// sub-events from a split bulk deletion re-enter here with the original
// sequence number and perform the same resolution and defer checks as
// organic events.
func (p *Pipeline) handleMessageDelete(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.MessageDelete
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}

	channelID := payload.ChannelID.Int64()
	channel := p.store.TextChannel(channelID)
	if channel == nil {
		if p.store.PrivateChannel(channelID) == nil && p.store.FakePrivateChannel(channelID) == nil {
			p.eventCache.Cache(KindChannel, channelID, seq,
				p.replayFunc(wire.EventMessageDelete, seq, data))
			return 0, nil
		}
	}

	if channel != nil && p.guildLock.IsLocked(channel.Guild.ID) {
		return channel.Guild.ID, nil
	}

	p.dispatcher.Dispatch(MessageDeleteEvent{
		Seq:       seq,
		ChannelID: channelID,
		MessageID: payload.ID.Int64(),
	})
	return 0, nil
}

// handleMessageDeleteBulk implements the derived-event replay policy for
// batch deletions. With splitting enabled, one single-deletion payload per
// id is synthesized and fed through the single-deletion entry point with
// the original sequence number, so consumers that only understand
// single-item deletion need no special casing. Each synthesized sub-event
// performs its own resolution and defer checks. With splitting disabled one
// aggregate event fires, deferring on the channel as a whole if it is not
// yet cached.
func (p *Pipeline) handleMessageDeleteBulk(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.MessageDeleteBulk
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}

	if p.config.BulkDeleteSplitting {
		for _, id := range payload.IDs {
			synthesized, err := json.Marshal(wire.MessageDelete{ID: id, ChannelID: payload.ChannelID})
			if err != nil {
				return 0, err
			}
			p.run(wire.EventMessageDelete, p.handlers[wire.EventMessageDelete], seq, synthesized)
		}
		return 0, nil
	}

	channelID := payload.ChannelID.Int64()
	channel := p.store.TextChannel(channelID)
	if channel == nil {
		p.eventCache.Cache(KindChannel, channelID, seq,
			p.replayFunc(wire.EventMessageDeleteBulk, seq, data))
		return 0, nil
	}

	if p.guildLock.IsLocked(channel.Guild.ID) {
		return channel.Guild.ID, nil
	}

	ids := make([]int64, 0, len(payload.IDs))
	for _, id := range payload.IDs {
		ids = append(ids, id.Int64())
	}
	p.dispatcher.Dispatch(MessageBulkDeleteEvent{Seq: seq, Channel: channel, MessageIDs: ids})
	return 0, nil
}
