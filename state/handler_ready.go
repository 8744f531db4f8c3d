package state

import (
	"encoding/json"

	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

// handleReady processes the initial handshake payload: the logged-in
// account, private channels, relationships (client accounts) and the first
// bootstrap pass over every promised guild. Chunk and sync requests for
// guilds that need them are batched into a single burst at the end of the
// pass rather than sent per guild.
func (p *Pipeline) handleReady(seq int64, data json.RawMessage) (int64, error) {
	var payload wire.Ready
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}

	p.readySeq.Store(seq)
	p.builder.CreateSelfUser(&payload.User)

	for i := range payload.Relationships {
		if _, err := p.builder.CreateRelationship(&payload.Relationships[i]); err != nil {
			p.logger.Warn("Skipping relationship from handshake", zap.Error(err))
		}
	}

	for i := range payload.PrivateChannels {
		p.builder.CreatePrivateChannel(&payload.PrivateChannels[i])
	}

	for i := range payload.Guilds {
		guildID := payload.Guilds[i].ID.Int64()
		p.ready.Expect(guildID)
		p.builder.CreateGuildFirstPass(&payload.Guilds[i], p.handshakeGuildCallback)
	}

	p.ready.FinishHandshakePass()
	return 0, nil
}

// handshakeGuildCallback is the bootstrap continuation used while the
// initial handshake is in progress. Unavailable guilds stay pending; their
// later GUILD_CREATE runs another first pass with this same callback.
func (p *Pipeline) handshakeGuildCallback(guild *Guild) {
	if !guild.Available {
		return
	}
	p.afterGuildReady(guild)
	p.ready.GuildReady(guild.ID)
}
