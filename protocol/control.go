package wire

import "encoding/json"

// MemberChunkRequest asks the control channel for the full member list of a
// guild, delivered back as one or more GUILD_MEMBERS_CHUNK dispatches. An
// empty query with a zero limit requests every member.
type MemberChunkRequest struct {
	GuildID interface{} `json:"guild_id"` // Snowflake or []Snowflake for a burst request.
	Query   string      `json:"query"`
	Limit   int         `json:"limit"`
}

// GuildSyncRequest asks the control channel for a presence sync pass over the
// listed guilds. Only meaningful for client accounts.
type GuildSyncRequest []Snowflake

// NewMemberChunkEnvelope wraps a chunk request for one or more guilds in its
// operation-code envelope.
func NewMemberChunkEnvelope(guildIDs ...Snowflake) (*Envelope, error) {
	var target interface{}
	if len(guildIDs) == 1 {
		target = guildIDs[0]
	} else {
		target = guildIDs
	}
	data, err := json.Marshal(MemberChunkRequest{GuildID: target, Query: "", Limit: 0})
	if err != nil {
		return nil, err
	}
	return &Envelope{Op: OpMemberChunkRequest, Data: data}, nil
}

// NewGuildSyncEnvelope wraps a sync request in its operation-code envelope.
func NewGuildSyncEnvelope(guildIDs ...Snowflake) (*Envelope, error) {
	data, err := json.Marshal(GuildSyncRequest(guildIDs))
	if err != nil {
		return nil, err
	}
	return &Envelope{Op: OpGuildSync, Data: data}, nil
}
