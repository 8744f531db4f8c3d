package wire

import (
	"encoding/json"
	"strconv"
)

// Gateway operation codes. Only the subset the state core produces or
// consumes is listed; everything else is handled (or dropped) by the
// transport layer.
const (
	OpDispatch           = 0
	OpHeartbeat          = 1
	OpMemberChunkRequest = 8
	OpGuildSync          = 12
)

// Dispatch event type tags.
const (
	EventReady             = "READY"
	EventGuildCreate       = "GUILD_CREATE"
	EventGuildDelete       = "GUILD_DELETE"
	EventGuildSync         = "GUILD_SYNC"
	EventGuildMembersChunk = "GUILD_MEMBERS_CHUNK"
	EventMessageCreate     = "MESSAGE_CREATE"
	EventMessageDelete     = "MESSAGE_DELETE"
	EventMessageDeleteBulk = "MESSAGE_DELETE_BULK"
	EventPresenceUpdate    = "PRESENCE_UPDATE"
	EventVoiceStateUpdate  = "VOICE_STATE_UPDATE"
)

// Envelope is a single gateway frame. For OpDispatch frames the transport
// assigns Seq from the monotonically increasing sequence field.
type Envelope struct {
	Op   int             `json:"op"`
	Type string          `json:"t,omitempty"`
	Seq  int64           `json:"s,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// Snowflake is a 64-bit entity identifier. The service serializes them as
// JSON strings to avoid precision loss in javascript clients, but older
// payload shapes carry bare numbers, so both are accepted.
type Snowflake int64

func (s Snowflake) Int64() int64 { return int64(s) }

func (s Snowflake) String() string { return strconv.FormatInt(int64(s), 10) }

func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatInt(int64(s), 10) + `"`), nil
}

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*s = 0
		return nil
	}
	raw := string(data)
	if raw[0] == '"' {
		var err error
		raw, err = strconv.Unquote(raw)
		if err != nil {
			return err
		}
	}
	if raw == "" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*s = Snowflake(v)
	return nil
}
