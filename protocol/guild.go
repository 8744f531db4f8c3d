package wire

// Channel type tags as they appear on the wire.
const (
	ChannelTypeText     = 0
	ChannelTypePrivate  = 1
	ChannelTypeVoice    = 2
	ChannelTypeCategory = 4
)

// Permission overwrite target tags.
const (
	OverwriteTypeRole   = "role"
	OverwriteTypeMember = "member"
)

// Guild is the payload shape shared by READY guild entries and GUILD_CREATE.
// An unavailable guild carries only ID and Unavailable; everything else is
// filled in by a later GUILD_CREATE.
type Guild struct {
	ID                Snowflake    `json:"id"`
	Name              string       `json:"name"`
	Region            string       `json:"region"`
	Icon              string       `json:"icon"`
	Splash            string       `json:"splash"`
	OwnerID           Snowflake    `json:"owner_id"`
	AFKChannelID      Snowflake    `json:"afk_channel_id"`
	SystemChannelID   Snowflake    `json:"system_channel_id"`
	AFKTimeout        int          `json:"afk_timeout"`
	VerificationLevel int          `json:"verification_level"`
	NotificationLevel int          `json:"default_message_notifications"`
	MFALevel          int          `json:"mfa_level"`
	ExplicitContent   int          `json:"explicit_content_filter"`
	MemberCount       int          `json:"member_count"`
	Unavailable       bool         `json:"unavailable"`
	Roles             []Role       `json:"roles"`
	Emotes            []Emote      `json:"emojis"`
	Members           []Member     `json:"members"`
	Channels          []Channel    `json:"channels"`
	Presences         []Presence   `json:"presences"`
	VoiceStates       []VoiceState `json:"voice_states"`
}

type Role struct {
	ID          Snowflake `json:"id"`
	Name        string    `json:"name"`
	Permissions int64     `json:"permissions"`
	Position    int       `json:"position"`
	Color       int       `json:"color"`
	Managed     bool      `json:"managed"`
	Hoisted     bool      `json:"hoist"`
	Mentionable bool      `json:"mentionable"`
}

type Emote struct {
	ID      Snowflake   `json:"id"`
	Name    string      `json:"name"`
	Managed bool        `json:"managed"`
	Roles   []Snowflake `json:"roles"`
}

type Member struct {
	User     User        `json:"user"`
	GuildID  Snowflake   `json:"guild_id,omitempty"`
	Nick     string      `json:"nick"`
	JoinedAt string      `json:"joined_at"`
	Roles    []Snowflake `json:"roles"`
	Mute     bool        `json:"mute"`
	Deaf     bool        `json:"deaf"`
}

type User struct {
	ID            Snowflake `json:"id"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator"`
	Avatar        string    `json:"avatar"`
	Bot           bool      `json:"bot"`
}

// SelfUser extends User with the fields only present on the logged-in
// account's READY payload.
type SelfUser struct {
	User
	Verified   bool   `json:"verified"`
	MFAEnabled bool   `json:"mfa_enabled"`
	Email      string `json:"email"`
}

type Channel struct {
	ID         Snowflake   `json:"id"`
	Type       int         `json:"type"`
	GuildID    Snowflake   `json:"guild_id,omitempty"`
	Name       string      `json:"name"`
	Topic      string      `json:"topic"`
	Position   int         `json:"position"`
	ParentID   Snowflake   `json:"parent_id"`
	NSFW       bool        `json:"nsfw"`
	LastMsgID  Snowflake   `json:"last_message_id"`
	UserLimit  int         `json:"user_limit"`
	Bitrate    int         `json:"bitrate"`
	Overwrites []Overwrite `json:"permission_overwrites"`
	Recipients []User      `json:"recipients,omitempty"`
}

type Overwrite struct {
	ID    Snowflake `json:"id"`
	Type  string    `json:"type"`
	Allow int64     `json:"allow"`
	Deny  int64     `json:"deny"`
}

type VoiceState struct {
	GuildID   Snowflake `json:"guild_id,omitempty"`
	ChannelID Snowflake `json:"channel_id"`
	UserID    Snowflake `json:"user_id"`
	SessionID string    `json:"session_id"`
	Mute      bool      `json:"mute"`
	Deaf      bool      `json:"deaf"`
	SelfMute  bool      `json:"self_mute"`
	SelfDeaf  bool      `json:"self_deaf"`
	Suppress  bool      `json:"suppress"`
}

type Presence struct {
	User         User      `json:"user"`
	GuildID      Snowflake `json:"guild_id,omitempty"`
	Status       string    `json:"status"`
	Game         *Activity `json:"game"`
	LastModified int64     `json:"last_modified,omitempty"`
}

type Activity struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type int    `json:"type"`
}

// GuildDelete is the GUILD_DELETE payload. Unavailable set means an outage,
// not a removal from the guild.
type GuildDelete struct {
	ID          Snowflake `json:"id"`
	Unavailable bool      `json:"unavailable"`
}

// GuildSync is the GUILD_SYNC dispatch payload for client accounts.
type GuildSync struct {
	GuildID   Snowflake  `json:"id"`
	Members   []Member   `json:"members"`
	Presences []Presence `json:"presences"`
}

// MembersChunk is one GUILD_MEMBERS_CHUNK dispatch carrying a batch of the
// full member list requested through the control channel.
type MembersChunk struct {
	GuildID Snowflake `json:"guild_id"`
	Members []Member  `json:"members"`
}

// Relationship is the client-account relationship payload (friend, blocked,
// incoming or outgoing friend request).
type Relationship struct {
	Type int  `json:"type"`
	User User `json:"user"`
}

// Relationship type tags.
const (
	RelationshipFriend          = 1
	RelationshipBlocked         = 2
	RelationshipIncomingRequest = 3
	RelationshipOutgoingRequest = 4
)

// Ready is the initial handshake dispatch. Guilds are unavailable stubs for
// bot accounts and full payloads for client accounts.
type Ready struct {
	Version         int            `json:"v"`
	User            SelfUser       `json:"user"`
	SessionID       string         `json:"session_id"`
	Guilds          []Guild        `json:"guilds"`
	PrivateChannels []Channel      `json:"private_channels"`
	Relationships   []Relationship `json:"relationships"`
}
