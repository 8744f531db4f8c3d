package state

import "time"

// EntityKind tags the entity namespaces used for event-cache keys and
// store lookups.
type EntityKind int

const (
	KindUser EntityKind = iota
	KindMember
	KindGuild
	KindChannel
	KindRole
)

func (k EntityKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindMember:
		return "member"
	case KindGuild:
		return "guild"
	case KindChannel:
		return "channel"
	case KindRole:
		return "role"
	default:
		return "unknown"
	}
}

// AccountType distinguishes bot logins from user-client logins. Client
// accounts need guild sync passes for presence completeness; bots do not.
type AccountType int

const (
	AccountTypeBot AccountType = iota
	AccountTypeClient
)

// OnlineStatus is a member or friend presence status.
type OnlineStatus string

const (
	StatusOnline    OnlineStatus = "online"
	StatusIdle      OnlineStatus = "idle"
	StatusDND       OnlineStatus = "dnd"
	StatusInvisible OnlineStatus = "invisible"
	StatusOffline   OnlineStatus = "offline"
	StatusUnknown   OnlineStatus = ""
)

func OnlineStatusFromKey(key string) OnlineStatus {
	switch key {
	case "online", "idle", "dnd", "invisible", "offline":
		return OnlineStatus(key)
	default:
		return StatusUnknown
	}
}

// User is the global identity of an account, shared across guilds. A fake
// user was referenced by some payload (foreign message author, relationship)
// without authoritative data; it is promoted in place once authoritative
// data arrives.
type User struct {
	ID            int64
	Username      string
	Discriminator string
	Avatar        string
	Bot           bool
	Fake          bool

	// PrivateChannel is the open direct channel with this user, if any.
	PrivateChannel *PrivateChannel
}

// SelfUser is the logged-in account.
type SelfUser struct {
	User
	Verified   bool
	MFAEnabled bool
	Email      string
}

// Guild is a top-level container owning members, roles and channels.
//
// The per-guild maps are not individually synchronized: all mutation of a
// guild's graph happens under the pipeline's per-guild serialization.
type Guild struct {
	ID                   int64
	Name                 string
	Region               string
	Icon                 string
	Splash               string
	AFKTimeout           int
	VerificationLevel    int
	NotificationLevel    int
	MFALevel             int
	ExplicitContentLevel int
	Available            bool

	Owner         *Member
	PublicRole    *Role
	SystemChannel *TextChannel
	AFKChannel    *VoiceChannel

	Roles         map[int64]*Role
	Emotes        map[int64]*Emote
	Members       map[int64]*Member
	TextChannels  map[int64]*TextChannel
	VoiceChannels map[int64]*VoiceChannel
	Categories    map[int64]*Category
}

func newGuild(id int64) *Guild {
	return &Guild{
		ID:            id,
		Roles:         make(map[int64]*Role),
		Emotes:        make(map[int64]*Emote),
		Members:       make(map[int64]*Member),
		TextChannels:  make(map[int64]*TextChannel),
		VoiceChannels: make(map[int64]*VoiceChannel),
		Categories:    make(map[int64]*Category),
	}
}

// Member pairs a User with a Guild. The zero-value voice state always
// exists once the member exists and is never independently destroyed.
type Member struct {
	User     *User
	Guild    *Guild
	Nick     string
	JoinedAt time.Time
	Roles    map[int64]*Role
	Status   OnlineStatus
	Activity *Activity

	VoiceState *VoiceState
}

func newMember(guild *Guild, user *User) *Member {
	m := &Member{
		User:   user,
		Guild:  guild,
		Roles:  make(map[int64]*Role),
		Status: StatusOffline,
	}
	m.VoiceState = &VoiceState{Member: m}
	return m
}

// Activity is what a member or friend is currently doing.
type Activity struct {
	Name string
	URL  string
	Type int
}

// Role is scoped to exactly one guild.
type Role struct {
	ID          int64
	Guild       *Guild
	Name        string
	Permissions int64
	Position    int
	Color       *int
	Managed     bool
	Hoisted     bool
	Mentionable bool
}

// Emote is a guild-scoped custom emote.
type Emote struct {
	ID      int64
	Guild   *Guild
	Name    string
	Managed bool
	Roles   map[int64]*Role
}

// VoiceState is owned exclusively by one member.
type VoiceState struct {
	Member     *Member
	Channel    *VoiceChannel
	SessionID  string
	GuildMute  bool
	GuildDeaf  bool
	SelfMute   bool
	SelfDeaf   bool
	Suppressed bool
}

// PermissionOverride targets exactly one of a member or a role within a
// channel.
type PermissionOverride struct {
	TargetID int64
	Member   *Member
	Role     *Role
	Allow    int64
	Deny     int64
}

// TextChannel is a guild text channel.
type TextChannel struct {
	ID            int64
	Guild         *Guild
	Name          string
	Topic         string
	Position      int
	ParentID      int64
	NSFW          bool
	LastMessageID int64
	Overrides     map[int64]*PermissionOverride
}

// VoiceChannel is a guild voice channel.
type VoiceChannel struct {
	ID        int64
	Guild     *Guild
	Name      string
	Position  int
	ParentID  int64
	UserLimit int
	Bitrate   int
	Overrides map[int64]*PermissionOverride

	// Connected holds the members currently in the channel, keyed by user id.
	Connected map[int64]*Member
}

// Category groups text and voice channels.
type Category struct {
	ID        int64
	Guild     *Guild
	Name      string
	Position  int
	Overrides map[int64]*PermissionOverride
}

// PrivateChannel is a direct channel with a single user. It is fake iff its
// user is fake.
type PrivateChannel struct {
	ID            int64
	User          *User
	LastMessageID int64
	Fake          bool
}

// RelationshipType tags client-account relationships.
type RelationshipType int

const (
	RelationshipNone RelationshipType = iota
	RelationshipFriend
	RelationshipBlocked
	RelationshipIncomingRequest
	RelationshipOutgoingRequest
)

// Relationship is a client-account relationship with another user. Friend
// relationships additionally carry presence.
type Relationship struct {
	Type         RelationshipType
	User         *User
	Status       OnlineStatus
	Activity     *Activity
	LastModified time.Time
}
