package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

var (
	// ErrMissingChannel reports a message payload whose channel is not yet
	// cached. Not a failure: the caller defers the event on the channel.
	ErrMissingChannel = errors.New("message channel not cached")

	// ErrMissingUser reports a message author that is not yet known. Only
	// raised for live message creation; replayed message builds fall back
	// to a fake author instead.
	ErrMissingUser = errors.New("message author not cached")

	// ErrPresenceTarget reports a presence merge aimed at something that is
	// neither a member nor a friend.
	ErrPresenceTarget = errors.New("presence target is neither member nor friend")

	// ErrClientAccountOnly reports a client-only payload received on a bot
	// login.
	ErrClientAccountOnly = errors.New("operation requires a client account")

	errStaleOverride   = errors.New("permission override references an unknown target")
	errUnknownOverride = errors.New("unknown permission override type")
)

// ControlSender is the outbound control channel. Sends are fire-and-forget
// handoffs; the transport owns framing and delivery.
type ControlSender interface {
	SendMemberChunkRequest(guildIDs ...int64) error
	SendGuildSyncRequest(guildIDs ...int64) error
}

// Handshake is the initial-handshake collaborator. While the handshake is
// still in progress, guild bootstraps hand their chunk/sync needs to it for
// batching instead of issuing control requests directly.
type Handshake interface {
	AcknowledgeGuild(guild *Guild, needsChunk, needsSync bool)
	Completed() bool
}

// Builder turns raw wire payloads into cached entities. Every operation is
// an idempotent upsert: an existing entity is updated in place, never
// duplicated, so the same payload can replay through the event cache
// without side effects beyond the intended update.
//
// The builder never blocks and never waits for other entities except by
// consulting the store; missing dependencies surface as sentinel errors for
// the caller to route to the event cache.
type Builder struct {
	logger      *zap.Logger
	store       *Store
	accountType AccountType
	guildLock   *GuildLock
	chunks      *ChunkCoordinator
	ctrl        ControlSender
	handshake   Handshake

	mu              sync.Mutex
	cachedGuilds    map[int64]*wire.Guild
	cachedCallbacks map[int64]func(*Guild)
}

func NewBuilder(logger *zap.Logger, store *Store, accountType AccountType, guildLock *GuildLock, chunks *ChunkCoordinator, ctrl ControlSender, handshake Handshake) *Builder {
	return &Builder{
		logger:          logger.With(zap.String("module", "builder")),
		store:           store,
		accountType:     accountType,
		guildLock:       guildLock,
		chunks:          chunks,
		ctrl:            ctrl,
		handshake:       handshake,
		cachedGuilds:    make(map[int64]*wire.Guild),
		cachedCallbacks: make(map[int64]func(*Guild)),
	}
}

// ClearCache drops all cached bootstrap payloads and callbacks, for use on
// reconnect.
func (b *Builder) ClearCache() {
	b.mu.Lock()
	b.cachedGuilds = make(map[int64]*wire.Guild)
	b.cachedCallbacks = make(map[int64]func(*Guild))
	b.mu.Unlock()
}

// ClearCachedGuild drops the cached bootstrap payload for one guild, used
// when the guild becomes unavailable mid-bootstrap.
func (b *Builder) ClearCachedGuild(guildID int64) {
	b.mu.Lock()
	delete(b.cachedGuilds, guildID)
	delete(b.cachedCallbacks, guildID)
	b.mu.Unlock()
}

// CreateSelfUser upserts the logged-in account.
func (b *Builder) CreateSelfUser(payload *wire.SelfUser) *SelfUser {
	self := b.store.SelfUser()
	if self == nil {
		self = &SelfUser{User: User{ID: payload.ID.Int64()}}
		b.store.setSelfUser(self)
	}
	self.Username = payload.Username
	self.Discriminator = payload.Discriminator
	self.Avatar = payload.Avatar
	self.Bot = payload.Bot
	self.Verified = payload.Verified
	self.MFAEnabled = payload.MFAEnabled
	self.Email = payload.Email
	if b.store.User(self.ID) == nil {
		b.store.users.Store(self.ID, &self.User)
	}
	return self
}

// CreateUser upserts an authoritatively known user. A provisional (fake)
// user with the same id is promoted in place: it moves from the fake map to
// the real map, and its private channel, if any, is recategorized the same
// way. Existing references stay valid throughout.
func (b *Builder) CreateUser(payload *wire.User) *User {
	return b.createUser(payload, false, true)
}

// CreateFakeUser upserts a provisional user referenced without
// authoritative data (foreign message author, relationship target). With
// modifyCache false the instance is built but not inserted into the store.
func (b *Builder) CreateFakeUser(payload *wire.User, modifyCache bool) *User {
	return b.createUser(payload, true, modifyCache)
}

func (b *Builder) createUser(payload *wire.User, fake bool, modifyCache bool) *User {
	id := payload.ID.Int64()

	user := b.store.User(id)
	if user == nil {
		user = b.store.FakeUser(id)
		if user != nil {
			if !fake && modifyCache {
				// Promotion: authoritative data arrived for a provisional
				// user. Recategorize in place.
				b.store.fakeUsers.Delete(id)
				user.Fake = false
				b.store.users.Store(id, user)
				if priv := user.PrivateChannel; priv != nil {
					priv.Fake = false
					b.store.fakePrivateChannels.Delete(priv.ID)
					b.store.privateChannels.Store(priv.ID, priv)
				}
			}
		} else {
			user = &User{ID: id, Fake: fake}
			if modifyCache {
				if fake {
					b.store.fakeUsers.Store(id, user)
				} else {
					b.store.users.Store(id, user)
				}
			}
		}
	}

	user.Username = payload.Username
	user.Discriminator = payload.Discriminator
	user.Avatar = payload.Avatar
	user.Bot = payload.Bot
	return user
}

// CreateMember upserts a user's membership record in the given guild.
// Role ids that do not resolve against the guild's role map are logged and
// dropped, never inserted.
func (b *Builder) CreateMember(guild *Guild, payload *wire.Member) *Member {
	user := b.CreateUser(&payload.User)

	member, ok := guild.Members[user.ID]
	if !ok {
		member = newMember(guild, user)
		guild.Members[user.ID] = member
	}

	member.VoiceState.GuildMute = payload.Mute
	member.VoiceState.GuildDeaf = payload.Deaf
	member.Nick = payload.Nick
	if payload.JoinedAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.JoinedAt); err == nil {
			member.JoinedAt = t
		}
	}

	for _, roleID := range payload.Roles {
		role, ok := guild.Roles[roleID.Int64()]
		if !ok {
			b.logger.Debug("Member carries an unknown role, dropping it",
				zap.Int64("guild_id", guild.ID),
				zap.Int64("user_id", user.ID),
				zap.Int64("role_id", roleID.Int64()))
			continue
		}
		member.Roles[role.ID] = role
	}

	return member
}

// CreatePresence merges a presence payload into its target, which must be
// either a *Member or a friend *Relationship.
func (b *Builder) CreatePresence(target any, payload *wire.Presence) error {
	status := OnlineStatusFromKey(payload.Status)
	var activity *Activity
	if payload.Game != nil && payload.Game.Name != "" {
		activity = &Activity{
			Name: payload.Game.Name,
			URL:  payload.Game.URL,
			Type: payload.Game.Type,
		}
	}

	switch t := target.(type) {
	case *Member:
		t.Status = status
		t.Activity = activity
	case *Relationship:
		if t.Type != RelationshipFriend {
			return fmt.Errorf("%w: relationship type %d", ErrPresenceTarget, t.Type)
		}
		t.Status = status
		t.Activity = activity
		if payload.LastModified != 0 {
			t.LastModified = time.UnixMilli(payload.LastModified)
		}
	default:
		return fmt.Errorf("%w: %T", ErrPresenceTarget, target)
	}
	return nil
}

// CreateRole upserts a role in its guild.
func (b *Builder) CreateRole(guild *Guild, payload *wire.Role) *Role {
	id := payload.ID.Int64()
	role, ok := guild.Roles[id]
	if !ok {
		role = &Role{ID: id, Guild: guild}
		guild.Roles[id] = role
	}
	role.Name = payload.Name
	role.Permissions = payload.Permissions
	role.Position = payload.Position
	role.Managed = payload.Managed
	role.Hoisted = payload.Hoisted
	role.Mentionable = payload.Mentionable
	if payload.Color != 0 {
		color := payload.Color
		role.Color = &color
	} else {
		role.Color = nil
	}
	return role
}

// CreateEmote upserts a guild emote. Unknown role ids in the emote's role
// whitelist are dropped.
func (b *Builder) CreateEmote(guild *Guild, payload *wire.Emote) *Emote {
	id := payload.ID.Int64()
	emote, ok := guild.Emotes[id]
	if !ok {
		emote = &Emote{ID: id, Guild: guild, Roles: make(map[int64]*Role)}
		guild.Emotes[id] = emote
	}
	emote.Name = payload.Name
	emote.Managed = payload.Managed
	for _, roleID := range payload.Roles {
		if role, ok := guild.Roles[roleID.Int64()]; ok {
			emote.Roles[role.ID] = role
		}
	}
	return emote
}

// CreateRelationship upserts a client-account relationship. Friend targets
// are authoritative users; every other relationship type only proves the
// user exists, so the user stays provisional.
func (b *Builder) CreateRelationship(payload *wire.Relationship) (*Relationship, error) {
	if b.accountType != AccountTypeClient {
		return nil, fmt.Errorf("%w: relationship payload", ErrClientAccountOnly)
	}

	relType := relationshipTypeFromKey(payload.Type)
	if relType == RelationshipNone {
		return nil, fmt.Errorf("unknown relationship type %d", payload.Type)
	}

	var user *User
	if relType == RelationshipFriend {
		user = b.CreateUser(&payload.User)
	} else {
		user = b.CreateFakeUser(&payload.User, true)
	}

	rel := b.store.Relationship(user.ID)
	if rel == nil || rel.Type != relType {
		rel = &Relationship{Type: relType, User: user, Status: StatusOffline}
		b.store.relationships.Store(user.ID, rel)
	}
	return rel, nil
}

func relationshipTypeFromKey(key int) RelationshipType {
	switch key {
	case wire.RelationshipFriend:
		return RelationshipFriend
	case wire.RelationshipBlocked:
		return RelationshipBlocked
	case wire.RelationshipIncomingRequest:
		return RelationshipIncomingRequest
	case wire.RelationshipOutgoingRequest:
		return RelationshipOutgoingRequest
	default:
		return RelationshipNone
	}
}
