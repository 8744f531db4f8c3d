package state

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

func newTestBuilder(t *testing.T, accountType AccountType) (*Builder, *Store, *fakeControl) {
	t.Helper()
	store := NewStore()
	ctrl := &fakeControl{}
	logger := zap.NewNop()
	guildLock := NewGuildLock(nil)
	chunks := NewChunkCoordinator(logger, nil)
	ready := NewReadyState(logger, ctrl)
	b := NewBuilder(logger, store, accountType, guildLock, chunks, ctrl, ready)
	return b, store, ctrl
}

func TestCreateUser_Idempotent(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	payload := wireUser(10, "alpha")
	first := b.CreateUser(&payload)

	payload.Username = "alpha-renamed"
	second := b.CreateUser(&payload)

	if first != second {
		t.Fatalf("repeated payloads must update the same instance")
	}
	require.Equal(t, "alpha-renamed", first.Username)
	require.Same(t, first, store.User(10))
	require.Nil(t, store.FakeUser(10))
}

func TestCreateUser_PromotesFakeUser(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	payload := wireUser(10, "ghost")
	fake := b.CreateFakeUser(&payload, true)
	require.True(t, fake.Fake)
	require.Same(t, fake, store.FakeUser(10))

	// Hang a private channel off the provisional user; the promotion must
	// carry it across.
	priv := b.CreatePrivateChannel(&wire.Channel{
		ID:         wire.Snowflake(500),
		Type:       wire.ChannelTypePrivate,
		Recipients: []wire.User{payload},
	})
	require.True(t, priv.Fake)
	require.Same(t, priv, store.FakePrivateChannel(500))

	promoted := b.CreateUser(&payload)
	require.Same(t, fake, promoted, "promotion keeps the instance so references stay valid")
	require.False(t, promoted.Fake)
	require.Same(t, promoted, store.User(10))
	require.Nil(t, store.FakeUser(10))

	require.False(t, priv.Fake)
	require.Same(t, priv, store.PrivateChannel(500))
	require.Nil(t, store.FakePrivateChannel(500))
}

func TestCreateFakeUser_WithoutCacheMutation(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	payload := wireUser(10, "ghost")
	user := b.CreateFakeUser(&payload, false)

	require.True(t, user.Fake)
	require.Nil(t, store.FakeUser(10))
	require.Nil(t, store.User(10))
}

func TestCreateMember_DropsUnknownRoles(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	guild := newGuild(100)
	store.guilds.Store(guild.ID, guild)
	b.CreateRole(guild, &wire.Role{ID: wire.Snowflake(20), Name: "mods"})

	payload := wireMember(10, "alpha", 20, 999)
	member := b.CreateMember(guild, &payload)

	require.Len(t, member.Roles, 1)
	require.Contains(t, member.Roles, int64(20))
	require.NotContains(t, member.Roles, int64(999))
	require.False(t, member.JoinedAt.IsZero())
	require.NotNil(t, member.VoiceState, "voice state exists from the moment the member does")
	require.Same(t, member, member.VoiceState.Member)
}

func TestCreateMember_Idempotent(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	guild := newGuild(100)
	store.guilds.Store(guild.ID, guild)

	payload := wireMember(10, "alpha")
	first := b.CreateMember(guild, &payload)

	payload.Nick = "renamed"
	second := b.CreateMember(guild, &payload)

	require.Same(t, first, second)
	require.Equal(t, "renamed", first.Nick)
	require.Len(t, guild.Members, 1)
}

func TestCreatePresence_Targets(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeClient)

	guild := newGuild(100)
	store.guilds.Store(guild.ID, guild)
	payload := wireMember(10, "alpha")
	member := b.CreateMember(guild, &payload)

	err := b.CreatePresence(member, &wire.Presence{Status: "dnd"})
	require.NoError(t, err)
	require.Equal(t, StatusDND, member.Status)

	rel, err := b.CreateRelationship(&wire.Relationship{Type: wire.RelationshipFriend, User: wireUser(11, "pal")})
	require.NoError(t, err)
	err = b.CreatePresence(rel, &wire.Presence{Status: "online", LastModified: 1680350400000})
	require.NoError(t, err)
	require.Equal(t, StatusOnline, rel.Status)
	require.False(t, rel.LastModified.IsZero())

	blocked, err := b.CreateRelationship(&wire.Relationship{Type: wire.RelationshipBlocked, User: wireUser(12, "foe")})
	require.NoError(t, err)
	err = b.CreatePresence(blocked, &wire.Presence{Status: "online"})
	require.ErrorIs(t, err, ErrPresenceTarget)

	err = b.CreatePresence("not a target", &wire.Presence{Status: "online"})
	require.ErrorIs(t, err, ErrPresenceTarget)
}

func TestCreateRole_ColorZeroMeansUnset(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	guild := newGuild(100)
	store.guilds.Store(guild.ID, guild)

	role := b.CreateRole(guild, &wire.Role{ID: wire.Snowflake(20), Name: "mods", Color: 0xFF0000})
	require.NotNil(t, role.Color)
	require.Equal(t, 0xFF0000, *role.Color)

	b.CreateRole(guild, &wire.Role{ID: wire.Snowflake(20), Name: "mods"})
	require.Nil(t, role.Color)
}

func TestCreateRelationship_BotAccountRejected(t *testing.T) {
	b, _, _ := newTestBuilder(t, AccountTypeBot)

	_, err := b.CreateRelationship(&wire.Relationship{Type: wire.RelationshipFriend, User: wireUser(11, "pal")})
	require.ErrorIs(t, err, ErrClientAccountOnly)
}

func TestCreateRelationship_FriendVersusOther(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeClient)

	friend, err := b.CreateRelationship(&wire.Relationship{Type: wire.RelationshipFriend, User: wireUser(11, "pal")})
	require.NoError(t, err)
	require.False(t, friend.User.Fake, "a friend is authoritatively known")
	require.NotNil(t, store.Friend(11))

	blocked, err := b.CreateRelationship(&wire.Relationship{Type: wire.RelationshipBlocked, User: wireUser(12, "foe")})
	require.NoError(t, err)
	require.True(t, blocked.User.Fake, "a blocked target only proves the user exists")
	require.Nil(t, store.Friend(12))

	_, err = b.CreateRelationship(&wire.Relationship{Type: 99, User: wireUser(13, "odd")})
	require.Error(t, err)
}

func TestCreateSelfUser(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	self := b.CreateSelfUser(&wire.SelfUser{
		User:       wireUser(1, "selfie"),
		Verified:   true,
		MFAEnabled: true,
		Email:      "self@example.com",
	})

	require.Same(t, self, store.SelfUser())
	require.True(t, self.Verified)
	require.Same(t, &self.User, store.User(1), "the self user is visible in the user namespace")

	again := b.CreateSelfUser(&wire.SelfUser{User: wireUser(1, "renamed")})
	require.Same(t, self, again)
	require.Equal(t, "renamed", self.Username)
}
