package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	wire "github.com/echotools/concord/protocol"
)

func TestCreateGuildFirstPass_InlineCompletion(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	payload := wireGuild(100, "testers",
		[]wire.Member{wireMember(10, "alpha"), wireMember(11, "beta")},
		[]wire.Channel{wireTextChannel(200, "general"), wireVoiceChannel(201, "voice")})
	payload.VoiceStates = []wire.VoiceState{
		{UserID: wire.Snowflake(11), ChannelID: wire.Snowflake(201), SessionID: "sess-1", SelfDeaf: true},
	}

	var callbackGuild *Guild
	b.CreateGuildFirstPass(payload, func(g *Guild) { callbackGuild = g })

	guild := store.Guild(100)
	require.NotNil(t, guild)
	require.Same(t, guild, callbackGuild, "inline completion fires the callback immediately")
	require.False(t, b.guildLock.IsLocked(100))
	require.True(t, guild.Available)
	require.Len(t, guild.Members, 2)
	require.NotNil(t, guild.PublicRole)
	require.Equal(t, int64(100), guild.PublicRole.ID)

	beta := guild.Members[11]
	require.Same(t, beta, guild.VoiceChannels[201].Connected[11])
	require.True(t, beta.VoiceState.SelfDeaf)
	require.Equal(t, "sess-1", beta.VoiceState.SessionID)
}

func TestCreateGuildFirstPass_Unavailable(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	called := false
	b.CreateGuildFirstPass(&wire.Guild{ID: wire.Snowflake(100), Unavailable: true}, func(g *Guild) {
		called = true
		require.False(t, g.Available)
		require.True(t, b.guildLock.IsLocked(100), "the lock is taken before the callback observes the guild")
	})

	require.True(t, called)
	require.True(t, b.guildLock.IsLocked(100))
	require.NotNil(t, store.Guild(100))
	require.False(t, store.Guild(100).Available)
}

func TestCreateGuildSecondPass_CompletesParkedBootstrap(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	payload := wireGuild(100, "big",
		[]wire.Member{wireMember(10, "alpha")},
		[]wire.Channel{wireTextChannel(200, "general"), wireVoiceChannel(201, "voice")})
	payload.OwnerID = wire.Snowflake(11) // arrives only with the chunks
	payload.MemberCount = 3
	payload.VoiceStates = []wire.VoiceState{
		{UserID: wire.Snowflake(12), ChannelID: wire.Snowflake(201), SessionID: "sess-2"},
	}

	var callbackGuild *Guild
	b.CreateGuildFirstPass(payload, func(g *Guild) { callbackGuild = g })

	require.Nil(t, callbackGuild, "callback waits for the second pass")
	require.True(t, b.guildLock.IsLocked(100))
	remaining, waiting := b.chunks.Expected(100)
	require.True(t, waiting)
	require.Equal(t, 3, remaining)
	require.Nil(t, store.Guild(100).Owner)

	b.CreateGuildSecondPass(100, [][]wire.Member{
		{wireMember(10, "alpha"), wireMember(11, "beta")},
		{wireMember(12, "gamma")},
	})

	guild := store.Guild(100)
	require.Same(t, guild, callbackGuild)
	require.False(t, b.guildLock.IsLocked(100))
	require.Len(t, guild.Members, 3)
	require.NotNil(t, guild.Owner)
	require.Equal(t, int64(11), guild.Owner.User.ID)

	gamma := guild.Members[12]
	require.Same(t, gamma, guild.VoiceChannels[201].Connected[12])
	require.Equal(t, "sess-2", gamma.VoiceState.SessionID)
}

func TestCreateGuildSecondPass_WithoutParkedPayloadPanics(t *testing.T) {
	b, _, _ := newTestBuilder(t, AccountTypeBot)

	require.Panics(t, func() {
		b.CreateGuildSecondPass(123, nil)
	})
}

func TestCreateOverridesPass_StaleOverridesTolerated(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	payload := wireGuild(100, "testers",
		[]wire.Member{wireMember(10, "alpha")},
		nil)
	payload.Roles = append(payload.Roles, wire.Role{ID: wire.Snowflake(20), Name: "mods"})

	channel := wireTextChannel(200, "general")
	channel.Overwrites = []wire.Overwrite{
		{ID: wire.Snowflake(10), Type: wire.OverwriteTypeMember, Allow: 1024},
		{ID: wire.Snowflake(999), Type: wire.OverwriteTypeMember, Deny: 2048}, // member long gone
		{ID: wire.Snowflake(20), Type: wire.OverwriteTypeRole, Deny: 8},
		{ID: wire.Snowflake(21), Type: "something-new", Allow: 1},
	}
	payload.Channels = []wire.Channel{channel}

	b.CreateGuildFirstPass(payload, nil)

	overrides := store.TextChannel(200).Overrides
	require.Len(t, overrides, 2, "the rest of the batch applies around the bad entries")

	memberOverride := overrides[10]
	require.NotNil(t, memberOverride)
	require.NotNil(t, memberOverride.Member)
	require.Equal(t, int64(1024), memberOverride.Allow)

	roleOverride := overrides[20]
	require.NotNil(t, roleOverride)
	require.NotNil(t, roleOverride.Role)
	require.Equal(t, int64(8), roleOverride.Deny)
}

func TestHandleGuildSync_MergesMembersAndPresences(t *testing.T) {
	b, store, _ := newTestBuilder(t, AccountTypeClient)

	payload := wireGuild(100, "testers", []wire.Member{wireMember(10, "alpha")}, nil)
	b.CreateGuildFirstPass(payload, nil)
	guild := store.Guild(100)

	b.HandleGuildSync(guild,
		[]wire.Member{wireMember(11, "beta")},
		[]wire.Presence{
			{User: wireUser(11, "beta"), Status: "idle"},
			{User: wireUser(999, "ghost"), Status: "online"}, // skipped, not a member
		})

	require.Len(t, guild.Members, 2)
	require.Equal(t, StatusIdle, guild.Members[11].Status)
}
