package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	wire "github.com/echotools/concord/protocol"
)

// messageFixture bootstraps a guild with members 10..12, roles 20..21, a
// custom emote and two text channels, then returns the builder.
func messageFixture(t *testing.T) (*Builder, *Store) {
	t.Helper()
	b, store, _ := newTestBuilder(t, AccountTypeBot)

	payload := wireGuild(100, "testers", []wire.Member{
		wireMember(10, "alpha"), wireMember(11, "beta"), wireMember(12, "gamma"),
	}, []wire.Channel{wireTextChannel(200, "general"), wireTextChannel(201, "random")})
	payload.Roles = append(payload.Roles,
		wire.Role{ID: wire.Snowflake(20), Name: "mods"},
		wire.Role{ID: wire.Snowflake(21), Name: "bots"})
	payload.Emotes = []wire.Emote{{ID: wire.Snowflake(300), Name: "partyparrot"}}
	b.CreateGuildFirstPass(payload, nil)
	return b, store
}

func baseMessage(channelID int64, authorID int64, content string) *wire.Message {
	return &wire.Message{
		ID:        wire.Snowflake(900),
		ChannelID: wire.Snowflake(channelID),
		Author:    wireUser(authorID, "author"),
		Content:   content,
		Timestamp: "2023-04-01T12:00:00Z",
	}
}

func TestCreateMessage_MissingChannel(t *testing.T) {
	b, _ := messageFixture(t)

	_, err := b.CreateMessage(baseMessage(999, 10, "hi"), true)
	require.ErrorIs(t, err, ErrMissingChannel)
}

func TestCreateMessage_AuthorResolution(t *testing.T) {
	b, _ := messageFixture(t)

	// A member author resolves to the member's user.
	msg, err := b.CreateMessage(baseMessage(200, 10, "hi"), true)
	require.NoError(t, err)
	require.Equal(t, int64(10), msg.Author.ID)
	require.False(t, msg.Author.Fake)

	// A stranger fails strictly but falls back to a fake author otherwise.
	_, err = b.CreateMessage(baseMessage(200, 999, "hi"), true)
	require.ErrorIs(t, err, ErrMissingUser)

	msg, err = b.CreateMessage(baseMessage(200, 999, "hi"), false)
	require.NoError(t, err)
	require.True(t, msg.Author.Fake)

	// Webhook messages never resolve against the member list.
	hook := baseMessage(200, 999, "hi")
	hook.WebhookID = wire.Snowflake(777)
	msg, err = b.CreateMessage(hook, true)
	require.NoError(t, err)
	require.True(t, msg.FromWebhook)
	require.True(t, msg.Author.Fake)
}

func TestCreateMessage_MentionOrdering(t *testing.T) {
	b, _ := messageFixture(t)

	tests := []struct {
		name      string
		content   string
		mentions  []int64
		roles     []int64
		wantUsers []int64
		wantRoles []int64
	}{
		{
			name:      "wire order does not win",
			content:   "<@11> then <@10>",
			mentions:  []int64{10, 11},
			wantUsers: []int64{11, 10},
		},
		{
			name:      "nickname marker counts",
			content:   "<@!10> then <@11>",
			mentions:  []int64{11, 10},
			wantUsers: []int64{10, 11},
		},
		{
			name:      "duplicates collapse to first occurrence",
			content:   "<@10> again <@10> and <@11>",
			mentions:  []int64{10, 10, 11},
			wantUsers: []int64{10, 11},
		},
		{
			name:      "mention absent from content sorts first",
			content:   "only <@10> here",
			mentions:  []int64{10, 12},
			wantUsers: []int64{12, 10},
		},
		{
			name:      "roles order by occurrence too",
			content:   "<@&21> before <@&20>",
			roles:     []int64{20, 21},
			wantRoles: []int64{21, 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := baseMessage(200, 10, tt.content)
			for _, id := range tt.mentions {
				payload.Mentions = append(payload.Mentions, wireUser(id, "someone"))
			}
			for _, id := range tt.roles {
				payload.MentionRoles = append(payload.MentionRoles, wire.Snowflake(id))
			}

			msg, err := b.CreateMessage(payload, true)
			require.NoError(t, err)

			var gotUsers []int64
			for _, u := range msg.MentionedUsers {
				gotUsers = append(gotUsers, u.ID)
			}
			var gotRoles []int64
			for _, r := range msg.MentionedRoles {
				gotRoles = append(gotRoles, r.ID)
			}

			if diff := cmp.Diff(tt.wantUsers, gotUsers); diff != "" {
				t.Errorf("mentioned users mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantRoles, gotRoles); diff != "" {
				t.Errorf("mentioned roles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCreateMessage_ChannelMentions(t *testing.T) {
	b, store := messageFixture(t)

	msg, err := b.CreateMessage(baseMessage(200, 10, "see <#201> and <#201> and <#999>"), true)
	require.NoError(t, err)

	require.Len(t, msg.MentionedChannels, 1, "duplicates and unknown channels drop out")
	require.Same(t, store.TextChannel(201), msg.MentionedChannels[0])
}

func TestCreateMessage_ReactionsResolveGuildEmotes(t *testing.T) {
	b, _ := messageFixture(t)

	payload := baseMessage(200, 10, "")
	payload.Reactions = []wire.Reaction{
		{Count: 3, Self: true, Emoji: wire.ReactionEmoji{ID: wire.Snowflake(300), Name: "stale_name"}},
		{Count: 1, Emoji: wire.ReactionEmoji{Name: "👍"}},
	}

	msg, err := b.CreateMessage(payload, true)
	require.NoError(t, err)
	require.Len(t, msg.Reactions, 2)
	require.Equal(t, "partyparrot", msg.Reactions[0].EmoteName, "guild emote wins over the payload name")
	require.Equal(t, 3, msg.Reactions[0].Count)
	require.Equal(t, "👍", msg.Reactions[1].EmoteName)
	require.Zero(t, msg.Reactions[1].EmoteID)
}

func TestCreateMessage_SkipsUnknownEmbeds(t *testing.T) {
	b, _ := messageFixture(t)

	payload := baseMessage(200, 10, "")
	payload.Embeds = []wire.Embed{
		{Type: "hologram", Title: "future tech"},
		{Type: "rich", Title: "kept", Color: 0x00FF00, Fields: []wire.EmbedField{{Name: "k", Value: "v", Inline: true}}},
	}

	msg, err := b.CreateMessage(payload, true)
	require.NoError(t, err)
	require.Len(t, msg.Embeds, 1)
	require.Equal(t, EmbedTypeRich, msg.Embeds[0].Type)
	require.Equal(t, "kept", msg.Embeds[0].Title)
	require.NotNil(t, msg.Embeds[0].Color)
	require.Len(t, msg.Embeds[0].Fields, 1)
}

func TestCreateMessage_PrivateChannel(t *testing.T) {
	b, _, _ := newTestBuilder(t, AccountTypeClient)

	b.CreateSelfUser(&wire.SelfUser{User: wireUser(1, "selfie")})
	recipient := wireUser(10, "pal")
	b.CreateUser(&recipient)
	b.CreatePrivateChannel(&wire.Channel{
		ID:         wire.Snowflake(500),
		Type:       wire.ChannelTypePrivate,
		Recipients: []wire.User{recipient},
	})

	// Message from the other side.
	msg, err := b.CreateMessage(baseMessage(500, 10, "hey"), true)
	require.NoError(t, err)
	require.NotNil(t, msg.Private)
	require.Equal(t, int64(10), msg.Author.ID)

	// Message from ourselves.
	msg, err = b.CreateMessage(baseMessage(500, 1, "hey back"), true)
	require.NoError(t, err)
	require.Equal(t, int64(1), msg.Author.ID)
	require.Equal(t, "selfie", msg.Author.Username)
}

func TestCreateEmbed_UnknownTypeRejected(t *testing.T) {
	b, _, _ := newTestBuilder(t, AccountTypeBot)

	_, err := b.CreateEmbed(&wire.Embed{Type: "hologram"})
	require.Error(t, err)

	_, err = b.CreateEmbed(&wire.Embed{})
	require.Error(t, err, "a missing type tag is rejected the same way")
}
