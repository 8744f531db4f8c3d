package state

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

// fakeControl records outbound control requests instead of sending them.
type fakeControl struct {
	mu            sync.Mutex
	chunkRequests [][]int64
	syncRequests  [][]int64
}

func (f *fakeControl) SendMemberChunkRequest(guildIDs ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkRequests = append(f.chunkRequests, guildIDs)
	return nil
}

func (f *fakeControl) SendGuildSyncRequest(guildIDs ...int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncRequests = append(f.syncRequests, guildIDs)
	return nil
}

func (f *fakeControl) ChunkRequests() [][]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunkRequests
}

// eventRecorder collects dispatched events in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) Dispatch(event any) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) Events() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.events))
	copy(out, r.events)
	return out
}

func newTestPipeline(t *testing.T, config *Config) (*Pipeline, *fakeControl, *eventRecorder) {
	t.Helper()
	if config == nil {
		config = DefaultConfig()
	}
	ctrl := &fakeControl{}
	recorder := &eventRecorder{}
	p := NewPipeline(zap.NewNop(), config, NewStore(), recorder, ctrl, nil)
	return p, ctrl, recorder
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %T: %v", v, err)
	}
	return data
}

func wireUser(id int64, username string) wire.User {
	return wire.User{ID: wire.Snowflake(id), Username: username, Discriminator: "0001"}
}

func wireMember(id int64, username string, roleIDs ...int64) wire.Member {
	m := wire.Member{User: wireUser(id, username), JoinedAt: "2023-04-01T12:00:00Z"}
	for _, rid := range roleIDs {
		m.Roles = append(m.Roles, wire.Snowflake(rid))
	}
	return m
}

func wireTextChannel(id int64, name string) wire.Channel {
	return wire.Channel{ID: wire.Snowflake(id), Type: wire.ChannelTypeText, Name: name}
}

func wireVoiceChannel(id int64, name string) wire.Channel {
	return wire.Channel{ID: wire.Snowflake(id), Type: wire.ChannelTypeVoice, Name: name, Bitrate: 64000}
}

// wireGuild builds a guild payload whose member count matches the members
// it carries, so a first pass completes inline.
func wireGuild(id int64, name string, members []wire.Member, channels []wire.Channel) *wire.Guild {
	return &wire.Guild{
		ID:          wire.Snowflake(id),
		Name:        name,
		OwnerID:     wire.Snowflake(members[0].User.ID),
		MemberCount: len(members),
		Roles: []wire.Role{
			{ID: wire.Snowflake(id), Name: "@everyone"},
		},
		Members:  members,
		Channels: channels,
	}
}

// dispatchReady runs the initial handshake with the given guilds, which is
// the shortest route to a bootstrapped pipeline in tests.
func dispatchReady(t *testing.T, p *Pipeline, guilds ...wire.Guild) {
	t.Helper()
	payload := wire.Ready{
		Version: 6,
		User:    wire.SelfUser{User: wireUser(1, "selfie")},
		Guilds:  guilds,
	}
	p.Dispatch(wire.EventReady, 1, mustMarshal(t, payload))
}
