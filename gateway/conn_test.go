package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
	"github.com/echotools/concord/state"
)

func newTestConn(t *testing.T, queueSize int) *Conn {
	t.Helper()
	config := state.DefaultConfig()
	config.OutgoingQueueSize = queueSize
	c := NewConn(context.Background(), zap.NewNop(), config)
	t.Cleanup(c.Close)
	return c
}

func TestConn_SendMemberChunkRequest(t *testing.T) {
	c := newTestConn(t, 4)

	require.NoError(t, c.SendMemberChunkRequest(100, 101))

	envelope := <-c.outgoingCh
	require.Equal(t, wire.OpMemberChunkRequest, envelope.Op)

	var req wire.MemberChunkRequest
	require.NoError(t, json.Unmarshal(envelope.Data, &req))
	require.Equal(t, []any{"100", "101"}, req.GuildID)

	// The watchdog deadline is armed per guild.
	c.chunkMu.Lock()
	defer c.chunkMu.Unlock()
	require.Contains(t, c.chunkDeadline, int64(100))
	require.Contains(t, c.chunkDeadline, int64(101))
}

func TestConn_SendGuildSyncRequest(t *testing.T) {
	c := newTestConn(t, 4)

	require.NoError(t, c.SendGuildSyncRequest(100))

	envelope := <-c.outgoingCh
	require.Equal(t, wire.OpGuildSync, envelope.Op)

	var ids []wire.Snowflake
	require.NoError(t, json.Unmarshal(envelope.Data, &ids))
	require.Equal(t, []wire.Snowflake{100}, ids)
}

func TestConn_SendDropsWhenQueueFull(t *testing.T) {
	c := newTestConn(t, 1)

	require.NoError(t, c.SendGuildSyncRequest(100))
	require.ErrorIs(t, c.SendGuildSyncRequest(101), ErrOutgoingQueueFull)
}

func TestConn_SessionIDAssigned(t *testing.T) {
	a := newTestConn(t, 1)
	b := newTestConn(t, 1)
	require.NotEqual(t, a.SessionID(), b.SessionID())
}
