package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
	"github.com/echotools/concord/state"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 8 / 10
)

var ErrOutgoingQueueFull = errors.New("gateway outgoing queue full")

// Conn is one physical gateway connection. It decodes frames into wire
// events, assigns sequence numbers where the server did not, feeds the
// state pipeline, and implements the outbound control channel for chunk
// and sync requests.
type Conn struct {
	logger    *zap.Logger
	config    *state.Config
	sessionID uuid.UUID

	ctx      context.Context
	cancelFn context.CancelFunc

	pipeline *state.Pipeline

	wsMu sync.Mutex
	ws   *websocket.Conn

	seq        atomic.Int64
	outgoingCh chan *wire.Envelope

	chunkMu       sync.Mutex
	chunkDeadline map[int64]time.Time
}

func NewConn(ctx context.Context, logger *zap.Logger, config *state.Config) *Conn {
	ctx, cancelFn := context.WithCancel(ctx)
	sessionID := uuid.Must(uuid.NewV4())
	return &Conn{
		logger:        logger.With(zap.String("module", "gateway"), zap.String("session_id", sessionID.String())),
		config:        config,
		sessionID:     sessionID,
		ctx:           ctx,
		cancelFn:      cancelFn,
		outgoingCh:    make(chan *wire.Envelope, config.OutgoingQueueSize),
		chunkDeadline: make(map[int64]time.Time),
	}
}

func (c *Conn) SessionID() uuid.UUID { return c.sessionID }

// Bind attaches the state pipeline. Must happen before Dial.
func (c *Conn) Bind(pipeline *state.Pipeline) {
	c.pipeline = pipeline
}

// Dial connects to the gateway URL and starts the read, write and chunk
// watchdog loops.
func (c *Conn) Dial(url string) error {
	ws, _, err := websocket.DefaultDialer.DialContext(c.ctx, url, nil)
	if err != nil {
		return err
	}
	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writeLoop(ws)
	go c.readLoop(ws)
	go c.chunkWatchdog()
	return nil
}

// Close tears the connection down and resets the pipeline for a fresh
// handshake on the next connection.
func (c *Conn) Close() {
	c.cancelFn()
	c.wsMu.Lock()
	if c.ws != nil {
		c.ws.Close()
	}
	c.wsMu.Unlock()
	if c.pipeline != nil {
		c.pipeline.Reset()
	}
}

// readLoop decodes frames and hands dispatch events to the pipeline in
// arrival order. Per-connection processing is serial; concurrency across
// guilds comes from running one connection per shard.
func (c *Conn) readLoop(ws *websocket.Conn) {
	defer c.Close()
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Gateway read error", zap.Error(err))
			}
			return
		}

		var envelope wire.Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			c.logger.Warn("Dropping undecodable gateway frame", zap.Error(err))
			continue
		}

		if envelope.Op != wire.OpDispatch {
			continue
		}

		seq := envelope.Seq
		if seq == 0 {
			seq = c.seq.Add(1)
		} else {
			c.seq.Store(seq)
		}

		c.pipeline.Dispatch(envelope.Type, seq, envelope.Data)
	}
}

func (c *Conn) writeLoop(ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case envelope := <-c.outgoingCh:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(envelope); err != nil {
				c.logger.Warn("Gateway write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// send is fire-and-forget: a full queue drops the control message with an
// error rather than blocking the caller.
func (c *Conn) send(envelope *wire.Envelope) error {
	select {
	case c.outgoingCh <- envelope:
		return nil
	default:
		return ErrOutgoingQueueFull
	}
}

// SendMemberChunkRequest implements state.ControlSender.
func (c *Conn) SendMemberChunkRequest(guildIDs ...int64) error {
	envelope, err := wire.NewMemberChunkEnvelope(snowflakes(guildIDs)...)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.config.ChunkTimeout)
	c.chunkMu.Lock()
	for _, id := range guildIDs {
		c.chunkDeadline[id] = deadline
	}
	c.chunkMu.Unlock()

	return c.send(envelope)
}

// SendGuildSyncRequest implements state.ControlSender.
func (c *Conn) SendGuildSyncRequest(guildIDs ...int64) error {
	envelope, err := wire.NewGuildSyncEnvelope(snowflakes(guildIDs)...)
	if err != nil {
		return err
	}
	return c.send(envelope)
}

// chunkWatchdog clears chunk waits that never completed, so a guild whose
// member burst went missing does not stay locked forever.
func (c *Conn) chunkWatchdog() {
	interval := c.config.ChunkTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			c.chunkMu.Lock()
			var expired []int64
			for guildID, deadline := range c.chunkDeadline {
				if _, waiting := c.pipeline.ChunkCoordinator().Expected(guildID); !waiting {
					delete(c.chunkDeadline, guildID)
					continue
				}
				if now.After(deadline) {
					delete(c.chunkDeadline, guildID)
					expired = append(expired, guildID)
				}
			}
			c.chunkMu.Unlock()

			for _, guildID := range expired {
				c.logger.Warn("Member chunk wait timed out", zap.Int64("guild_id", guildID))
				c.pipeline.CancelBootstrap(guildID)
			}
		}
	}
}

func snowflakes(ids []int64) []wire.Snowflake {
	out := make([]wire.Snowflake, 0, len(ids))
	for _, id := range ids {
		out = append(out, wire.Snowflake(id))
	}
	return out
}
