package actors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sunflowerdeath/sinkron/internal/metrics"
	"github.com/sunflowerdeath/sinkron/internal/permissions"
	"github.com/sunflowerdeath/sinkron/internal/ratelimit"
	"github.com/sunflowerdeath/sinkron/internal/wire"
	"github.com/sunflowerdeath/sinkron/internal/wsio"
)

// ClientActor owns one connected websocket: it runs the read loop, owns
// the idle-disconnect timer, and forwards get/change requests to its
// CollectionActor's mailbox. Grounded on
// original_source/sinkron/src/actors/client.rs's ClientActor run loop
// (tokio::select! over timeout/mailbox/websocket.recv()).
type ClientActor struct {
	id         int64
	user       permissions.User
	conn       *wsio.Conn
	collection *CollectionActor
	logger     zerolog.Logger
	limiter    *ratelimit.Limiter

	heartbeatTimeout time.Duration

	// send carries broadcast fan-out from the collection. Direct replies
	// (doc/get_error/change_error/heartbeat) are written straight to conn
	// by writeDirect; both kinds of write happen on the goroutine running
	// Run and serve, so a single goroutine owns all writes to conn.
	send chan []byte
}

func NewClientActor(id int64, user permissions.User, conn *wsio.Conn, collection *CollectionActor, limiter *ratelimit.Limiter, heartbeatTimeout time.Duration, logger zerolog.Logger) *ClientActor {
	return &ClientActor{
		id:               id,
		user:             user,
		conn:             conn,
		collection:       collection,
		logger:           logger.With().Int64("client_id", id).Str("user_id", user.Id).Logger(),
		limiter:          limiter,
		heartbeatTimeout: heartbeatTimeout,
		send:             make(chan []byte, 256),
	}
}

// Run performs the initial colrev catch-up sync, then services the
// connection until it disconnects for any reason. It blocks until the
// connection is closed.
func (c *ClientActor) Run(ctx context.Context, sinceColrev int64) {
	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsTotal.Inc()
	start := time.Now()
	defer func() {
		metrics.ConnectionsActive.Dec()
		c.limiter.RemoveClient(c.id)
	}()

	c.collection.Subscribe(c.id, c.send)
	defer c.collection.Unsubscribe(c.id)

	if !c.initialSync(sinceColrev) {
		c.conn.Close()
		return
	}

	reason := c.serve(ctx)
	c.conn.Close()
	metrics.DisconnectsTotal.WithLabelValues(reason).Inc()
	c.logger.Info().Str("reason", reason).Dur("duration", time.Since(start)).Msg("client disconnected")
}

// initialSync sends the colrev catch-up page (spec.md §4.2.1). Run
// registers the connection for live broadcasts before calling it, so a
// mutation committed while the page is being built is not missed: its
// broadcast waits in the send buffer and is forwarded after
// sync_complete, and the document may also appear in the page itself.
func (c *ClientActor) initialSync(sinceColrev int64) bool {
	docs, colrev, syncErr := c.collection.Sync(sinceColrev, c.user)
	if syncErr != nil {
		c.writeDirect(wire.NewSyncError(syncErr))
		return false
	}
	for _, doc := range docs {
		var data string
		if !doc.IsDeleted {
			data = base64.StdEncoding.EncodeToString(doc.Data)
		}
		if err := c.writeDirect(wire.NewDocMessage(doc.Id, data, doc.Colrev)); err != nil {
			return false
		}
	}
	return c.writeDirect(wire.NewSyncComplete(colrev)) == nil
}

func (c *ClientActor) writeDirect(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal outbound message")
		return err
	}
	return c.conn.WriteMessage(buf)
}

func (c *ClientActor) serve(ctx context.Context) string {
	rawCh := make(chan []byte)
	errCh := make(chan error, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			data, err := c.conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case rawCh <- data:
			case <-readerDone:
				return
			}
		}
	}()

	timer := time.NewTimer(c.heartbeatTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "server_shutdown"

		case <-timer.C:
			return "heartbeat_timeout"

		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				return "server_shutdown"
			}
			return "read_error"

		case raw := <-rawCh:
			if !c.limiter.Allow(c.id) {
				metrics.DisconnectsTotal.WithLabelValues("rate_limited").Inc()
				continue
			}
			c.handleInbound(raw, timer)

		case buf, ok := <-c.send:
			if !ok {
				return "collection_closed"
			}
			if err := c.conn.WriteMessage(buf); err != nil {
				return "write_error"
			}
		}
	}
}

func (c *ClientActor) handleInbound(raw []byte, timer *time.Timer) {
	kind, err := wire.DecodeKind(raw)
	if err != nil {
		c.logger.Debug().Err(err).Msg("dropping malformed message")
		return
	}

	switch kind {
	case wire.KindHeartbeat:
		var msg wire.HeartbeatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		// Only a heartbeat resets the idle timer — ordinary traffic does
		// not, per spec.md's DISCONNECT_TIMEOUT semantics.
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.heartbeatTimeout)
		c.writeDirect(wire.NewHeartbeatReply(msg.I))

	case wire.KindGet:
		var msg wire.GetMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.writeDirect(wire.NewGetError("", wire.BadRequest("malformed get message")))
			return
		}
		doc, getErr := c.collection.Get(msg.Id, c.user)
		if getErr != nil {
			c.writeDirect(wire.NewGetError(msg.Id, getErr))
			return
		}
		var data string
		if !doc.IsDeleted {
			data = base64.StdEncoding.EncodeToString(doc.Data)
		}
		c.writeDirect(wire.NewDocMessage(doc.Id, data, doc.Colrev))

	case wire.KindChange:
		c.handleChange(raw)

	default:
		c.logger.Debug().Str("kind", kind).Msg("dropping message of unknown kind")
	}
}

func (c *ClientActor) handleChange(raw []byte) {
	var msg wire.ChangeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.writeDirect(wire.NewChangeError("", wire.BadRequest("malformed change message")))
		return
	}

	start := time.Now()

	switch msg.Op {
	case wire.OpCreate, wire.OpUpdate:
		if msg.Data == nil {
			c.writeDirect(wire.NewChangeError(msg.Id, wire.BadRequest("op %q requires data", msg.Op)))
			return
		}
		data, err := base64.StdEncoding.DecodeString(*msg.Data)
		if err != nil {
			c.writeDirect(wire.NewChangeError(msg.Id, wire.BadRequest("data is not valid base64")))
			return
		}
		var mutErr *wire.Error
		if msg.Op == wire.OpCreate {
			_, mutErr = c.collection.Create(msg.Id, msg.ChangeId, data, "", c.user)
		} else {
			_, mutErr = c.collection.Update(msg.Id, msg.ChangeId, data, c.user)
		}
		if mutErr != nil {
			c.writeDirect(wire.NewChangeError(msg.Id, mutErr))
		}
		metrics.MutationLatency.WithLabelValues(string(msg.Op)).Observe(time.Since(start).Seconds())

	case wire.OpDelete:
		if msg.Data != nil {
			c.writeDirect(wire.NewChangeError(msg.Id, wire.BadRequest("op %q must not carry data", msg.Op)))
			return
		}
		if _, mutErr := c.collection.Delete(msg.Id, msg.ChangeId, c.user); mutErr != nil {
			c.writeDirect(wire.NewChangeError(msg.Id, mutErr))
		}
		metrics.MutationLatency.WithLabelValues(string(msg.Op)).Observe(time.Since(start).Seconds())

	default:
		c.writeDirect(wire.NewChangeError(msg.Id, wire.BadRequest("unknown op %q", msg.Op)))
	}
}
