// Package wsio is sinkron's websocket frame transport, adapted from the
// teacher's internal/shared/pump_read.go and pump_write.go. The teacher's
// ws-level ping/pong machinery is dropped here — sinkron's clients
// heartbeat at the application layer (wire.KindHeartbeat) with a 60s idle
// timeout the ClientActor owns directly, so wsio only needs frame
// read/write, not keepalive.
package wsio

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn is a single upgraded websocket connection. Reads are only ever
// called from one goroutine (the ClientActor's read loop); writes are
// mutex-guarded, so callers on several goroutines may write safely
// (ClientActor itself writes from a single goroutine).
type Conn struct {
	raw       net.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Upgrade performs the HTTP -> websocket upgrade for an inbound sync
// connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	raw, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, err
	}
	return &Conn{raw: raw}, nil
}

// ReadMessage blocks for the next text frame, unwrapping continuation
// and control frames via wsutil; binary frames are skipped. Returns
// io.EOF-wrapping errors from wsutil when the peer closes the connection.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		data, op, err := wsutil.ReadClientData(c.raw)
		if err != nil {
			return nil, err
		}
		if op == ws.OpText {
			return data, nil
		}
	}
}

// WriteMessage sends a single text frame. Safe for concurrent use.
func (c *Conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerText(c.raw, data)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.raw.SetReadDeadline(t)
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.raw.Close()
	})
	return err
}
