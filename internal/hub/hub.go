// Package hub streams the IDE to browsers over websockets and feeds their
// pointer, keyboard and console input back into the session.
//
// WHY ONE HUB FOR EVERY TAB?
// There is one session: one canvas, one console, one running program. All
// connected tabs see the same thing, the way a classroom projector mirrors
// the instructor's laptop. The hub fans every scene op, console chunk,
// tone and run status out to all of them.
//
// SLOW CLIENTS:
// Broadcast is called on the UI thread and must never block it. Each
// client has a buffered send queue; a client whose queue is full is
// dropped and has to reconnect (and then gets a fresh snapshot).
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sakif/livecanvas/internal/canvas"
	"github.com/sakif/livecanvas/internal/console"
	"github.com/sakif/livecanvas/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 512
)

// Message types sent to the browser.
const (
	TypeSnapshot = "snapshot"
	TypeScene    = "scene"
	TypeConsole  = "console"
	TypeTone     = "tone"
	TypeRun      = "run"
	TypeError    = "error"
)

// Message is the envelope for everything the hub sends.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SnapshotData is the first message a client gets.
type SnapshotData struct {
	Ops     []canvas.Op     `json:"ops"`
	Console []console.Chunk `json:"console"`
}

// Session is the part of *session.Session the hub drives.
type Session interface {
	Attach(fn func(canvas.Snapshot, []console.Chunk)) error
	HandleEvent(ev session.Event) error
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// queue never blocks; false means the client is full or gone.
func (c *client) queue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

type Hub struct {
	sess     Session
	logger   *slog.Logger
	upgrader websocket.Upgrader
	clients  *xsync.MapOf[uuid.UUID, *client]
	closed   chan struct{}
	stopOnce sync.Once
}

// New creates a hub. checkOrigin may be nil, which allows same-origin
// requests only.
func New(sess Session, logger *slog.Logger, checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		sess:   sess,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			EnableCompression: true,
			CheckOrigin:       checkOrigin,
		},
		clients: xsync.NewMapOf[uuid.UUID, *client](),
		closed:  make(chan struct{}),
	}
}

// Len is the number of connected clients.
func (h *Hub) Len() int { return h.clients.Size() }

// Broadcast queues msg for every client. It never blocks.
func (h *Hub) Broadcast(msgType string, data any) {
	b, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("encoding hub message", slog.String("type", msgType), slog.String("error", err.Error()))
		return
	}
	h.clients.Range(func(id uuid.UUID, c *client) bool {
		if !c.queue(b) {
			h.logger.Warn("dropping slow websocket client", slog.String("client", id.String()))
			h.drop(c)
		}
		return true
	})
}

func (h *Hub) drop(c *client) {
	h.clients.Delete(c.id)
	c.close()
}

// ServeHTTP upgrades the request and serves the client until it goes
// away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.closed:
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}

	// Queue the snapshot and register in one step on the UI thread, so
	// nothing is missed or sent twice in between.
	err = h.sess.Attach(func(snap canvas.Snapshot, chunks []console.Chunk) {
		b, err := json.Marshal(Message{Type: TypeSnapshot, Data: SnapshotData{Ops: snap.Ops(), Console: chunks}})
		if err != nil {
			h.logger.Error("encoding snapshot", slog.String("error", err.Error()))
			return
		}
		c.send <- b
		h.clients.Store(c.id, c)
	})
	if err != nil {
		h.logger.Error("attaching websocket client", slog.String("error", err.Error()))
		conn.Close()
		return
	}

	h.logger.Info("websocket client connected",
		slog.String("client", c.id.String()),
		slog.String("remote", conn.RemoteAddr().String()),
	)

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

// readPump turns browser messages into session events. It owns the
// connection's read side and unregisters the client when it ends.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.drop(c)
		h.logger.Info("websocket client disconnected", slog.String("client", c.id.String()))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", slog.String("client", c.id.String()), slog.String("error", err.Error()))
			}
			return
		}
		var ev session.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			h.reply(c, TypeError, "malformed message")
			continue
		}
		if err := h.sess.HandleEvent(ev); err != nil {
			h.logger.DebugContext(ctx, "rejected event", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
			h.reply(c, TypeError, err.Error())
		}
	}
}

// reply sends to one client, dropping it if it cannot keep up.
func (h *Hub) reply(c *client, msgType string, data any) {
	b, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		return
	}
	if !c.queue(b) {
		h.drop(c)
	}
}

// writePump owns the connection's write side.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.closed)
		h.clients.Range(func(_ uuid.UUID, c *client) bool {
			h.drop(c)
			return true
		})
	})
}
