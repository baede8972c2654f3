package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Outbound queue length per connection
	sendBuffer = 1024
)

// Conn is the part of *websocket.Conn the manager uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens transport connections
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer dials with gorilla/websocket
type GorillaDialer struct {
	Dialer *websocket.Dialer // nil uses websocket.DefaultDialer
	Header http.Header
}

// Dial opens a websocket connection to url
func (d GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// link is one live transport connection with its read and write pumps
type link struct {
	manager *Manager
	conn    Conn
	gen     uint64

	mu     sync.Mutex
	send   chan []byte
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newLink(m *Manager, conn Conn, gen uint64) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		manager: m,
		conn:    conn,
		gen:     gen,
		send:    make(chan []byte, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// enqueue adds a frame to the send queue without blocking
func (l *link) enqueue(data []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	select {
	case l.send <- data:
		return true
	default:
		// Buffer full
		return false
	}
}

// close stops the write pump, which sends a close frame and closes the conn
func (l *link) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.send)
}

// readPump pumps envelopes from the connection to the manager
func (l *link) readPump() {
	var readErr error
	defer func() {
		l.cancel()
		l.conn.Close()
		l.manager.linkClosed(l, readErr)
	}()

	l.conn.SetReadLimit(l.manager.maxMessageSize)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		l.conn.SetReadDeadline(time.Now().Add(pongWait))

		// Servers may batch several envelopes in one frame, newline separated
		for _, line := range bytes.Split(message, []byte{'\n'}) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			env, err := parseEnvelope(line)
			if err != nil {
				l.manager.log.WithError(err).Warnf("dropping malformed inbound frame (%d bytes)", len(line))
				continue
			}
			l.manager.deliver(l, env)
		}
	}
}

// writePump pumps queued frames to the connection and keeps it alive with pings
func (l *link) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case message, ok := <-l.send:
			if !ok {
				// Manager closed the link
				l.conn.SetWriteDeadline(time.Now().Add(writeWait))
				l.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if l.manager.limiter != nil {
				if err := l.manager.limiter.Wait(l.ctx); err != nil {
					return
				}
			}

			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				l.manager.log.WithError(err).Warn("write failed")
				return
			}

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-l.ctx.Done():
			return
		}
	}
}

func parseEnvelope(data []byte) (domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, err
	}
	if env.Type == "" {
		return env, errors.New("envelope has no type")
	}
	return env, nil
}

// closeDetails extracts the close code and reason from a read error
func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, ""
}
