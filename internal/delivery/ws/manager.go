package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
	"github.com/mmuslimabdulj/drawtogether/internal/loop"
	"github.com/mmuslimabdulj/drawtogether/internal/observer"
	"golang.org/x/time/rate"
)

// Options configures a Manager. Zero values fall back to the domain defaults.
type Options struct {
	URL            string
	Dialer         Dialer
	Scheduler      loop.Scheduler
	Logger         *logger.Logger
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxMessageSize int64
	HistorySize    int
	Limiter        *rate.Limiter // nil disables outbound pacing
}

// Manager owns one server connection and reconnects it with linear backoff.
// Subscribers are always invoked on the Scheduler, in registration order.
type Manager struct {
	url            string
	dialer         Dialer
	sched          loop.Scheduler
	log            *logger.Logger
	maxAttempts    int
	baseDelay      time.Duration
	maxMessageSize int64
	limiter        *rate.Limiter
	history        *RingBuffer

	mu         sync.Mutex
	state      State
	attempts   int
	manual     bool
	generation uint64
	current    *link
	retry      loop.Timer
	cancelDial context.CancelFunc
	waiters    []chan error

	onMessage observer.Registry[domain.Envelope]
	onOpen    observer.Registry[struct{}]
	onClose   observer.Registry[CloseEvent]
	onError   observer.Registry[error]
	onState   observer.Registry[StateEvent]
}

// NewManager creates a disconnected Manager. opts.Scheduler is required.
func NewManager(opts Options) *Manager {
	if opts.Scheduler == nil {
		panic("ws: Options.Scheduler is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("ws")
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = domain.ReconnectBaseDelay
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = domain.MaxMessageSize
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = domain.MaxHistorySize
	}

	return &Manager{
		url:            opts.URL,
		dialer:         opts.Dialer,
		sched:          opts.Scheduler,
		log:            opts.Logger,
		maxAttempts:    opts.MaxAttempts,
		baseDelay:      opts.BaseDelay,
		maxMessageSize: opts.MaxMessageSize,
		limiter:        opts.Limiter,
		history:        NewRingBuffer(opts.HistorySize),
	}
}

// Connect starts a connection attempt, or joins the one in flight, and waits
// until the transport is ready. It fails immediately when the URL is not a
// websocket URL. Otherwise it returns ErrReconnectExhausted once every retry
// failed, ErrClosed if Disconnect is called, or ctx.Err(). Must not be called
// from the event loop.
func (m *Manager) Connect(ctx context.Context) error {
	if err := validateURL(m.url); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}

	ch := make(chan error, 1)
	m.waiters = append(m.waiters, ch)

	if m.state == StateDisconnected {
		m.manual = false
		m.attempts = 0
		m.setStateLocked(StateConnecting, nil)
		m.dialLocked()
	}
	m.mu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		m.dropWaiter(ch)
		return ctx.Err()
	}
}

// Disconnect tears down the connection and cancels any pending retry.
// Safe to call at any time, any number of times.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.manual = true
	m.generation++ // orphan any in-flight dial or link

	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if l := m.current; l != nil {
		m.current = nil
		l.close()
		m.emitLocked(func() {
			m.onClose.Notify(CloseEvent{Code: websocket.CloseNormalClosure, Reason: "client disconnect", Manual: true})
		})
	}
	if m.state != StateDisconnected {
		m.setStateLocked(StateDisconnected, nil)
	}
	m.resolveLocked(ErrClosed)
}

// Send encodes payload as JSON and queues it if connected. When not
// connected the payload is logged and dropped; Send never fails loudly.
func (m *Manager) Send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.log.WithError(err).Error("failed to encode outbound payload")
		return
	}

	m.mu.Lock()
	l := m.current
	state := m.state
	m.mu.Unlock()

	if state != StateConnected || l == nil {
		m.log.WithField("state", state.String()).Warnf("not connected, dropping outbound message: %s", truncate(data, 120))
		return
	}
	if !l.enqueue(data) {
		m.log.Warn("send queue full or closing, dropping outbound message")
		return
	}
	m.history.Add(Frame{At: time.Now(), Data: data})
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of retries since the last successful open
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// History returns the frames sent on live connections, oldest first
func (m *Manager) History() []Frame {
	return m.history.GetAll()
}

// OnMessage subscribes to parsed inbound envelopes
func (m *Manager) OnMessage(fn func(domain.Envelope)) func() { return m.onMessage.Subscribe(fn) }

// OnOpen subscribes to successful connection opens
func (m *Manager) OnOpen(fn func()) func() {
	return m.onOpen.Subscribe(func(struct{}) { fn() })
}

// OnClose subscribes to connection ends, including failed attempts
func (m *Manager) OnClose(fn func(CloseEvent)) func() { return m.onClose.Subscribe(fn) }

// OnError subscribes to transport errors and to the terminal ErrReconnectExhausted
func (m *Manager) OnError(fn func(error)) func() { return m.onError.Subscribe(fn) }

// OnStateChange subscribes to lifecycle transitions
func (m *Manager) OnStateChange(fn func(StateEvent)) func() { return m.onState.Subscribe(fn) }

// dialLocked starts a dial for a fresh generation
func (m *Manager) dialLocked() {
	m.generation++
	gen := m.generation
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	go m.dial(ctx, gen)
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	conn, err := m.dialer.Dial(ctx, m.url)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.manual {
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		m.log.WithError(err).WithField("attempt", m.attempts).Warn("connection attempt failed")
		m.emitLocked(func() { m.onError.Notify(err) })
		m.emitLocked(func() {
			m.onClose.Notify(CloseEvent{Code: websocket.CloseAbnormalClosure, Reason: err.Error()})
		})
		m.scheduleRetryLocked()
		return
	}

	l := newLink(m, conn, gen)
	m.current = l
	m.attempts = 0
	m.setStateLocked(StateConnected, nil)
	m.emitLocked(func() { m.onOpen.Notify(struct{}{}) })
	m.resolveLocked(nil)
	m.log.Infof("connected to %s", m.url)

	go l.writePump()
	go l.readPump()
}

// linkClosed is called by the read pump once its connection is gone
func (m *Manager) linkClosed(l *link, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.close()
	if m.current != l || m.manual {
		return
	}
	m.current = nil

	code, reason := closeDetails(err)
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.log.WithError(err).Warn("connection lost")
		m.emitLocked(func() { m.onError.Notify(err) })
	} else {
		m.log.Infof("connection closed by server (code %d)", code)
	}
	m.emitLocked(func() { m.onClose.Notify(CloseEvent{Code: code, Reason: reason}) })
	m.scheduleRetryLocked()
}

// scheduleRetryLocked moves to Reconnecting with a delay of baseDelay × attempt,
// or to Disconnected once the attempts are used up
func (m *Manager) scheduleRetryLocked() {
	if m.attempts >= m.maxAttempts {
		m.log.Errorf("giving up after %d reconnect attempts", m.attempts)
		m.setStateLocked(StateDisconnected, ErrReconnectExhausted)
		m.emitLocked(func() { m.onError.Notify(ErrReconnectExhausted) })
		m.resolveLocked(ErrReconnectExhausted)
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := m.baseDelay * time.Duration(attempt)
	m.setStateLocked(StateReconnecting, nil)
	m.log.WithField("attempt", attempt).Infof("reconnecting in %s", delay)

	gen := m.generation
	m.retry = m.sched.After(delay, func() { m.retryNow(gen) })
}

func (m *Manager) retryNow(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.manual || gen != m.generation || m.state != StateReconnecting {
		return
	}
	m.retry = nil
	m.dialLocked()
}

// deliver hands an inbound envelope to subscribers if l is still current
func (m *Manager) deliver(l *link, env domain.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != l {
		return
	}
	m.emitLocked(func() { m.onMessage.Notify(env) })
}

func (m *Manager) setStateLocked(next State, err error) {
	ev := StateEvent{
		Old:         m.state,
		New:         next,
		MaxAttempts: m.maxAttempts,
		Err:         err,
	}
	if next == StateReconnecting {
		ev.Attempt = m.attempts
	}
	m.state = next
	m.emitLocked(func() { m.onState.Notify(ev) })
}

// emitLocked posts fn to the scheduler. Holding m.mu while posting keeps
// events in transition order; Scheduler.Post never runs fn inline.
func (m *Manager) emitLocked(fn func()) {
	m.sched.Post(fn)
}

func (m *Manager) resolveLocked(err error) {
	for _, ch := range m.waiters {
		ch <- err
	}
	m.waiters = nil
}

func (m *Manager) dropWaiter(ch chan error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiters {
		if w == ch {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
