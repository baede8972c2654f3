package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/drawtogether/internal/canvas"
	"github.com/mmuslimabdulj/drawtogether/internal/config"
	"github.com/mmuslimabdulj/drawtogether/internal/delivery/ws"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
	"github.com/mmuslimabdulj/drawtogether/internal/store"
	"github.com/mmuslimabdulj/drawtogether/internal/usecase"
)

func init() {
	logger.Init(logger.LogConfig{Level: "silent"})
}

// serverConn plays a minimal drawing server on the far end of the link
type serverConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newServerConn() *serverConn {
	return &serverConn{
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *serverConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *serverConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	if messageType == websocket.TextMessage {
		c.respond(data)
	}
	return nil
}

func (c *serverConn) SetReadLimit(int64) {}

func (c *serverConn) SetReadDeadline(time.Time) error { return nil }

func (c *serverConn) SetWriteDeadline(time.Time) error { return nil }

func (c *serverConn) SetPongHandler(func(string) error) {}

func (c *serverConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *serverConn) push(typ domain.MessageType, data any) {
	raw, _ := json.Marshal(data)
	frame, _ := json.Marshal(domain.Envelope{Type: typ, Data: raw})
	c.in <- frame
}

func (c *serverConn) respond(frame []byte) {
	var cmd struct {
		Action    domain.Action   `json:"action"`
		UserID    string          `json:"userId"`
		EventData json.RawMessage `json:"eventData"`
	}
	if err := json.Unmarshal(frame, &cmd); err != nil {
		return
	}

	switch cmd.Action {
	case domain.ActionGetRooms:
		c.push(domain.MessageTypeRoomsList, map[string]any{
			"rooms": []map[string]any{
				{"id": "r1", "name": "Sketch", "maxParticipants": 4, "participants": []string{"host"}},
			},
		})
	case domain.ActionJoinRoom:
		c.push(domain.MessageTypeRoomJoined, map[string]any{
			"roomId":          "r1",
			"roomName":        "Sketch",
			"participants":    []string{"host", cmd.UserID},
			"maxParticipants": "4",
			"drawEvents": []map[string]any{
				{"eventId": "e1", "userId": "host", "type": "STROKE_START", "drawData": map[string]any{"x": 0, "y": 0, "color": "#FF0000", "strokeWidth": 2, "tool": "brush"}},
				{"eventId": "e2", "userId": "host", "type": "STROKE_MOVE", "drawData": map[string]any{"x": 10, "y": 10, "color": "#FF0000", "strokeWidth": 2, "tool": "brush"}},
			},
		})
	case domain.ActionDrawEvent:
		// Broadcast goes to everyone, sender included
		c.push(domain.MessageTypeDrawEvent, cmd.EventData)
	case domain.ActionLeaveRoom:
		c.push(domain.MessageTypeRoomLeft, map[string]any{"roomId": "r1"})
	}
}

type singleDialer struct {
	conn *serverConn
}

func (d singleDialer) Dial(ctx context.Context, url string) (ws.Conn, error) {
	return d.conn, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ServerURL = "ws://draw.test"
	cfg.ProfilePath = filepath.Join(t.TempDir(), "user.json")
	cfg.CanvasWidth = 32
	cfg.CanvasHeight = 32
	return cfg
}

func startSession(t *testing.T, s *Session) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Expected clean shutdown, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Expected Run to return after cancel")
		}
	})
	return ctx
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ServerURL = "http://draw.test"

	if _, err := New(cfg, Deps{}); err == nil {
		t.Error("Expected invalid server URL to be rejected")
	}
}

func TestSession_JoinReplayAndDraw(t *testing.T) {
	conn := newServerConn()
	ink := canvas.NewRecorder()
	s, err := New(testConfig(t), Deps{Dialer: singleDialer{conn: conn}, Surface: ink})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := startSession(t, s)

	if err := s.UseProfile(ctx, "Tester"); err != nil {
		t.Fatalf("UseProfile failed: %v", err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Opening the link requests the lobby
	if _, err := s.WaitFor(ctx, func(snap store.Snapshot) bool {
		return snap.Connection.IsConnected && len(snap.AvailableRooms) == 1
	}); err != nil {
		t.Fatalf("Expected room list, got %v", err)
	}

	if err := s.Dispatcher().JoinRoom("r1"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	snap, err := s.WaitFor(ctx, func(snap store.Snapshot) bool {
		return snap.Room != nil && snap.HistoryLength == 2
	})
	if err != nil {
		t.Fatalf("Expected joined room with history, got %v", err)
	}
	if snap.Room.MaxParticipants != 4 || snap.Room.CurrentParticipantsCount != 2 {
		t.Errorf("Expected 2 of 4 participants, got %+v", snap.Room)
	}
	if n := len(ink.Segments()); n != 1 {
		t.Fatalf("Expected replayed history drawn as 1 segment, got %d", n)
	}

	drawer := s.Synchronizer()
	if err := drawer.PointerDown(canvas.Point{X: 20, Y: 20}); err != nil {
		t.Fatalf("PointerDown failed: %v", err)
	}
	drawer.PointerMove(canvas.Point{X: 25, Y: 25})
	drawer.PointerUp()

	// Local stroke round-trips through the server echo
	if _, err := s.WaitFor(ctx, func(snap store.Snapshot) bool {
		return snap.HistoryLength == 5
	}); err != nil {
		t.Fatalf("Expected echoed local events in history, got %v", err)
	}
	if n := len(ink.Segments()); n != 2 {
		t.Errorf("Expected echo not re-rendered (2 segments), got %d", n)
	}

	frames := s.Manager().History()
	if len(frames) != 5 {
		t.Errorf("Expected GET_ROOMS, JOIN_ROOM and 3 draw frames sent, got %d", len(frames))
	}
}

func TestSession_LeaveWaitsForConfirmation(t *testing.T) {
	s, err := New(testConfig(t), Deps{Dialer: singleDialer{conn: newServerConn()}, Surface: canvas.NewRecorder()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := startSession(t, s)

	// Not in a room yet
	if err := s.Leave(ctx); err != nil {
		t.Errorf("Expected no-op leave, got %v", err)
	}

	if err := s.UseProfile(ctx, "Tester"); err != nil {
		t.Fatalf("UseProfile failed: %v", err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := s.Dispatcher().JoinRoom("r1"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if _, err := s.WaitFor(ctx, func(snap store.Snapshot) bool { return snap.Room != nil }); err != nil {
		t.Fatalf("Expected joined room, got %v", err)
	}

	leaveCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Leave(leaveCtx); err != nil {
		t.Fatalf("Expected ROOM_LEFT confirmation, got %v", err)
	}
	if _, ok := s.Store().CurrentRoom(); ok {
		t.Error("Expected no current room after leave")
	}
}

func TestSession_SetColor(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg, Deps{Dialer: singleDialer{conn: newServerConn()}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := startSession(t, s)

	if err := s.SetColor(ctx, "#123456"); err == nil {
		t.Error("Expected error without a profile")
	}
	if err := s.UseProfile(ctx, "Painter"); err != nil {
		t.Fatalf("UseProfile failed: %v", err)
	}
	if err := s.SetColor(ctx, "not a color"); err == nil {
		t.Error("Expected invalid color to be rejected")
	}
	if err := s.SetColor(ctx, "#123456"); err != nil {
		t.Fatalf("SetColor failed: %v", err)
	}
	if u, _ := s.Store().CurrentUser(); u.Color != "#123456" {
		t.Errorf("Expected color on current user, got %q", u.Color)
	}

	stored, err := usecase.NewFileProfileStore(cfg.ProfilePath, logger.Nop()).Load()
	if err != nil || stored.Color != "#123456" {
		t.Errorf("Expected stored color, got %+v (%v)", stored, err)
	}
}

func TestSession_UseProfileKeepsStoredUser(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(cfg, Deps{Dialer: singleDialer{conn: newServerConn()}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := startSession(t, first)
	if err := first.UseProfile(ctx, ""); err != nil {
		t.Fatalf("UseProfile failed: %v", err)
	}
	created, ok := first.Store().CurrentUser()
	if !ok || created.Name == "" {
		t.Fatalf("Expected a generated user, got %+v", created)
	}

	second, err := New(cfg, Deps{Dialer: singleDialer{conn: newServerConn()}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx = startSession(t, second)
	if err := second.UseProfile(ctx, ""); err != nil {
		t.Fatalf("UseProfile failed: %v", err)
	}
	if got, _ := second.Store().CurrentUser(); got != created {
		t.Errorf("Expected stored user %+v, got %+v", created, got)
	}
}

func TestSession_InspectHandler(t *testing.T) {
	s, err := New(testConfig(t), Deps{Dialer: singleDialer{conn: newServerConn()}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Raster() == nil {
		t.Fatal("Expected default raster surface")
	}

	h := s.InspectHandler()
	for _, path := range []string{"/state", "/rooms", "/canvas.png", "/outbound"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, w.Code)
		}
	}
}

func TestSession_DoAfterStop(t *testing.T) {
	s, err := New(testConfig(t), Deps{Dialer: singleDialer{conn: newServerConn()}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if err := s.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Expected Do to run while the loop is up, got %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected nil from Run on cancel, got %v", err)
	}
	if err := s.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}
