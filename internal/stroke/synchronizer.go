// Package stroke turns pointer input into draw events and replays other
// participants' events onto a surface.
package stroke

import (
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmuslimabdulj/drawtogether/internal/canvas"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
	"github.com/mmuslimabdulj/drawtogether/internal/store"
)

var (
	ErrNoCurrentUser = errors.New("stroke: no current user")
	ErrNotInRoom     = errors.New("stroke: not in a room")
)

// State is where the synchronizer reads who is drawing and where
type State interface {
	CurrentUser() (domain.User, bool)
	CurrentRoom() (domain.Room, bool)
}

// Sink receives the events produced by local drawing
type Sink interface {
	SendDrawEvent(ev domain.DrawEvent)
}

// Feed is the history the synchronizer replays from
type Feed interface {
	OnDrawEvent(fn func(store.Entry)) func()
	OnHistoryReset(fn func()) func()
}

// Settings is the local tool state
type Settings struct {
	Tool        domain.Tool `json:"tool"`
	Color       string      `json:"color"`
	StrokeWidth int         `json:"strokeWidth"`
}

// DefaultSettings is a thin black brush
func DefaultSettings() Settings {
	return Settings{
		Tool:        domain.ToolBrush,
		Color:       domain.DefaultColor,
		StrokeWidth: domain.DefaultStrokeWidth,
	}
}

// Synchronizer owns the surface. The remote table maps a participant to
// the last point of their stroke in progress.
type Synchronizer struct {
	surface canvas.Surface
	state   State
	sink    Sink
	log     *logger.Logger
	now     func() time.Time

	mu       sync.Mutex
	settings Settings
	drawing  bool
	last     canvas.Point
	userID   string // author of the local stroke in progress
	roomID   string
	remote   map[string]canvas.Point
	lastSeq  uint64
	unsubs   []func()
}

// New creates a synchronizer drawing onto surface
func New(surface canvas.Surface, state State, sink Sink, log *logger.Logger) *Synchronizer {
	if log == nil {
		log = logger.New("stroke")
	}
	return &Synchronizer{
		surface:  surface,
		state:    state,
		sink:     sink,
		log:      log,
		now:      time.Now,
		settings: DefaultSettings(),
		remote:   make(map[string]canvas.Point),
	}
}

// Bind starts replaying feed
func (s *Synchronizer) Bind(feed Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs = append(s.unsubs,
		feed.OnDrawEvent(s.Consume),
		feed.OnHistoryReset(s.Reset),
	)
}

// Close stops replaying
func (s *Synchronizer) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// ==== Tool settings ====

func (s *Synchronizer) SetTool(tool domain.Tool) {
	if !tool.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Tool = tool
}

func (s *Synchronizer) SetColor(color string) {
	if color == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Color = color
}

// SetStrokeWidth clamps w to the allowed range
func (s *Synchronizer) SetStrokeWidth(w int) {
	w = max(domain.MinStrokeWidth, min(domain.MaxStrokeWidth, w))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.StrokeWidth = w
}

func (s *Synchronizer) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// ==== Local input ====

// PointerDown starts a local stroke at p
func (s *Synchronizer) PointerDown(p canvas.Point) error {
	user, ok := s.state.CurrentUser()
	if !ok {
		return ErrNoCurrentUser
	}
	room, ok := s.state.CurrentRoom()
	if !ok {
		return ErrNotInRoom
	}

	s.mu.Lock()
	s.drawing = true
	s.last = p
	s.userID = user.ID
	s.roomID = room.ID
	ev := s.newEventLocked(domain.StrokeStart, &p)
	s.mu.Unlock()

	s.sink.SendDrawEvent(ev)
	return nil
}

// PointerMove extends the local stroke to p, drawing at once
func (s *Synchronizer) PointerMove(p canvas.Point) {
	s.mu.Lock()
	if !s.drawing {
		s.mu.Unlock()
		return
	}
	ev := s.newEventLocked(domain.StrokeMove, &p)
	s.drawSegment(s.last, p, *ev.DrawData)
	s.last = p
	s.mu.Unlock()

	s.sink.SendDrawEvent(ev)
}

// PointerUp ends the local stroke at the last point
func (s *Synchronizer) PointerUp() {
	s.mu.Lock()
	if !s.drawing {
		s.mu.Unlock()
		return
	}
	last := s.last
	ev := s.newEventLocked(domain.StrokeEnd, &last)
	s.drawing = false
	s.mu.Unlock()

	s.sink.SendDrawEvent(ev)
}

// PointerLeave ends the stroke like PointerUp
func (s *Synchronizer) PointerLeave() {
	s.PointerUp()
}

// Clear wipes the surface and every stroke in progress, and tells the room
// when there is one
func (s *Synchronizer) Clear() {
	user, hasUser := s.state.CurrentUser()
	room, inRoom := s.state.CurrentRoom()

	s.mu.Lock()
	s.surface.Clear()
	clear(s.remote)
	s.drawing = false
	var ev domain.DrawEvent
	send := hasUser && inRoom
	if send {
		s.userID = user.ID
		s.roomID = room.ID
		ev = s.newEventLocked(domain.ClearCanvas, nil)
	}
	s.mu.Unlock()

	if send {
		s.sink.SendDrawEvent(ev)
	}
}

// Drawing reports whether a local stroke is in progress
func (s *Synchronizer) Drawing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawing
}

func (s *Synchronizer) newEventLocked(typ domain.DrawEventType, p *canvas.Point) domain.DrawEvent {
	ev := domain.DrawEvent{
		ID:        uuid.New().String(),
		RoomID:    s.roomID,
		UserID:    s.userID,
		Timestamp: s.now(),
		Type:      typ,
	}
	if p != nil {
		ev.DrawData = &domain.DrawData{
			X:           p.X,
			Y:           p.Y,
			Color:       s.settings.Color,
			StrokeWidth: s.settings.StrokeWidth,
			Tool:        s.settings.Tool,
		}
	}
	return ev
}

// ==== Remote replay ====

// Consume replays one history entry. Entries are handled at most once;
// live entries by the local user were already drawn when they were made.
func (s *Synchronizer) Consume(e store.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Seq <= s.lastSeq {
		return
	}
	s.lastSeq = e.Seq

	if !e.Replayed {
		if user, ok := s.state.CurrentUser(); ok && user.ID == e.Event.UserID {
			return
		}
	}
	s.applyLocked(e.Event)
}

func (s *Synchronizer) applyLocked(ev domain.DrawEvent) {
	switch ev.Type {
	case domain.StrokeStart:
		if ev.DrawData == nil {
			return
		}
		s.remote[ev.UserID] = canvas.Point{X: ev.DrawData.X, Y: ev.DrawData.Y}

	case domain.StrokeMove:
		if ev.DrawData == nil {
			return
		}
		to := canvas.Point{X: ev.DrawData.X, Y: ev.DrawData.Y}
		from, ok := s.remote[ev.UserID]
		if !ok {
			// Missed the start; never guess where the stroke began
			s.log.Debugf("skipping move from %s with no stroke in progress", ev.UserID)
			return
		}
		s.drawSegment(from, to, *ev.DrawData)
		s.remote[ev.UserID] = to

	case domain.StrokeEnd:
		delete(s.remote, ev.UserID)

	case domain.ClearCanvas:
		s.surface.Clear()
		clear(s.remote)

	case domain.Undo, domain.Redo:
		s.log.Debugf("%s from %s is not supported, ignoring", ev.Type, ev.UserID)

	default:
		s.log.Warnf("unknown draw event type %q", ev.Type)
	}
}

// Reset wipes the surface and all stroke state, used when history restarts
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface.Clear()
	clear(s.remote)
	s.drawing = false
}

// RemotePoints returns a copy of the in-progress remote strokes
func (s *Synchronizer) RemotePoints() map[string]canvas.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.remote)
}

// drawSegment strokes one line with the event's own style, isolated from
// whatever style the surface had before
func (s *Synchronizer) drawSegment(from, to canvas.Point, dd domain.DrawData) {
	width := dd.StrokeWidth
	if width < domain.MinStrokeWidth {
		width = domain.DefaultStrokeWidth
	}

	s.surface.Save()
	defer s.surface.Restore()

	if dd.Tool == domain.ToolEraser {
		s.surface.SetComposite(canvas.DestinationOut)
		width *= domain.EraserWidthRatio
	} else {
		s.surface.SetComposite(canvas.SourceOver)
	}
	s.surface.SetStrokeColor(dd.Color)
	s.surface.SetLineWidth(float64(width))
	s.surface.StrokeLine(from, to)
}
