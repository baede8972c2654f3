// Package store holds the client's mirror of server state: connection,
// current user, current room, the room list and the room's draw history.
package store

import (
	"slices"
	"sync"

	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
	"github.com/mmuslimabdulj/drawtogether/internal/observer"
)

// Entry is one draw event in the current room's history
type Entry struct {
	Seq      uint64           `json:"seq"`
	Event    domain.DrawEvent `json:"event"`
	Replayed bool             `json:"replayed"` // came from the ROOM_JOINED snapshot
}

// Membership is a USER_JOINED or USER_LEFT notification
type Membership struct {
	RoomID          string
	UserID          string
	Joined          bool
	Participants    []string // nil when the server sent no snapshot
	MaxParticipants int      // 0 when absent
}

// Snapshot is a point-in-time copy of the whole store
type Snapshot struct {
	Connection     domain.ConnectionState `json:"connection"`
	User           *domain.User           `json:"user,omitempty"`
	Room           *domain.Room           `json:"room,omitempty"`
	AvailableRooms []domain.Room          `json:"availableRooms"`
	HistoryLength  int                    `json:"historyLength"`
}

// Store is safe for concurrent use. Mutations are expected to come from the
// event loop; listeners run on the mutating goroutine after the lock is released.
type Store struct {
	mu         sync.RWMutex
	connection domain.ConnectionState
	user       *domain.User
	room       *domain.Room
	rooms      []domain.Room
	history    []Entry
	seq        uint64

	log *logger.Logger

	onDraw   observer.Registry[Entry]
	onReset  observer.Registry[struct{}]
	onChange observer.Registry[struct{}]
}

// New creates an empty store
func New(log *logger.Logger) *Store {
	if log == nil {
		log = logger.New("store")
	}
	return &Store{log: log}
}

// OnDrawEvent subscribes to appended history entries
func (s *Store) OnDrawEvent(fn func(Entry)) func() { return s.onDraw.Subscribe(fn) }

// OnHistoryReset subscribes to history wipes (room change, leave, reset)
func (s *Store) OnHistoryReset(fn func()) func() {
	return s.onReset.Subscribe(func(struct{}) { fn() })
}

// OnChange subscribes to any state change
func (s *Store) OnChange(fn func()) func() {
	return s.onChange.Subscribe(func(struct{}) { fn() })
}

// ==== Connection ====

// SetConnection replaces the connection state. A connected state never
// carries an error or a pending attempt.
func (s *Store) SetConnection(cs domain.ConnectionState) {
	if cs.IsConnected {
		cs.IsConnecting = false
		cs.Error = ""
	}

	s.mu.Lock()
	s.connection = cs
	s.mu.Unlock()

	s.changed()
}

// SetConnectionError sets or, with an empty message, clears the error text
func (s *Store) SetConnectionError(msg string) {
	s.mu.Lock()
	s.connection.Error = msg
	s.mu.Unlock()

	s.changed()
}

// Connection returns the connection state
func (s *Store) Connection() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connection
}

// ==== User ====

// SetCurrentUser stores a copy of u; nil clears it
func (s *Store) SetCurrentUser(u *domain.User) {
	s.mu.Lock()
	if u == nil {
		s.user = nil
	} else {
		copied := *u
		s.user = &copied
	}
	s.mu.Unlock()

	s.changed()
}

// CurrentUser returns a copy of the current user
func (s *Store) CurrentUser() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// ==== Rooms ====

// SetCurrentRoom enters room and replaces the history with replay. The
// participant count is made to agree with the participant list.
func (s *Store) SetCurrentRoom(room domain.Room, replay []domain.DrawEvent) {
	room = room.Clone()
	room.Participants = dedupe(room.Participants)
	room.CurrentParticipantsCount = len(room.Participants)
	if room.MaxParticipants < room.CurrentParticipantsCount {
		room.MaxParticipants = room.CurrentParticipantsCount
	}

	s.mu.Lock()
	s.room = &room
	s.history = nil
	entries := make([]Entry, 0, len(replay))
	for _, ev := range replay {
		entries = append(entries, s.appendLocked(ev, true))
	}
	s.mu.Unlock()

	s.log.Debugf("entered room %s with %d participants, %d history events", room.ID, room.CurrentParticipantsCount, len(entries))

	s.onReset.Notify(struct{}{})
	for _, e := range entries {
		s.onDraw.Notify(e)
	}
	s.changed()
}

// ClearCurrentRoom leaves the current room and drops its history
func (s *Store) ClearCurrentRoom() {
	s.mu.Lock()
	had := s.room != nil
	s.room = nil
	s.history = nil
	s.mu.Unlock()

	if had {
		s.onReset.Notify(struct{}{})
	}
	s.changed()
}

// CurrentRoom returns a copy of the current room
func (s *Store) CurrentRoom() (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.room == nil {
		return domain.Room{}, false
	}
	return s.room.Clone(), true
}

// SetAvailableRooms replaces the room list wholesale
func (s *Store) SetAvailableRooms(rooms []domain.Room) {
	list := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		list = append(list, r.Clone())
	}

	s.mu.Lock()
	s.rooms = list
	s.mu.Unlock()

	s.changed()
}

// UpdateRoom replaces the list entry with the same id. It reports false
// when no such entry exists.
func (s *Store) UpdateRoom(room domain.Room) bool {
	s.mu.Lock()
	i := slices.IndexFunc(s.rooms, func(r domain.Room) bool { return r.ID == room.ID })
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.rooms[i] = room.Clone()
	s.mu.Unlock()

	s.changed()
	return true
}

// AvailableRooms returns a copy of the room list
func (s *Store) AvailableRooms() []domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r.Clone())
	}
	return list
}

// FindRoom looks a room up in the list by id
func (s *Store) FindRoom(id string) (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return domain.Room{}, false
}

// ApplyMembership reconciles the current room with a join or leave. It is a
// no-op unless m.RoomID is the current room. A supplied participant list is
// authoritative; otherwise the affected user is added or removed. Either way
// the count ends equal to the list length, and the maximum only grows.
func (s *Store) ApplyMembership(m Membership) bool {
	s.mu.Lock()
	room := s.room
	if room == nil || m.RoomID == "" || m.RoomID != room.ID {
		s.mu.Unlock()
		return false
	}

	switch {
	case m.Participants != nil:
		room.Participants = dedupe(m.Participants)
	case m.UserID == "":
		// nothing to patch
	case m.Joined:
		if !room.HasParticipant(m.UserID) {
			room.Participants = append(room.Participants, m.UserID)
		}
	default:
		room.Participants = slices.DeleteFunc(room.Participants, func(id string) bool { return id == m.UserID })
	}

	room.CurrentParticipantsCount = len(room.Participants)
	if m.MaxParticipants > room.MaxParticipants {
		room.MaxParticipants = m.MaxParticipants
	}
	if room.CurrentParticipantsCount > room.MaxParticipants {
		room.MaxParticipants = room.CurrentParticipantsCount
	}

	for i := range s.rooms {
		if s.rooms[i].ID == room.ID {
			s.rooms[i].Participants = slices.Clone(room.Participants)
			s.rooms[i].CurrentParticipantsCount = room.CurrentParticipantsCount
			if room.MaxParticipants > s.rooms[i].MaxParticipants {
				s.rooms[i].MaxParticipants = room.MaxParticipants
			}
		}
	}
	count := room.CurrentParticipantsCount
	s.mu.Unlock()

	s.log.WithFields(map[string]interface{}{
		"room":   m.RoomID,
		"user":   m.UserID,
		"joined": m.Joined,
	}).Debugf("membership reconciled, %d participants", count)

	s.changed()
	return true
}

// ==== History ====

// AppendDrawEvent adds a live event to the current room's history. Events
// for another room, or with no room entered, are dropped.
func (s *Store) AppendDrawEvent(ev domain.DrawEvent) (Entry, bool) {
	s.mu.Lock()
	if s.room == nil || (ev.RoomID != "" && ev.RoomID != s.room.ID) {
		s.mu.Unlock()
		s.log.Debugf("dropping draw event %s for room %q", ev.ID, ev.RoomID)
		return Entry{}, false
	}
	e := s.appendLocked(ev, false)
	s.mu.Unlock()

	s.onDraw.Notify(e)
	s.changed()
	return e, true
}

func (s *Store) appendLocked(ev domain.DrawEvent, replayed bool) Entry {
	if ev.RoomID == "" && s.room != nil {
		ev.RoomID = s.room.ID
	}
	if ev.DrawData != nil {
		dd := *ev.DrawData
		ev.DrawData = &dd
	}
	s.seq++
	e := Entry{Seq: s.seq, Event: ev, Replayed: replayed}
	s.history = append(s.history, e)
	return e
}

// History returns a copy of the current room's entries, oldest first
func (s *Store) History() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history)
}

// Latest returns the newest history entry
func (s *Store) Latest() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return Entry{}, false
	}
	return s.history[len(s.history)-1], true
}

// ==== Whole store ====

// Reset returns the store to its initial state. Sequence numbers keep
// increasing so consumers never see a number twice.
func (s *Store) Reset() {
	s.mu.Lock()
	s.connection = domain.ConnectionState{}
	s.user = nil
	s.room = nil
	s.rooms = nil
	s.history = nil
	s.mu.Unlock()

	s.onReset.Notify(struct{}{})
	s.changed()
}

// Snapshot copies the whole store
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Connection:     s.connection,
		AvailableRooms: make([]domain.Room, 0, len(s.rooms)),
		HistoryLength:  len(s.history),
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if s.room != nil {
		r := s.room.Clone()
		snap.Room = &r
	}
	for _, r := range s.rooms {
		snap.AvailableRooms = append(snap.AvailableRooms, r.Clone())
	}
	return snap
}

func (s *Store) changed() {
	s.onChange.Notify(struct{}{})
}

// dedupe drops repeated ids, keeping first occurrences in order
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
