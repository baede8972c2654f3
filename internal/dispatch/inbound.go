package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/store"
)

// ErrMalformedPayload is returned by Decode when a known message type
// carries data it cannot use
var ErrMalformedPayload = errors.New("dispatch: malformed payload")

// Inbound is one decoded server message
type Inbound interface{ isInbound() }

type ConnectionEstablished struct {
	Message string
}

// RoomsList covers ROOMS_LIST and ROOMS_UPDATED
type RoomsList struct {
	Rooms []domain.Room
}

type RoomCreated struct {
	Rooms    []domain.Room
	HasRooms bool // the payload carried a full room list
}

type RoomJoined struct {
	Room    domain.Room
	History []domain.DrawEvent
}

type DrawEventReceived struct {
	Event domain.DrawEvent
}

// MembershipChanged covers USER_JOINED and USER_LEFT
type MembershipChanged struct {
	Membership store.Membership
}

type RoomLeft struct{}

type ServerError struct {
	Message string
}

type Unknown struct {
	Type domain.MessageType
}

func (ConnectionEstablished) isInbound() {}
func (RoomsList) isInbound()             {}
func (RoomCreated) isInbound()           {}
func (RoomJoined) isInbound()            {}
func (DrawEventReceived) isInbound()     {}
func (MembershipChanged) isInbound()     {}
func (RoomLeft) isInbound()              {}
func (ServerError) isInbound()           {}
func (Unknown) isInbound()               {}

// Decode turns an envelope into its typed message. Unknown types decode to
// Unknown without error.
func Decode(env domain.Envelope) (Inbound, error) {
	switch env.Type {
	case domain.MessageTypeConnectionEstablished:
		return ConnectionEstablished{Message: env.Message}, nil

	case domain.MessageTypeRoomsList, domain.MessageTypeRoomsUpdated:
		var p domain.RoomsPayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		if p.Rooms == nil {
			return nil, fmt.Errorf("%w: %s without rooms", ErrMalformedPayload, env.Type)
		}
		return RoomsList{Rooms: roomsFromPayload(p.Rooms)}, nil

	case domain.MessageTypeRoomCreated:
		var p domain.RoomsPayload
		if len(env.Data) > 0 {
			// Informational, so an unexpected shape is not an error
			_ = json.Unmarshal(env.Data, &p)
		}
		if p.Rooms == nil {
			return RoomCreated{}, nil
		}
		return RoomCreated{Rooms: roomsFromPayload(p.Rooms), HasRooms: true}, nil

	case domain.MessageTypeRoomJoined:
		var p domain.RoomJoinedPayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		if p.RoomID == "" {
			return nil, fmt.Errorf("%w: ROOM_JOINED without roomId", ErrMalformedPayload)
		}
		return roomJoinedFromPayload(p), nil

	case domain.MessageTypeDrawEvent:
		var p domain.DrawEventPayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		ev, err := drawEventFromPayload(p, "")
		if err != nil {
			return nil, err
		}
		return DrawEventReceived{Event: ev}, nil

	case domain.MessageTypeUserJoined, domain.MessageTypeUserLeft:
		var p domain.MembershipPayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		if p.RoomID == "" {
			return nil, fmt.Errorf("%w: %s without roomId", ErrMalformedPayload, env.Type)
		}
		return MembershipChanged{Membership: store.Membership{
			RoomID:          p.RoomID,
			UserID:          p.UserID,
			Joined:          env.Type == domain.MessageTypeUserJoined,
			Participants:    p.Participants,
			MaxParticipants: p.MaxParticipants.Or(0),
		}}, nil

	case domain.MessageTypeRoomLeft:
		return RoomLeft{}, nil

	case domain.MessageTypeError:
		return ServerError{Message: errorMessage(env)}, nil

	default:
		return Unknown{Type: env.Type}, nil
	}
}

func decodeData(env domain.Envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: %s without data", ErrMalformedPayload, env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
	}
	return nil
}

func errorMessage(env domain.Envelope) string {
	if msg := strings.TrimSpace(env.Message); msg != "" {
		return msg
	}
	var p struct {
		Message string `json:"message"`
	}
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &p) == nil && strings.TrimSpace(p.Message) != "" {
		return strings.TrimSpace(p.Message)
	}
	return "Unknown server error"
}

// ==== Conversions ====

func roomsFromPayload(list []domain.RoomPayload) []domain.Room {
	rooms := make([]domain.Room, 0, len(list))
	for _, p := range list {
		r := roomFromPayload(p)
		if r.ID == "" {
			continue
		}
		rooms = append(rooms, r)
	}
	return rooms
}

// roomFromPayload builds a lobby entry. The count comes from the participant
// list when present, otherwise from the payload count or zero.
func roomFromPayload(p domain.RoomPayload) domain.Room {
	id := p.ID
	if id == "" {
		id = p.RoomID
	}

	room := domain.Room{
		ID:              id,
		Name:            p.Name,
		MaxParticipants: coerceMax(p.MaxParticipants),
		Participants:    p.Participants,
		CreatedAt:       p.CreatedAt.Or(time.Time{}),
	}
	if room.Participants == nil {
		room.Participants = []string{}
	}

	count := len(p.Participants)
	if p.Participants == nil {
		count = p.CurrentParticipantsCount.Or(0)
	}
	if count < 0 {
		count = 0
	}
	room.CurrentParticipantsCount = count
	if room.MaxParticipants < count {
		room.MaxParticipants = count
	}
	return room
}

func roomJoinedFromPayload(p domain.RoomJoinedPayload) RoomJoined {
	participants := p.Participants
	if participants == nil {
		participants = []string{}
	}

	room := domain.Room{
		ID:                       p.RoomID,
		Name:                     p.RoomName,
		MaxParticipants:          coerceMax(p.MaxParticipants),
		CurrentParticipantsCount: len(participants),
		Participants:             participants,
		CreatedAt:                p.CreatedAt.Or(time.Now()),
	}

	history := make([]domain.DrawEvent, 0, len(p.DrawEvents))
	for _, raw := range p.DrawEvents {
		var entry domain.DrawEventPayload
		if err := json.Unmarshal(raw, &entry); err != nil {
			// Skip the entry, keep the rest of the replay
			continue
		}
		ev, err := drawEventFromPayload(entry, p.RoomID)
		if err != nil {
			continue
		}
		history = append(history, ev)
	}
	return RoomJoined{Room: room, History: history}
}

// drawEventFromPayload accepts either the flat event or one wrapped as
// drawEvent. Stroke events must carry a point; style fields are defaulted.
func drawEventFromPayload(p domain.DrawEventPayload, roomID string) (domain.DrawEvent, error) {
	if p.Nested != nil {
		inner := *p.Nested
		if inner.RoomID == "" {
			inner.RoomID = p.RoomID
		}
		p = inner
	}

	if !p.Type.Valid() {
		return domain.DrawEvent{}, fmt.Errorf("%w: draw event type %q", ErrMalformedPayload, p.Type)
	}

	id := p.ID
	if id == "" {
		id = p.EventID
	}
	if id == "" {
		id = uuid.New().String()
	}
	if p.RoomID != "" {
		roomID = p.RoomID
	}

	ev := domain.DrawEvent{
		ID:        id,
		RoomID:    roomID,
		UserID:    p.UserID,
		Timestamp: p.Timestamp.Or(time.Now()),
		Type:      p.Type,
	}

	if p.Type.HasDrawData() {
		dd := p.DrawData
		if dd == nil || !dd.X.Valid || !dd.Y.Valid {
			return domain.DrawEvent{}, fmt.Errorf("%w: %s without a point", ErrMalformedPayload, p.Type)
		}
		tool := dd.Tool
		if !tool.Valid() {
			tool = domain.ToolBrush
		}
		color := strings.TrimSpace(dd.Color)
		if color == "" {
			color = domain.DefaultColor
		}
		ev.DrawData = &domain.DrawData{
			X:           dd.X.Value,
			Y:           dd.Y.Value,
			Color:       color,
			StrokeWidth: clamp(dd.StrokeWidth.Or(domain.DefaultStrokeWidth), domain.MinStrokeWidth, domain.MaxStrokeWidth),
			Tool:        tool,
		}
	}
	return ev, nil
}

// coerceMax defaults a missing or unusable maximum to the smallest legal room
func coerceMax(f domain.FlexInt) int {
	n := f.Or(domain.MinParticipants)
	if n < domain.MinParticipants {
		return domain.MinParticipants
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
