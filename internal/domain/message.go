package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// MessageType is the tag of an inbound envelope
type MessageType string

const (
	MessageTypeConnectionEstablished MessageType = "CONNECTION_ESTABLISHED"
	MessageTypeRoomsList             MessageType = "ROOMS_LIST"
	MessageTypeRoomsUpdated          MessageType = "ROOMS_UPDATED"
	MessageTypeRoomCreated           MessageType = "ROOM_CREATED"
	MessageTypeRoomJoined            MessageType = "ROOM_JOINED"
	MessageTypeDrawEvent             MessageType = "DRAW_EVENT"
	MessageTypeUserJoined            MessageType = "USER_JOINED"
	MessageTypeUserLeft              MessageType = "USER_LEFT"
	MessageTypeRoomLeft              MessageType = "ROOM_LEFT"
	MessageTypeError                 MessageType = "ERROR"
)

// Action is the tag of an outbound envelope
type Action string

const (
	ActionCreateRoom Action = "CREATE_ROOM"
	ActionJoinRoom   Action = "JOIN_ROOM"
	ActionLeaveRoom  Action = "LEAVE_ROOM"
	ActionGetRooms   Action = "GET_ROOMS"
	ActionDrawEvent  Action = "DRAW_EVENT"
)

// Envelope is the inbound wire unit
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp FlexTime        `json:"timestamp"`
}

// ==== Outbound commands ====

// CreateRoomCommand asks the server to open a room
type CreateRoomCommand struct {
	Action   Action `json:"action"`
	RoomName string `json:"roomName"`
	MaxUsers int    `json:"maxUsers"`
}

// JoinRoomCommand asks the server to seat a user in a room
type JoinRoomCommand struct {
	Action Action `json:"action"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// BareCommand carries only an action (LEAVE_ROOM, GET_ROOMS)
type BareCommand struct {
	Action Action `json:"action"`
}

// DrawEventCommand forwards a local draw event to the room
type DrawEventCommand struct {
	Action    Action    `json:"action"`
	EventData DrawEvent `json:"eventData"`
}

// ==== Inbound payloads ====

// RoomPayload is a room as the server describes it
type RoomPayload struct {
	ID                       string   `json:"id"`
	RoomID                   string   `json:"roomId,omitempty"` // some servers send roomId instead of id
	Name                     string   `json:"name"`
	MaxParticipants          FlexInt  `json:"maxParticipants"`
	CurrentParticipantsCount FlexInt  `json:"currentParticipantsCount"`
	Participants             []string `json:"participants"`
	CreatedAt                FlexTime `json:"createdAt"`
}

// RoomsPayload is the data of ROOMS_LIST, ROOMS_UPDATED and optionally ROOM_CREATED
type RoomsPayload struct {
	Rooms []RoomPayload `json:"rooms"`
}

// DrawDataPayload is DrawData with lenient numeric fields
type DrawDataPayload struct {
	X           FlexFloat `json:"x"`
	Y           FlexFloat `json:"y"`
	Color       string    `json:"color"`
	StrokeWidth FlexInt   `json:"strokeWidth"`
	Tool        Tool      `json:"tool"`
}

// DrawEventPayload is a draw event as broadcast by the server
type DrawEventPayload struct {
	ID        string           `json:"id,omitempty"`
	EventID   string           `json:"eventId,omitempty"`
	RoomID    string           `json:"roomId,omitempty"`
	UserID    string           `json:"userId"`
	Type      DrawEventType    `json:"type"`
	Timestamp FlexTime         `json:"timestamp"`
	DrawData  *DrawDataPayload `json:"drawData,omitempty"`

	// Nested is set when the server wraps the event as data.drawEvent
	Nested *DrawEventPayload `json:"drawEvent,omitempty"`
}

// RoomJoinedPayload is the data of ROOM_JOINED
type RoomJoinedPayload struct {
	RoomID                   string             `json:"roomId"`
	RoomName                 string             `json:"roomName"`
	Participants             []string           `json:"participants"`
	MaxParticipants          FlexInt            `json:"maxParticipants"`
	CurrentParticipantsCount FlexInt            `json:"currentParticipantsCount"`
	CreatedAt                FlexTime           `json:"createdAt"`

	// Entries decode one by one so a bad entry costs only itself
	DrawEvents []json.RawMessage `json:"drawEvents"`
}

// MembershipPayload is the data of USER_JOINED and USER_LEFT
type MembershipPayload struct {
	RoomID                   string   `json:"roomId"`
	UserID                   string   `json:"userId"`
	Participants             []string `json:"participants,omitempty"`
	MaxParticipants          FlexInt  `json:"maxParticipants"`
	CurrentParticipantsCount FlexInt  `json:"currentParticipantsCount"`
}

// ==== Lenient numbers ====

// FlexInt accepts a JSON number, a numeric string, or null/absent. Fractions
// truncate; values outside the int32 range are treated as missing.
type FlexInt struct {
	Value int
	Valid bool
}

// UnmarshalJSON never fails on a non-numeric value, it only leaves Valid false
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = FlexInt{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if n, err := strconv.Atoi(s); err == nil {
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			*f = FlexInt{Value: n, Valid: true}
		}
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && finite(v) && math.Abs(v) <= math.MaxInt32 {
		*f = FlexInt{Value: int(v), Valid: true}
	}
	return nil
}

// MarshalJSON writes null for an invalid value
func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(f.Value)), nil
}

// Or returns the value, or def when the value is missing
func (f FlexInt) Or(def int) int {
	if !f.Valid {
		return def
	}
	return f.Value
}

// FlexFloat accepts a JSON number, a numeric string, or null/absent
type FlexFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON never fails on a non-numeric value, it only leaves Valid false
func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	*f = FlexFloat{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if v, err := strconv.ParseFloat(s, 64); err == nil && finite(v) {
		*f = FlexFloat{Value: v, Valid: true}
	}
	return nil
}

// MarshalJSON writes null for an invalid value
func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f.Value, 'f', -1, 64)), nil
}

// ==== Lenient times ====

// FlexTime accepts an RFC 3339 string, epoch milliseconds as a number or
// numeric string, or null/absent
type FlexTime struct {
	Time  time.Time
	Valid bool
}

// UnmarshalJSON never fails on an unusable value, it only leaves Valid false
func (f *FlexTime) UnmarshalJSON(b []byte) error {
	*f = FlexTime{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*f = FlexTime{Time: t, Valid: true}
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexTime{Time: time.UnixMilli(ms).UTC(), Valid: true}
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && finite(v) && math.Abs(v) <= maxExactMillis {
		*f = FlexTime{Time: time.UnixMilli(int64(v)).UTC(), Valid: true}
	}
	return nil
}

// MarshalJSON writes null for an invalid value
func (f FlexTime) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Time.Format(time.RFC3339Nano))
}

// Or returns the time, or def when the value is missing
func (f FlexTime) Or(def time.Time) time.Time {
	if !f.Valid {
		return def
	}
	return f.Time
}

// maxExactMillis is the largest float64 holding every integer below it
const maxExactMillis = 1 << 53

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
