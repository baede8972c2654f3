package domain

import "time"

// ==== Transport Constants ====

const (
	// DefaultServerURL is used when WS_URL is not set
	DefaultServerURL = "ws://localhost:8080"

	// MaxMessageSize is the maximum allowed inbound WebSocket frame size in bytes.
	// Room snapshots carry the full draw history, so this is far above a chat frame.
	MaxMessageSize = 1 << 20

	// MaxHistorySize is the number of outbound frames kept for inspection
	MaxHistorySize = 200
)

// ==== Reconnect Constants ====

const (
	// MaxReconnectAttempts is the number of retries before giving up
	MaxReconnectAttempts = 5

	// ReconnectBaseDelay is multiplied by the attempt number (linear backoff)
	ReconnectBaseDelay = 1 * time.Second

	// RoomsRefreshDelay is the wait before asking for the room list after ROOM_CREATED
	RoomsRefreshDelay = 100 * time.Millisecond
)

// ==== Room Limits ====

const (
	MinParticipants        = 2
	MaxParticipants        = 20
	DefaultMaxParticipants = 5

	// MinRoomNameLength is counted in runes after trimming
	MinRoomNameLength = 3
)

// ==== User Limits ====

const (
	MinUserNameLength = 2
	MaxUserNameLength = 20
)

// ==== Drawing Constants ====

const (
	DefaultStrokeWidth = 3
	MinStrokeWidth     = 1
	MaxStrokeWidth     = 20

	// EraserWidthRatio widens eraser strokes relative to their nominal width
	EraserWidthRatio = 2

	DefaultColor = "#000000"
)

// DefaultColors is the palette offered to users and assigned to new profiles
var DefaultColors = []string{
	"#000000", // Black
	"#FF0000", // Red
	"#00FF00", // Green
	"#0000FF", // Blue
	"#FFFF00", // Yellow
	"#FF00FF", // Magenta
	"#00FFFF", // Cyan
	"#FFA500", // Orange
}
