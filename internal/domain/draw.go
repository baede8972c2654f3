package domain

import "time"

// Tool selects how a stroke is composited onto the surface
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

// Valid reports whether t is a known tool
func (t Tool) Valid() bool {
	return t == ToolBrush || t == ToolEraser
}

// DrawEventType defines the kind of drawing event
type DrawEventType string

const (
	StrokeStart DrawEventType = "STROKE_START"
	StrokeMove  DrawEventType = "STROKE_MOVE"
	StrokeEnd   DrawEventType = "STROKE_END"
	ClearCanvas DrawEventType = "CLEAR_CANVAS"
	Undo        DrawEventType = "UNDO"
	Redo        DrawEventType = "REDO"
)

// Valid reports whether t is a known event type
func (t DrawEventType) Valid() bool {
	switch t {
	case StrokeStart, StrokeMove, StrokeEnd, ClearCanvas, Undo, Redo:
		return true
	}
	return false
}

// HasDrawData reports whether events of this type carry a point
func (t DrawEventType) HasDrawData() bool {
	return t == StrokeStart || t == StrokeMove || t == StrokeEnd
}

// DrawData is a single pointer sample with its stroke style
type DrawData struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Color       string  `json:"color"`
	StrokeWidth int     `json:"strokeWidth"`
	Tool        Tool    `json:"tool"`
}

// DrawEvent is one entry in a room's drawing history
type DrawEvent struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"roomId"`
	UserID    string        `json:"userId"`
	Timestamp time.Time     `json:"timestamp"`
	Type      DrawEventType `json:"type"`
	DrawData  *DrawData     `json:"drawData,omitempty"` // nil for CLEAR_CANVAS, UNDO, REDO
}
