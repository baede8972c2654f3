// Package canvas provides the drawing surfaces strokes are rendered onto.
package canvas

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Point is a position in surface coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Composite selects how stroked pixels combine with the surface
type Composite int

const (
	// SourceOver paints over existing pixels
	SourceOver Composite = iota
	// DestinationOut erases where the stroke covers
	DestinationOut
)

// String returns the canvas name of the operation
func (c Composite) String() string {
	switch c {
	case SourceOver:
		return "source-over"
	case DestinationOut:
		return "destination-out"
	default:
		return "unknown"
	}
}

// Surface is a 2D context with a saveable style state
type Surface interface {
	// Save pushes the current color, width and composite
	Save()
	// Restore pops the state pushed by the matching Save
	Restore()
	SetStrokeColor(hex string)
	SetLineWidth(w float64)
	SetComposite(op Composite)
	// StrokeLine draws a round-capped segment with the current style
	StrokeLine(from, to Point)
	// Clear wipes every pixel
	Clear()
}

// style is the state Save and Restore operate on
type style struct {
	color     string
	width     float64
	composite Composite
}

func defaultStyle() style {
	return style{color: "#000000", width: 1, composite: SourceOver}
}

// ParseHexColor parses #RGB, #RRGGBB or #RRGGBBAA
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")

	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]}) + "ff"
	case 6:
		s += "ff"
	case 8:
	default:
		return color.RGBA{}, fmt.Errorf("canvas: invalid color %q", s)
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("canvas: invalid color %q: %w", s, err)
	}
	return color.RGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}
