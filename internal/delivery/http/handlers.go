// Package http serves a read-only view of a running session for debugging.
package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mmuslimabdulj/drawtogether/internal/delivery/ws"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
	"github.com/mmuslimabdulj/drawtogether/internal/middleware"
	"github.com/mmuslimabdulj/drawtogether/internal/store"
)

// StateSource is the store as the handlers see it
type StateSource interface {
	Snapshot() store.Snapshot
	AvailableRooms() []domain.Room
}

// CanvasSource renders the drawing
type CanvasSource interface {
	WritePNG(w io.Writer) error
}

// FrameSource lists recently sent frames
type FrameSource interface {
	History() []ws.Frame
}

type Handler struct {
	state  StateSource
	canvas CanvasSource
	frames FrameSource
	log    *logger.Logger
}

func NewHandler(state StateSource, canvas CanvasSource, frames FrameSource, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.New("http")
	}
	return &Handler{
		state:  state,
		canvas: canvas,
		frames: frames,
		log:    log,
	}
}

// Routes registers the inspection endpoints behind security headers and
// per-IP rate limiting
func (h *Handler) Routes(limiter *middleware.IPRateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", h.HandleState)
	mux.HandleFunc("GET /rooms", h.HandleRooms)
	mux.HandleFunc("GET /canvas.png", h.HandleCanvas)
	mux.HandleFunc("GET /outbound", h.HandleOutbound)

	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.RateLimitMiddleware(limiter),
	)
}

// HandleState returns the store snapshot
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.state.Snapshot())
}

// HandleRooms returns the lobby list
func (h *Handler) HandleRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.state.AvailableRooms()
	if rooms == nil {
		rooms = []domain.Room{}
	}
	h.writeJSON(w, rooms)
}

// HandleCanvas renders the surface as PNG
func (h *Handler) HandleCanvas(w http.ResponseWriter, r *http.Request) {
	if h.canvas == nil {
		http.Error(w, "Canvas not available", http.StatusServiceUnavailable)
		return
	}

	// Encode fully first so a failure can still become a 500
	var buf bytes.Buffer
	if err := h.canvas.WritePNG(&buf); err != nil {
		h.log.WithError(err).Error("failed to encode canvas")
		http.Error(w, "Failed to render canvas", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

type outboundFrame struct {
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// HandleOutbound returns recently sent frames, oldest first
func (h *Handler) HandleOutbound(w http.ResponseWriter, r *http.Request) {
	if h.frames == nil {
		h.writeJSON(w, []outboundFrame{})
		return
	}

	frames := h.frames.History()
	out := make([]outboundFrame, 0, len(frames))
	for _, f := range frames {
		data := json.RawMessage(f.Data)
		if !json.Valid(data) {
			quoted, _ := json.Marshal(string(f.Data))
			data = quoted
		}
		out = append(out, outboundFrame{At: f.At, Data: data})
	}
	h.writeJSON(w, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Warn("failed to write response")
	}
}
