package canvas

import "sync"

// Segment is one stroked line as a Recorder saw it
type Segment struct {
	From      Point     `json:"from"`
	To        Point     `json:"to"`
	Color     string    `json:"color"`
	Width     float64   `json:"width"`
	Composite Composite `json:"composite"`
}

// Recorder is a Surface that remembers what was drawn instead of drawing it
type Recorder struct {
	mu       sync.Mutex
	state    style
	stack    []style
	segments []Segment
	clears   int
	ops      []string
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{state: defaultStyle()}
}

func (r *Recorder) Save() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stack = append(r.stack, r.state)
	r.ops = append(r.ops, "save")
}

func (r *Recorder) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "restore")
	if len(r.stack) == 0 {
		return
	}
	r.state = r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *Recorder) SetStrokeColor(hex string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.color = hex
}

func (r *Recorder) SetLineWidth(w float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.width = w
}

func (r *Recorder) SetComposite(op Composite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.composite = op
}

func (r *Recorder) StrokeLine(from, to Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = append(r.segments, Segment{
		From:      from,
		To:        to,
		Color:     r.state.color,
		Width:     r.state.width,
		Composite: r.state.composite,
	})
	r.ops = append(r.ops, "stroke")
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	r.segments = nil
	r.ops = append(r.ops, "clear")
}

// Segments returns the segments drawn since the last Clear
func (r *Recorder) Segments() []Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Segment, len(r.segments))
	copy(out, r.segments)
	return out
}

// Clears returns how many times Clear was called
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

// Depth returns the number of unmatched Save calls
func (r *Recorder) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

// Ops returns the call log: save, restore, stroke, clear
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ops))
	copy(out, r.ops)
	return out
}

// CurrentStyle returns the active color, width and composite
func (r *Recorder) CurrentStyle() (string, float64, Composite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.color, r.state.width, r.state.composite
}
