package ws

import (
	"sync"
	"time"
)

// Frame is one outbound payload as it was queued for the wire
type Frame struct {
	At   time.Time `json:"at"`
	Data []byte    `json:"data"`
}

// RingBuffer is a fixed-size circular buffer of outbound frames.
// Safe for concurrent use.
type RingBuffer struct {
	mu   sync.RWMutex
	data []Frame
	head int // next write position
	size int // current number of elements
	cap  int // maximum capacity
}

// NewRingBuffer creates a new ring buffer with the given capacity
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		data: make([]Frame, capacity),
		cap:  capacity,
	}
}

// Add appends a frame, overwriting the oldest if full
func (rb *RingBuffer) Add(f Frame) {
	// Copy payload to avoid external modification
	copied := make([]byte, len(f.Data))
	copy(copied, f.Data)
	f.Data = copied

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.data[rb.head] = f
	rb.head = (rb.head + 1) % rb.cap
	if rb.size < rb.cap {
		rb.size++
	}
}

// GetAll returns all frames oldest first
func (rb *RingBuffer) GetAll() []Frame {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}

	result := make([]Frame, rb.size)
	if rb.size < rb.cap {
		copy(result, rb.data[:rb.size])
	} else {
		// Full: head points at the oldest element
		copy(result, rb.data[rb.head:])
		copy(result[rb.cap-rb.head:], rb.data[:rb.head])
	}
	return result
}
