// Package observer provides ordered subscriber lists with unsubscribe handles.
package observer

import "sync"

// Registry holds handlers for one kind of event
type Registry[T any] struct {
	mu       sync.Mutex
	nextID   int
	handlers []entry[T]
}

type entry[T any] struct {
	id int
	fn func(T)
}

// Subscribe adds fn and returns a func that removes it. Calling the
// returned func more than once is a no-op.
func (r *Registry[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.handlers = append(r.handlers, entry[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry[T]) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.handlers {
		if e.id == id {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return
		}
	}
}

// Notify calls every handler in registration order. Handlers added or
// removed during Notify take effect on the next call.
func (r *Registry[T]) Notify(v T) {
	r.mu.Lock()
	snapshot := make([]entry[T], len(r.handlers))
	copy(snapshot, r.handlers)
	r.mu.Unlock()

	for _, e := range snapshot {
		e.fn(v)
	}
}

// Len returns the number of handlers
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
