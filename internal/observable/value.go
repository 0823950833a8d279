// Package observable holds a value that listeners can watch.
package observable

import "sync"

// Listener receives the current value.
type Listener[T any] func(T)

type subscription[T any] struct {
	id int
	fn Listener[T]
}

// Value is a mutex-guarded value with an ordered listener set. Emissions are
// serialized: listeners never run concurrently with each other, and each
// change is delivered to every listener in registration order before the next
// change is delivered. Listeners must not call back into the same Value.
type Value[T comparable] struct {
	mu     sync.Mutex
	emitMu sync.Mutex
	cur    T
	nextID int
	subs   []subscription[T]
}

// New returns a Value holding initial.
func New[T comparable](initial T) *Value[T] {
	return &Value[T]{cur: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Subscribe registers fn, calls it once with the current value before
// returning, and returns a func that removes it. The returned func may be
// called more than once.
func (v *Value[T]) Subscribe(fn Listener[T]) (unsubscribe func()) {
	v.emitMu.Lock()
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs = append(v.subs, subscription[T]{id: id, fn: fn})
	cur := v.cur
	v.mu.Unlock()

	fn(cur)
	v.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { v.remove(id) })
	}
}

// Set stores next and notifies listeners if it differs from the current value.
func (v *Value[T]) Set(next T) {
	v.Update(func(cur T) (T, bool) { return next, next != cur })
}

// Reset stores next and notifies listeners even when the value is unchanged.
func (v *Value[T]) Reset(next T) {
	v.Update(func(T) (T, bool) { return next, true })
}

// Update applies fn to the current value under the lock. Listeners are
// notified with the new value when fn reports true.
func (v *Value[T]) Update(fn func(cur T) (next T, notify bool)) {
	v.emitMu.Lock()
	defer v.emitMu.Unlock()

	v.mu.Lock()
	next, notify := fn(v.cur)
	v.cur = next
	subs := make([]subscription[T], len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	if !notify {
		return
	}
	for _, s := range subs {
		s.fn(next)
	}
}

// Len returns the number of registered listeners.
func (v *Value[T]) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

func (v *Value[T]) remove(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, s := range v.subs {
		if s.id == id {
			v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
			return
		}
	}
}
