package lurch

import (
	"sync"
	"sync/atomic"
)

// EventKind identifies what happened to an item.
type EventKind uint8

const (
	// Added fires after a new entry or item became visible.
	Added EventKind = iota + 1
	// Updated fires after an entry or item was replaced; Previous holds the old one.
	Updated
	// Removed fires after an entry or item was removed, including evictions.
	Removed
	// Cleared fires once after a bulk clear; Count holds the number of items dropped.
	Cleared
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event[T any] struct {
	Kind     EventKind
	Item     T
	Previous T
	Count    int
}

// Handler processes events. Handlers run synchronously on the goroutine that
// performed the mutation, possibly while a bucket lock is held: they must be
// fast and must not call back into the collection that emitted the event.
type Handler[T any] func(Event[T])

type subscription[T any] struct {
	id      uint64
	handler Handler[T]
	kinds   uint8 // bitmask over EventKind, 0 = all
}

// Notifier fans events out to subscribers.
//
// The subscriber list is copy-on-write behind an atomic pointer, so Emit on a
// notifier without subscribers costs one atomic load.
type Notifier[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   atomic.Pointer[[]subscription[T]]
}

// Subscribe registers handler for the given kinds (all kinds if none are given)
// and returns a function that removes the registration. Calling it more than
// once is harmless.
func (n *Notifier[T]) Subscribe(handler Handler[T], kinds ...EventKind) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}

	var mask uint8
	for _, k := range kinds {
		mask |= 1 << k
	}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	var cur []subscription[T]
	if p := n.subs.Load(); p != nil {
		cur = *p
	}
	next := make([]subscription[T], 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, subscription[T]{id: id, handler: handler, kinds: mask})
	n.subs.Store(&next)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *Notifier[T]) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p := n.subs.Load()
	if p == nil {
		return
	}
	next := make([]subscription[T], 0, len(*p))
	for _, s := range *p {
		if s.id != id {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		n.subs.Store(nil)
		return
	}
	n.subs.Store(&next)
}

// Active reports whether at least one subscriber is registered.
func (n *Notifier[T]) Active() bool {
	p := n.subs.Load()
	return p != nil && len(*p) > 0
}

// Emit delivers ev to every matching subscriber.
func (n *Notifier[T]) Emit(ev Event[T]) {
	p := n.subs.Load()
	if p == nil {
		return
	}
	for _, s := range *p {
		if s.kinds == 0 || s.kinds&(1<<ev.Kind) != 0 {
			s.handler(ev)
		}
	}
}
