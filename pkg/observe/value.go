package observe

import "sync"

// Value is a single-writer, many-reader observable state container.
// The owning component publishes with Set; any number of readers poll
// with Get or subscribe for updates. Publishes are atomic: a reader
// never sees a half-updated value.
type Value[T any] struct {
	mu   sync.RWMutex
	val  T
	set  bool
	subs map[int]chan T
	next int
}

func NewValue[T any]() *Value[T] {
	return &Value[T]{subs: make(map[int]chan T)}
}

// Set publishes a new value and fans it out to subscribers. A slow
// subscriber's stale pending value is replaced rather than blocking the
// writer.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	v.val = val
	v.set = true
	for _, ch := range v.subs {
		select {
		case ch <- val:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- val:
			default:
			}
		}
	}
	v.mu.Unlock()
}

// Get returns the current value and whether one has been published.
func (v *Value[T]) Get() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val, v.set
}

// Subscribe registers an update channel. The returned cancel func must
// be called to release the subscription. If a value has already been
// published it is delivered immediately.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.next
	v.next++
	ch := make(chan T, 1)
	if v.set {
		ch <- v.val
	}
	v.subs[id] = ch

	cancel := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
