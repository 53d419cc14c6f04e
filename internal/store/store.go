// Package store provides the persistent key-value backends the retry
// queue lives in: Redis, SQLite and in-memory implementations plus a
// failover wrapper. All implementations dispatch in-process change
// notifications from Set, which is what the auth-restoration watcher
// subscribes to.
package store

import "sync"

// watchHub fans out key-change notifications to registered callbacks.
// Callbacks run synchronously on the mutating goroutine.
type watchHub struct {
	mu  sync.RWMutex
	fns map[string][]func(newValue, oldValue []byte)
}

func newWatchHub() *watchHub {
	return &watchHub{fns: make(map[string][]func(newValue, oldValue []byte))}
}

func (h *watchHub) add(key string, fn func(newValue, oldValue []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns[key] = append(h.fns[key], fn)
}

func (h *watchHub) dispatch(key string, newValue, oldValue []byte) {
	h.mu.RLock()
	fns := append([]func(newValue, oldValue []byte){}, h.fns[key]...)
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(newValue, oldValue)
	}
}
