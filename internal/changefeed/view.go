package changefeed

import "sync"

// View is a session-local cache of ledger entities maintained purely from
// change events. The ledger store stays the source of truth; a View is a
// cache, never an authority.
type View struct {
	mu       sync.RWMutex
	entries  map[string]any
	versions map[string]int64
}

func NewView() *View {
	return &View{
		entries:  make(map[string]any),
		versions: make(map[string]int64),
	}
}

// Apply folds one event into the view. Applying the same event twice leaves
// the view unchanged, and versioned updates never regress.
func (v *View) Apply(event Event) {
	if event.Key == "" {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch event.Kind {
	case KindInsert:
		if _, ok := v.entries[event.Key]; ok {
			return
		}
		v.entries[event.Key] = event.Value
		v.versions[event.Key] = event.Version
	case KindUpdate:
		if current, ok := v.versions[event.Key]; ok && event.Version != 0 && event.Version < current {
			return
		}
		v.entries[event.Key] = event.Value
		v.versions[event.Key] = event.Version
	case KindDelete:
		delete(v.entries, event.Key)
		delete(v.versions, event.Key)
	}
}

// Get returns the cached value for a key.
func (v *View) Get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	value, ok := v.entries[key]
	return value, ok
}

// Len returns the number of cached entities.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}
