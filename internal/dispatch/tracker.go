package dispatch

import "sync"

// Tracker records file ids already ingested during this process lifetime.
// It has no eviction and no persistence; the set resets on restart.
//
// Reserve claims an id atomically before the download starts, so two
// concurrent file-share events for the same id cannot both pass the
// membership check. A failed ingestion must call Release to roll the
// reservation back.
type Tracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{ids: make(map[string]struct{})}
}

// Seen reports whether the id is currently recorded.
func (t *Tracker) Seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

// Reserve records the id and reports whether this caller claimed it.
// Returns false if the id was already recorded or in flight.
func (t *Tracker) Reserve(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ids[id]; ok {
		return false
	}
	t.ids[id] = struct{}{}
	return true
}

// Release rolls back a reservation after a failed ingestion.
func (t *Tracker) Release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ids, id)
}
