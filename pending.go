package uplink

import "sync"

// pendingKind distinguishes load waits, resolved by the next inbound
// payload, from call waits, resolved by an id-matched reply.
type pendingKind int

const (
	kindLoad pendingKind = iota
	kindCall
)

type pendingOutcome struct {
	data any
	err  error
}

// pendingEntry is one caller blocked on an inbound frame. It resolves or
// rejects exactly once.
type pendingEntry struct {
	id   string
	kind pendingKind
	once sync.Once
	ch   chan pendingOutcome
}

func newPendingEntry(id string, kind pendingKind) *pendingEntry {
	return &pendingEntry{
		id:   id,
		kind: kind,
		ch:   make(chan pendingOutcome, 1),
	}
}

func (e *pendingEntry) resolve(data any) {
	e.once.Do(func() { e.ch <- pendingOutcome{data: data} })
}

func (e *pendingEntry) reject(err error) {
	e.once.Do(func() { e.ch <- pendingOutcome{err: err} })
}

// pendingTable correlates inbound frames with blocked callers.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingEntry)}
}

func (t *pendingTable) add(e *pendingEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[e.id] = e
}

func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// resolveID completes the entry registered under id, reporting whether one
// was waiting.
func (t *pendingTable) resolveID(id string, data any) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	e.resolve(data)
	return true
}

// resolveLoads completes every load-kind entry with data and returns how
// many it resolved. Load waiters take whatever payload arrives next, so
// there is no type filter here.
func (t *pendingTable) resolveLoads(data any) int {
	t.mu.Lock()
	var matched []*pendingEntry
	for id, e := range t.entries {
		if e.kind == kindLoad {
			matched = append(matched, e)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, e := range matched {
		e.resolve(data)
	}
	return len(matched)
}

// rejectAll fails every waiter, used on teardown and reconnect exhaustion.
func (t *pendingTable) rejectAll(err error) int {
	t.mu.Lock()
	entries := make([]*pendingEntry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.entries = make(map[string]*pendingEntry)
	t.mu.Unlock()

	for _, e := range entries {
		e.reject(err)
	}
	return len(entries)
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
