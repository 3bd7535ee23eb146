package uplink

import (
	"sync"
	"time"
)

// queuedMessage is one outbound frame waiting for the channel to open.
type queuedMessage struct {
	payload  []byte
	queuedAt time.Time
}

// sendQueue buffers outbound frames while the channel is down. It is
// bounded: pushing past the limit evicts the oldest frames first.
type sendQueue struct {
	mu      sync.Mutex
	items   []queuedMessage
	limit   int
	dropped uint64
}

func newSendQueue(limit int) *sendQueue {
	if limit <= 0 {
		limit = DefaultSendQueueLimit
	}
	return &sendQueue{limit: limit}
}

// push appends payload, evicting the oldest entries when the queue is full,
// and returns how many were dropped.
func (q *sendQueue) push(payload []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, queuedMessage{payload: payload, queuedAt: time.Now()})
	drop := len(q.items) - q.limit
	if drop <= 0 {
		return 0
	}
	q.items = append([]queuedMessage(nil), q.items[drop:]...)
	q.dropped += uint64(drop)
	return drop
}

// drain removes and returns every queued frame in FIFO order.
func (q *sendQueue) drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := make([][]byte, len(q.items))
	for i, m := range q.items {
		out[i] = m.payload
	}
	q.items = nil
	return out
}

func (q *sendQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *sendQueue) dropCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
