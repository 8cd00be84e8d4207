package channel

import "sync"

// PendingQueue buffers outbound envelopes produced while the channel is not
// open. No deduplication: callers needing idempotent delivery embed their
// own key in the payload.
type PendingQueue struct {
	mu      sync.Mutex
	entries []Envelope
}

func (q *PendingQueue) Enqueue(env Envelope) {
	q.mu.Lock()
	q.entries = append(q.entries, env)
	q.mu.Unlock()
}

func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Drain consumes entries in FIFO order, calling send for each. On the first
// failed send the entry is re-queued at the tail and the pass stops, so the
// remaining entries keep their relative order for the next flush. Returns
// the number of entries sent.
func (q *PendingQueue) Drain(send func(Envelope) bool) int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return n
		}
		env := q.entries[0]
		q.entries = q.entries[1:]
		q.mu.Unlock()

		if !send(env) {
			q.mu.Lock()
			q.entries = append(q.entries, env)
			q.mu.Unlock()
			return n
		}
		n++
	}
}
