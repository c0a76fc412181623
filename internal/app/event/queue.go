package event

import (
	"sync"

	"gopkg.in/eapache/queue.v1"
)

// Queue is a FIFO of control events. Push may be called from any goroutine;
// TryPop is meant for a single consumer. Neither blocks on the playback
// controller.
type Queue struct {
	mu sync.Mutex
	q  *queue.Queue
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{q: queue.New()}
}

// Push appends a record.
func (q *Queue) Push(r Record) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.q.Add(r)
}

// TryPop removes and returns the oldest record, if any.
func (q *Queue) TryPop() (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.q.Length() == 0 {
		return Record{}, false
	}
	return q.q.Remove().(Record), true
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.Length()
}

// Clear drops all queued records.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.q = queue.New()
}
