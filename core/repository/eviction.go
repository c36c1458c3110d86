package repository

import (
	"container/heap"
	"time"
)

// evictionCandidate is a terminal record waiting to be evicted
type evictionCandidate struct {
	ID          string
	SubmittedAt time.Time
	Seq         uint64 // insertion order, breaks SubmittedAt ties
	Index       int    // For heap.Interface
}

// terminalQueue is a min-heap of terminal records, oldest first.
// Callers hold the store's write lock.
type terminalQueue struct {
	items []*evictionCandidate
}

// newTerminalQueue creates a new terminal queue
func newTerminalQueue() *terminalQueue {
	tq := &terminalQueue{
		items: make([]*evictionCandidate, 0),
	}
	heap.Init(tq)
	return tq
}

// Add registers a record that reached a terminal state
func (tq *terminalQueue) Add(id string, submittedAt time.Time, seq uint64) {
	heap.Push(tq, &evictionCandidate{
		ID:          id,
		SubmittedAt: submittedAt,
		Seq:         seq,
	})
}

// PopOldest removes and returns the oldest terminal record id
func (tq *terminalQueue) PopOldest() (string, bool) {
	if tq.Len() == 0 {
		return "", false
	}
	item := heap.Pop(tq).(*evictionCandidate)
	return item.ID, true
}

// Len returns the number of evictable records
func (tq *terminalQueue) Len() int {
	return len(tq.items)
}

// Less orders by submission time, then insertion order
func (tq *terminalQueue) Less(i, j int) bool {
	a, b := tq.items[i], tq.items[j]
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.Seq < b.Seq
}

// Swap swaps two candidates
func (tq *terminalQueue) Swap(i, j int) {
	tq.items[i], tq.items[j] = tq.items[j], tq.items[i]
	tq.items[i].Index = i
	tq.items[j].Index = j
}

// Push implements heap.Interface
func (tq *terminalQueue) Push(x interface{}) {
	n := len(tq.items)
	item := x.(*evictionCandidate)
	item.Index = n
	tq.items = append(tq.items, item)
}

// Pop implements heap.Interface
func (tq *terminalQueue) Pop() interface{} {
	old := tq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	tq.items = old[0 : n-1]
	return item
}
