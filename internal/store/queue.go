package store

import (
	"sync"

	"github.com/roach88/qsched/internal/ir"
)

// recordKind distinguishes between trace record kinds.
type recordKind int

const (
	recordTag recordKind = iota + 1
	recordExecution
)

// record wraps tag and execution records for the trace queue.
type record struct {
	kind      recordKind
	tag       ir.TagRecord
	execution ir.ExecutionRecord
}

// recordQueue is a thread-safe FIFO queue of trace records.
//
// The queue is unbounded so scheduler workers never block on the database;
// every worker enqueues and the single Tracer writer dequeues.
//
// The queue uses a channel for signaling so the writer can wait without
// polling.
type recordQueue struct {
	mu      sync.Mutex
	records []record
	closed  bool
	signal  chan struct{} // Signals record availability (buffered, size 1)
}

// newRecordQueue creates an empty record queue.
func newRecordQueue() *recordQueue {
	return &recordQueue{
		records: make([]record, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a record to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *recordQueue) Enqueue(r record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.records = append(q.records, r)

	// Non-blocking - buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Dequeue removes and returns the front record.
// Blocks until a record is available or the queue is closed.
// Returns (record{}, false) once the queue is closed and drained.
func (q *recordQueue) Dequeue() (record, bool) {
	for {
		if r, ok := q.TryDequeue(); ok {
			return r, true
		}

		q.mu.Lock()
		if q.closed && len(q.records) == 0 {
			q.mu.Unlock()
			return record{}, false
		}
		q.mu.Unlock()

		<-q.signal
	}
}

// TryDequeue attempts to dequeue without blocking.
// Returns (record{}, false) if the queue is empty.
func (q *recordQueue) TryDequeue() (record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return record{}, false
	}

	r := q.records[0]
	q.records[0] = record{}

	if len(q.records) == 1 {
		q.records = q.records[:0]
	} else {
		q.records = q.records[1:]
	}

	return r, true
}

// Len returns the current queue length.
func (q *recordQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Close signals that no more records will be enqueued.
// Wakes a blocked Dequeue by closing the signal channel.
func (q *recordQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
