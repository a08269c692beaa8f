package session

import "github.com/podtrace/rbatrace/internal/rba"

// compactThreshold is how many consumed slots the queue tolerates before
// shifting live entries down.
const compactThreshold = 4096

// reorderQueue holds records in file order until the head is resolved. It
// backs the FileOrder mode of Records.
type reorderQueue struct {
	buf  []*rba.Record
	head int
}

func (q *reorderQueue) push(r *rba.Record) {
	q.buf = append(q.buf, r)
}

// pop returns the head once it is no longer pending, or nil.
func (q *reorderQueue) pop() *rba.Record {
	if q.head == len(q.buf) {
		return nil
	}
	r := q.buf[q.head]
	if r.State == rba.StatePending {
		return nil
	}
	q.buf[q.head] = nil
	q.head++
	q.compact()
	return r
}

// release removes and returns the head whatever its state. The queue must not
// be empty.
func (q *reorderQueue) release() *rba.Record {
	r := q.buf[q.head]
	q.buf[q.head] = nil
	q.head++
	q.compact()
	return r
}

func (q *reorderQueue) compact() {
	switch {
	case q.head == len(q.buf):
		q.buf = q.buf[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.buf):
		n := copy(q.buf, q.buf[q.head:])
		clear(q.buf[n:])
		q.buf = q.buf[:n]
		q.head = 0
	}
}

// rest returns every queued record regardless of state and empties the queue.
func (q *reorderQueue) rest() []*rba.Record {
	out := q.buf[q.head:]
	q.buf = nil
	q.head = 0
	return out
}

func (q *reorderQueue) Len() int {
	return len(q.buf) - q.head
}
