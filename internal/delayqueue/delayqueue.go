// Package delayqueue implements the pair of timer queues (ready, clean)
// that feed the aggregator: a single driver goroutine owns a priority heap
// and delivers expirations over a channel, staying dormant (no polling)
// whenever it has nothing pending.
package delayqueue

import (
	"container/heap"
	"time"
)

type entry struct {
	uuid   string
	fireAt time.Time
	seq    int64
	index  int
}

// byDeadline orders entries by fire time, breaking ties by insertion order
// so equal-deadline entries expire in schedule order.
type byDeadline []*entry

func (h byDeadline) Len() int { return len(h) }
func (h byDeadline) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}
func (h byDeadline) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *byDeadline) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *byDeadline) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

type scheduleReq struct {
	uuid  string
	delay time.Duration
}

// Queue is one delay queue: schedule uuids with a delay, and receive them
// back in deadline order once the delay elapses. Entries are consumed once;
// callers must re-check liveness (e.g. against an active-track map) before
// acting on an expiration, since cancellation is not supported.
type Queue struct {
	in   chan scheduleReq
	out  chan string
	stop chan struct{}
}

// New starts a Queue with the given channel buffer depth and returns it.
// The driver goroutine runs until Close (drain remaining, then stop) or
// Stop (abandon remaining, stop immediately).
func New(bufSize int) *Queue {
	q := &Queue{
		in:   make(chan scheduleReq, bufSize),
		out:  make(chan string, bufSize),
		stop: make(chan struct{}),
	}
	go q.run()
	return q
}

// Schedule inserts an entry that fires after delay. It does not block on
// the driver's progress beyond the input channel's buffer.
func (q *Queue) Schedule(uuid string, delay time.Duration) {
	select {
	case q.in <- scheduleReq{uuid: uuid, delay: delay}:
	case <-q.stop:
	}
}

// Expired yields the next uuid whose deadline has elapsed, in deadline
// order.
func (q *Queue) Expired() <-chan string {
	return q.out
}

// Close signals "drain and then shut down": entries already queued still
// expire and are delivered. Schedule after Close panics, since it sends on
// the closed input channel.
func (q *Queue) Close() {
	close(q.in)
}

// Stop abandons all remaining entries and shuts the driver down
// immediately, without delivering their expirations.
func (q *Queue) Stop() {
	close(q.stop)
}

func (q *Queue) run() {
	defer close(q.out)

	var h byDeadline
	heap.Init(&h)
	var seq int64
	inClosed := false

	for {
		if inClosed && h.Len() == 0 {
			return
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if h.Len() > 0 {
			d := time.Until(h[0].fireAt)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case req, ok := <-q.in:
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				inClosed = true
				continue
			}
			heap.Push(&h, &entry{uuid: req.uuid, fireAt: time.Now().Add(req.delay), seq: seq})
			seq++

		case <-timerC:
			e := heap.Pop(&h).(*entry)
			select {
			case q.out <- e.uuid:
			case <-q.stop:
				return
			}

		case <-q.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
