// Package progress delivers (percent, message) events from background workers
// to listeners without the worker ever blocking on the listener.
package progress

import (
	"math"
	"sync"
)

// Event is one progress update for a job.
type Event struct {
	JobID   string  `json:"job_id"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
	Done    bool    `json:"done"`
}

// Listener receives events in emission order on the reporter's own goroutine.
type Listener func(ev Event)

// Reporter queues events FIFO and drains them asynchronously. Emit never
// blocks and no event is dropped. Percent is clamped monotonically
// non-decreasing within a job except on explicit Reset.
type Reporter struct {
	jobID    string
	listener Listener

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	last   float64
	closed bool
	done   chan struct{}
}

// NewReporter creates a reporter and starts its delivery goroutine.
func NewReporter(jobID string, listener Listener) *Reporter {
	r := &Reporter{
		jobID:    jobID,
		listener: listener,
		done:     make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	go r.drain()
	return r
}

// Emit queues one event. Safe to call from any goroutine.
func (r *Reporter) Emit(percent float64, message string) {
	r.emit(percent, message, false)
}

// Finish queues a terminal event. The job is over, success or not.
func (r *Reporter) Finish(percent float64, message string) {
	r.emit(percent, message, true)
}

// Reset drops the monotonic floor back to zero for a job restart.
func (r *Reporter) Reset(message string) {
	r.mu.Lock()
	if !r.closed {
		r.last = 0
		r.queue = append(r.queue, Event{JobID: r.jobID, Percent: 0, Message: message})
		r.cond.Signal()
	}
	r.mu.Unlock()
}

// Range emits progress interpolated over [start, end] by done/total.
func (r *Reporter) Range(done, total int, start, end float64, message string) {
	if total <= 0 || end < start {
		r.Emit(start, message)
		return
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	pct := start + (end-start)*float64(done)/float64(total)
	r.Emit(pct, message)
}

// Close waits for the queue to drain, then stops the delivery goroutine.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cond.Signal()
	r.mu.Unlock()
	<-r.done
}

func (r *Reporter) emit(percent float64, message string, done bool) {
	if math.IsNaN(percent) {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if percent < r.last {
		percent = r.last
	}
	r.last = percent
	r.queue = append(r.queue, Event{JobID: r.jobID, Percent: percent, Message: message, Done: done})
	r.cond.Signal()
	r.mu.Unlock()
}

func (r *Reporter) drain() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 && r.closed {
			r.mu.Unlock()
			return
		}
		batch := r.queue
		r.queue = nil
		r.mu.Unlock()

		if r.listener != nil {
			for _, ev := range batch {
				r.listener(ev)
			}
		}
	}
}
