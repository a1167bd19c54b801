package notify

import (
	"sync"
	"time"
)

// retryQueue holds backed-off jobs on timers and feeds them back into the
// dispatch channel. Jobs still waiting at shutdown are counted as dropped.
type retryQueue struct {
	out  chan<- pushJob
	done <-chan struct{}

	mu      sync.Mutex
	pending int
}

func newRetryQueue(out chan<- pushJob, done <-chan struct{}) *retryQueue {
	return &retryQueue{out: out, done: done}
}

func (q *retryQueue) Enqueue(job pushJob, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	q.add(1)
	time.AfterFunc(delay, func() {
		defer q.add(-1)
		select {
		case <-q.done:
			metricDroppedTotal.WithLabelValues("shutdown").Inc()
		case q.out <- job:
			metricQueueLen.Set(float64(len(q.out)))
		}
	})
}

// Pending is the number of jobs waiting out a backoff.
func (q *retryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

func (q *retryQueue) add(n int) {
	q.mu.Lock()
	q.pending += n
	q.mu.Unlock()
}
