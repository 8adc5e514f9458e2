package queue

import (
	"context"
	"sync"
)

// workQueue holds tickets in FIFO order and hands out at most one ticket per
// target key at a time. Tickets for a key that is being processed stay in the
// queue, in order, until that key is done.
type workQueue struct {
	mu sync.Mutex

	// queue holds tickets in FIFO order
	queue []*Ticket

	// processing tracks keys currently being processed
	processing map[string]bool

	// cond is used for blocking Get operations
	cond *sync.Cond

	// shuttingDown indicates the queue is stopping
	shuttingDown bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		processing: make(map[string]bool),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add appends a ticket. It reports false once the queue is shutting down.
func (q *workQueue) Add(t *Ticket) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return false
	}
	q.queue = append(q.queue, t)
	q.cond.Signal()
	return true
}

// next returns the index of the first ticket whose key is idle, or -1.
func (q *workQueue) next() int {
	for i, t := range q.queue {
		if !q.processing[t.key()] {
			return i
		}
	}
	return -1
}

// Get retrieves the next runnable ticket, blocking if necessary.
func (q *workQueue) Get(ctx context.Context) (*Ticket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.shuttingDown && q.next() < 0 {
		select {
		case <-ctx.Done():
			return nil, false
		default:
		}

		// Wake up on context cancellation as well as on Add/Done/Shutdown.
		// Closing done lets the goroutine exit whichever wins.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()

		q.cond.Wait()
		close(done)

		select {
		case <-ctx.Done():
			return nil, false
		default:
		}
	}

	// Waiting tickets are left for Drain once shutdown starts.
	if q.shuttingDown {
		return nil, false
	}
	i := q.next()

	t := q.queue[i]
	q.queue = append(q.queue[:i], q.queue[i+1:]...)
	q.processing[t.key()] = true
	return t, true
}

// Done marks the key of a ticket idle again.
func (q *workQueue) Done(t *Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, t.key())
	// Another worker may be waiting for a ticket of this key.
	q.cond.Broadcast()
}

// Len returns the number of waiting tickets.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Drain removes and returns every waiting ticket.
func (q *workQueue) Drain() []*Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.queue
	q.queue = nil
	return out
}

// Shutdown stops the queue.
func (q *workQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	q.cond.Broadcast()
}
