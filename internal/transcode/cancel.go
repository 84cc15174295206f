package transcode

import "sync"

// Canceller is the job-scoped cancellation flag. Once cancellation is
// requested it can never be cleared.
//
// Cancellation is cooperative: conversions already running are left to
// finish, and only tasks which have not yet started are skipped.
type Canceller struct {
	mu        sync.RWMutex
	cancelled bool
	done      chan struct{}
}

func NewCanceller() *Canceller {
	return &Canceller{done: make(chan struct{})}
}

// RequestCancel marks the job as cancelled. It is safe to call from any
// goroutine, any number of times. When RequestCancel returns, no further
// task will be started.
func (c *Canceller) RequestCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cancelled {
		c.cancelled = true
		close(c.done)
	}
}

func (c *Canceller) IsCancelled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancelled
}

// Done returns a channel which is closed once cancellation is requested.
func (c *Canceller) Done() <-chan struct{} {
	return c.done
}

// unlessCancelled runs fn while holding the read lock, so long as
// cancellation has not been requested. RequestCancel cannot complete
// while fn is running.
func (c *Canceller) unlessCancelled(fn func() error) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cancelled {
		return false, nil
	}

	return true, fn()
}
