package partition

import (
	"context"
	"sync"
	"time"
)

// Lease tracks whether this process currently holds the exclusive right to
// apply commands for a partition. There is no cross-process leader election
// in this repository; Lease is the single-process lease every partition
// uses -- always granted, renewed on a timer, exactly like the teacher's checkpoint
// TTL loop this is grounded on, just guarding a boolean instead of a map of
// request checkpoints.
type Lease struct {
	partitionID string
	ttl         time.Duration

	mu      sync.RWMutex
	held    bool
	expires time.Time

	cancel context.CancelFunc
}

// NewLease creates a self-renewing lease already held by this process. Call
// Stop to release it (e.g. on partition shutdown or failover).
func NewLease(partitionID string) *Lease {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Lease{
		partitionID: partitionID,
		ttl:         10 * time.Second,
		held:        true,
		expires:     time.Now().Add(10 * time.Second),
		cancel:      cancel,
	}
	go l.renewLoop(ctx)
	return l
}

// Held reports whether the lease is currently valid. Submit refuses to
// apply commands once this goes false, since an expired lease means another
// process may already be acting as leader for this partition.
func (l *Lease) Held() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.held && time.Now().Before(l.expires)
}

func (l *Lease) renewLoop(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.expires = time.Now().Add(l.ttl)
			l.mu.Unlock()
		}
	}
}

// Stop releases the lease and stops the renewal loop. Submit will refuse
// all further commands against this partition afterward.
func (l *Lease) Stop() {
	l.cancel()
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}
