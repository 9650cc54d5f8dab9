// Package corelease implements the session-wide core-rationing ledger
// nodes use to cooperatively share the machine's parallelism (spec.md
// §5's RequestCores/ReleaseCores contract): every node's first core is
// implicit and always granted; acquiring additional cores blocks until
// capacity frees up, and releasing more than was granted is a contract
// violation the caller gets back as an error rather than a silently
// corrupted count.
//
// Adapted from the teacher's pkg/kv bearer-token HTTP side-channel
// (api.go's authMiddleware/token scheme, client.go's GetValue/SetValue
// shape): the same out-of-process-reachable request/response pattern,
// re-themed around an integer ledger instead of a generic string store.
package corelease

import (
	"context"
	"fmt"
	"sync"
)

// Ledger tracks how many cores beyond each node's implicit first core are
// currently granted, bounded by a total capacity (spec.md §5).
type Ledger struct {
	mu        sync.Mutex
	cond      *sync.Cond
	capacity  int
	granted   int
	perHolder map[int32]int
}

// NewLedger creates a ledger with the given total capacity (typically
// runtime.NumCPU(), supplied by the caller so tests can pick a small
// deterministic value).
func NewLedger(capacity int) *Ledger {
	if capacity < 1 {
		capacity = 1
	}
	l := &Ledger{capacity: capacity, perHolder: make(map[int32]int)}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// RequestCores asks for n additional cores on behalf of holder (a node
// id), blocking until capacity allows it or ctx is canceled. The first
// core a node ever holds is implicit and never counted against capacity
// here — callers request only cores beyond that first one (spec.md §5).
// It returns the number actually granted, which may be less than n if
// the ledger grants partial capacity to avoid starving other holders;
// callers must treat the return value, not n, as authoritative.
func (l *Ledger) RequestCores(ctx context.Context, holder int32, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	l.mu.Lock()
	defer l.mu.Unlock()
	for l.capacity-l.granted <= 0 {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		l.cond.Wait()
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	available := l.capacity - l.granted
	grant := n
	if grant > available {
		grant = available
	}
	l.granted += grant
	l.perHolder[holder] += grant
	return grant, nil
}

// ReleaseCores returns n cores previously granted to holder. Releasing
// more than a holder currently has is a contract violation (spec.md §5)
// reported as an error, not silently clamped, so a buggy node surfaces
// its bug instead of corrupting every other node's accounting.
func (l *Ledger) ReleaseCores(holder int32, n int) error {
	if n <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	held := l.perHolder[holder]
	if n > held {
		return fmt.Errorf("node %d released %d cores but only holds %d", holder, n, held)
	}
	l.perHolder[holder] = held - n
	l.granted -= n
	l.cond.Broadcast()
	return nil
}

// Available reports the instantaneous free capacity, for diagnostics.
func (l *Ledger) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity - l.granted
}

// ReleaseAll drops every core held by holder, used when a node shuts down
// or crashes without releasing cleanly (spec.md §5's node-failure path).
func (l *Ledger) ReleaseAll(holder int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.granted -= l.perHolder[holder]
	delete(l.perHolder, holder)
	l.cond.Broadcast()
}
