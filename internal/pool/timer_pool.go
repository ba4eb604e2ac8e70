// Package pool recycles timers used by bounded waits on hot paths.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer that fires after d, reusing a pooled timer when
// one is available. Return it with PutTimer once the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer) // only *time.Timer values are ever pooled
	drain(t)
	t.Reset(d)

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	drain(t)
	timerPool.Put(t)
}

// drain stops t and discards a pending tick that the caller never consumed.
func drain(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
