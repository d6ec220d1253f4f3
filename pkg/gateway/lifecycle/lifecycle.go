// Package lifecycle holds process state shared by the HTTP handlers.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle flips to draining when shutdown starts: /readyz fails and new
// voice connections are refused while live ones finish.
type Lifecycle struct {
	draining atomic.Bool
	since    atomic.Int64 // unix nanos of the last transition to draining
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	if draining && !l.draining.Swap(true) {
		l.since.Store(time.Now().UnixNano())
		return
	}
	if !draining {
		l.draining.Store(false)
		l.since.Store(0)
	}
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// DrainingSince returns when draining started, or the zero time.
func (l *Lifecycle) DrainingSince() time.Time {
	if l == nil {
		return time.Time{}
	}
	ns := l.since.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
