package initializer

import (
	"sync/atomic"
)

// Phase is the lifecycle position of one initializer run.
type Phase int32

const (
	WaitingToStart Phase = iota
	Running
	Complete
	Failed
)

func (p Phase) String() string {
	switch p {
	case WaitingToStart:
		return "WaitingToStart"
	case Running:
		return "Running"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the phase is Complete or Failed.
func (p Phase) Terminal() bool {
	return p == Complete || p == Failed
}

// RuntimeState is the published state of one initializer.
type RuntimeState struct {
	Phase Phase
	Err   error
}

// runtimeCell publishes the RuntimeState of one initializer. The runner is the only
// writer; probes and readiness checks read it concurrently.
type runtimeCell struct {
	name    string
	current atomic.Pointer[RuntimeState]
}

func newRuntimeCell(name string) *runtimeCell {
	c := &runtimeCell{name: name}
	c.current.Store(&RuntimeState{Phase: WaitingToStart})
	return c
}

func (c *runtimeCell) Load() RuntimeState {
	return *c.current.Load()
}

// advance moves the cell from one phase to a later one. It returns false when the
// cell is not in the from phase, which keeps transitions one-directional.
func (c *runtimeCell) advance(from, to Phase, err error) bool {
	if to <= from {
		return false
	}
	next := &RuntimeState{Phase: to, Err: err}
	for {
		cur := c.current.Load()
		if cur.Phase != from {
			return false
		}
		if c.current.CompareAndSwap(cur, next) {
			return true
		}
	}
}
