package switcher

import "sync/atomic"

// State of the switch latch.
type State int32

const (
	Idle State = iota
	// Switching is held by a user initiated switch or tenant creation.
	Switching
	// Restoring is held by the cold start sequence when it moves the session
	// to the persisted tenant.
	Restoring
)

func (s State) String() string {
	switch s {
	case Switching:
		return "switching"
	case Restoring:
		return "restoring"
	default:
		return "idle"
	}
}

// Latch admits one tenant changing sequence at a time. The zero value is idle.
type Latch struct {
	state    atomic.Int32
	acquired atomic.Uint64
}

// TryAcquire moves the latch from Idle to s. It reports false when another
// sequence holds it.
func (l *Latch) TryAcquire(s State) bool {
	if s == Idle {
		return false
	}
	if !l.state.CompareAndSwap(int32(Idle), int32(s)) {
		return false
	}
	l.acquired.Add(1)
	return true
}

// Generation counts successful acquisitions. A reader that saw the latch idle
// at generation g and sees g again knows no switch started in between.
func (l *Latch) Generation() uint64 {
	return l.acquired.Load()
}

func (l *Latch) Release() {
	l.state.Store(int32(Idle))
}

func (l *Latch) State() State {
	return State(l.state.Load())
}

func (l *Latch) Busy() bool {
	return l.State() != Idle
}
