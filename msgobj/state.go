package msgobj

import "sync/atomic"

// ControllerState is shared between the interrupt handler and the
// foreground. Each field has a single writer:
//
//   - the interrupt handler increments counts, sets pending flags, writes
//     the error flag and last status, and bumps the interrupt counters;
//   - the foreground clears pending flags (compare-and-swap) and owns the
//     data-lost counter.
//
// Error-state bits of every status interrupt are also ORed into an
// accumulated word that only TakeErrors clears, so a bus-off is not lost
// when a later status reports success.
//
// Reset must not race with interrupts. ResetCounters may be called while
// the controller runs.
type ControllerState struct {
	counts  []atomic.Uint32
	pending []atomic.Bool

	errFlag    atomic.Bool
	lastStatus atomic.Uint32
	errors     atomic.Uint32

	interrupts atomic.Uint64
	statusInts atomic.Uint64
	spurious   atomic.Uint64
	dataLost   atomic.Uint64
}

// NewControllerState allocates state for n slots.
func NewControllerState(n int) *ControllerState {
	return &ControllerState{
		counts:  make([]atomic.Uint32, n+1),
		pending: make([]atomic.Bool, n+1),
	}
}

// NumObjects returns the number of slots the state was sized for.
func (s *ControllerState) NumObjects() int { return len(s.counts) - 1 }

func (s *ControllerState) valid(slot int) bool { return slot >= 1 && slot < len(s.counts) }

// Count returns the number of completions observed on slot.
func (s *ControllerState) Count(slot int) uint32 {
	if !s.valid(slot) {
		return 0
	}
	return s.counts[slot].Load()
}

// Pending reports whether slot has a completion that was not yet consumed.
func (s *ControllerState) Pending(slot int) bool {
	if !s.valid(slot) {
		return false
	}
	return s.pending[slot].Load()
}

// ErrorFlag reports whether the most recent interrupt was a status
// interrupt. Any later slot completion clears it.
func (s *ControllerState) ErrorFlag() bool { return s.errFlag.Load() }

// LastStatus returns the status register value read by the most recent
// status interrupt.
func (s *ControllerState) LastStatus() Status { return Status(s.lastStatus.Load()) }

// Errors returns the error-state bits (bus-off, warning, passive) seen
// since the last TakeErrors, with the most recent error code.
func (s *ControllerState) Errors() Status { return Status(s.errors.Load()) }

// TakeErrors returns the accumulated errors and clears them.
func (s *ControllerState) TakeErrors() Status { return Status(s.errors.Swap(0)) }

// Err returns a *ControllerError while the error flag is set. Its status is
// the last status with the accumulated error-state bits added.
func (s *ControllerState) Err() error {
	if !s.errFlag.Load() {
		return nil
	}
	return &ControllerError{Status: s.LastStatus() | s.Errors()&errorState}
}

// StateSnapshot is a point-in-time copy of the counters.
type StateSnapshot struct {
	Counts           []uint32 // index 0 unused
	Pending          []bool   // index 0 unused
	ErrorFlag        bool
	LastStatus       Status
	Errors           Status
	Interrupts       uint64
	StatusInterrupts uint64
	Spurious         uint64
	DataLost         uint64
}

// Snapshot copies the state. Fields are read one at a time, so a snapshot
// taken while interrupts are running is not atomic as a whole.
func (s *ControllerState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Counts:           make([]uint32, len(s.counts)),
		Pending:          make([]bool, len(s.pending)),
		ErrorFlag:        s.errFlag.Load(),
		LastStatus:       s.LastStatus(),
		Errors:           s.Errors(),
		Interrupts:       s.interrupts.Load(),
		StatusInterrupts: s.statusInts.Load(),
		Spurious:         s.spurious.Load(),
		DataLost:         s.dataLost.Load(),
	}
	for i := 1; i < len(s.counts); i++ {
		snap.Counts[i] = s.counts[i].Load()
		snap.Pending[i] = s.pending[i].Load()
	}
	return snap
}

// Reset zeroes every counter and flag.
func (s *ControllerState) Reset() {
	for i := range s.counts {
		s.counts[i].Store(0)
		s.pending[i].Store(false)
	}
	s.resetCounters()
}

// ResetCounters zeroes the counters, the error flag and the recorded
// status. Pending flags are left alone, so a completion that is waiting to
// be consumed survives.
func (s *ControllerState) ResetCounters() {
	for i := range s.counts {
		s.counts[i].Store(0)
	}
	s.resetCounters()
}

func (s *ControllerState) resetCounters() {
	s.errFlag.Store(false)
	s.lastStatus.Store(0)
	s.errors.Store(0)
	s.interrupts.Store(0)
	s.statusInts.Store(0)
	s.spurious.Store(0)
	s.dataLost.Store(0)
}

// complete records a slot completion. Interrupt context only.
func (s *ControllerState) complete(slot int) {
	s.interrupts.Add(1)
	s.counts[slot].Add(1)
	s.pending[slot].Store(true)
	s.errFlag.Store(false)
}

// reportStatus records a status interrupt. Interrupt context only.
func (s *ControllerState) reportStatus(st Status) {
	s.interrupts.Add(1)
	s.statusInts.Add(1)
	s.lastStatus.Store(uint32(st))
	s.accumulate(st)
	s.errFlag.Store(true)
}

const errorState = StatusBusOff | StatusEWarn | StatusEPass

func (s *ControllerState) accumulate(st Status) {
	if !st.Failed() {
		return
	}
	for {
		old := Status(s.errors.Load())
		next := old | st&errorState
		if lec := st.LEC(); lec != LECNone && lec != LECNoChange {
			next = next.WithLEC(lec)
		}
		if next == old || s.errors.CompareAndSwap(uint32(old), uint32(next)) {
			return
		}
	}
}

// spuriousInterrupt records an interrupt with no recognised cause.
func (s *ControllerState) spuriousInterrupt() {
	s.interrupts.Add(1)
	s.spurious.Add(1)
}

// takePending clears the pending flag of slot and reports whether it was
// set. Foreground only.
func (s *ControllerState) takePending(slot int) bool {
	return s.pending[slot].CompareAndSwap(true, false)
}

func (s *ControllerState) noteDataLost() { s.dataLost.Add(1) }
