package msgobj

import "fmt"

// Outcome classifies one invocation of the interrupt handler.
type Outcome uint8

const (
	// DispatchIdle: no cause was pending, or the cause was not recognised.
	DispatchIdle Outcome = iota
	// DispatchSlot: a slot completion was recorded.
	DispatchSlot
	// DispatchError: a status interrupt was recorded and the error flag set.
	DispatchError
)

func (o Outcome) String() string {
	switch o {
	case DispatchIdle:
		return "idle"
	case DispatchSlot:
		return "dispatched"
	case DispatchError:
		return "error-reported"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Dispatch describes what HandleInterrupt did.
type Dispatch struct {
	Outcome Outcome
	Slot    int    // set for DispatchSlot
	Status  Status // set for DispatchError
}

// HandleInterrupt is the single interrupt entry point. It reads the cause
// register once and handles that cause:
//
//   - status: the status register is read, which acknowledges the
//     interrupt, and latched with the error flag set;
//   - slot: the slot interrupt is cleared, its completion counted and
//     marked pending, the error flag cleared and waiters signalled;
//   - anything else is counted as spurious.
//
// Only the status cause and slot causes are cleared here. A controller
// keeps the line asserted while further causes are pending, which
// re-enters the handler. HandleInterrupt never blocks and never logs.
func (t *Table) HandleInterrupt() Dispatch {
	cause := t.ctrl.InterruptCause()
	if cause == CauseStatus {
		st := t.ctrl.Status()
		t.state.reportStatus(st)
		return Dispatch{Outcome: DispatchError, Status: st}
	}
	if n, ok := cause.Object(); ok && n < len(t.slots) {
		t.ctrl.ClearInterrupt(n)
		t.state.complete(n)
		t.signal(n)
		return Dispatch{Outcome: DispatchSlot, Slot: n}
	}
	t.state.spuriousInterrupt()
	return Dispatch{Outcome: DispatchIdle}
}
