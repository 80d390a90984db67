package msgobj

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Role is the direction a slot has been loaded for.
type Role uint8

const (
	RoleNone Role = iota
	RoleTransmit
	RoleReceive
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleTransmit:
		return "transmit"
	case RoleReceive:
		return "receive"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// SlotState is the lifecycle of a slot as seen by the foreground.
//
//	Free -> Loaded -> Completed -> Free
//	                  Completed -> Loaded (reload or re-arm)
type SlotState uint8

const (
	SlotFree SlotState = iota
	SlotLoaded
	SlotCompleted
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotLoaded:
		return "loaded"
	case SlotCompleted:
		return "completed"
	default:
		return fmt.Sprintf("SlotState(%d)", uint8(s))
	}
}

func (s SlotState) canMoveTo(next SlotState) bool {
	switch s {
	case SlotFree:
		return next == SlotLoaded
	case SlotLoaded:
		return next == SlotCompleted
	case SlotCompleted:
		return next == SlotFree || next == SlotLoaded
	}
	return false
}

// pollInterval paces Wait for slots whose completion is only visible in the
// controller registers because interrupts are disabled for them.
const pollInterval = time.Millisecond

type slot struct {
	id int

	// done is signalled by the interrupt handler; it is created once and
	// never closed.
	done chan struct{}

	mu    sync.Mutex
	role  Role
	state SlotState
	intr  bool
	obj   Object
}

func (s *slot) moveTo(next SlotState) error {
	if !s.state.canMoveTo(next) {
		return fmt.Errorf("%w: slot %d %s -> %s", ErrInvalidTransition, s.id, s.state, next)
	}
	s.state = next
	return nil
}

// drain discards a stale completion signal.
func (s *slot) drain() {
	select {
	case <-s.done:
	default:
	}
}

// SlotInfo is a read-only view of a slot.
type SlotInfo struct {
	Slot    int
	Role    Role
	State   SlotState
	Object  Object
	Pending bool
	Count   uint32
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithNotifyBuffer sets the capacity of the channel returned by Notify.
// The default is one entry per slot.
func WithNotifyBuffer(n int) TableOption {
	return func(t *Table) {
		if n > 0 {
			t.notify = make(chan int, n)
		}
	}
}

// Table manages the message objects of one controller.
type Table struct {
	ctrl   Controller
	state  *ControllerState
	slots  []*slot // index 0 unused
	notify chan int
}

// NewTable wraps ctrl and installs HandleInterrupt as its interrupt
// handler. A nil state allocates a fresh one.
func NewTable(ctrl Controller, state *ControllerState, opts ...TableOption) (*Table, error) {
	n := ctrl.NumObjects()
	if n < 1 || n > maxObjects {
		return nil, fmt.Errorf("msgobj: controller reports %d objects, want 1..%d", n, maxObjects)
	}
	if state == nil {
		state = NewControllerState(n)
	}
	if state.NumObjects() < n {
		return nil, fmt.Errorf("msgobj: state sized for %d objects, controller has %d", state.NumObjects(), n)
	}
	t := &Table{
		ctrl:   ctrl,
		state:  state,
		slots:  make([]*slot, n+1),
		notify: make(chan int, n),
	}
	for i := 1; i <= n; i++ {
		t.slots[i] = &slot{id: i, done: make(chan struct{}, 1)}
	}
	for _, o := range opts {
		o(t)
	}
	ctrl.SetInterruptHandler(func() { t.HandleInterrupt() })
	return t, nil
}

// NumObjects returns the number of slots.
func (t *Table) NumObjects() int { return len(t.slots) - 1 }

// State returns the shared controller state.
func (t *Table) State() *ControllerState { return t.state }

// Controller returns the wrapped controller.
func (t *Table) Controller() Controller { return t.ctrl }

// Notify delivers slot numbers as completions are signalled. Deliveries
// are dropped while the channel is full, so receivers should treat a value
// as a hint and inspect every slot they own.
func (t *Table) Notify() <-chan int { return t.notify }

func (t *Table) slot(n int) (*slot, error) {
	if n < 1 || n >= len(t.slots) {
		return nil, slotError(ErrSlotRange, n)
	}
	return t.slots[n], nil
}

// completed reports whether the slot has a completion that the foreground
// has not consumed. Caller holds s.mu.
func (t *Table) completed(s *slot) bool {
	if s.state == SlotCompleted || t.state.Pending(s.id) {
		return true
	}
	if s.state != SlotLoaded {
		return false
	}
	switch s.role {
	case RoleTransmit:
		// With interrupts enabled only the handler may report completion,
		// otherwise a late interrupt would be taken for the next message.
		return !s.intr && t.ctrl.TxRequests()&slotBit(s.id) == 0
	case RoleReceive:
		return t.ctrl.NewData()&slotBit(s.id) != 0
	}
	return false
}

// LoadTransmit programs slot with msg and starts its transmission. A
// completion of the previous message that was observed but not yet
// acknowledged is consumed. ErrSlotBusy is returned while a previous
// message is still in flight.
func (t *Table) LoadTransmit(n int, msg Message, interruptEnable bool) error {
	s, err := t.slot(n)
	if err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role == RoleReceive && s.state != SlotFree {
		return slotError(ErrWrongRole, n)
	}
	if s.state == SlotLoaded {
		if !t.completed(s) {
			return slotError(ErrSlotBusy, n)
		}
		if err := s.moveTo(SlotCompleted); err != nil {
			return err
		}
	}

	obj := Object{ID: msg.ID, Len: msg.Len, Data: msg.Data}
	if msg.Extended {
		obj.Flags |= FlagExtendedID
	}
	if interruptEnable {
		obj.Flags |= FlagTxIntEnable
	}

	// Forget the previous completion before committing; the new
	// transmission may complete before SetObject returns.
	t.state.takePending(n)
	s.drain()
	if err := t.ctrl.SetObject(n, &obj, TypeTx); err != nil {
		s.state = SlotFree
		return fmt.Errorf("msgobj: load transmit slot %d: %w", n, err)
	}
	s.role = RoleTransmit
	s.intr = interruptEnable
	s.obj = obj
	s.state = SlotLoaded
	return nil
}

// LoadReceiveFilter programs slot as a receive object. It does not block;
// frames are taken by the controller from then on.
func (t *Table) LoadReceiveFilter(n int, f Filter) error {
	s, err := t.slot(n)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role == RoleTransmit && s.state == SlotLoaded && !t.completed(s) {
		return slotError(ErrSlotBusy, n)
	}
	obj := f.object()
	t.state.takePending(n)
	s.drain()
	if err := t.ctrl.SetObject(n, &obj, TypeRx); err != nil {
		s.state = SlotFree
		return fmt.Errorf("msgobj: load receive slot %d: %w", n, err)
	}
	s.role = RoleReceive
	s.intr = f.InterruptEnable
	s.obj = obj
	s.state = SlotLoaded
	return nil
}

// ReadSlot copies the slot contents out of the controller and releases the
// hardware buffer. For receive slots the pending flag is cleared after the
// copy, re-arming the slot for the next frame.
func (t *Table) ReadSlot(n int) (Message, error) {
	msg, _, err := t.read(n)
	return msg, err
}

// read is ReadSlot that also reports whether the controller held unread
// data for a receive slot.
func (t *Table) read(n int) (Message, bool, error) {
	s, err := t.slot(n)
	if err != nil {
		return Message{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role == RoleNone || (s.role == RoleReceive && s.state == SlotFree) {
		return Message{}, false, slotError(ErrNotLoaded, n)
	}
	// Only a receive read releases the buffer. Clearing INTPND on a
	// transmit slot would swallow its completion interrupt.
	var obj Object
	if err := t.ctrl.GetObject(n, &obj, s.role == RoleReceive); err != nil {
		return Message{}, false, fmt.Errorf("msgobj: read slot %d: %w", n, err)
	}
	msg := messageFromObject(&obj)
	fresh := obj.Flags&FlagNewData != 0
	if s.role == RoleReceive {
		t.state.takePending(n)
		if msg.DataLost {
			t.state.noteDataLost()
		}
	}
	return msg, fresh, nil
}

// Pending reports whether the slot has an unconsumed completion.
func (t *Table) Pending(n int) bool {
	s, err := t.slot(n)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.completed(s)
}

// Acknowledge consumes the completion of a transmit slot, moving it to
// SlotCompleted, and reports whether there was one. For receive slots only
// the pending flag is cleared.
func (t *Table) Acknowledge(n int) bool {
	s, err := t.slot(n)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role == RoleTransmit && s.state == SlotLoaded {
		if !t.completed(s) {
			return false
		}
		t.state.takePending(n)
		s.state = SlotCompleted
		return true
	}
	return t.state.takePending(n)
}

// Release returns a completed slot to SlotFree. The role is kept so that
// Slot still reports what the slot was last used for.
func (t *Table) Release(n int) error {
	s, err := t.slot(n)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SlotFree {
		return nil
	}
	if s.state == SlotLoaded && t.completed(s) {
		t.state.takePending(n)
		s.state = SlotCompleted
	}
	return s.moveTo(SlotFree)
}

// Clear invalidates the object in the controller and frees the slot in any
// state. A transmission in progress is abandoned.
func (t *Table) Clear(n int) error {
	s, err := t.slot(n)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := t.ctrl.ClearObject(n); err != nil {
		return fmt.Errorf("msgobj: clear slot %d: %w", n, err)
	}
	t.state.takePending(n)
	s.drain()
	s.role = RoleNone
	s.state = SlotFree
	s.intr = false
	s.obj = Object{}
	return nil
}

// Slot returns a snapshot of slot n.
func (t *Table) Slot(n int) (SlotInfo, error) {
	s, err := t.slot(n)
	if err != nil {
		return SlotInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotInfo{
		Slot:    n,
		Role:    s.role,
		State:   s.state,
		Object:  s.obj,
		Pending: t.completed(s),
		Count:   t.state.Count(n),
	}, nil
}

// Wait blocks until slot n has a completion or ctx is done. It does not
// consume the completion.
func (t *Table) Wait(ctx context.Context, n int) error {
	s, err := t.slot(n)
	if err != nil {
		return err
	}
	var tick <-chan time.Time
	for {
		s.mu.Lock()
		if s.state == SlotFree {
			s.mu.Unlock()
			return slotError(ErrNotLoaded, n)
		}
		done := t.completed(s)
		polled := !s.intr
		s.mu.Unlock()
		if done {
			return nil
		}
		if polled && tick == nil {
			ticker := time.NewTicker(pollInterval)
			defer ticker.Stop()
			tick = ticker.C
		}
		select {
		case <-s.done:
		case <-tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// signal wakes waiters of slot n. Interrupt context; never blocks.
func (t *Table) signal(n int) {
	select {
	case t.slots[n].done <- struct{}{}:
	default:
	}
	select {
	case t.notify <- n:
	default:
	}
}
