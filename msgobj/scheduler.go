package msgobj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds every wait for a transmit completion.
const DefaultTimeout = 100 * time.Millisecond

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Timeout bounds each wait for a completion. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Logger receives timeout warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Scheduler maps logical message streams, identified by CAN ID, onto
// transmit slots. A slot carrying more than one stream is shared: each
// message on it is waited for before the next may be loaded.
type Scheduler struct {
	t       *Table
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	routes map[uint32]int
	ids    map[int][]uint32

	locks []sync.Mutex // per slot, index 0 unused
}

// NewScheduler returns a scheduler with no streams assigned.
func NewScheduler(t *Table, opts SchedulerOptions) *Scheduler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		t:       t,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		routes:  make(map[uint32]int),
		ids:     make(map[int][]uint32),
		locks:   make([]sync.Mutex, t.NumObjects()+1),
	}
}

// Table returns the underlying table.
func (s *Scheduler) Table() *Table { return s.t }

// Timeout returns the configured completion timeout.
func (s *Scheduler) Timeout() time.Duration { return s.timeout }

// Assign binds the given stream identifiers to slot. An identifier can be
// bound to one slot only.
func (s *Scheduler) Assign(slot int, ids ...uint32) error {
	if _, err := s.t.slot(slot); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if cur, ok := s.routes[id]; ok && cur != slot {
			return fmt.Errorf("%w: 0x%X on slot %d", ErrAlreadyAssigned, id, cur)
		}
	}
	for _, id := range ids {
		if _, ok := s.routes[id]; ok {
			continue
		}
		s.routes[id] = slot
		s.ids[slot] = append(s.ids[slot], id)
	}
	return nil
}

// Route returns the slot a stream is bound to.
func (s *Scheduler) Route(id uint32) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.routes[id]
	return slot, ok
}

// Shared reports whether more than one stream is bound to slot.
func (s *Scheduler) Shared(slot int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids[slot]) > 1
}

// Send transmits msg on the slot its identifier is bound to. If the
// previous message on that slot is still in flight, Send waits for it
// first. On a shared slot Send also waits for msg itself to complete, so
// the next stream may reuse the slot.
func (s *Scheduler) Send(ctx context.Context, msg Message) error {
	slot, ok := s.Route(msg.ID)
	if !ok {
		return fmt.Errorf("%w: 0x%X", ErrNoRoute, msg.ID)
	}
	shared := s.Shared(slot)

	s.locks[slot].Lock()
	defer s.locks[slot].Unlock()
	return s.sendLocked(ctx, slot, msg, shared)
}

// SendSequence transmits msgs one after another on slot, waiting for each
// completion before loading the next message. The identifiers need not be
// assigned.
func (s *Scheduler) SendSequence(ctx context.Context, slot int, msgs ...Message) error {
	if _, err := s.t.slot(slot); err != nil {
		return err
	}
	s.locks[slot].Lock()
	defer s.locks[slot].Unlock()
	for i, msg := range msgs {
		if err := s.sendLocked(ctx, slot, msg, true); err != nil {
			return fmt.Errorf("message %d of %d: %w", i+1, len(msgs), err)
		}
	}
	return nil
}

func (s *Scheduler) sendLocked(ctx context.Context, slot int, msg Message, await bool) error {
	err := s.t.LoadTransmit(slot, msg, true)
	if errors.Is(err, ErrSlotBusy) {
		if err := s.wait(ctx, slot); err != nil {
			return err
		}
		err = s.t.LoadTransmit(slot, msg, true)
	}
	if err != nil || !await {
		return err
	}
	if err := s.wait(ctx, slot); err != nil {
		return err
	}
	s.t.Acknowledge(slot)
	return nil
}

// Wait blocks until the current message on slot completes, the timeout
// expires or ctx is done.
func (s *Scheduler) Wait(ctx context.Context, slot int) error {
	if _, err := s.t.slot(slot); err != nil {
		return err
	}
	return s.wait(ctx, slot)
}

func (s *Scheduler) wait(ctx context.Context, slot int) error {
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.t.Wait(wctx, slot)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	terr := fmt.Errorf("%w: slot %d after %s", ErrTransmitTimeout, slot, s.timeout)
	cerr := s.t.State().Err()
	s.logger.Warn("msgobj transmit timeout", "slot", slot, "timeout", s.timeout, "controller_error", cerr)
	if cerr != nil {
		return errors.Join(terr, cerr)
	}
	return terr
}
