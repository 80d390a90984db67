package msgobj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/notnil/canobj"
)

// Filter selects the frames a receive slot accepts: a frame is taken when
// its format equals Extended and (id & Mask) == (ID & Mask). Mask is
// narrowed to the identifier width, so an all-ones mask is an exact match.
//
// Each receive slot holds a single message. When a partial mask lets
// several identifiers into one slot, a frame that arrives before the
// previous one was read overwrites it and the read reports DataLost.
type Filter struct {
	ID              uint32
	Mask            uint32
	Extended        bool
	Len             uint8
	InterruptEnable bool
}

// ExactFilter returns an interrupt-driven filter for one identifier.
// Identifiers above 0x7FF are extended.
func ExactFilter(id uint32) Filter {
	ext := id > canobj.MaxStdID
	return Filter{ID: id, Mask: canobj.IDMask(ext), Extended: ext, Len: canobj.MaxLen, InterruptEnable: true}
}

// Validate checks the identifier width and expected length.
func (f Filter) Validate() error {
	if f.Len > canobj.MaxLen {
		return fmt.Errorf("%w: %d", ErrInvalidLength, f.Len)
	}
	if f.ID > canobj.IDMask(f.Extended) {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, f.ID)
	}
	return nil
}

// Accepts applies the acceptance rule to an identifier.
func (f Filter) Accepts(id uint32, extended bool) bool {
	return canobj.ByAcceptance(f.ID, f.Mask, f.Extended)(canobj.Frame{ID: id, Extended: extended})
}

func (f Filter) object() Object {
	obj := Object{ID: f.ID, IDMask: f.Mask, Flags: FlagUseIDFilter, Len: f.Len}
	if f.Extended {
		obj.Flags |= FlagExtendedID
	}
	if f.InterruptEnable {
		obj.Flags |= FlagRxIntEnable
	}
	return obj
}

// Received is a message taken from a receive slot.
type Received struct {
	Slot    int
	Message Message
}

// Err returns an ErrDataLost error when an earlier message on the slot was
// overwritten before it could be read.
func (r Received) Err() error {
	if !r.Message.DataLost {
		return nil
	}
	return fmt.Errorf("%w on message object %d", ErrDataLost, r.Slot)
}

// FilterBankOptions configures a FilterBank.
type FilterBankOptions struct {
	// Logger receives data-loss warnings. Defaults to slog.Default().
	Logger *slog.Logger

	// PollInterval paces Run for filters without interrupts. Defaults to
	// 10ms.
	PollInterval time.Duration
}

// FilterBank is the set of receive slots of a table.
type FilterBank struct {
	t        *Table
	logger   *slog.Logger
	interval time.Duration

	mu      sync.RWMutex
	filters map[int]Filter
	order   []int
}

// NewFilterBank returns an empty filter bank on t.
func NewFilterBank(t *Table, opts FilterBankOptions) *FilterBank {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	return &FilterBank{
		t:        t,
		logger:   opts.Logger,
		interval: opts.PollInterval,
		filters:  make(map[int]Filter),
	}
}

// Table returns the underlying table.
func (b *FilterBank) Table() *Table { return b.t }

// Add loads f into slot. Replacing the filter of a slot already in the
// bank is allowed.
func (b *FilterBank) Add(slot int, f Filter) error {
	if err := b.t.LoadReceiveFilter(slot, f); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.filters[slot]; !ok {
		b.order = append(b.order, slot)
		sort.Ints(b.order)
	}
	b.filters[slot] = f
	return nil
}

// Remove clears slot and drops it from the bank.
func (b *FilterBank) Remove(slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.filters[slot]; !ok {
		return slotError(ErrNotLoaded, slot)
	}
	if err := b.t.Clear(slot); err != nil {
		return err
	}
	delete(b.filters, slot)
	for i, s := range b.order {
		if s == slot {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// Filters returns the filters by slot.
func (b *FilterBank) Filters() map[int]Filter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[int]Filter, len(b.filters))
	for k, v := range b.filters {
		out[k] = v
	}
	return out
}

// Match returns the lowest slot whose filter accepts the identifier. This
// is the slot a controller scanning objects in ascending order stores the
// frame in.
func (b *FilterBank) Match(id uint32, extended bool) (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, slot := range b.order {
		if b.filters[slot].Accepts(id, extended) {
			return slot, true
		}
	}
	return 0, false
}

func (b *FilterBank) slots() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]int(nil), b.order...)
}

// Poll reads every slot with unread data in ascending slot order. Data
// loss is logged and reported through Received.Err; read errors are
// joined and returned with whatever was read.
func (b *FilterBank) Poll() ([]Received, error) {
	var (
		out  []Received
		errs []error
	)
	for _, slot := range b.slots() {
		if !b.t.Pending(slot) {
			continue
		}
		msg, fresh, err := b.t.read(slot)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !fresh {
			// The frame was already taken through the NewData bit before
			// its interrupt was handled.
			continue
		}
		r := Received{Slot: slot, Message: msg}
		if msg.DataLost {
			b.logger.Warn("CAN message loss detected", "slot", slot, "id", msg.ID)
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}

func (b *FilterBank) polled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.filters {
		if !f.InterruptEnable {
			return true
		}
	}
	return false
}

// Run drains the bank whenever the table signals a completion, calling fn
// for every message in slot order, until ctx is done. When a filter has
// interrupts disabled the bank is also polled periodically.
func (b *FilterBank) Run(ctx context.Context, fn func(Received)) error {
	var tick <-chan time.Time
	if b.polled() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		msgs, err := b.Poll()
		for _, r := range msgs {
			fn(r)
		}
		if err != nil {
			return err
		}
		select {
		case <-b.t.Notify():
		case <-tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
