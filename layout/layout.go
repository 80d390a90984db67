// Package layout describes which message objects carry which streams and
// filters, loaded from YAML:
//
//	objects: 32
//	timeout: 100ms
//	transmit:
//	  - slot: 1
//	    ids: [0x1001]
//	  - slot: 3
//	    ids: [0x3001, 0x3002]
//	receive:
//	  - slot: 1
//	    id: 0x1001
//	    mask: 0xfffff
//	    extended: true
package layout

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/notnil/canobj"
	"github.com/notnil/canobj/msgobj"
)

// Layout is the object arrangement of one node.
type Layout struct {
	// Objects is the number of message objects of the controller.
	Objects int `yaml:"objects"`

	// Timeout bounds transmit completion waits.
	Timeout time.Duration `yaml:"timeout"`

	Transmit []TransmitSlot `yaml:"transmit"`
	Receive  []ReceiveSlot  `yaml:"receive"`
}

// TransmitSlot binds one or more streams to a transmit object. More than
// one identifier makes the slot shared.
type TransmitSlot struct {
	Slot int      `yaml:"slot"`
	IDs  []uint32 `yaml:"ids"`
}

// ReceiveSlot is an ID/mask filter on a receive object.
type ReceiveSlot struct {
	Slot int    `yaml:"slot"`
	ID   uint32 `yaml:"id"`

	// Mask defaults to all ones, an exact match.
	Mask *uint32 `yaml:"mask,omitempty"`

	// Extended defaults to true for identifiers above 0x7FF.
	Extended *bool `yaml:"extended,omitempty"`

	// Len defaults to 8.
	Len *uint8 `yaml:"len,omitempty"`

	// Polled disables the receive interrupt for the slot.
	Polled bool `yaml:"polled,omitempty"`
}

var ErrInvalid = errors.New("layout: invalid")

// Default is the arrangement of the multi-transmit and multi-receive demo
// nodes: 0x1001 and 0x2001 on objects 1 and 2, 0x3001 and 0x3002 sharing
// object 3, and exact receive filters for 0x1001, 0x2001 and 0x3001.
func Default() *Layout {
	mask := uint32(0xFFFFF)
	ext := true
	l := &Layout{
		Objects: 32,
		Timeout: msgobj.DefaultTimeout,
		Transmit: []TransmitSlot{
			{Slot: 1, IDs: []uint32{0x1001}},
			{Slot: 2, IDs: []uint32{0x2001}},
			{Slot: 3, IDs: []uint32{0x3001, 0x3002}},
		},
	}
	for i, id := range []uint32{0x1001, 0x2001, 0x3001} {
		l.Receive = append(l.Receive, ReceiveSlot{Slot: i + 1, ID: id, Mask: &mask, Extended: &ext})
	}
	return l
}

// Load reads and validates a layout file.
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Parse decodes and validates a YAML layout. Missing top-level fields take
// their defaults.
func Parse(data []byte) (*Layout, error) {
	l := &Layout{}
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	if l.Objects == 0 {
		l.Objects = 32
	}
	if l.Timeout == 0 {
		l.Timeout = msgobj.DefaultTimeout
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Marshal encodes the layout as YAML.
func (l *Layout) Marshal() ([]byte, error) {
	return yaml.Marshal(l)
}

// Filter converts the receive slot to a msgobj filter.
func (r ReceiveSlot) Filter() msgobj.Filter {
	ext := r.ID > canobj.MaxStdID
	if r.Extended != nil {
		ext = *r.Extended
	}
	f := msgobj.Filter{
		ID:              r.ID,
		Mask:            canobj.IDMask(ext),
		Extended:        ext,
		Len:             canobj.MaxLen,
		InterruptEnable: !r.Polled,
	}
	if r.Mask != nil {
		f.Mask = *r.Mask
	}
	if r.Len != nil {
		f.Len = *r.Len
	}
	return f
}

// Validate checks slot ranges, identifier widths and that no stream, and
// no slot within the transmit or the receive half, is used twice.
func (l *Layout) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	if l.Objects < 1 || l.Objects > 32 {
		bad("objects %d not in 1..32", l.Objects)
	}
	if l.Timeout < 0 {
		bad("negative timeout %s", l.Timeout)
	}
	// A layout describes the transmit node and the receive node; the two
	// halves are loaded on different controllers and may reuse slots.
	txSlots, rxSlots := map[int]bool{}, map[int]bool{}
	claim := func(used map[int]bool, slot int, what string) {
		if slot < 1 || slot > l.Objects {
			bad("%s slot %d not in 1..%d", what, slot, l.Objects)
			return
		}
		if used[slot] {
			bad("%s slot %d used twice", what, slot)
			return
		}
		used[slot] = true
	}
	streams := map[uint32]int{}
	for _, tx := range l.Transmit {
		claim(txSlots, tx.Slot, "transmit")
		if len(tx.IDs) == 0 {
			bad("transmit slot %d has no ids", tx.Slot)
		}
		for _, id := range tx.IDs {
			if id > canobj.MaxExtID {
				bad("id 0x%X exceeds 29 bits", id)
			}
			if prev, ok := streams[id]; ok {
				bad("id 0x%X on slots %d and %d", id, prev, tx.Slot)
			}
			streams[id] = tx.Slot
		}
	}
	for _, rx := range l.Receive {
		claim(rxSlots, rx.Slot, "receive")
		if err := rx.Filter().Validate(); err != nil {
			bad("receive slot %d: %v", rx.Slot, err)
		}
	}
	return errors.Join(errs...)
}

// TransmitSlots returns the transmit slots in ascending order.
func (l *Layout) TransmitSlots() []TransmitSlot {
	out := append([]TransmitSlot(nil), l.Transmit...)
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Apply assigns the transmit streams to sched and loads the receive
// filters into bank. Either may be nil.
func (l *Layout) Apply(sched *msgobj.Scheduler, bank *msgobj.FilterBank) error {
	if sched != nil {
		for _, tx := range l.Transmit {
			if err := sched.Assign(tx.Slot, tx.IDs...); err != nil {
				return fmt.Errorf("layout: transmit slot %d: %w", tx.Slot, err)
			}
		}
	}
	if bank != nil {
		for _, rx := range l.Receive {
			if err := bank.Add(rx.Slot, rx.Filter()); err != nil {
				return fmt.Errorf("layout: receive slot %d: %w", rx.Slot, err)
			}
		}
	}
	return nil
}
