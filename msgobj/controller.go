package msgobj

import (
	"fmt"
	"strings"
)

// Controller is the register block of a message-object CAN controller.
// Slots are numbered 1..NumObjects().
//
// SetObject, GetObject, ClearObject, TxRequests and NewData are called from
// the foreground. InterruptCause, Status and ClearInterrupt are called from
// the interrupt handler installed with SetInterruptHandler; implementations
// invoke that handler from a single context, never concurrently with itself.
type Controller interface {
	// NumObjects returns the number of message objects.
	NumObjects() int

	// SetObject programs a slot and commits it. For TypeTx the controller
	// starts arbitration immediately.
	SetObject(slot int, obj *Object, typ ObjectType) error

	// GetObject copies the slot contents into obj. When clearPending is set
	// the controller also clears NewData, DataLost and the interrupt pending
	// bit, freeing a receive slot for the next frame.
	GetObject(slot int, obj *Object, clearPending bool) error

	// ClearObject invalidates a slot so it neither sends nor receives.
	ClearObject(slot int) error

	// TxRequests returns a bitmask of slots with a transmission still
	// pending; bit 0 is slot 1.
	TxRequests() uint32

	// NewData returns a bitmask of slots holding unread received data.
	NewData() uint32

	// InterruptCause reads the cause register: CauseNone, CauseStatus or
	// the number of the highest-priority slot with a pending interrupt.
	InterruptCause() Cause

	// Status reads the controller status register. Reading acknowledges
	// the status interrupt and resets the TxOK/RxOK bits.
	Status() Status

	// ClearInterrupt clears the pending interrupt of a slot. Until it is
	// cleared the interrupt line stays asserted.
	ClearInterrupt(slot int)

	// SetInterruptHandler installs the interrupt entry point.
	SetInterruptHandler(fn func())
}

// slotBit returns the TxRequests/NewData bit for a slot.
func slotBit(slot int) uint32 { return 1 << uint(slot-1) }

// Cause is the value of the interrupt cause register.
type Cause uint32

const (
	CauseNone   Cause = 0x0000
	CauseStatus Cause = 0x8000

	maxObjects = 32
)

// Object returns the slot number when the cause identifies a message object.
func (c Cause) Object() (int, bool) {
	if c >= 1 && c <= maxObjects {
		return int(c), true
	}
	return 0, false
}

func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseStatus:
		return "status"
	}
	if slot, ok := c.Object(); ok {
		return fmt.Sprintf("object %d", slot)
	}
	return fmt.Sprintf("reserved(0x%04X)", uint32(c))
}

// Status is the controller status register.
type Status uint32

const (
	StatusLECMask Status = 0x07 // last error code
	StatusTxOK    Status = 0x08 // a frame was transmitted and acknowledged
	StatusRxOK    Status = 0x10 // a frame was received
	StatusEPass   Status = 0x20 // error passive
	StatusEWarn   Status = 0x40 // an error counter reached the warning level
	StatusBusOff  Status = 0x80 // bus-off
)

// LEC is the last error code reported in the status register.
type LEC uint8

const (
	LECNone LEC = iota
	LECStuff
	LECForm
	LECAck
	LECBit1
	LECBit0
	LECCRC
	LECNoChange
)

var lecNames = [...]string{"none", "stuff", "form", "ack", "bit1", "bit0", "crc", "no-change"}

func (l LEC) String() string {
	if int(l) < len(lecNames) {
		return lecNames[l]
	}
	return fmt.Sprintf("LEC(%d)", uint8(l))
}

// LEC returns the last error code field.
func (s Status) LEC() LEC { return LEC(s & StatusLECMask) }

// WithLEC returns s with its last error code replaced.
func (s Status) WithLEC(l LEC) Status { return s&^StatusLECMask | Status(l)&StatusLECMask }

// Failed reports whether the status describes a bus problem rather than a
// successful transfer.
func (s Status) Failed() bool {
	if s&(StatusBusOff|StatusEPass|StatusEWarn) != 0 {
		return true
	}
	lec := s.LEC()
	return lec != LECNone && lec != LECNoChange
}

func (s Status) String() string {
	var parts []string
	for _, b := range []struct {
		bit  Status
		name string
	}{
		{StatusBusOff, "bus-off"},
		{StatusEWarn, "ewarn"},
		{StatusEPass, "epass"},
		{StatusRxOK, "rxok"},
		{StatusTxOK, "txok"},
	} {
		if s&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if lec := s.LEC(); lec != LECNone && lec != LECNoChange {
		parts = append(parts, "lec="+lec.String())
	}
	if len(parts) == 0 {
		return "ok"
	}
	return strings.Join(parts, "|")
}
