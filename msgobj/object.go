package msgobj

import (
	"fmt"

	"github.com/notnil/canobj"
)

// ObjectFlags mirror the per-object control bits of the controller.
type ObjectFlags uint32

const (
	FlagTxIntEnable  ObjectFlags = 0x001 // raise a completion interrupt on transmit
	FlagRxIntEnable  ObjectFlags = 0x002 // raise a completion interrupt on receive
	FlagExtendedID   ObjectFlags = 0x004 // 29-bit identifier
	FlagUseIDFilter  ObjectFlags = 0x008 // apply IDMask when accepting frames
	FlagUseDirFilter ObjectFlags = 0x010 // accept only frames of the object's direction
	FlagUseExtFilter ObjectFlags = 0x020 // compare the identifier format
	FlagRemoteFrame  ObjectFlags = 0x040 // remote transmission request
	FlagNewData      ObjectFlags = 0x080 // set by hardware on reception
	FlagDataLost     ObjectFlags = 0x100 // set by hardware when NewData was overwritten
	flagsLoadable                = FlagTxIntEnable | FlagRxIntEnable | FlagExtendedID |
		FlagUseIDFilter | FlagUseDirFilter | FlagUseExtFilter | FlagRemoteFrame
)

// ObjectType selects the direction a slot is programmed for.
type ObjectType uint8

const (
	TypeTx       ObjectType = iota // data frame, sent on commit
	TypeRx                         // receives data frames
	TypeTxRemote                   // remote frame requesting data, sent on commit
	TypeRxRemote                   // receives remote frames
)

// Transmits reports whether committing an object of this type starts a
// transmission.
func (t ObjectType) Transmits() bool { return t == TypeTx || t == TypeTxRemote }

func (t ObjectType) String() string {
	switch t {
	case TypeTx:
		return "tx"
	case TypeRx:
		return "rx"
	case TypeTxRemote:
		return "tx-remote"
	case TypeRxRemote:
		return "rx-remote"
	default:
		return fmt.Sprintf("ObjectType(%d)", uint8(t))
	}
}

// Object is the register image of one message object.
type Object struct {
	ID     uint32
	IDMask uint32
	Flags  ObjectFlags
	Len    uint8
	Data   [8]byte
}

// Extended reports whether the object carries a 29-bit identifier.
func (o *Object) Extended() bool { return o.Flags&FlagExtendedID != 0 }

// Frame returns the frame a transmit object puts on the wire.
func (o *Object) Frame() canobj.Frame {
	return canobj.Frame{
		ID:       o.ID,
		Extended: o.Extended(),
		RTR:      o.Flags&FlagRemoteFrame != 0,
		Len:      o.Len,
		Data:     o.Data,
	}
}

// Accepts reports whether a receive object takes the frame. Without
// FlagUseIDFilter every identifier is accepted. FlagUseExtFilter requires
// the identifier format to match and FlagUseDirFilter requires the frame
// kind (data or remote) to match the object's RTR flag.
func (o *Object) Accepts(f canobj.Frame) bool {
	if o.Flags&FlagUseDirFilter != 0 && f.RTR != (o.Flags&FlagRemoteFrame != 0) {
		return false
	}
	if o.Flags&FlagUseExtFilter != 0 && f.Extended != o.Extended() {
		return false
	}
	if o.Flags&FlagUseIDFilter == 0 {
		return true
	}
	return canobj.ByAcceptance(o.ID, o.IDMask, o.Extended())(f)
}

// Message is a logical message: an identifier and payload independent of
// the slot that carries it. Len is authoritative; bytes past Len are zero.
type Message struct {
	ID       uint32
	Extended bool
	Len      uint8
	Data     [8]byte

	// DataLost is set on received messages when the slot was overwritten
	// before the previous message had been read.
	DataLost bool
}

// NewMessage builds a message. Identifiers above 0x7FF are extended.
func NewMessage(id uint32, data []byte) (Message, error) {
	if len(data) > canobj.MaxLen {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(data))
	}
	m := Message{ID: id, Extended: id > canobj.MaxStdID, Len: uint8(len(data))}
	copy(m.Data[:], data)
	return m, m.Validate()
}

// MustMessage is NewMessage that panics on error.
func MustMessage(id uint32, data []byte) Message {
	m, err := NewMessage(id, data)
	if err != nil {
		panic(err)
	}
	return m
}

// Validate checks the identifier width and payload length.
func (m Message) Validate() error {
	if m.Len > canobj.MaxLen {
		return fmt.Errorf("%w: %d", ErrInvalidLength, m.Len)
	}
	if m.ID > canobj.IDMask(m.Extended) {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, m.ID)
	}
	return nil
}

// Payload returns the valid data bytes.
func (m *Message) Payload() []byte { return m.Data[:m.Len] }

// Frame converts the message to a data frame.
func (m Message) Frame() canobj.Frame {
	return canobj.Frame{ID: m.ID, Extended: m.Extended, Len: m.Len, Data: m.Data}
}

func (m Message) String() string {
	s := m.Frame().String()
	if m.DataLost {
		s += " (data lost)"
	}
	return s
}

// MessageFromFrame converts a frame to a logical message.
func MessageFromFrame(f canobj.Frame) Message {
	m := Message{ID: f.ID, Extended: f.Extended, Len: min(f.Len, canobj.MaxLen)}
	copy(m.Data[:m.Len], f.Data[:])
	return m
}

func messageFromObject(o *Object) Message {
	m := Message{
		ID:       o.ID,
		Extended: o.Extended(),
		Len:      o.Len,
		DataLost: o.Flags&FlagDataLost != 0,
	}
	if m.Len > canobj.MaxLen {
		m.Len = canobj.MaxLen
	}
	copy(m.Data[:m.Len], o.Data[:])
	return m
}
