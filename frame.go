package canobj

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frame represents a classical CAN (2.0A/2.0B) frame.
//
// Supported features:
//   - Standard (11-bit) and Extended (29-bit) identifiers
//   - Data frames and Remote Transmission Request (RTR)
//   - Data length 0-8 bytes; Len is authoritative, Data beyond Len is ignored
//
// Not implemented: CAN FD specific fields.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool   // true for 29-bit identifier
	RTR      bool   // remote transmission request
	Len      uint8  // 0..8
	Data     [8]byte
}

// Identifier limits. They double as the full-width masks for each format.
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF
	MaxLen   = 8
)

var (
	ErrInvalidID  = errors.New("canobj: invalid identifier")
	ErrInvalidLen = errors.New("canobj: invalid data length")
)

// IDMask returns the all-ones identifier mask for the given format.
func IDMask(extended bool) uint32 {
	if extended {
		return MaxExtID
	}
	return MaxStdID
}

// Validate returns an error if the frame is not valid.
func (f Frame) Validate() error {
	if f.Len > MaxLen {
		return ErrInvalidLen
	}
	if f.ID > IDMask(f.Extended) {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the valid data bytes of the frame.
func (f *Frame) Payload() []byte {
	return f.Data[:f.Len]
}

// NewFrame builds a data frame. Identifiers above the standard range
// require extended to be set.
func NewFrame(id uint32, extended bool, data []byte) (Frame, error) {
	if len(data) > MaxLen {
		return Frame{}, ErrInvalidLen
	}
	f := Frame{ID: id, Extended: extended, Len: uint8(len(data))}
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// MustFrame constructs a Frame and panics if invalid. Identifiers above
// 0x7FF are marked extended. Convenience for examples and tests.
func MustFrame(id uint32, data []byte) Frame {
	f, err := NewFrame(id, id > MaxStdID, data)
	if err != nil {
		panic(err)
	}
	return f
}

// String renders the frame in candump-like form, e.g. "123 [2] DE AD".
func (f Frame) String() string {
	var b strings.Builder
	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID)
	}
	fmt.Fprintf(&b, " [%d]", f.Len)
	if f.RTR {
		b.WriteString(" RTR")
		return b.String()
	}
	n := int(f.Len)
	if n > MaxLen {
		n = MaxLen
	}
	for _, v := range f.Data[:n] {
		fmt.Fprintf(&b, " %02X", v)
	}
	return b.String()
}

// SocketCAN can_id flag bits and masks.
const (
	canEffFlag = 0x80000000
	canRtrFlag = 0x40000000
	canErrFlag = 0x20000000

	frameSize = 16
)

// MarshalBinary encodes the frame to the Linux SocketCAN "struct can_frame"
// layout (16 bytes, little-endian host order on all supported targets):
//
//	0..3  can_id (with flags: EFF/RTR/ERR)
//	4     can_dlc (data length code)
//	5..7  padding (set to zero)
//	8..15 data bytes
func (f Frame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, frameSize)
	if err := f.marshalTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f Frame) marshalTo(buf []byte) error {
	if err := f.Validate(); err != nil {
		return err
	}
	id := f.ID
	if f.Extended {
		id |= canEffFlag
	}
	if f.RTR {
		id |= canRtrFlag
	}
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	buf[5], buf[6], buf[7] = 0, 0, 0
	copy(buf[8:16], f.Data[:])
	return nil
}

// UnmarshalBinary decodes a frame from the Linux SocketCAN can_frame layout.
// Error frames are rejected.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < frameSize {
		return fmt.Errorf("canobj: need %d bytes, got %d", frameSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	if id&canErrFlag != 0 {
		return fmt.Errorf("canobj: error frame 0x%08X", id)
	}
	f.Extended = id&canEffFlag != 0
	f.RTR = id&canRtrFlag != 0
	f.ID = id & IDMask(f.Extended)
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}
