package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/notnil/canobj/msgobj"
)

// demoRound holds the four messages of the multi-transmit demo: 0x1001 and
// 0x2001 on their own objects, 0x3001 and 0x3002 sharing one.
type demoRound struct {
	msgs [4]msgobj.Message
}

func newDemoRound() *demoRound {
	return &demoRound{msgs: [4]msgobj.Message{
		msgobj.MustMessage(0x1001, []byte{0, 0, 0, 0}),
		msgobj.MustMessage(0x2001, []byte{2, 2, 2, 2, 2}),
		msgobj.MustMessage(0x3001, []byte{3, 3, 3, 3, 3, 3}),
		msgobj.MustMessage(0x3002, []byte{4, 4, 4, 4, 5, 5, 5, 5}),
	}}
}

// advance changes the payloads for the next round: the first word of
// every message counts up and the second word of the last counts down.
func (d *demoRound) advance() {
	for i := range d.msgs {
		w := d.msgs[i].Data[0:4]
		binary.LittleEndian.PutUint32(w, binary.LittleEndian.Uint32(w)+1)
	}
	w := d.msgs[3].Data[4:8]
	binary.LittleEndian.PutUint32(w, binary.LittleEndian.Uint32(w)-1)
}

func hexBytes(b []byte) string {
	var sb strings.Builder
	for _, v := range b {
		fmt.Fprintf(&sb, "%02X ", v)
	}
	return sb.String()
}

func printSending(w io.Writer, slot int, m msgobj.Message) {
	fmt.Fprintf(w, "Sending msg: obj=%d ID=0x%04X msg=0x%s\n", slot, m.ID, hexBytes(m.Payload()))
}

func printReceived(w io.Writer, r msgobj.Received) {
	if r.Message.DataLost {
		fmt.Fprintf(w, "CAN message loss detected on message object %d\n", r.Slot)
	}
	fmt.Fprintf(w, "Msg Obj=%d ID=0x%05X len=%d data=0x%s\n", r.Slot, r.Message.ID, r.Message.Len, hexBytes(r.Message.Payload()))
}
