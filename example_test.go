package canobj_test

import (
	"context"
	"fmt"

	"github.com/notnil/canobj"
)

func ExampleLoopbackBus() {
	ctx := context.Background()
	bus := canobj.NewLoopbackBus()
	a := bus.Open()
	b := bus.Open()
	defer a.Close()
	defer b.Close()

	_ = a.Send(ctx, canobj.MustFrame(0x123, []byte("hi")))
	f, _ := b.Receive(ctx)
	fmt.Printf("ID=%03X LEN=%d DATA=%x\n", f.ID, f.Len, f.Payload())
	// Output: ID=123 LEN=2 DATA=6869
}

func ExampleByAcceptance() {
	accept := canobj.ByAcceptance(0x3001, 0xFFFF0, true)
	for _, id := range []uint32{0x3001, 0x3002, 0x4001} {
		fmt.Printf("%X %v\n", id, accept(canobj.MustFrame(id, nil)))
	}
	// Output:
	// 3001 true
	// 3002 true
	// 4001 false
}
