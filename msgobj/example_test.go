package msgobj_test

import (
	"context"
	"fmt"
	"time"

	"github.com/notnil/canobj"
	"github.com/notnil/canobj/msgobj"
	"github.com/notnil/canobj/sim"
)

// Two nodes share a loopback bus. The sender reuses slot 3 for two
// streams; the receiver routes both into one masked slot.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := canobj.NewLoopbackBus()
	defer bus.Close()
	txc := sim.New(bus.Open(), sim.Options{})
	rxc := sim.New(bus.Open(), sim.Options{})
	tx, _ := msgobj.NewTable(txc, nil)
	rx, _ := msgobj.NewTable(rxc, nil)
	txc.Start(ctx)
	rxc.Start(ctx)
	defer txc.Close()
	defer rxc.Close()

	bank := msgobj.NewFilterBank(rx, msgobj.FilterBankOptions{})
	_ = bank.Add(1, msgobj.Filter{ID: 0x3000, Mask: 0xFFFF0, Extended: true, Len: 8, InterruptEnable: true})

	got := make(chan msgobj.Received, 1)
	go func() { _ = bank.Run(ctx, func(r msgobj.Received) { got <- r }) }()

	sched := msgobj.NewScheduler(tx, msgobj.SchedulerOptions{Timeout: time.Second})
	_ = sched.Assign(3, 0x3001, 0x3002)

	for _, m := range []msgobj.Message{
		msgobj.MustMessage(0x3001, []byte{3, 3, 3, 3, 3, 3}),
		msgobj.MustMessage(0x3002, []byte{4, 4, 4, 4, 5, 5, 5, 5}),
	} {
		if err := sched.Send(ctx, m); err != nil {
			fmt.Println("send:", err)
			return
		}
		r := <-got
		fmt.Printf("obj %d: %s\n", r.Slot, r.Message)
	}
	// Output:
	// obj 1: 00003001 [6] 03 03 03 03 03 03
	// obj 1: 00003002 [8] 04 04 04 04 05 05 05 05
}
