package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notnil/canobj"
	"github.com/notnil/canobj/msgobj"
)

func TestConsole(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lb := canobj.NewLoopbackBus()
	defer lb.Close()

	a := startNode(t, ctx, lb.Open(), transmitPart)
	b := startNode(t, ctx, lb.Open(), 0)
	ca, cb := &console{n: a}, &console{n: b}

	var out bytes.Buffer
	run := func(c *console, name string, args ...string) error {
		out.Reset()
		for _, cc := range consoleCmds {
			if cc.name == name {
				return cc.run(c, ctx, &out, args)
			}
		}
		t.Fatalf("no command %q", name)
		return nil
	}

	require.NoError(t, run(cb, "load-rx", "5", "0x123"))
	require.Equal(t, "object 5: receive id=0x123 mask=0x7FF\n", out.String())

	require.NoError(t, run(ca, "load-tx", "7", "0x123", "1", "2", "3"))
	require.Contains(t, out.String(), "object 7: ")

	require.Eventually(t, func() bool { return b.table.Pending(5) }, time.Second, time.Millisecond)
	require.NoError(t, run(cb, "read", "5"))
	require.Contains(t, out.String(), "object 5: ")
	require.Contains(t, out.String(), "01 02 03")

	require.NoError(t, run(ca, "send", "0x1001", "9"))
	require.Contains(t, out.String(), "Sending msg: obj=1 ID=0x1001 msg=0x09 \n")

	require.NoError(t, run(ca, "objects"))
	require.Contains(t, out.String(), "object  7:  transmit")
	require.NoError(t, run(cb, "objects"))
	require.Contains(t, out.String(), "object  5:  receive")

	require.Eventually(t, func() bool { return a.table.State().Count(7) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, run(ca, "status"))
	require.Contains(t, out.String(), "error flag: false")
	require.Contains(t, out.String(), "object  7:  count=1")

	require.NoError(t, run(ca, "reset"))
	require.Equal(t, uint32(0), a.table.State().Count(7))

	require.ErrorIs(t, run(ca, "read"), errUsage)
	require.ErrorIs(t, run(ca, "load-rx", "1"), errUsage)
	require.ErrorIs(t, run(ca, "send", "0x555"), msgobj.ErrNoRoute)
	require.ErrorIs(t, run(ca, "load-tx", "99", "1"), msgobj.ErrSlotRange)

	require.NoError(t, run(cb, "objects"))
}

func TestConsole_ResetKeepsCompletions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lb := canobj.NewLoopbackBus()
	defer lb.Close()

	a := startNode(t, ctx, lb.Open(), transmitPart)
	_ = startNode(t, ctx, lb.Open(), 0)
	con := &console{n: a}
	var out bytes.Buffer

	// Completed but not yet consumed.
	require.NoError(t, con.loadTx(ctx, &out, []string{"8", "0x42", "1"}))
	require.Eventually(t, func() bool { return a.table.Pending(8) }, time.Second, time.Millisecond)
	require.NoError(t, con.reset(ctx, &out, nil))
	require.True(t, a.table.Pending(8))
	require.NoError(t, con.loadTx(ctx, &out, []string{"8", "0x42", "2"}))

	// In flight while the peer does not acknowledge.
	require.Eventually(t, func() bool { return a.table.Pending(8) }, time.Second, time.Millisecond)
	a.ctrl.SetAck(false)
	require.NoError(t, con.loadTx(ctx, &out, []string{"8", "0x42", "3"}))
	require.NoError(t, con.reset(ctx, &out, nil))
	a.ctrl.SetAck(true)
	require.Eventually(t, func() bool { return a.table.Pending(8) }, time.Second, time.Millisecond)
	require.EqualValues(t, 1, a.table.State().Count(8))
	require.NoError(t, con.loadTx(ctx, &out, []string{"8", "0x42", "4"}))
}
