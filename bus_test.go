package canobj

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoopbackBus_SendReceive_MultiEndpoint(t *testing.T) {
	ctx := context.Background()
	bus := NewLoopbackBus()
	defer bus.Close()

	a := bus.Open()
	b := bus.Open()
	c := bus.Open()
	defer a.Close()
	defer b.Close()
	defer c.Close()

	send := MustFrame(0x321, []byte("hello"))
	if err := a.Send(ctx, send); err != nil {
		t.Fatalf("send: %v", err)
	}

	gotB, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("receive b: %v", err)
	}
	gotC, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("receive c: %v", err)
	}
	for name, got := range map[string]Frame{"b": gotB, "c": gotC} {
		if got.ID != send.ID || got.Len != send.Len || !bytes.Equal(got.Payload(), send.Payload()) {
			t.Fatalf("%s mismatch: got %+v want %+v", name, got, send)
		}
	}
	if gotB.String() != "321 [5] 68 65 6C 6C 6F" {
		t.Fatalf("string: got %q", gotB.String())
	}
}

func TestLoopbackBus_NoAckWithoutPeer(t *testing.T) {
	bus := NewLoopbackBus()
	defer bus.Close()
	a := bus.Open()
	defer a.Close()

	if err := a.Send(context.Background(), MustFrame(0x1, nil)); !errors.Is(err, ErrNoAck) {
		t.Fatalf("send without peer: got %v, want ErrNoAck", err)
	}
}

func TestLoopbackBus_ContextCancel(t *testing.T) {
	bus := NewLoopbackBusSize(0)
	defer bus.Close()
	a := bus.Open()
	b := bus.Open()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("receive: got %v, want deadline exceeded", err)
	}

	// Unbuffered and nobody receiving: Send blocks until ctx expires.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if err := a.Send(ctx2, MustFrame(0x2, nil)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("send: got %v, want deadline exceeded", err)
	}
}

func TestLoopbackBus_CloseBehavior(t *testing.T) {
	ctx := context.Background()
	bus := NewLoopbackBus()
	a := bus.Open()
	b := bus.Open()

	_ = a.Close()
	if _, err := a.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed endpoint Receive: got %v", err)
	}
	if err := a.Send(ctx, MustFrame(0x1, nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed endpoint Send: got %v", err)
	}

	_ = bus.Close()
	if _, err := b.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("endpoint Receive after bus close: got %v", err)
	}
	if err := b.Send(ctx, MustFrame(0x1, nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("endpoint Send after bus close: got %v", err)
	}
	if _, err := bus.Open().Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Open after close: got %v", err)
	}
}

func TestFilters_Basics(t *testing.T) {
	f1 := MustFrame(0x100, []byte{1})
	f2 := MustFrame(0x101, []byte{2})
	f3 := Frame{ID: 0x1ABCDEFF, Extended: true, Len: 0}

	if !ByID(0x100)(f1) || ByID(0x100)(f2) {
		t.Fatalf("ByID failure")
	}
	if !(ByIDs(0x100, 0x102)(f1)) || ByIDs(0x100, 0x102)(f2) {
		t.Fatalf("ByIDs failure")
	}
	if !ByRange(0x100, 0x1FF)(f2) || ByRange(0x200, 0x2FF)(f2) {
		t.Fatalf("ByRange failure")
	}
	if !ByMask(0x100, 0x7FF)(f1) || ByMask(0x100, 0x7FF)(f2) {
		t.Fatalf("ByMask failure")
	}
	if !StandardOnly()(f1) || StandardOnly()(f3) {
		t.Fatalf("StandardOnly failure")
	}
	if !ExtendedOnly()(f3) || ExtendedOnly()(f1) {
		t.Fatalf("ExtendedOnly failure")
	}
	rtr := f1
	rtr.RTR = true
	if !DataOnly()(f1) || DataOnly()(rtr) || !RTROnly()(rtr) {
		t.Fatalf("DataOnly/RTROnly failure")
	}
	if !And(ByID(0x100), DataOnly())(f1) || And(ByID(0x100), DataOnly())(rtr) {
		t.Fatalf("And failure")
	}
	if !Or(ByID(0x100), ByID(0x999))(f1) || Or(ByID(0x999), ByID(0x998))(f1) {
		t.Fatalf("Or failure")
	}
	if Not(ByID(0x100))(f1) || !Not(ByID(0x999))(f1) || !Not(nil)(f1) {
		t.Fatalf("Not failure")
	}
}

func TestFilters_ByAcceptance(t *testing.T) {
	cases := []struct {
		name     string
		id, mask uint32
		ext      bool
		frame    Frame
		want     bool
	}{
		{"exact extended", 0x1001, 0xFFFFF, true, MustFrame(0x1001, nil), true},
		{"exact extended other id", 0x1001, 0xFFFFF, true, MustFrame(0x2001, nil), false},
		{"partial mask low nibble", 0x3001, 0xFFFF0, true, MustFrame(0x3002, nil), true},
		{"partial mask other block", 0x3001, 0xFFFF0, true, MustFrame(0x4001, nil), false},
		{"format mismatch", 0x123, 0x7FF, true, MustFrame(0x123, nil), false},
		{"all ones is exact for std", 0x123, 0xFFFFFFFF, false, MustFrame(0x123, nil), true},
		{"zero mask accepts any of format", 0, 0, false, MustFrame(0x7FF, nil), true},
	}
	for _, tc := range cases {
		if got := ByAcceptance(tc.id, tc.mask, tc.ext)(tc.frame); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestMux_Subscribe_Filtering_And_Close(t *testing.T) {
	ctx := context.Background()
	bus := NewLoopbackBus()
	defer bus.Close()
	m := NewMux(ctx, bus.Open())
	defer m.Close()

	chA, cancelA := m.Subscribe(ByID(0x100), 1)
	chB, cancelB := m.Subscribe(ByRange(0x200, 0x2FF), 2)
	defer cancelB()

	producer := bus.Open()
	defer producer.Close()

	send := func(id uint32) { _ = producer.Send(ctx, MustFrame(id, []byte{1, 2, 3})) }

	send(0x100)
	send(0x210)
	send(0x105)

	select {
	case f := <-chA:
		if f.ID != 0x100 {
			t.Fatalf("A got %03X", f.ID)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for A")
	}
	select {
	case f := <-chB:
		if f.ID != 0x210 {
			t.Fatalf("B got %03X", f.ID)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for B")
	}
	select {
	case f := <-chB:
		t.Fatalf("B should be empty, got %03X", f.ID)
	case <-time.After(50 * time.Millisecond):
	}

	cancelA()
	cancelA()
	send(0x100)
	select {
	case _, ok := <-chA:
		if ok {
			t.Fatalf("A should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("A should be closed")
	}

	_ = m.Close()
	if _, ok := <-chB; ok {
		t.Fatalf("B should be closed after mux close")
	}
	if m.Err() != nil {
		t.Fatalf("Err after Close: %v", m.Err())
	}
}
