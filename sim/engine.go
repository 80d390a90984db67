package sim

import (
	"context"
	"errors"
	"time"

	"github.com/notnil/canobj"
	"github.com/notnil/canobj/msgobj"
)

// Transmit makes one attempt at every requested transmission, lowest
// object first, and returns how many frames were acknowledged. The
// transmit goroutine calls it; with Options.Manual tests may call it
// directly instead of Start.
func (c *Controller) Transmit(ctx context.Context) int {
	sent := 0
	for slot := 1; slot < len(c.objs); slot++ {
		c.mu.Lock()
		o := c.objs[slot]
		ack := c.ack
		c.mu.Unlock()
		if !o.valid || !o.txRqst {
			continue
		}

		err := c.send(ctx, o.obj.Frame(), ack)
		if ctx.Err() != nil {
			return sent
		}

		c.mu.Lock()
		cur := &c.objs[slot]
		if cur.gen != o.gen {
			// Reloaded or cleared while on the wire.
			c.mu.Unlock()
			continue
		}
		if err != nil {
			c.status = c.status.WithLEC(msgobj.LECAck)
			c.statusPending = true
			c.mu.Unlock()
			c.logger.Debug("sim transmit failed", "object", slot, "id", o.obj.ID, "error", err)
			kick(c.irq)
			continue
		}
		cur.txRqst = false
		raise := false
		if cur.obj.Flags&msgobj.FlagTxIntEnable != 0 {
			cur.intPnd = true
			raise = true
		}
		c.status = (c.status | msgobj.StatusTxOK).WithLEC(msgobj.LECNone)
		if c.opts.StatusOnSuccess {
			c.statusPending = true
			raise = true
		}
		c.mu.Unlock()
		sent++
		if raise {
			kick(c.irq)
		}
	}
	return sent
}

func (c *Controller) send(ctx context.Context, f canobj.Frame, ack bool) error {
	if !ack {
		return canobj.ErrNoAck
	}
	if c.bus == nil {
		return nil
	}
	return c.bus.Send(ctx, f)
}

// Inject offers a frame to the receive objects as if it had arrived from
// the bus and reports whether an object accepted it.
func (c *Controller) Inject(f canobj.Frame) bool {
	c.mu.Lock()
	accepted, raise := c.deliver(f)
	c.mu.Unlock()
	if raise {
		kick(c.irq)
	}
	return accepted
}

// deliver stores f in the first receive object, in ascending order, that
// accepts it. Caller holds c.mu.
func (c *Controller) deliver(f canobj.Frame) (accepted, raise bool) {
	want := msgobj.TypeRx
	if f.RTR {
		want = msgobj.TypeRxRemote
	}
	for slot := 1; slot < len(c.objs); slot++ {
		o := &c.objs[slot]
		if !o.valid || o.typ != want || !o.obj.Accepts(f) {
			continue
		}
		if o.newData {
			o.msgLost = true
		}
		o.obj.ID = f.ID
		o.obj.Len = f.Len
		o.obj.Data = f.Data
		o.newData = true
		if o.obj.Flags&msgobj.FlagRxIntEnable != 0 {
			o.intPnd = true
			raise = true
		}
		c.status = (c.status | msgobj.StatusRxOK).WithLEC(msgobj.LECNone)
		if c.opts.StatusOnSuccess {
			c.statusPending = true
			raise = true
		}
		return true, raise
	}
	return false, false
}

// Step calls the interrupt handler once if the line is asserted and
// reports whether it did.
func (c *Controller) Step() bool {
	c.mu.Lock()
	h := c.handler
	asserted := c.asserted()
	c.mu.Unlock()
	if !asserted || h == nil {
		return false
	}
	c.invocations.Add(1)
	h()
	return true
}

// service re-enters the handler while the line stays asserted.
func (c *Controller) service() {
	for n := 0; ; n++ {
		if n == c.opts.MaxReentry {
			if c.Asserted() {
				c.storms.Add(1)
				c.logger.Warn("sim interrupt storm", "reentries", n, "cause", c.InterruptCause().String())
			}
			return
		}
		if !c.Step() {
			return
		}
	}
}

func (c *Controller) irqLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-c.irq:
			c.service()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) txLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		c.Transmit(ctx)
		var retry <-chan time.Time
		if c.TxRequests() != 0 {
			retry = time.After(c.opts.RetryInterval)
		}
		select {
		case <-c.txKick:
		case <-retry:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) rxLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		f, err := c.bus.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, canobj.ErrClosed) {
				c.logger.Error("sim receive failed", "error", err)
			}
			return
		}
		c.Inject(f)
	}
}
