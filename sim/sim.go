// Package sim is a software model of a message-object CAN controller. It
// implements msgobj.Controller on top of any canobj.Bus, so the msgobj
// package can run against a loopback bus in tests or a SocketCAN interface
// on Linux.
//
// The model keeps the per-object bits of the hardware (valid, new data,
// interrupt pending, message lost and transmit request), a status register
// with a last error code, a cause register and an interrupt line. The line
// stays asserted while any object interrupt or the status interrupt is
// pending; the interrupt goroutine keeps re-entering the installed handler
// until it clears every source.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notnil/canobj"
	"github.com/notnil/canobj/msgobj"
)

// Options configures a Controller.
type Options struct {
	// Objects is the number of message objects. Defaults to 32.
	Objects int

	// Manual disables the interrupt goroutine. Interrupts are then
	// dispatched one handler call at a time with Step.
	Manual bool

	// MaxReentry bounds the handler calls made for one assertion of the
	// interrupt line. When it is reached the line is left asserted and the
	// storm is counted and logged. Defaults to 64.
	MaxReentry int

	// StatusOnSuccess raises a status interrupt for successful transfers
	// too, like a controller with status-change interrupts enabled.
	StatusOnSuccess bool

	// RetryInterval paces retransmission of unacknowledged frames.
	// Defaults to 10ms.
	RetryInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type object struct {
	valid   bool
	typ     msgobj.ObjectType
	obj     msgobj.Object
	newData bool
	intPnd  bool
	msgLost bool
	txRqst  bool
	gen     uint64
}

// Controller is a virtual message-object controller.
type Controller struct {
	bus    canobj.Bus
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	objs          []object // index 0 unused
	status        msgobj.Status
	statusPending bool
	ack           bool
	handler       func()

	irq    chan struct{}
	txKick chan struct{}

	invocations atomic.Uint64
	storms      atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ msgobj.Controller = (*Controller)(nil)

// ErrObjectRange is returned for object numbers outside 1..Objects.
var ErrObjectRange = errors.New("sim: object out of range")

// New returns a controller attached to bus. A nil bus models a node on a
// bus whose acknowledgement is governed by SetAck alone. The controller
// does not own the bus; Close leaves it open.
func New(bus canobj.Bus, opts Options) *Controller {
	if opts.Objects <= 0 {
		opts.Objects = 32
	}
	if opts.MaxReentry <= 0 {
		opts.MaxReentry = 64
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 10 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		bus:    bus,
		opts:   opts,
		logger: opts.Logger,
		objs:   make([]object, opts.Objects+1),
		ack:    true,
		irq:    make(chan struct{}, 1),
		txKick: make(chan struct{}, 1),
	}
}

// Start launches the transmit goroutine, the receive goroutine when a bus
// is attached, and the interrupt goroutine unless Options.Manual is set.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.txLoop(ctx)
	if c.bus != nil {
		c.wg.Add(1)
		go c.rxLoop(ctx)
	}
	if !c.opts.Manual {
		c.wg.Add(1)
		go c.irqLoop(ctx)
	}
}

// Close stops the goroutines started by Start.
func (c *Controller) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *Controller) valid(slot int) error {
	if slot < 1 || slot >= len(c.objs) {
		return fmt.Errorf("%w: %d", ErrObjectRange, slot)
	}
	return nil
}

func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// NumObjects implements msgobj.Controller.
func (c *Controller) NumObjects() int { return len(c.objs) - 1 }

// SetObject implements msgobj.Controller.
func (c *Controller) SetObject(slot int, obj *msgobj.Object, typ msgobj.ObjectType) error {
	if err := c.valid(slot); err != nil {
		return err
	}
	if obj.Len > canobj.MaxLen {
		return fmt.Errorf("sim: object %d: %w", slot, canobj.ErrInvalidLen)
	}
	c.mu.Lock()
	o := &c.objs[slot]
	*o = object{
		valid:  true,
		typ:    typ,
		obj:    *obj,
		txRqst: typ.Transmits(),
		gen:    o.gen + 1,
	}
	o.obj.Flags &^= msgobj.FlagNewData | msgobj.FlagDataLost
	if typ == msgobj.TypeTxRemote {
		o.obj.Flags |= msgobj.FlagRemoteFrame
	}
	c.mu.Unlock()
	if typ.Transmits() {
		kick(c.txKick)
	}
	return nil
}

// GetObject implements msgobj.Controller.
func (c *Controller) GetObject(slot int, obj *msgobj.Object, clearPending bool) error {
	if err := c.valid(slot); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	o := &c.objs[slot]
	*obj = o.obj
	if o.newData {
		obj.Flags |= msgobj.FlagNewData
	}
	if o.msgLost {
		obj.Flags |= msgobj.FlagDataLost
	}
	if clearPending {
		o.newData = false
		o.msgLost = false
		o.intPnd = false
	}
	return nil
}

// ClearObject implements msgobj.Controller.
func (c *Controller) ClearObject(slot int) error {
	if err := c.valid(slot); err != nil {
		return err
	}
	c.mu.Lock()
	c.objs[slot] = object{gen: c.objs[slot].gen + 1}
	c.mu.Unlock()
	return nil
}

// TxRequests implements msgobj.Controller.
func (c *Controller) TxRequests() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var bits uint32
	for i := 1; i < len(c.objs); i++ {
		if c.objs[i].txRqst {
			bits |= 1 << uint(i-1)
		}
	}
	return bits
}

// NewData implements msgobj.Controller.
func (c *Controller) NewData() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var bits uint32
	for i := 1; i < len(c.objs); i++ {
		if c.objs[i].newData {
			bits |= 1 << uint(i-1)
		}
	}
	return bits
}

// InterruptCause implements msgobj.Controller. The status interrupt has
// the highest priority, then the lowest numbered object.
func (c *Controller) InterruptCause() msgobj.Cause {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusPending {
		return msgobj.CauseStatus
	}
	for i := 1; i < len(c.objs); i++ {
		if c.objs[i].intPnd {
			return msgobj.Cause(i)
		}
	}
	return msgobj.CauseNone
}

// Status implements msgobj.Controller. Reading acknowledges the status
// interrupt, clears TxOK and RxOK and sets the error code to NoChange.
func (c *Controller) Status() msgobj.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	c.statusPending = false
	c.status = (c.status &^ (msgobj.StatusTxOK | msgobj.StatusRxOK)).WithLEC(msgobj.LECNoChange)
	return st
}

// ClearInterrupt implements msgobj.Controller.
func (c *Controller) ClearInterrupt(slot int) {
	if c.valid(slot) != nil {
		return
	}
	c.mu.Lock()
	c.objs[slot].intPnd = false
	c.mu.Unlock()
}

// SetInterruptHandler implements msgobj.Controller.
func (c *Controller) SetInterruptHandler(fn func()) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
	kick(c.irq)
}

// asserted must be called with c.mu held.
func (c *Controller) asserted() bool {
	if c.statusPending {
		return true
	}
	for i := 1; i < len(c.objs); i++ {
		if c.objs[i].intPnd {
			return true
		}
	}
	return false
}

// Asserted reports whether the interrupt line is asserted.
func (c *Controller) Asserted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asserted()
}

// SetAck sets whether transmitted frames are acknowledged. With false every
// transmission fails with an acknowledgement error, as on a node whose
// cable is unplugged.
func (c *Controller) SetAck(ok bool) {
	c.mu.Lock()
	c.ack = ok
	c.mu.Unlock()
	if ok {
		kick(c.txKick)
	}
}

// RaiseStatus ORs bits into the status register and raises a status
// interrupt.
func (c *Controller) RaiseStatus(bits msgobj.Status) {
	c.mu.Lock()
	c.status |= bits
	c.statusPending = true
	c.mu.Unlock()
	kick(c.irq)
}

// Invocations returns how many times the interrupt handler was called.
func (c *Controller) Invocations() uint64 { return c.invocations.Load() }

// Storms returns how many times MaxReentry was reached.
func (c *Controller) Storms() uint64 { return c.storms.Load() }
