package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/notnil/canobj/msgobj"
)

var errUsage = errors.New("usage")

// console holds the interactive commands. Each takes the words after the
// command name and writes its result to w.
type console struct {
	n *node
}

type consoleCmd struct {
	name string
	help string
	run  func(c *console, ctx context.Context, w io.Writer, args []string) error
}

var consoleCmds = []consoleCmd{
	{"load-tx", "load-tx OBJ ID [BYTE...]   load and transmit a message", (*console).loadTx},
	{"load-rx", "load-rx OBJ ID [MASK]      load a receive filter", (*console).loadRx},
	{"read", "read OBJ                   read a message object", (*console).read},
	{"release", "release OBJ                free a completed message object", (*console).release},
	{"send", "send ID [BYTE...]          send on the object the ID is routed to", (*console).send},
	{"status", "status                     show controller state", (*console).status},
	{"objects", "objects                    list loaded message objects", (*console).objects},
	{"reset", "reset                      clear counters, errors and the error flag", (*console).reset},
}

func (c *console) loadTx(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	data, err := parseData(args[2:])
	if err != nil {
		return err
	}
	msg, err := msgobj.NewMessage(id, data)
	if err != nil {
		return err
	}
	if err := c.n.table.LoadTransmit(slot, msg, true); err != nil {
		return err
	}
	fmt.Fprintf(w, "object %d: %s\n", slot, msg)
	return nil
}

func (c *console) loadRx(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	f := msgobj.ExactFilter(id)
	if len(args) == 3 {
		if f.Mask, err = parseID(args[2]); err != nil {
			return err
		}
	}
	if err := c.n.bank.Add(slot, f); err != nil {
		return err
	}
	fmt.Fprintf(w, "object %d: receive id=0x%X mask=0x%X\n", slot, f.ID, f.Mask)
	return nil
}

func (c *console) read(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	msg, err := c.n.table.ReadSlot(slot)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "object %d: %s\n", slot, msg)
	return nil
}

func (c *console) release(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	return c.n.table.Release(slot)
}

func (c *console) send(ctx context.Context, w io.Writer, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	data, err := parseData(args[1:])
	if err != nil {
		return err
	}
	msg, err := msgobj.NewMessage(id, data)
	if err != nil {
		return err
	}
	slot, _ := c.n.sched.Route(id)
	printSending(w, slot, msg)
	return c.n.sched.Send(ctx, msg)
}

func (c *console) status(ctx context.Context, w io.Writer, args []string) error {
	snap := c.n.table.State().Snapshot()
	fmt.Fprintf(w, "status:     %s\n", snap.LastStatus)
	fmt.Fprintf(w, "error flag: %t\n", snap.ErrorFlag)
	fmt.Fprintf(w, "errors:     %s\n", snap.Errors)
	fmt.Fprintf(w, "interrupts: %d (status %d, spurious %d)\n", snap.Interrupts, snap.StatusInterrupts, snap.Spurious)
	fmt.Fprintf(w, "data lost:  %d\n", snap.DataLost)
	for slot := 1; slot < len(snap.Counts); slot++ {
		if snap.Counts[slot] == 0 && !snap.Pending[slot] {
			continue
		}
		fmt.Fprintf(w, "object %2d:  count=%d pending=%t\n", slot, snap.Counts[slot], snap.Pending[slot])
	}
	return nil
}

func (c *console) objects(ctx context.Context, w io.Writer, args []string) error {
	var loaded []msgobj.SlotInfo
	for slot := 1; slot <= c.n.table.NumObjects(); slot++ {
		info, err := c.n.table.Slot(slot)
		if err != nil {
			return err
		}
		if info.State != msgobj.SlotFree {
			loaded = append(loaded, info)
		}
	}
	if len(loaded) == 0 {
		fmt.Fprintln(w, "no objects loaded")
	}
	for _, info := range loaded {
		fmt.Fprintf(w, "object %2d:  %-8s %-9s id=0x%X\n", info.Slot, info.Role, info.State, info.Object.ID)
	}
	return nil
}

func (c *console) reset(ctx context.Context, w io.Writer, args []string) error {
	c.n.table.State().ResetCounters()
	return nil
}
