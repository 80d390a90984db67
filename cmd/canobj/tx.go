package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/notnil/canobj/mqttsink"
)

func newTxCmd(o *options) *cobra.Command {
	var rounds int
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Send the four demo messages every interval",
		Long: `tx transmits 0x1001, 0x2001, 0x3001 and 0x3002 once per interval. The
last two share one message object, so each waits for the previous message
to leave. After every round the completion count is printed, or an error
when the controller reported one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := o.setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			stopPeer, err := e.startRxPeer(ctx, slog.LevelDebug)
			if err != nil {
				return err
			}
			defer stopPeer()

			n, err := e.node(ctx, transmitPart)
			if err != nil {
				return err
			}
			defer n.Close()

			err = runTx(ctx, n, cmd.OutOrStdout(), o.interval, rounds, e.sink)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&rounds, "rounds", "n", 0, "stop after this many rounds (0: run until interrupted)")
	return cmd
}

// runTx is the transmit loop. A send that fails is logged and the loop
// carries on; only cancellation ends it early.
func runTx(ctx context.Context, n *node, w io.Writer, interval time.Duration, rounds int, sink *mqttsink.Sink) error {
	d := newDemoRound()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	state := n.table.State()
	for round := 0; rounds == 0 || round < rounds; round++ {
		for _, m := range d.msgs {
			slot, _ := n.sched.Route(m.ID)
			printSending(w, slot, m)
			if err := n.sched.Send(ctx, m); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				n.logger.Warn("send failed", "id", m.ID, "slot", slot, "error", err)
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}

		if state.ErrorFlag() {
			fmt.Fprintln(w, " error - cable connected?")
			if sink != nil {
				st := state.TakeErrors()
				if st == 0 {
					st = state.LastStatus()
				}
				if err := sink.PublishStatus(st); err != nil {
					n.logger.Warn("publish status failed", "error", err)
				}
			}
		} else {
			fmt.Fprintf(w, " total count = %d\n", txTotal(n))
		}
		d.advance()
	}
	return nil
}

// txTotal sums the completions of the transmit slots.
func txTotal(n *node) uint32 {
	var total uint32
	seen := make(map[int]bool)
	for _, m := range newDemoRound().msgs {
		slot, ok := n.sched.Route(m.ID)
		if !ok || seen[slot] {
			continue
		}
		seen[slot] = true
		total += n.table.State().Count(slot)
	}
	return total
}
