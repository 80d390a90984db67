package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/notnil/canobj/mqttsink"
	"github.com/notnil/canobj/msgobj"
)

func newRxCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rx",
		Short: "Print the messages taken by the receive filters",
		Long: `rx loads the receive filters of the layout and prints every message as
it arrives. A message that overwrote an unread one is reported as a loss
on its message object. With --mqtt each message is also published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := o.setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.node(ctx, receivePart)
			if err != nil {
				return err
			}
			defer n.Close()

			if err := startTxPeer(ctx, e, o); err != nil {
				return err
			}

			err = runRx(ctx, n, cmd.OutOrStdout(), e.sink)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// startTxPeer runs the transmit demo on a loopback peer, if there is one,
// until ctx is done.
func startTxPeer(ctx context.Context, e *env, o *options) error {
	peer, err := e.peer(ctx, transmitPart)
	if err != nil || peer == nil {
		return err
	}
	go func() {
		defer peer.Close()
		if err := runTx(ctx, peer, io.Discard, o.interval, 0, nil); err != nil && !errors.Is(err, context.Canceled) {
			peer.logger.Error("peer stopped", "error", err)
		}
	}()
	return nil
}

func runRx(ctx context.Context, n *node, w io.Writer, sink *mqttsink.Sink) error {
	return n.bank.Run(ctx, func(r msgobj.Received) {
		printReceived(w, r)
		if sink == nil {
			return
		}
		if err := sink.PublishMessage(r); err != nil {
			n.logger.Warn("publish failed", "slot", r.Slot, "error", err)
		}
	})
}
