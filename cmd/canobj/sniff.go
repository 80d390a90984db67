package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/notnil/canobj"
)

func newSniffCmd(o *options) *cobra.Command {
	var (
		ids      []string
		mask     string
		extended bool
	)
	cmd := &cobra.Command{
		Use:   "sniff",
		Short: "Print the frames on the bus",
		Long: `sniff prints every frame seen on the bus. With --id only the given
identifiers are shown; a single --id combined with --mask applies the
acceptance rule of a receive object instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := sniffFilter(ids, mask, extended)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := o.setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := startTxPeer(ctx, e, o); err != nil {
				return err
			}
			err = runSniff(ctx, e.bus, filter, cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&ids, "id", nil, "only show these identifiers")
	cmd.Flags().StringVar(&mask, "mask", "", "acceptance mask for a single --id")
	cmd.Flags().BoolVar(&extended, "extended", true, "with --mask, match extended frames")
	return cmd
}

func sniffFilter(ids []string, mask string, extended bool) (canobj.FrameFilter, error) {
	if mask != "" {
		if len(ids) != 1 {
			return nil, errors.New("--mask needs exactly one --id")
		}
		id, err := parseID(ids[0])
		if err != nil {
			return nil, err
		}
		m, err := parseID(mask)
		if err != nil {
			return nil, err
		}
		return canobj.ByAcceptance(id, m, extended), nil
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vals := make([]uint32, 0, len(ids))
	for _, s := range ids {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		vals = append(vals, id)
	}
	return canobj.ByIDs(vals...), nil
}

func runSniff(ctx context.Context, bus canobj.Bus, filter canobj.FrameFilter, w io.Writer) error {
	mux := canobj.NewMux(ctx, bus)
	defer mux.Close()
	frames, cancel := mux.Subscribe(filter, 64)
	defer cancel()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return mux.Err()
			}
			fmt.Fprintln(w, f.String())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
