package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"
)

const shellPrompt = "canobj> "

func newShellCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell [command...]",
		Short: "Interactive message object console",
		Long: `shell opens a console on a controller with the transmit routes of the
layout. Given arguments it runs that single command and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := o.setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			stopPeer, err := e.startRxPeer(ctx, slog.LevelInfo)
			if err != nil {
				return err
			}
			defer stopPeer()

			n, err := e.node(ctx, transmitPart)
			if err != nil {
				return err
			}
			defer n.Close()

			sh := newShell(ctx, &console{n: n})
			if len(args) > 0 {
				return sh.Process(args...)
			}
			sh.Run()
			return nil
		},
	}
}

// ctxWriter sends console output through the ishell context.
type ctxWriter struct{ c *ishell.Context }

func (w ctxWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

func newShell(ctx context.Context, con *console) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt(shellPrompt)
	for _, cc := range consoleCmds {
		cc := cc
		sh.AddCmd(&ishell.Cmd{
			Name: cc.name,
			Help: cc.help,
			Func: func(c *ishell.Context) {
				err := cc.run(con, ctx, ctxWriter{c}, c.Args)
				switch {
				case errors.Is(err, errUsage):
					c.Err(fmt.Errorf("usage: %s", cc.help))
				case err != nil:
					c.Err(err)
				}
			},
		})
	}
	return sh
}
