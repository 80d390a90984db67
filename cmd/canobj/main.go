// Command canobj drives CAN message objects: the multi-transmit and
// multi-receive demos, a bus monitor and an interactive console.
//
// Without --iface every command runs on an in-process loopback bus with a
// peer node, so it can be tried without hardware.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type options struct {
	iface      string
	layoutPath string
	logLevel   string
	logFrames  bool
	mqttURL    string
	bitrate    uint32
	restartMs  uint32
	interval   time.Duration
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.iface, "iface", "i", "", "SocketCAN interface (default: in-process loopback bus)")
	fs.StringVarP(&o.layoutPath, "layout", "l", "", "YAML object layout (default: demo layout)")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&o.logFrames, "log-frames", false, "log every frame on the bus")
	fs.StringVar(&o.mqttURL, "mqtt", "", "publish received messages to this MQTT broker URL")
	fs.Uint32Var(&o.bitrate, "bitrate", 0, "set the interface bit rate before use (Linux, needs CAP_NET_ADMIN)")
	fs.Uint32Var(&o.restartMs, "restart-ms", 0, "set the bus-off auto restart delay (Linux, needs CAP_NET_ADMIN)")
	fs.DurationVar(&o.interval, "interval", time.Second, "delay between transmit rounds")
}

func (o *options) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "canobj",
		Short:         "CAN message-object transmit/receive tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	o.addFlags(root.PersistentFlags())
	root.AddCommand(
		newTxCmd(o),
		newRxCmd(o),
		newSniffCmd(o),
		newShellCmd(o),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "canobj:", err)
		os.Exit(1)
	}
}
