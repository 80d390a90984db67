package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/notnil/canobj"
	"github.com/notnil/canobj/layout"
	"github.com/notnil/canobj/mqttsink"
	"github.com/notnil/canobj/msgobj"
	"github.com/notnil/canobj/sim"
)

// env is what every command runs in: the bus, the layout and the optional
// MQTT sink.
type env struct {
	logger *slog.Logger
	layout *layout.Layout
	sink   *mqttsink.Sink

	// loop is set when no interface was given; peers attach to it.
	loop *canobj.LoopbackBus
	bus  canobj.Bus
}

func (o *options) setup(ctx context.Context) (*env, error) {
	logger, err := o.logger()
	if err != nil {
		return nil, err
	}
	e := &env{logger: logger, layout: layout.Default()}
	if o.layoutPath != "" {
		if e.layout, err = layout.Load(o.layoutPath); err != nil {
			return nil, err
		}
	}

	if o.iface == "" {
		e.loop = canobj.NewLoopbackBus()
		e.bus = e.loop.Open()
		logger.Info("using in-process loopback bus")
	} else {
		if err := o.configureInterface(); err != nil {
			return nil, err
		}
		if e.bus, err = canobj.DialSocketCAN(o.iface); err != nil {
			return nil, fmt.Errorf("open %s: %w", o.iface, err)
		}
	}
	if o.logFrames {
		e.bus = canobj.NewLoggedBus(e.bus, logger, slog.LevelInfo, canobj.LogAll, nil)
	}

	if o.mqttURL != "" {
		if e.sink, err = mqttsink.Dial(ctx, o.mqttURL, logger); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (o *options) configureInterface() error {
	if o.bitrate == 0 && o.restartMs == 0 {
		return nil
	}
	var opts canobj.InterfaceOptions
	if o.bitrate != 0 {
		opts.Bitrate = &o.bitrate
	}
	if o.restartMs != 0 {
		opts.RestartMs = &o.restartMs
	}
	if err := canobj.SetInterfaceDown(o.iface); err != nil {
		return err
	}
	if err := canobj.ConfigureInterface(o.iface, opts); err != nil {
		return err
	}
	return canobj.SetInterfaceUp(o.iface)
}

func (e *env) Close() error {
	var errs []error
	if e.sink != nil {
		errs = append(errs, e.sink.Close())
	}
	if e.bus != nil {
		errs = append(errs, e.bus.Close())
	}
	if e.loop != nil {
		errs = append(errs, e.loop.Close())
	}
	return errors.Join(errs...)
}

// node is one simulated controller with its table, scheduler and filter
// bank, arranged by a layout.
type node struct {
	ctrl   *sim.Controller
	table  *msgobj.Table
	sched  *msgobj.Scheduler
	bank   *msgobj.FilterBank
	logger *slog.Logger
}

// part selects which half of a layout a node loads.
type part uint8

const (
	transmitPart part = 1 << iota
	receivePart
)

func newNode(ctx context.Context, bus canobj.Bus, l *layout.Layout, p part, logger *slog.Logger) (*node, error) {
	ctrl := sim.New(bus, sim.Options{Objects: l.Objects, Logger: logger})
	table, err := msgobj.NewTable(ctrl, nil)
	if err != nil {
		return nil, err
	}
	n := &node{
		ctrl:   ctrl,
		table:  table,
		sched:  msgobj.NewScheduler(table, msgobj.SchedulerOptions{Timeout: l.Timeout, Logger: logger}),
		bank:   msgobj.NewFilterBank(table, msgobj.FilterBankOptions{Logger: logger}),
		logger: logger,
	}
	var (
		sched *msgobj.Scheduler
		bank  *msgobj.FilterBank
	)
	if p&transmitPart != 0 {
		sched = n.sched
	}
	if p&receivePart != 0 {
		bank = n.bank
	}
	if err := l.Apply(sched, bank); err != nil {
		return nil, err
	}
	ctrl.Start(ctx)
	return n, nil
}

func (n *node) Close() error { return n.ctrl.Close() }

// node starts the local node on the command bus.
func (e *env) node(ctx context.Context, p part) (*node, error) {
	return newNode(ctx, e.bus, e.layout, p, e.logger)
}

// peer starts a second node on the loopback bus. It returns nil when a
// real interface is used.
func (e *env) peer(ctx context.Context, p part) (*node, error) {
	if e.loop == nil {
		return nil, nil
	}
	return newNode(ctx, e.loop.Open(), e.layout, p, e.logger.With("node", "peer"))
}

// startRxPeer runs a receiving loopback peer, if there is one, that logs
// what it takes at level. The returned stop function ends it and waits.
func (e *env) startRxPeer(ctx context.Context, level slog.Level) (stop func(), err error) {
	peer, err := e.peer(ctx, receivePart)
	if err != nil || peer == nil {
		return func() {}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = peer.bank.Run(ctx, func(r msgobj.Received) {
			peer.logger.Log(ctx, level, "received", "slot", r.Slot, "msg", r.Message.String())
		})
	}()
	return func() {
		cancel()
		<-done
		_ = peer.Close()
	}, nil
}
