package canobj

import (
	"context"
	"sync"
)

// Mux multiplexes frames from a Bus to any number of subscribers via filters.
//
// It owns the provided Bus for receiving and runs a single background
// goroutine that reads from Receive and fans frames out to subscribers.
// Slow subscribers lose frames rather than stalling the reader.
//
// Send is not proxied; callers keep using the original Bus to Send.
type Mux struct {
	bus    Bus
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.RWMutex
	subs map[uint64]*subscriber
	next uint64
	err  error
}

type subscriber struct {
	filter FrameFilter
	ch     chan Frame
}

// NewMux creates and starts a multiplexer bound to the given Bus. The
// multiplexer stops when ctx is cancelled, Close is called or the bus
// returns an error.
func NewMux(ctx context.Context, bus Bus) *Mux {
	ctx, cancel := context.WithCancel(ctx)
	m := &Mux{
		bus:    bus,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[uint64]*subscriber),
	}
	go m.run(ctx)
	return m
}

// Close stops the background reader and closes all subscriber channels.
func (m *Mux) Close() error {
	m.cancel()
	<-m.done
	return nil
}

// Err returns the error that stopped the reader, if any.
func (m *Mux) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Subscribe registers a new subscriber with the provided filter and channel
// buffer. A nil filter receives every frame. The cancel function closes the
// channel; it is safe to call more than once.
func (m *Mux) Subscribe(filter FrameFilter, buffer int) (<-chan Frame, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &subscriber{filter: filter, ch: make(chan Frame, buffer)}
	m.mu.Lock()
	if m.subs == nil {
		m.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	id := m.next
	m.next++
	m.subs[id] = s
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if cur, ok := m.subs[id]; ok && cur == s {
			close(cur.ch)
			delete(m.subs, id)
		}
		m.mu.Unlock()
	}
	return s.ch, cancel
}

func (m *Mux) run(ctx context.Context) {
	defer close(m.done)
	var err error
	for {
		var f Frame
		f, err = m.bus.Receive(ctx)
		if err != nil {
			break
		}
		m.mu.RLock()
		for _, s := range m.subs {
			if s.filter == nil || s.filter(f) {
				select {
				case s.ch <- f:
				default:
				}
			}
		}
		m.mu.RUnlock()
	}

	m.mu.Lock()
	if ctx.Err() == nil {
		m.err = err
	}
	for _, s := range m.subs {
		close(s.ch)
	}
	m.subs = nil
	m.mu.Unlock()
}
