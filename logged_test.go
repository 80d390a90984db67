package canobj

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

type recordSink struct {
	mu      sync.Mutex
	records []slog.Record
}

func (s *recordSink) Enabled(context.Context, slog.Level) bool { return true }
func (s *recordSink) Handle(_ context.Context, r slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r.Clone())
	return nil
}
func (s *recordSink) WithAttrs(attrs []slog.Attr) slog.Handler { return s }
func (s *recordSink) WithGroup(name string) slog.Handler       { return s }

func (s *recordSink) has(level slog.Level, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Level == level && r.Message == msg {
			return true
		}
	}
	return false
}

func TestLoggedBus_WriteAndReadLogging(t *testing.T) {
	ctx := context.Background()
	lb := NewLoopbackBus()
	defer lb.Close()

	sink := &recordSink{}
	logger := slog.New(sink)

	sender := NewLoggedBus(lb.Open(), logger, slog.LevelInfo, LogWrite, nil)
	receiver := NewLoggedBus(lb.Open(), logger, slog.LevelDebug, LogRead, nil)
	defer sender.Close()
	defer receiver.Close()

	if err := sender.Send(ctx, MustFrame(0x123, []byte{1, 2, 3})); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := receiver.Receive(ctx); err != nil {
		t.Fatalf("receive: %v", err)
	}

	if !sink.has(slog.LevelInfo, "canobj send") {
		t.Fatalf("expected write log entry")
	}
	if !sink.has(slog.LevelDebug, "canobj receive") {
		t.Fatalf("expected read log entry")
	}
}

func TestLoggedBus_Filter(t *testing.T) {
	ctx := context.Background()
	lb := NewLoopbackBus()
	defer lb.Close()
	peer := lb.Open()
	defer peer.Close()

	sink := &recordSink{}
	bus := NewLoggedBus(lb.Open(), slog.New(sink), slog.LevelInfo, LogAll, ByID(0x200))
	defer bus.Close()

	if err := bus.Send(ctx, MustFrame(0x100, nil)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sink.has(slog.LevelInfo, "canobj send") {
		t.Fatalf("filtered frame should not be logged")
	}
}

func TestLoggedBus_ErrorLogging(t *testing.T) {
	ctx := context.Background()
	lb := NewLoopbackBus()
	rx := lb.Open()
	_ = rx.Close()

	sink := &recordSink{}
	wrapped := NewLoggedBus(rx, slog.New(sink), slog.LevelInfo, LogAll, nil)
	_, _ = wrapped.Receive(ctx)
	_ = wrapped.Send(ctx, MustFrame(0x1, nil))

	if !sink.has(slog.LevelError, "canobj receive error") {
		t.Fatalf("expected receive error log entry")
	}
	if !sink.has(slog.LevelError, "canobj send error") {
		t.Fatalf("expected send error log entry")
	}
}

func TestLoggedBus_CancelNotLogged(t *testing.T) {
	lb := NewLoopbackBus()
	defer lb.Close()
	sink := &recordSink{}
	wrapped := NewLoggedBus(lb.Open(), slog.New(sink), slog.LevelInfo, LogRead, nil)
	defer wrapped.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := wrapped.Receive(ctx); err == nil {
		t.Fatalf("expected context error")
	}
	if sink.has(slog.LevelError, "canobj receive error") {
		t.Fatalf("cancellation must not be logged as an error")
	}
}
