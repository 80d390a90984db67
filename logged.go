package canobj

import (
	"context"
	"log/slog"
)

// LogOption is a bitmask for selecting which operations a LoggedBus logs.
type LogOption uint8

const (
	LogNone  LogOption = 0
	LogRead  LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// LoggedBus is a Bus decorator that logs Send/Receive operations using a
// slog.Logger. Frames are logged at the configured level and errors at
// slog.LevelError. Context cancellation is not logged as an error.
type LoggedBus struct {
	inner  Bus
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
	filter FrameFilter
}

// NewLoggedBus wraps the given Bus and logs selected operations at the
// given level. If filter is non-nil only frames satisfying it are logged.
func NewLoggedBus(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption, filter FrameFilter) *LoggedBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggedBus{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
		filter: filter,
	}
}

func (l *LoggedBus) wants(f Frame) bool {
	return l.filter == nil || l.filter(f)
}

func (l *LoggedBus) logFrame(ctx context.Context, msg string, f Frame) {
	l.logger.Log(ctx, l.level, msg,
		"id", f.ID,
		"extended", f.Extended,
		"rtr", f.RTR,
		"len", int(f.Len),
		"frame", f.String(),
	)
}

// Send logs the frame and the result when write logging is enabled.
func (l *LoggedBus) Send(ctx context.Context, frame Frame) error {
	logged := l.opts&LogWrite != 0 && l.wants(frame)
	if logged {
		l.logFrame(ctx, "canobj send", frame)
	}
	err := l.inner.Send(ctx, frame)
	if logged && err != nil && ctx.Err() == nil {
		l.logger.LogAttrs(ctx, slog.LevelError, "canobj send error",
			slog.Uint64("id", uint64(frame.ID)),
			slog.Any("error", err),
		)
	}
	return err
}

// Receive logs the received frame or error when read logging is enabled.
func (l *LoggedBus) Receive(ctx context.Context) (Frame, error) {
	f, err := l.inner.Receive(ctx)
	if l.opts&LogRead == 0 {
		return f, err
	}
	switch {
	case err != nil && ctx.Err() == nil:
		l.logger.LogAttrs(ctx, slog.LevelError, "canobj receive error", slog.Any("error", err))
	case err == nil && l.wants(f):
		l.logFrame(ctx, "canobj receive", f)
	}
	return f, err
}

// Close forwards to the inner Bus without logging.
func (l *LoggedBus) Close() error {
	return l.inner.Close()
}
