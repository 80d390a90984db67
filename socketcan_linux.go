//go:build linux

package canobj

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval bounds each poll(2) so that contexts without a deadline are
// still observed promptly.
const pollInterval = 50 * time.Millisecond

// socketCAN implements Bus over a Linux raw CAN socket.
type socketCAN struct {
	fd        int
	closeOnce sync.Once
	closed    chan struct{}
}

// DialSocketCAN opens a raw CAN socket bound to the given interface name
// (e.g., "can0" or "vcan0"). The kernel echoes nothing back to the sending
// socket, so Send reports success once the frame is queued to the driver.
func DialSocketCAN(iface string) (Bus, error) {
	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canobj: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: netIf.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("canobj: bind %s: %w", iface, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &socketCAN{fd: fd, closed: make(chan struct{})}, nil
}

func (s *socketCAN) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = unix.Close(s.fd)
	})
	return err
}

func (s *socketCAN) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Send writes one frame using the Linux can_frame binary layout.
func (s *socketCAN) Send(ctx context.Context, frame Frame) error {
	var buf [frameSize]byte
	if err := frame.marshalTo(buf[:]); err != nil {
		return err
	}
	for {
		if s.isClosed() {
			return ErrClosed
		}
		n, err := unix.Write(s.fd, buf[:])
		switch {
		case err == nil && n != frameSize:
			return errors.New("canobj: short write")
		case err == nil:
			return nil
		case errors.Is(err, unix.ENOBUFS), errors.Is(err, unix.EAGAIN):
			if err := s.wait(ctx, unix.POLLOUT); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

// Receive reads one frame, blocking until one arrives or ctx is done.
func (s *socketCAN) Receive(ctx context.Context) (Frame, error) {
	var buf [frameSize]byte
	for {
		if s.isClosed() {
			return Frame{}, ErrClosed
		}
		n, err := unix.Read(s.fd, buf[:])
		switch {
		case err == nil && n != frameSize:
			return Frame{}, errors.New("canobj: short read")
		case err == nil:
			var f Frame
			if err := f.UnmarshalBinary(buf[:]); err != nil {
				return Frame{}, err
			}
			return f, nil
		case errors.Is(err, unix.EAGAIN):
			if err := s.wait(ctx, unix.POLLIN); err != nil {
				return Frame{}, err
			}
		default:
			return Frame{}, err
		}
	}
}

// wait polls the socket for the requested events, honouring ctx.
func (s *socketCAN) wait(ctx context.Context, events int16) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		timeout := pollInterval
		if deadline, ok := ctx.Deadline(); ok {
			if d := time.Until(deadline); d < timeout {
				timeout = d
			}
		}
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
		fds := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
		n, err := unix.Poll(fds, int(timeout/time.Millisecond)+1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if n > 0 {
			return nil
		}
	}
}
