//go:build !linux

package canobj

import "errors"

// ErrUnsupported is returned by the SocketCAN helpers on non-Linux systems.
var ErrUnsupported = errors.New("canobj: SocketCAN requires linux")

// DialSocketCAN is only available on Linux.
func DialSocketCAN(iface string) (Bus, error) { return nil, ErrUnsupported }

// InterfaceOptions mirrors the Linux type so callers compile everywhere.
type InterfaceOptions struct {
	Bitrate    *uint32
	RestartMs  *uint32
	TxQueueLen *int
}

// ConfigureInterface is only available on Linux.
func ConfigureInterface(name string, opts InterfaceOptions) error { return ErrUnsupported }

// SetInterfaceUp is only available on Linux.
func SetInterfaceUp(name string) error { return ErrUnsupported }

// SetInterfaceDown is only available on Linux.
func SetInterfaceDown(name string) error { return ErrUnsupported }
