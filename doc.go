// Package canobj provides the CAN 2.0 wire primitives used by the
// message-object manager in the msgobj subpackage.
//
// It includes:
//   - A core Frame type with validation and SocketCAN binary marshaling
//   - A context-aware Bus interface and an in-memory loopback bus
//   - Composable FrameFilter helpers, including the ID/mask rule used by
//     hardware message objects
//   - A Mux for filtered fan-out and a slog-backed LoggedBus decorator
//   - A Linux SocketCAN transport and interface helpers (linux-only)
package canobj
