// Package msgobj manages the message objects of a CAN controller that, like
// the Bosch C_CAN cell found in many Cortex-M parts, exposes a fixed table of
// hardware mailboxes instead of a frame queue.
//
// The package is built from four cooperating pieces:
//   - Table owns the slots and provides the load and read operations.
//   - HandleInterrupt is the single interrupt entry point. It captures the
//     cause, clears the hardware source and publishes the result through a
//     ControllerState and lock-free notifications; it never blocks or logs.
//   - Scheduler binds logical transmit streams (CAN identifiers) to slots and
//     serializes reuse of shared slots against completion, with bounded waits.
//   - FilterBank pre-loads receive slots with ID/mask filters and drains them
//     from the foreground in ascending slot order.
//
// The controller register block itself is a collaborator described by the
// Controller interface; package sim provides a software implementation.
//
// Receive slots are single buffered. A frame that arrives before the
// previous one was read overwrites it and the next read reports DataLost.
// With a partial mask, different identifiers share one buffer and the last
// writer wins. Applications that cannot tolerate this need a software queue
// on top of the FilterBank.
package msgobj
