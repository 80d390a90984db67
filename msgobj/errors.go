package msgobj

import (
	"errors"
	"fmt"
)

var (
	ErrSlotRange         = errors.New("msgobj: slot out of range")
	ErrSlotBusy          = errors.New("msgobj: slot busy")
	ErrWrongRole         = errors.New("msgobj: slot loaded for another role")
	ErrNotLoaded         = errors.New("msgobj: slot not loaded")
	ErrInvalidLength     = errors.New("msgobj: invalid data length")
	ErrInvalidID         = errors.New("msgobj: invalid identifier")
	ErrTransmitTimeout   = errors.New("msgobj: transmit timeout")
	ErrDataLost          = errors.New("msgobj: data lost")
	ErrNoRoute           = errors.New("msgobj: no slot assigned to identifier")
	ErrAlreadyAssigned   = errors.New("msgobj: identifier already assigned")
	ErrController        = errors.New("msgobj: controller error")
	ErrInvalidTransition = errors.New("msgobj: invalid slot state transition")
)

// ControllerError carries the status register value that was latched by the
// interrupt handler when the controller reported a bus problem.
type ControllerError struct {
	Status Status
}

func (e *ControllerError) Error() string {
	return fmt.Sprintf("msgobj: controller error: %s", e.Status)
}

// Is makes errors.Is(err, ErrController) match any ControllerError.
func (e *ControllerError) Is(target error) bool {
	return target == ErrController
}

func slotError(err error, slot int) error {
	return fmt.Errorf("%w: %d", err, slot)
}
