package tensor

import (
	"errors"
	"fmt"
)

var (
	// ErrShape reports tensors whose shapes are incompatible with an operation.
	ErrShape = errors.New("shape error")

	// ErrDevice reports operands that live on different compute devices.
	ErrDevice = errors.New("device placement error")
)

// DeviceError describes an operand placed on the wrong device.
type DeviceError struct {
	Op   string
	Want Device
	Got  Device
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: operand on %s, backend runs on %s", e.Op, e.Got, e.Want)
}

// Unwrap lets errors.Is match ErrDevice.
func (e *DeviceError) Unwrap() error {
	return ErrDevice
}

// CheckDevice verifies that every tensor lives on want.
// Returns a *DeviceError naming op for the first misplaced operand.
func CheckDevice(op string, want Device, tensors ...*RawTensor) error {
	for _, t := range tensors {
		if t != nil && t.Device() != want {
			return &DeviceError{Op: op, Want: want, Got: t.Device()}
		}
	}
	return nil
}
