// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbound is returned by every operation invoked before Begin.
	ErrUnbound = errors.New("channel not bound to a bus")
	// ErrNoHandler reports a frame or read request that arrived with no
	// callback registered. It is a deliberate no-op, not a failure.
	ErrNoHandler = errors.New("no handler registered")
	// ErrNoAddress is returned by Send when no default peer was configured.
	ErrNoAddress = errors.New("no peer address configured")

	ErrMalformedFrame = errors.New("malformed frame")
	ErrIntegrity      = errors.New("crc mismatch")
	ErrReservedType   = errors.New("reserved packet type")
	ErrUnknownType    = errors.New("unknown packet type")

	ErrUnsupportedPayload = errors.New("payload type has no fixed size")
	ErrUnsupportedBus     = errors.New("bus does not support controller reads")
	ErrShortWrite         = errors.New("short write")
)

// FrameError describes a rejected frame. It unwraps to one of the sentinel
// errors above so callers can match with errors.Is.
type FrameError struct {
	Err         error
	Expected    int // expected frame length
	Actual      int // received frame length
	ExpectedCRC uint16
	ReceivedCRC uint16
	Tag         uint8
}

// Error implements the error interface
func (e *FrameError) Error() string {
	switch e.Err {
	case ErrMalformedFrame:
		return fmt.Sprintf("%v: got %d bytes, expected %d", e.Err, e.Actual, e.Expected)
	case ErrIntegrity:
		return fmt.Sprintf("%v: expected 0x%04X, got 0x%04X", e.Err, e.ExpectedCRC, e.ReceivedCRC)
	case ErrUnknownType:
		return fmt.Sprintf("%v: 0x%02X", e.Err, e.Tag)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying sentinel error
func (e *FrameError) Unwrap() error {
	return e.Err
}

func malformed(actual, expected int) error {
	return &FrameError{Err: ErrMalformedFrame, Actual: actual, Expected: expected}
}
