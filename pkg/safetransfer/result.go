// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

// Status is the outcome of one Poll or Dispatch call
type Status int

// Status values
const (
	// StatusIdle means no bytes were consumed.
	StatusIdle Status = iota
	// StatusDelivered means a verified DATA payload reached the receive callback.
	StatusDelivered
	// StatusDropped means a well-formed frame was consumed but not dispatched:
	// no receive callback, or a reserved packet type.
	StatusDropped
	// StatusRejected means the bytes were discarded: wrong length, CRC
	// mismatch or unknown type tag.
	StatusRejected
)

// String returns the human-readable name for a status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusDelivered:
		return "DELIVERED"
	case StatusDropped:
		return "DROPPED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Result reports what a Poll or Dispatch call did with the bytes it consumed
type Result[T any] struct {
	Status  Status
	Type    PacketType
	Payload T      // set for delivered frames
	Reason  error  // nil when delivered
	Frame   []byte // raw bytes consumed, nil when idle
}

// Delivered reports whether the payload was handed to the receive callback
func (r Result[T]) Delivered() bool {
	return r.Status == StatusDelivered
}

// Rejected reports whether the consumed bytes were discarded as invalid
func (r Result[T]) Rejected() bool {
	return r.Status == StatusRejected
}
