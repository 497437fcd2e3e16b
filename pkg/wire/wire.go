// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wire provides bus transports for safetransfer channels: an
// in-memory loopback, a byte stream (serial port or WebSocket), and a
// controller adapter over TinyGo's I2C driver interface.
package wire

import "errors"

var (
	// ErrAddressNack reports a transaction to an address nobody answers.
	ErrAddressNack = errors.New("address not acknowledged")
	// ErrNotController reports a controller-only operation on a peripheral.
	ErrNotController = errors.New("not a bus controller")
	// ErrNoTransaction reports a controller write outside BeginTransmission.
	ErrNoTransaction = errors.New("no transmission in progress")
)
