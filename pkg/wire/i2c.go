// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"fmt"
	"io"

	"tinygo.org/x/drivers"
)

// I2C adapts a TinyGo I2C driver to the controller side of the bus
// interface. Each transaction becomes one write Tx; each controller read
// becomes one read Tx. It has no peripheral role.
type I2C struct {
	dev drivers.I2C

	rx     []byte
	tx     []byte
	inTx   bool
	txAddr uint8

	onRequest func()
}

// NewI2C wraps dev
func NewI2C(dev drivers.I2C) *I2C {
	return &I2C{dev: dev}
}

// Available returns the number of bytes left from previous reads
func (b *I2C) Available() int {
	return len(b.rx)
}

// ReadByte pops one byte from previous reads
func (b *I2C) ReadByte() (byte, error) {
	if len(b.rx) == 0 {
		return 0, io.EOF
	}
	c := b.rx[0]
	b.rx = b.rx[1:]
	return c, nil
}

// BeginTransmission starts buffering a write to addr
func (b *I2C) BeginTransmission(addr uint8) {
	b.inTx = true
	b.txAddr = addr
	b.tx = b.tx[:0]
}

// Write buffers p for the open transaction
func (b *I2C) Write(p []byte) (int, error) {
	if !b.inTx {
		return 0, ErrNoTransaction
	}
	b.tx = append(b.tx, p...)
	return len(p), nil
}

// EndTransmission issues the buffered write
func (b *I2C) EndTransmission() error {
	if !b.inTx {
		return ErrNoTransaction
	}
	b.inTx = false
	if err := b.dev.Tx(uint16(b.txAddr), b.tx, nil); err != nil {
		return fmt.Errorf("i2c write to 0x%02X: %w", b.txAddr, err)
	}
	return nil
}

// RequestFrom reads n bytes from addr into the receive buffer
func (b *I2C) RequestFrom(addr uint8, n int) (int, error) {
	r := make([]byte, n)
	if err := b.dev.Tx(uint16(addr), nil, r); err != nil {
		return 0, fmt.Errorf("i2c read from 0x%02X: %w", addr, err)
	}
	b.rx = append(b.rx, r...)
	return n, nil
}

// OnRequest is accepted for interface compatibility; a controller is never
// read from
func (b *I2C) OnRequest(fn func()) {
	b.onRequest = fn
}
