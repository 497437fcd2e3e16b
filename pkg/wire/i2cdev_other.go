// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package wire

import (
	"errors"
	"runtime"
)

// I2CDev is only available on Linux
type I2CDev struct{}

// OpenI2CDev always fails off Linux
func OpenI2CDev(path string) (*I2CDev, error) {
	return nil, errors.New("i2c-dev is not supported on " + runtime.GOOS)
}

// Tx always fails off Linux
func (d *I2CDev) Tx(addr uint16, w, r []byte) error {
	return errors.ErrUnsupported
}

// Close does nothing off Linux
func (d *I2CDev) Close() error {
	return nil
}
