// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package wire

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl that selects the target address
const i2cSlave = 0x0703

// I2CDev is a Linux i2c-dev adapter (/dev/i2c-N) implementing the TinyGo
// driver interface, so NewI2C can drive a host-side bus
type I2CDev struct {
	mu   sync.Mutex
	f    *os.File
	addr int
}

// OpenI2CDev opens an i2c-dev character device
func OpenI2CDev(path string) (*I2CDev, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c device %s: %w", path, err)
	}
	return &I2CDev{f: f, addr: -1}, nil
}

// Tx writes w then reads len(r) bytes from addr as two transfers
func (d *I2CDev) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if int(addr) != d.addr {
		if err := unix.IoctlSetInt(int(d.f.Fd()), i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("select address 0x%02X: %w", addr, err)
		}
		d.addr = int(addr)
	}

	if len(w) > 0 {
		n, err := d.f.Write(w)
		if err != nil {
			return err
		}
		if n != len(w) {
			return fmt.Errorf("short write: %d of %d bytes", n, len(w))
		}
	}
	if len(r) > 0 {
		n, err := d.f.Read(r)
		if err != nil {
			return err
		}
		if n != len(r) {
			return fmt.Errorf("short read: %d of %d bytes", n, len(r))
		}
	}
	return nil
}

// Close closes the device
func (d *I2CDev) Close() error {
	return d.f.Close()
}
