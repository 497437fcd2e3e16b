// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import "errors"

// Compile-time checks.
var (
	_ Bus       = (*fakeBus)(nil)
	_ Requester = (*fakeRequesterBus)(nil)
)

type transaction struct {
	addr uint8
	data []byte
}

// fakeBus records writes and serves scripted receive bytes
type fakeBus struct {
	rx []byte

	inTx    bool
	txAddr  uint8
	pending []byte

	transactions []transaction // completed addressed writes
	direct       []byte        // writes outside a transaction

	onRequest func()

	writeErr   error
	endErr     error
	shortWrite bool
}

func (b *fakeBus) Available() int { return len(b.rx) }

func (b *fakeBus) ReadByte() (byte, error) {
	if len(b.rx) == 0 {
		return 0, errors.New("empty")
	}
	c := b.rx[0]
	b.rx = b.rx[1:]
	return c, nil
}

func (b *fakeBus) BeginTransmission(addr uint8) {
	b.inTx = true
	b.txAddr = addr
	b.pending = nil
}

func (b *fakeBus) Write(p []byte) (int, error) {
	if b.writeErr != nil {
		return 0, b.writeErr
	}
	n := len(p)
	if b.shortWrite {
		n--
	}
	if b.inTx {
		b.pending = append(b.pending, p[:n]...)
	} else {
		b.direct = append(b.direct, p[:n]...)
	}
	return n, nil
}

func (b *fakeBus) EndTransmission() error {
	b.inTx = false
	if b.endErr != nil {
		return b.endErr
	}
	b.transactions = append(b.transactions, transaction{addr: b.txAddr, data: b.pending})
	b.pending = nil
	return nil
}

func (b *fakeBus) OnRequest(fn func()) { b.onRequest = fn }

// inject appends bytes to the receive buffer
func (b *fakeBus) inject(data ...[]byte) {
	for _, d := range data {
		b.rx = append(b.rx, d...)
	}
}

// fakeRequesterBus answers controller reads from a scripted reply
type fakeRequesterBus struct {
	fakeBus
	reply     []byte
	requested []int
}

func (b *fakeRequesterBus) RequestFrom(addr uint8, n int) (int, error) {
	b.requested = append(b.requested, n)
	got := min(n, len(b.reply))
	b.rx = append(b.rx, b.reply[:got]...)
	return got, nil
}
