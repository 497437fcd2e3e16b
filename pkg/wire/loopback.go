// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"bytes"
	"io"
	"sync"
)

// Loopback is an in-memory two-wire bus with one controller and any number
// of addressed peripherals. Writes from the controller are delivered when
// the transaction ends; controller reads run the peripheral's request
// callback synchronously.
type Loopback struct {
	mu          sync.Mutex
	controller  *Endpoint
	peripherals map[uint8]*Endpoint
}

// NewLoopback creates an empty loopback bus
func NewLoopback() *Loopback {
	l := &Loopback{peripherals: make(map[uint8]*Endpoint)}
	l.controller = &Endpoint{bus: l, controller: true}
	return l
}

// Controller returns the controller endpoint
func (l *Loopback) Controller() *Endpoint {
	return l.controller
}

// Peripheral returns the endpoint answering at addr, attaching it on first use
func (l *Loopback) Peripheral(addr uint8) *Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.peripherals[addr]; ok {
		return p
	}
	p := &Endpoint{bus: l, addr: addr}
	l.peripherals[addr] = p
	return p
}

// Detach removes the peripheral at addr; later transactions to it are NACKed
func (l *Loopback) Detach(addr uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.peripherals, addr)
}

func (l *Loopback) lookup(addr uint8) (*Endpoint, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.peripherals[addr]
	return p, ok
}

// Endpoint is one side of a Loopback bus
type Endpoint struct {
	bus        *Loopback
	addr       uint8
	controller bool

	mu        sync.Mutex
	rx        []byte
	tx        []byte
	inTx      bool
	txAddr    uint8
	onRequest func()
}

// Address returns the peripheral address; zero for the controller
func (e *Endpoint) Address() uint8 {
	return e.addr
}

// Available returns the number of received bytes ready to read
func (e *Endpoint) Available() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rx)
}

// ReadByte pops one received byte, or returns io.EOF when none is buffered
func (e *Endpoint) ReadByte() (byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.rx) == 0 {
		return 0, io.EOF
	}
	b := e.rx[0]
	e.rx = e.rx[1:]
	return b, nil
}

// BeginTransmission starts an addressed write
func (e *Endpoint) BeginTransmission(addr uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inTx = true
	e.txAddr = addr
	e.tx = e.tx[:0]
}

// Write buffers p. On the controller it belongs to the open transaction; on
// a peripheral only what the request callback writes is handed to the
// controller, and earlier writes are dropped when the read starts.
func (e *Endpoint) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.controller && !e.inTx {
		return 0, ErrNoTransaction
	}
	e.tx = append(e.tx, p...)
	return len(p), nil
}

// EndTransmission delivers the buffered transaction to its peripheral
func (e *Endpoint) EndTransmission() error {
	if !e.controller {
		return ErrNotController
	}

	e.mu.Lock()
	if !e.inTx {
		e.mu.Unlock()
		return ErrNoTransaction
	}
	data := bytes.Clone(e.tx)
	addr := e.txAddr
	e.inTx = false
	e.tx = e.tx[:0]
	e.mu.Unlock()

	peer, ok := e.bus.lookup(addr)
	if !ok {
		return ErrAddressNack
	}
	peer.Inject(data)
	return nil
}

// OnRequest registers the callback run when the controller reads from this
// peripheral
func (e *Endpoint) OnRequest(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRequest = fn
}

// RequestFrom reads up to n bytes from the peripheral at addr into the
// controller's receive buffer
func (e *Endpoint) RequestFrom(addr uint8, n int) (int, error) {
	if !e.controller {
		return 0, ErrNotController
	}
	peer, ok := e.bus.lookup(addr)
	if !ok {
		return 0, ErrAddressNack
	}

	reply := peer.respond(n)
	e.Inject(reply)
	return len(reply), nil
}

// respond runs the request callback outside the lock so it can Write
func (e *Endpoint) respond(n int) []byte {
	e.mu.Lock()
	cb := e.onRequest
	// Bytes written outside a request are not part of this reply
	e.tx = e.tx[:0]
	e.mu.Unlock()

	if cb != nil {
		cb()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	got := min(n, len(e.tx))
	reply := bytes.Clone(e.tx[:got])
	e.tx = e.tx[:0]
	return reply
}

// Inject appends bytes to the receive buffer as if they came off the bus
func (e *Endpoint) Inject(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rx = append(e.rx, data...)
}

// Pending returns a copy of the bytes written but not yet read by the peer
func (e *Endpoint) Pending() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return bytes.Clone(e.tx)
}
