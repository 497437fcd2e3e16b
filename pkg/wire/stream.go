// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"io"
	"sync"
	"time"
)

// Stream is a bus over a point-to-point byte stream such as a serial port or
// a WebSocket bridge. A background goroutine fills the receive buffer; the
// address of a transaction is not put on the wire.
//
// Byte streams carry no read-request signal, so request callbacks are
// stored but never run.
type Stream struct {
	conn     io.ReadWriter
	chunk    int
	readSize int
	idle     time.Duration

	mu     sync.Mutex
	rx     []byte
	lastRx time.Time
	// leading bytes of rx received before an idle gap and not yet read
	stale     int
	err       error
	inTx      bool
	txAddr    uint8
	tx        []byte
	onRequest func()

	startOnce sync.Once
	done      chan struct{}
}

// StreamOption configures a Stream
type StreamOption func(*Stream)

// WithTransactionSize makes Available report received bytes in whole units
// of n, so a frame that arrives in pieces is never polled half complete.
func WithTransactionSize(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.chunk = n
		}
	}
}

// WithIdleFlush releases a partial transaction once no byte has arrived
// for d, or once new bytes arrive after such a gap. The partial is reported
// on its own so the reader can reject it, and the units after it line up
// again. It has no effect without WithTransactionSize.
func WithIdleFlush(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.idle = d
		}
	}
}

// WithReadBufferSize sets the size of each read from the connection
func WithReadBufferSize(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.readSize = n
		}
	}
}

// NewStream wraps conn. Call Start to begin receiving.
func NewStream(conn io.ReadWriter, opts ...StreamOption) *Stream {
	s := &Stream{
		conn:     conn,
		chunk:    1,
		readSize: 128,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the receive goroutine. It runs until the connection
// returns an error; calling Start again has no effect.
func (s *Stream) Start() {
	s.startOnce.Do(func() {
		go s.readLoop()
	})
}

func (s *Stream) readLoop() {
	defer close(s.done)
	buf := make([]byte, s.readSize)
	for {
		n, err := s.conn.Read(buf)
		s.mu.Lock()
		if n > 0 {
			now := time.Now()
			if s.idleExpired(now) {
				s.stale = len(s.rx)
			}
			s.rx = append(s.rx, buf[:n]...)
			s.lastRx = now
		}
		if err != nil {
			s.err = err
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Done is closed when the receive goroutine exits
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped the receive goroutine, if any
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Available returns the readable byte count, rounded down to whole
// transactions when WithTransactionSize is set
func (s *Stream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale == 0 && s.idleExpired(time.Now()) {
		s.stale = len(s.rx)
	}
	if s.stale > 0 {
		if whole := s.stale - s.stale%s.chunk; whole > 0 {
			return whole
		}
		return s.stale
	}

	n := len(s.rx)
	return n - n%s.chunk
}

// idleExpired reports whether a partial transaction has sat in rx for at
// least the idle flush time. Callers hold mu.
func (s *Stream) idleExpired(now time.Time) bool {
	if s.idle == 0 || s.chunk == 1 || len(s.rx)%s.chunk == 0 {
		return false
	}
	return now.Sub(s.lastRx) >= s.idle
}

// Buffered returns every received byte not yet read, whole transaction or not
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rx)
}

// ReadByte pops one received byte
func (s *Stream) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rx) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	b := s.rx[0]
	s.rx = s.rx[1:]
	if s.stale > 0 {
		s.stale--
	}
	return b, nil
}

// BeginTransmission starts buffering an outgoing transaction
func (s *Stream) BeginTransmission(addr uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inTx = true
	s.txAddr = addr
	s.tx = s.tx[:0]
}

// Write buffers p inside a transaction, or writes it straight to the
// connection otherwise
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.inTx {
		s.tx = append(s.tx, p...)
		s.mu.Unlock()
		return len(p), nil
	}
	s.mu.Unlock()
	return s.conn.Write(p)
}

// EndTransmission writes the buffered transaction in a single Write, which
// is one message on a WebSocket connection
func (s *Stream) EndTransmission() error {
	s.mu.Lock()
	if !s.inTx {
		s.mu.Unlock()
		return ErrNoTransaction
	}
	data := append([]byte(nil), s.tx...)
	s.inTx = false
	s.tx = s.tx[:0]
	s.mu.Unlock()

	n, err := s.conn.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return io.ErrShortWrite
	}
	return nil
}

// OnRequest stores fn; a byte stream never signals a read request
func (s *Stream) OnRequest(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRequest = fn
}

// Close closes the underlying connection when it supports it
func (s *Stream) Close() error {
	if c, ok := s.conn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
