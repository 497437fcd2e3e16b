// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Bus is the transport a Channel drives. It matches the shape of an
// Arduino-style two-wire interface: a receive buffer drained one byte at a
// time, addressed write transactions for the controller role, and a callback
// fired when the controller reads from us in the peripheral role.
type Bus interface {
	io.ByteReader
	io.Writer

	// Available returns the number of received bytes ready to read.
	Available() int
	// BeginTransmission starts an addressed write to a peripheral.
	BeginTransmission(addr uint8)
	// EndTransmission sends the bytes written since BeginTransmission.
	EndTransmission() error
	// OnRequest registers the callback run when the controller reads from
	// this peripheral. Bytes written from inside the callback form the reply.
	OnRequest(fn func())
}

// Requester is implemented by buses that can perform a controller read
type Requester interface {
	// RequestFrom reads up to n bytes from the peripheral at addr into the
	// receive buffer and returns how many arrived.
	RequestFrom(addr uint8, n int) (int, error)
}

// Option configures a Channel
type Option func(*options)

type options struct {
	codecOpts []CodecOption
	logger    zerolog.Logger
	recorder  Recorder
}

// WithCodecOptions passes options to the channel's frame codec
func WithCodecOptions(opts ...CodecOption) Option {
	return func(o *options) {
		o.codecOpts = append(o.codecOpts, opts...)
	}
}

// WithLogger sets the diagnostics logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRecorder attaches a Recorder for receive and send outcomes
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// Channel sends and receives payloads of type T as framed messages. A
// Channel is driven from a single goroutine: the application calls Poll from
// its loop and sends between polls.
type Channel[T any] struct {
	codec *Codec[T]
	bus   Bus

	address    uint8
	hasAddress bool

	receiveCallback func(T)
	requestCallback func() T

	logger   zerolog.Logger
	recorder Recorder
}

// New creates an unbound channel. Call Begin before sending or polling.
func New[T any](opts ...Option) (*Channel[T], error) {
	o := options{logger: zerolog.Nop(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}

	codec, err := NewCodec[T](o.codecOpts...)
	if err != nil {
		return nil, err
	}

	return &Channel[T]{
		codec:    codec,
		logger:   o.logger.With().Str("component", "safetransfer").Logger(),
		recorder: o.recorder,
	}, nil
}

// Codec returns the channel's frame codec
func (c *Channel[T]) Codec() *Codec[T] {
	return c.codec
}

// Begin binds the channel to bus and registers the peripheral request
// handler with it. Binding again replaces the previous bus; nil unbinds.
func (c *Channel[T]) Begin(bus Bus) {
	c.bus = bus
	if bus == nil {
		return
	}
	bus.OnRequest(c.handleRequest)
}

// Bound reports whether a bus is attached
func (c *Channel[T]) Bound() bool {
	return c.bus != nil
}

// SetAddress sets the default peer used by Send
func (c *Channel[T]) SetAddress(addr uint8) {
	c.address = addr
	c.hasAddress = true
}

// Address returns the default peer address and whether one is set
func (c *Channel[T]) Address() (uint8, bool) {
	return c.address, c.hasAddress
}

// OnReceive registers the callback for verified DATA payloads. There is one
// slot: registering replaces the previous callback and nil clears it.
func (c *Channel[T]) OnReceive(fn func(T)) {
	c.receiveCallback = fn
}

// OnRequest registers the callback that produces a reply payload when the
// controller reads from this peripheral. Registering replaces, nil clears.
func (c *Channel[T]) OnRequest(fn func() T) {
	c.requestCallback = fn
}

//////////////////////////////////////////////////////////////
// Sending
//////////////////////////////////////////////////////////////

// Send sends payload to the default peer set with SetAddress
func (c *Channel[T]) Send(payload T) error {
	if !c.hasAddress {
		c.recorder.RecordSend(ErrNoAddress)
		return ErrNoAddress
	}
	return c.SendToPeer(c.address, payload)
}

// SendToPeer sends payload to the peripheral at addr in one addressed
// transaction. It does not wait for a reply.
func (c *Channel[T]) SendToPeer(addr uint8, payload T) error {
	err := c.sendToPeer(addr, payload)
	c.recorder.RecordSend(err)
	return err
}

func (c *Channel[T]) sendToPeer(addr uint8, payload T) error {
	if c.bus == nil {
		return ErrUnbound
	}

	c.bus.BeginTransmission(addr)
	writeErr := c.writeFrame(payload)
	endErr := c.bus.EndTransmission()

	if writeErr != nil {
		return writeErr
	}
	if endErr != nil {
		return fmt.Errorf("end transmission to 0x%02X: %w", addr, endErr)
	}
	return nil
}

// SendToController writes payload to the bus outside any addressed
// transaction. On a peripheral this is the reply to a controller read.
func (c *Channel[T]) SendToController(payload T) error {
	var err error
	if c.bus == nil {
		err = ErrUnbound
	} else {
		err = c.writeFrame(payload)
	}
	c.recorder.RecordSend(err)
	return err
}

func (c *Channel[T]) writeFrame(payload T) error {
	frame, err := c.codec.Encode(payload, PacketData)
	if err != nil {
		return err
	}

	n, err := c.bus.Write(frame)
	if err != nil {
		return fmt.Errorf("bus write: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(frame))
	}
	return nil
}

// Request runs the peripheral request path: it asks the request callback
// for a payload and sends it to the controller. With no callback registered
// nothing is written and ErrNoHandler is returned.
func (c *Channel[T]) Request() error {
	if c.bus == nil {
		return ErrUnbound
	}
	cb := c.requestCallback
	if cb == nil {
		return ErrNoHandler
	}
	return c.SendToController(cb())
}

func (c *Channel[T]) handleRequest() {
	err := c.Request()
	switch {
	case err == nil:
	case errors.Is(err, ErrNoHandler):
		c.logger.Debug().Msg("read request with no request callback")
	default:
		c.logger.Warn().Err(err).Msg("failed to answer read request")
	}
}

// RequestFrom performs a controller read of one frame from the peripheral
// at addr. The bytes land in the bus receive buffer for the next Poll.
func (c *Channel[T]) RequestFrom(addr uint8) (int, error) {
	if c.bus == nil {
		return 0, ErrUnbound
	}
	r, ok := c.bus.(Requester)
	if !ok {
		return 0, ErrUnsupportedBus
	}

	n, err := r.RequestFrom(addr, c.codec.FrameSize())
	if err != nil {
		return n, fmt.Errorf("request from 0x%02X: %w", addr, err)
	}
	return n, nil
}

//////////////////////////////////////////////////////////////
// Receiving
//////////////////////////////////////////////////////////////

// Poll consumes at most one frame from the bus and dispatches it. It never
// blocks. When fewer bytes than a frame are available they are drained and
// rejected as malformed; bytes beyond one frame stay for the next call.
func (c *Channel[T]) Poll() Result[T] {
	if c.bus == nil {
		return Result[T]{Status: StatusIdle, Reason: ErrUnbound}
	}

	available := c.bus.Available()
	if available <= 0 {
		return Result[T]{Status: StatusIdle}
	}

	size := c.codec.FrameSize()
	want := min(available, size)
	frame := make([]byte, 0, size)
	for len(frame) < want {
		b, err := c.bus.ReadByte()
		if err != nil {
			break
		}
		frame = append(frame, b)
	}

	if len(frame) < size {
		res := c.reject(frame, 0, malformed(len(frame), size))
		c.recorder.RecordReceive(res.Status, res.Type, res.Reason)
		return res
	}

	return c.Dispatch(frame)
}

// Dispatch validates one complete frame and, for a verified DATA frame,
// invokes the receive callback synchronously.
func (c *Channel[T]) Dispatch(frame []byte) Result[T] {
	res := c.dispatch(frame)
	c.recorder.RecordReceive(res.Status, res.Type, res.Reason)
	return res
}

func (c *Channel[T]) dispatch(frame []byte) Result[T] {
	if len(frame) != c.codec.FrameSize() {
		var tag PacketType
		if len(frame) > 0 {
			tag = PacketType(frame[0])
		}
		return c.reject(frame, tag, malformed(len(frame), c.codec.FrameSize()))
	}

	typ := PacketType(frame[0])
	switch {
	case typ == PacketData:
		cb := c.receiveCallback
		if cb == nil {
			c.logger.Debug().Msg("dropping DATA frame: no receive callback")
			return Result[T]{Status: StatusDropped, Type: typ, Reason: ErrNoHandler, Frame: frame}
		}

		_, payload, err := c.codec.Decode(frame)
		if err != nil {
			return c.reject(frame, typ, err)
		}

		expected, received, _ := c.codec.FrameCRC(frame)
		if expected != received {
			return c.reject(frame, typ, &FrameError{
				Err:         ErrIntegrity,
				Expected:    len(frame),
				Actual:      len(frame),
				ExpectedCRC: expected,
				ReceivedCRC: received,
			})
		}

		c.logger.Debug().Str("type", typ.String()).Hex("frame", frame).Msg("delivering DATA frame")
		cb(payload)
		return Result[T]{Status: StatusDelivered, Type: typ, Payload: payload, Frame: frame}

	case typ.Reserved():
		c.logger.Debug().Str("type", typ.String()).Msg("ignoring reserved packet type")
		return Result[T]{Status: StatusDropped, Type: typ, Reason: ErrReservedType, Frame: frame}

	default:
		return c.reject(frame, typ, &FrameError{Err: ErrUnknownType, Tag: uint8(typ)})
	}
}

func (c *Channel[T]) reject(frame []byte, typ PacketType, reason error) Result[T] {
	event := c.logger.Warn().Err(reason).Int("length", len(frame))
	var fe *FrameError
	if errors.As(reason, &fe) && errors.Is(reason, ErrIntegrity) {
		event = event.Uint16("expected_crc", fe.ExpectedCRC).Uint16("received_crc", fe.ReceivedCRC)
	}
	event.Msg("rejecting frame")

	return Result[T]{Status: StatusRejected, Type: typ, Reason: reason, Frame: frame}
}
