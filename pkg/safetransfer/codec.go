// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

// Codec serializes payload values of type T into fixed-size frames.
//
// T must have a fixed binary size as defined by encoding/binary: sized
// integers, floats, bools, and arrays or structs of those. Struct fields
// must be exported or named _. Fields are packed with no alignment, so a
// peer with a padded struct layout needs explicit _ padding fields. Codecs
// hold no mutable state and are safe for concurrent use.
type Codec[T any] struct {
	order       binary.ByteOrder
	payloadSize int
}

// CodecOption configures a Codec
type CodecOption func(*codecConfig)

type codecConfig struct {
	order binary.ByteOrder
}

// WithByteOrder sets the byte order for payload fields and the CRC trailer.
// The default is little-endian, the native layout of the usual targets.
func WithByteOrder(order binary.ByteOrder) CodecOption {
	return func(c *codecConfig) {
		if order != nil {
			c.order = order
		}
	}
}

// NewCodec creates a codec for payload type T
func NewCodec[T any](opts ...CodecOption) (*Codec[T], error) {
	cfg := codecConfig{order: binary.LittleEndian}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Slices report the size of their current contents, not of the type,
	// and pointers would be sized by what they point at.
	var zero T
	size := binary.Size(zero)
	kind := reflect.TypeFor[T]().Kind()
	if size < 0 || kind == reflect.Slice || kind == reflect.Pointer || !decodable(reflect.TypeFor[T]()) {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPayload, zero)
	}

	return &Codec[T]{order: cfg.order, payloadSize: size}, nil
}

// decodable reports whether encoding/binary can set every field of t.
// Unexported fields make binary.Decode panic; blank fields are skipped.
func decodable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Array:
		return decodable(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			f := t.Field(i)
			if f.Name == "_" {
				continue
			}
			if !f.IsExported() || !decodable(f.Type) {
				return false
			}
		}
	}
	return true
}

// MustCodec is like NewCodec but panics on error
func MustCodec[T any](opts ...CodecOption) *Codec[T] {
	c, err := NewCodec[T](opts...)
	if err != nil {
		panic(fmt.Sprintf("safetransfer: %v", err))
	}
	return c
}

// PayloadSize returns the encoded size of one payload value
func (c *Codec[T]) PayloadSize() int {
	return c.payloadSize
}

// FrameSize returns the total frame length: type + payload + CRC
func (c *Codec[T]) FrameSize() int {
	return TypeSize + c.payloadSize + CRCSize
}

// ByteOrder returns the codec's byte order
func (c *Codec[T]) ByteOrder() binary.ByteOrder {
	return c.order
}

// Encode serializes payload into a frame tagged with typ.
// The returned slice is always exactly FrameSize bytes.
func (c *Codec[T]) Encode(payload T, typ PacketType) ([]byte, error) {
	if !typ.Valid() {
		return nil, &FrameError{Err: ErrUnknownType, Tag: uint8(typ)}
	}

	frame := make([]byte, c.FrameSize())
	frame[0] = uint8(typ)

	if _, err := binary.Encode(frame[TypeSize:TypeSize+c.payloadSize], c.order, payload); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	c.putCRC(frame)
	return frame, nil
}

// Decode reads the type tag and payload from frame. It does not verify the
// CRC; call Verify to decide whether the decoded value can be trusted.
func (c *Codec[T]) Decode(frame []byte) (PacketType, T, error) {
	var payload T
	if len(frame) != c.FrameSize() {
		return 0, payload, malformed(len(frame), c.FrameSize())
	}

	typ := PacketType(frame[0])
	if _, err := binary.Decode(frame[TypeSize:TypeSize+c.payloadSize], c.order, &payload); err != nil {
		return typ, payload, fmt.Errorf("failed to decode payload: %w", err)
	}

	return typ, payload, nil
}

// Verify recomputes the CRC over the type and payload region and compares it
// with the trailer. Frames of the wrong length never verify.
func (c *Codec[T]) Verify(frame []byte) bool {
	expected, received, ok := c.FrameCRC(frame)
	return ok && expected == received
}

// FrameCRC returns the CRC computed over frame and the CRC stored in its
// trailer. ok is false when frame has the wrong length.
func (c *Codec[T]) FrameCRC(frame []byte) (expected, received uint16, ok bool) {
	if len(frame) != c.FrameSize() {
		return 0, 0, false
	}
	body := TypeSize + c.payloadSize
	return CalculateCRC(frame[:body]), c.order.Uint16(frame[body:]), true
}

// putCRC writes the trailer for an otherwise complete frame
func (c *Codec[T]) putCRC(frame []byte) {
	body := TypeSize + c.payloadSize
	c.order.PutUint16(frame[body:], CalculateCRC(frame[:body]))
}
