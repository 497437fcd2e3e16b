// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
)

// report is a receive result with the payload already rendered, so commands
// can handle any payload type the same way
type report struct {
	Status safetransfer.Status
	Type   safetransfer.PacketType
	Value  string
	Reason error
	Frame  []byte
	Line   string
}

// session is a framed channel whose payload type is picked at runtime
type session interface {
	PayloadName() string
	FrameSize() int
	Bind(bus safetransfer.Bus)
	SetAddress(addr uint8)

	// Send parses value and sends it to the configured peer
	Send(value string) error
	// Respond parses value and installs it as the reply to controller reads
	Respond(value string) error
	RequestFrom(addr uint8) (int, error)

	Poll() report
	Dispatch(frame []byte) report

	Encode(value string, typ safetransfer.PacketType) ([]byte, error)
	Describe(frame []byte) string
}

type typedSession[T any] struct {
	name  string
	ch    *safetransfer.Channel[T]
	parse func(string) (T, error)
}

func newTypedSession[T any](name string, parse func(string) (T, error), opts ...safetransfer.Option) (session, error) {
	ch, err := safetransfer.New[T](opts...)
	if err != nil {
		return nil, err
	}
	// Results carry the payload; the callback only has to exist
	ch.OnReceive(func(T) {})
	return &typedSession[T]{name: name, ch: ch, parse: parse}, nil
}

func (s *typedSession[T]) PayloadName() string       { return s.name }
func (s *typedSession[T]) FrameSize() int            { return s.ch.Codec().FrameSize() }
func (s *typedSession[T]) Bind(bus safetransfer.Bus) { s.ch.Begin(bus) }
func (s *typedSession[T]) SetAddress(addr uint8)     { s.ch.SetAddress(addr) }

func (s *typedSession[T]) Send(value string) error {
	v, err := s.parseValue(value)
	if err != nil {
		return err
	}
	return s.ch.Send(v)
}

func (s *typedSession[T]) Respond(value string) error {
	v, err := s.parseValue(value)
	if err != nil {
		return err
	}
	s.ch.OnRequest(func() T { return v })
	return nil
}

func (s *typedSession[T]) RequestFrom(addr uint8) (int, error) {
	return s.ch.RequestFrom(addr)
}

func (s *typedSession[T]) Poll() report {
	return newReport(s.ch.Poll())
}

func (s *typedSession[T]) Dispatch(frame []byte) report {
	return newReport(s.ch.Dispatch(frame))
}

func (s *typedSession[T]) Encode(value string, typ safetransfer.PacketType) ([]byte, error) {
	v, err := s.parseValue(value)
	if err != nil {
		return nil, err
	}
	return s.ch.Codec().Encode(v, typ)
}

func (s *typedSession[T]) Describe(frame []byte) string {
	return safetransfer.FormatFrame(frame, s.ch.Codec())
}

func (s *typedSession[T]) parseValue(value string) (T, error) {
	v, err := s.parse(strings.TrimSpace(value))
	if err != nil {
		return v, fmt.Errorf("invalid %s value %q: %w", s.name, value, err)
	}
	return v, nil
}

func newReport[T any](r safetransfer.Result[T]) report {
	rep := report{
		Status: r.Status,
		Type:   r.Type,
		Reason: r.Reason,
		Frame:  r.Frame,
		Line:   safetransfer.FormatResult(r),
	}
	if r.Delivered() {
		rep.Value = fmt.Sprint(r.Payload)
	}
	return rep
}

//////////////////////////////////////////////////////////////
// Payload type registry
//////////////////////////////////////////////////////////////

type sessionFactory func(opts ...safetransfer.Option) (session, error)

func signed[T ~int8 | ~int16 | ~int32 | ~int64](name string, bits int) sessionFactory {
	parse := func(s string) (T, error) {
		v, err := strconv.ParseInt(s, 0, bits)
		return T(v), err
	}
	return func(opts ...safetransfer.Option) (session, error) {
		return newTypedSession(name, parse, opts...)
	}
}

func unsigned[T ~uint8 | ~uint16 | ~uint32 | ~uint64](name string, bits int) sessionFactory {
	parse := func(s string) (T, error) {
		v, err := strconv.ParseUint(s, 0, bits)
		return T(v), err
	}
	return func(opts ...safetransfer.Option) (session, error) {
		return newTypedSession(name, parse, opts...)
	}
}

func float[T ~float32 | ~float64](name string, bits int) sessionFactory {
	parse := func(s string) (T, error) {
		v, err := strconv.ParseFloat(s, bits)
		return T(v), err
	}
	return func(opts ...safetransfer.Option) (session, error) {
		return newTypedSession(name, parse, opts...)
	}
}

var payloadTypes = map[string]sessionFactory{
	"int8":    signed[int8]("int8", 8),
	"int16":   signed[int16]("int16", 16),
	"int32":   signed[int32]("int32", 32),
	"int64":   signed[int64]("int64", 64),
	"uint8":   unsigned[uint8]("uint8", 8),
	"uint16":  unsigned[uint16]("uint16", 16),
	"uint32":  unsigned[uint32]("uint32", 32),
	"uint64":  unsigned[uint64]("uint64", 64),
	"float32": float[float32]("float32", 32),
	"float64": float[float64]("float64", 64),
}

func payloadTypeNames() []string {
	names := make([]string, 0, len(payloadTypes))
	for name := range payloadTypes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// newSession builds a session for the named payload type
func newSession(name string, opts ...safetransfer.Option) (session, error) {
	factory, ok := payloadTypes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown payload type %q (use one of: %s)",
			name, strings.Join(payloadTypeNames(), ", "))
	}
	return factory(opts...)
}

// channelOptions returns the channel options implied by the global flags
func channelOptions(recorders ...safetransfer.Recorder) []safetransfer.Option {
	order := binary.ByteOrder(binary.LittleEndian)
	if bigEndian {
		order = binary.BigEndian
	}
	return []safetransfer.Option{
		safetransfer.WithCodecOptions(safetransfer.WithByteOrder(order)),
		safetransfer.WithLogger(logger),
		safetransfer.WithRecorder(safetransfer.MultiRecorder(recorders...)),
	}
}
