// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package safetransfer implements a framed, CRC-protected message channel for
// a two-wire controller/peripheral bus.
//
// Every frame carries one fixed-size payload value:
//
//	[1 byte type][N bytes payload][2 bytes CRC-16/XMODEM]
//
// The payload type is chosen when the channel is built and never changes, so
// every frame on a channel has the same length. Only DATA frames carry
// behaviour; ACK, ERROR and RETRY are valid wire values that are accepted and
// reported but never dispatched.
package safetransfer

// Frame layout sizes
const (
	TypeSize      = 1
	CRCSize       = 2
	FrameOverhead = TypeSize + CRCSize
)

// CRC-16/XMODEM configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0x0000
)

// PacketType is the frame discriminant stored at offset 0
type PacketType uint8

// Packet type values
const (
	PacketData  PacketType = 0x00
	PacketAck   PacketType = 0x01
	PacketError PacketType = 0x02
	PacketRetry PacketType = 0x03
)

// Valid reports whether t is one of the defined wire values
func (t PacketType) Valid() bool {
	return t <= PacketRetry
}

// Reserved reports whether t is a defined type with no receive behaviour
func (t PacketType) Reserved() bool {
	return t == PacketAck || t == PacketError || t == PacketRetry
}

// String returns the human-readable name for a packet type
func (t PacketType) String() string {
	switch t {
	case PacketData:
		return "DATA"
	case PacketAck:
		return "ACK"
	case PacketError:
		return "ERROR"
	case PacketRetry:
		return "RETRY"
	default:
		return "UNKNOWN"
	}
}
