// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import (
	"fmt"
	"strings"
	"time"
)

// FormatHex formats bytes as space-separated hex pairs
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// FormatFrame formats a raw frame with its type and CRC status
func FormatFrame[T any](frame []byte, codec *Codec[T]) string {
	if len(frame) == 0 {
		return "(empty)"
	}

	typ := PacketType(frame[0])
	result := fmt.Sprintf("%s (0x%02X) len=%d [%s]", typ, frame[0], len(frame), FormatHex(frame))

	expected, received, ok := codec.FrameCRC(frame)
	switch {
	case !ok:
		result += fmt.Sprintf(" expected %d bytes", codec.FrameSize())
	case expected == received:
		result += fmt.Sprintf(" crc=0x%04X OK", received)
	default:
		result += fmt.Sprintf(" crc=0x%04X BAD (calculated 0x%04X)", received, expected)
	}
	return result
}

// FormatResult formats a poll result into a human-readable line
func FormatResult[T any](r Result[T]) string {
	timestamp := time.Now().Format("15:04:05.000")

	switch r.Status {
	case StatusIdle:
		return fmt.Sprintf("[%s] IDLE", timestamp)
	case StatusDelivered:
		return fmt.Sprintf("[%s] %s %s value=%v [%s]", timestamp, r.Status, r.Type, r.Payload, FormatHex(r.Frame))
	default:
		return fmt.Sprintf("[%s] %s %s: %v [%s]", timestamp, r.Status, r.Type, r.Reason, FormatHex(r.Frame))
	}
}
