// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import "testing"

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x31C3, // Standard CRC-16/XMODEM check value
		},
		{
			name:     "DATA frame carrying int32 42",
			data:     []byte{0x00, 0x2A, 0x00, 0x00, 0x00},
			expected: 0x5FE5,
		},
		{
			name:     "DATA frame carrying int32 43",
			data:     []byte{0x00, 0x2B, 0x00, 0x00, 0x00},
			expected: 0x2951,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateCRC_Deterministic(t *testing.T) {
	data := []byte{0x00, 0x30, 0x01, 0x02, 0x03, 0x04}
	crc1 := CalculateCRC(data)
	crc2 := CalculateCRC(data)
	if crc1 != crc2 {
		t.Errorf("CRC should be deterministic: 0x%04X != 0x%04X", crc1, crc2)
	}
}

// bitwiseCRC is the one-bit-at-a-time form the table is derived from
func bitwiseCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func TestCalculateCRC_MatchesBitwise(t *testing.T) {
	data := make([]byte, 0, 256)
	for i := range 256 {
		data = append(data, byte(i))
		if got, want := CalculateCRC(data), bitwiseCRC(data); got != want {
			t.Fatalf("length %d: table CRC 0x%04X, bitwise 0x%04X", len(data), got, want)
		}
	}
}
