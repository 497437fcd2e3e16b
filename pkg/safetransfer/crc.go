// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

// crcTable holds the CRC-16/XMODEM remainder of each byte value shifted
// into the high byte of the register
var crcTable = makeCRCTable(crcPolynomial)

func makeCRCTable(poly uint16) [256]uint16 {
	var table [256]uint16
	for n := range table {
		r := uint16(n) << 8
		for range 8 {
			if r&0x8000 != 0 {
				r = r<<1 ^ poly
			} else {
				r <<= 1
			}
		}
		table[n] = r
	}
	return table
}

// CalculateCRC computes the CRC-16/XMODEM checksum of data: polynomial
// 0x1021, initial value 0, no reflection and no final xor
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
