// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture reads and writes frame capture files: a sequence of CBOR
// records, one per frame seen on the bus.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction of a captured frame relative to the recording host
type Direction uint8

const (
	Received Direction = iota
	Sent
)

// String returns "rx" or "tx"
func (d Direction) String() string {
	if d == Sent {
		return "tx"
	}
	return "rx"
}

// Record is one captured frame
type Record struct {
	Time      time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Address   uint8     `cbor:"3,keyasint,omitempty"`
	Frame     []byte    `cbor:"4,keyasint"`
	Status    string    `cbor:"5,keyasint,omitempty"`
	Reason    string    `cbor:"6,keyasint,omitempty"`
}

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends records to a capture stream
type Writer struct {
	enc *cbor.Encoder
}

// NewWriter creates a Writer on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// Write encodes one record
func (w *Writer) Write(r Record) error {
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// Reader decodes records from a capture stream
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a Reader on r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next decodes the next record. It returns io.EOF at a clean end of stream
// and io.ErrUnexpectedEOF when the stream ends inside a record.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return rec, nil
}

// ReadAll decodes every record in r
func ReadAll(r io.Reader) ([]Record, error) {
	cr := NewReader(r)
	var records []Record
	for {
		rec, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
