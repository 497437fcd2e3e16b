// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers"
)

// Compile-time checks.
var (
	_ drivers.I2C            = (*fakeI2C)(nil)
	_ safetransfer.Bus       = (*I2C)(nil)
	_ safetransfer.Requester = (*I2C)(nil)
)

type txCall struct {
	addr uint16
	w    []byte
	r    int
}

// fakeI2C records Tx calls and answers reads from a scripted reply
type fakeI2C struct {
	calls []txCall
	reply []byte
	err   error
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	f.calls = append(f.calls, txCall{addr: addr, w: bytes.Clone(w), r: len(r)})
	if f.err != nil {
		return f.err
	}
	copy(r, f.reply)
	return nil
}

func TestI2CSendToPeer(t *testing.T) {
	dev := &fakeI2C{}
	ch, err := safetransfer.New[uint16]()
	require.NoError(t, err)
	ch.Begin(NewI2C(dev))

	require.NoError(t, ch.SendToPeer(0x40, 0x0102))
	require.Len(t, dev.calls, 1)

	want, err := ch.Codec().Encode(0x0102, safetransfer.PacketData)
	require.NoError(t, err)
	require.Equal(t, uint16(0x40), dev.calls[0].addr)
	require.Equal(t, want, dev.calls[0].w)
	require.Zero(t, dev.calls[0].r)
}

func TestI2CRequestFrom(t *testing.T) {
	codec := safetransfer.MustCodec[uint16]()
	reply, err := codec.Encode(512, safetransfer.PacketData)
	require.NoError(t, err)

	dev := &fakeI2C{reply: reply}
	ch, err := safetransfer.New[uint16]()
	require.NoError(t, err)
	ch.Begin(NewI2C(dev))
	var got []uint16
	ch.OnReceive(func(v uint16) { got = append(got, v) })

	n, err := ch.RequestFrom(0x40)
	require.NoError(t, err)
	require.Equal(t, codec.FrameSize(), n)
	require.Equal(t, txCall{addr: 0x40, w: nil, r: codec.FrameSize()}, dev.calls[0])

	require.True(t, ch.Poll().Delivered())
	require.Equal(t, []uint16{512}, got)
}

func TestI2CErrors(t *testing.T) {
	dev := &fakeI2C{err: errors.New("bus timeout")}
	b := NewI2C(dev)

	_, err := b.Write([]byte{1})
	require.ErrorIs(t, err, ErrNoTransaction)
	require.ErrorIs(t, b.EndTransmission(), ErrNoTransaction)

	b.BeginTransmission(0x11)
	_, err = b.Write([]byte{1})
	require.NoError(t, err)
	require.ErrorContains(t, b.EndTransmission(), "bus timeout")

	_, err = b.RequestFrom(0x11, 4)
	require.ErrorContains(t, err, "i2c read from 0x11")
	require.Zero(t, b.Available())

	_, err = b.ReadByte()
	require.ErrorIs(t, err, io.EOF)
}
