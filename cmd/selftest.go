// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/Thermoquad/safewire/pkg/wire"
	"github.com/spf13/cobra"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run protocol checks over an in-memory bus",
	Long: `Run the framing and channel checks against an in-memory loopback bus.

No hardware is needed. Each check prints PASS or FAIL; the command exits
non-zero when any check fails.`,
	Args: cobra.NoArgs,
	RunE: runSelftest,
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}

type scenario struct {
	name string
	run  func() error
}

func runSelftest(cmd *cobra.Command, args []string) error {
	fmt.Printf("Safewire - Self Test\n\n")

	failed := 0
	for _, s := range selftestScenarios() {
		if err := s.run(); err != nil {
			failed++
			fmt.Printf("FAIL  %s: %v\n", s.name, err)
			continue
		}
		fmt.Printf("PASS  %s\n", s.name)
	}

	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	fmt.Printf("\nAll checks passed\n")
	return nil
}

// loopbackPair is a controller and a peripheral channel on one loopback bus
type loopbackPair struct {
	bus        *wire.Loopback
	controller *safetransfer.Channel[int32]
	peripheral *safetransfer.Channel[int32]
	received   []int32
}

const selftestAddress = 0x08

func newLoopbackPair() (*loopbackPair, error) {
	p := &loopbackPair{bus: wire.NewLoopback()}

	var err error
	if p.controller, err = safetransfer.New[int32](safetransfer.WithLogger(logger)); err != nil {
		return nil, err
	}
	if p.peripheral, err = safetransfer.New[int32](safetransfer.WithLogger(logger)); err != nil {
		return nil, err
	}

	p.controller.Begin(p.bus.Controller())
	p.controller.SetAddress(selftestAddress)
	p.peripheral.Begin(p.bus.Peripheral(selftestAddress))
	p.peripheral.OnReceive(func(v int32) { p.received = append(p.received, v) })
	return p, nil
}

func (p *loopbackPair) inject(frames ...[]byte) {
	for _, f := range frames {
		p.bus.Peripheral(selftestAddress).Inject(f)
	}
}

func expectStatus[T any](r safetransfer.Result[T], status safetransfer.Status, reason error) error {
	if r.Status != status {
		return fmt.Errorf("status %s, expected %s (reason: %v)", r.Status, status, r.Reason)
	}
	if reason != nil && !errors.Is(r.Reason, reason) {
		return fmt.Errorf("reason %v, expected %v", r.Reason, reason)
	}
	return nil
}

func (p *loopbackPair) expectReceived(want ...int32) error {
	if len(p.received) != len(want) {
		return fmt.Errorf("received %v, expected %v", p.received, want)
	}
	for i := range want {
		if p.received[i] != want[i] {
			return fmt.Errorf("received %v, expected %v", p.received, want)
		}
	}
	return nil
}

func selftestScenarios() []scenario {
	codec := safetransfer.MustCodec[int32]()
	frame42 := []byte{0x00, 0x2A, 0x00, 0x00, 0x00, 0xE5, 0x5F}

	return []scenario{
		{"CRC-16/XMODEM check value", func() error {
			if crc := safetransfer.CalculateCRC([]byte("123456789")); crc != 0x31C3 {
				return fmt.Errorf("got 0x%04X, expected 0x31C3", crc)
			}
			return nil
		}},

		{"encode 42 as int32 DATA", func() error {
			frame, err := codec.Encode(42, safetransfer.PacketData)
			if err != nil {
				return err
			}
			if !bytes.Equal(frame, frame42) {
				return fmt.Errorf("got [%s], expected [%s]", safetransfer.FormatHex(frame), safetransfer.FormatHex(frame42))
			}
			typ, v, err := codec.Decode(frame)
			if err != nil || typ != safetransfer.PacketData || v != 42 || !codec.Verify(frame) {
				return fmt.Errorf("round trip gave %s %d (err %v)", typ, v, err)
			}
			return nil
		}},

		{"send to peripheral delivers once", func() error {
			p, err := newLoopbackPair()
			if err != nil {
				return err
			}
			if err := p.controller.Send(42); err != nil {
				return err
			}
			if err := expectStatus(p.peripheral.Poll(), safetransfer.StatusDelivered, nil); err != nil {
				return err
			}
			if err := expectStatus(p.peripheral.Poll(), safetransfer.StatusIdle, nil); err != nil {
				return err
			}
			return p.expectReceived(42)
		}},

		{"corrupt payload byte is rejected", func() error {
			p, err := newLoopbackPair()
			if err != nil {
				return err
			}
			bad := bytes.Clone(frame42)
			bad[1] ^= 0x01
			p.inject(bad)
			if err := expectStatus(p.peripheral.Poll(), safetransfer.StatusRejected, safetransfer.ErrIntegrity); err != nil {
				return err
			}
			return p.expectReceived()
		}},

		{"frame without receive handler is dropped", func() error {
			p, err := newLoopbackPair()
			if err != nil {
				return err
			}
			p.peripheral.OnReceive(nil)
			p.inject(frame42)
			if err := expectStatus(p.peripheral.Poll(), safetransfer.StatusDropped, safetransfer.ErrNoHandler); err != nil {
				return err
			}
			p.peripheral.OnReceive(func(v int32) { p.received = append(p.received, v) })
			p.inject(frame42)
			if err := expectStatus(p.peripheral.Poll(), safetransfer.StatusDelivered, nil); err != nil {
				return err
			}
			return p.expectReceived(42)
		}},

		{"short frame is malformed", func() error {
			p, err := newLoopbackPair()
			if err != nil {
				return err
			}
			p.inject(frame42[:4])
			if err := expectStatus(p.peripheral.Poll(), safetransfer.StatusRejected, safetransfer.ErrMalformedFrame); err != nil {
				return err
			}
			if err := expectStatus(p.peripheral.Poll(), safetransfer.StatusIdle, nil); err != nil {
				return err
			}
			return p.expectReceived()
		}},

		{"back-to-back frames take one poll each", func() error {
			p, err := newLoopbackPair()
			if err != nil {
				return err
			}
			second, err := codec.Encode(43, safetransfer.PacketData)
			if err != nil {
				return err
			}
			p.inject(frame42, second)
			for range 2 {
				if err := expectStatus(p.peripheral.Poll(), safetransfer.StatusDelivered, nil); err != nil {
					return err
				}
			}
			return p.expectReceived(42, 43)
		}},

		{"reserved packet types are accepted and ignored", func() error {
			p, err := newLoopbackPair()
			if err != nil {
				return err
			}
			for _, typ := range []safetransfer.PacketType{safetransfer.PacketAck, safetransfer.PacketError, safetransfer.PacketRetry} {
				frame, err := codec.Encode(42, typ)
				if err != nil {
					return err
				}
				p.inject(frame)
				if err := expectStatus(p.peripheral.Poll(), safetransfer.StatusDropped, safetransfer.ErrReservedType); err != nil {
					return fmt.Errorf("%s: %w", typ, err)
				}
			}
			return p.expectReceived()
		}},

		{"controller read runs request callback", func() error {
			p, err := newLoopbackPair()
			if err != nil {
				return err
			}
			var got []int32
			p.controller.OnReceive(func(v int32) { got = append(got, v) })
			p.peripheral.OnRequest(func() int32 { return -1234 })

			if _, err := p.controller.RequestFrom(selftestAddress); err != nil {
				return err
			}
			if err := expectStatus(p.controller.Poll(), safetransfer.StatusDelivered, nil); err != nil {
				return err
			}
			if len(got) != 1 || got[0] != -1234 {
				return fmt.Errorf("controller received %v, expected [-1234]", got)
			}
			return nil
		}},

		{"unbound channel is a guarded no-op", func() error {
			ch, err := safetransfer.New[int32]()
			if err != nil {
				return err
			}
			if err := ch.SendToController(1); !errors.Is(err, safetransfer.ErrUnbound) {
				return fmt.Errorf("send gave %v, expected %v", err, safetransfer.ErrUnbound)
			}
			return expectStatus(ch.Poll(), safetransfer.StatusIdle, safetransfer.ErrUnbound)
		}},

		{"missing peer is not acknowledged", func() error {
			p, err := newLoopbackPair()
			if err != nil {
				return err
			}
			if err := p.controller.SendToPeer(0x09, 1); !errors.Is(err, wire.ErrAddressNack) {
				return fmt.Errorf("got %v, expected %v", err, wire.ErrAddressNack)
			}
			return nil
		}},
	}
}
