// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid DATA frame",
	Long: `Wait for a valid DATA frame on the connection until timeout.

This command connects to a serial port or WebSocket and polls a channel of the
configured --payload type until one frame passes the length and CRC checks.
Rejected frames are counted and reported but do not end the test.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	sess, err := newSession(payloadType, channelOptions()...)
	if err != nil {
		return err
	}

	stream, connInfo, err := openStreamBus(sess.FrameSize())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer stream.Close()
	sess.Bind(stream)

	fmt.Printf("Safewire - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid %s frame...\n\n", sess.PayloadName())

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	var got *report
	rejected := 0
	err = pollStream(ctx, sess, stream, func(r report) {
		if got != nil {
			return
		}
		if r.Status == safetransfer.StatusDelivered {
			got = &r
			cancel()
			return
		}
		rejected++
	})

	switch {
	case got != nil:
		if rejected > 0 {
			fmt.Printf("(skipped %d invalid frames)\n", rejected)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", got.Type, uint8(got.Type))
		fmt.Printf("  Value: %s\n", got.Value)
		fmt.Printf("  Length: %d bytes\n", len(got.Frame))
		fmt.Printf("  Frame: %s\n", safetransfer.FormatHex(got.Frame))
		os.Exit(0)

	case err != nil:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case ctx.Err() == context.DeadlineExceeded:
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Connection closed before a valid frame arrived\n")
	os.Exit(2)
	return nil
}
