// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round trips to an echoing peer",
	Long: `Send numbered DATA frames to --address and wait for each to come back.

The peer must echo every DATA frame it receives. A ping succeeds when a frame
carrying the same value arrives before --timeout; other frames are ignored.

This is useful for verifying:
  - The connection is established
  - HTTP Basic authentication works (WebSocket)
  - Both directions carry valid frames

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	if !addressSet(cmd) {
		return fmt.Errorf("ping: %w (use --address)", safetransfer.ErrNoAddress)
	}
	if pingCount < 1 || pingCount > 100 {
		return fmt.Errorf("--count must be between 1 and 100")
	}

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
	sess.SetAddress(peerAddress)

	fmt.Printf("Safewire - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)
		value := strconv.Itoa(i)

		start := time.Now()
		if err := sess.Send(value); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			continue
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(pingTimeout)*time.Second)
		echoed := false
		err := pollStream(ctx, sess, stream, func(r report) {
			if r.Status == safetransfer.StatusDelivered && r.Value == value {
				echoed = true
				cancel()
			}
		})
		cancel()

		switch {
		case echoed:
			fmt.Printf("echo value=%s, rtt=%v\n", value, time.Since(start).Round(time.Millisecond))
			successCount++
		case err != nil:
			fmt.Printf("READ FAILED: %v\n", err)
		default:
			fmt.Printf("TIMEOUT (no echo in %ds)\n", pingTimeout)
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	failCount := pingCount - successCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d echoes received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
