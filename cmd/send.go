// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/spf13/cobra"
)

var sendInterval time.Duration

var sendCmd = &cobra.Command{
	Use:   "send VALUE...",
	Short: "Send values as DATA frames",
	Long: `Encode each VALUE as a --payload DATA frame and send it to --address.

Integers accept decimal, 0x hex, 0o octal and 0b binary forms. Each value is
one bus transaction.

Example:
  safewire send --port /dev/ttyUSB0 --payload int32 --address 0x08 42 -7 0x100`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendInterval, "interval", 0, "Delay between values")
}

func runSend(cmd *cobra.Command, args []string) error {
	if !addressSet(cmd) {
		return fmt.Errorf("send: %w (use --address)", safetransfer.ErrNoAddress)
	}

	stats := safetransfer.NewStatistics()
	sess, err := newSession(payloadType, channelOptions(stats)...)
	if err != nil {
		return err
	}

	// Reject bad input before opening the connection
	frames := make([][]byte, len(args))
	for i, arg := range args {
		if frames[i], err = sess.Encode(arg, safetransfer.PacketData); err != nil {
			return err
		}
	}

	bus, closer, connInfo, err := openControllerBus(sess.FrameSize())
	if err != nil {
		return err
	}
	defer closer.Close()
	sess.Bind(bus)
	sess.SetAddress(peerAddress)

	fmt.Printf("Connection: %s\n", connInfo)
	failed := sendValues(os.Stdout, sess, peerAddress, args, frames, sendInterval)
	fmt.Printf("Sent %d frames (%d failed)\n", stats.Sends-stats.SendErrors, stats.SendErrors)
	if failed > 0 {
		return fmt.Errorf("%d of %d sends failed", failed, len(args))
	}
	return nil
}

// sendValues sends every value in order, reporting each outcome on w, and
// returns the number of failed sends. A failure does not stop later values.
func sendValues(w io.Writer, sess session, addr uint8, args []string, frames [][]byte, interval time.Duration) int {
	failed := 0
	for i, arg := range args {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}
		if err := sess.Send(arg); err != nil {
			failed++
			fmt.Fprintf(w, "!! 0x%02X %s: %v\n", addr, arg, err)
			continue
		}
		fmt.Fprintf(w, "-> 0x%02X %s [%s]\n", addr, arg, safetransfer.FormatHex(frames[i]))
	}
	return failed
}
