// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/spf13/cobra"
)

var (
	scanFirst uint8
	scanLast  uint8
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find peripherals answering with frames on an I2C bus",
	Long: `Read one --payload frame from every address in a range and report what answers.

Requires --i2c. Each address gets one controller read; addresses that do not
acknowledge are skipped. A peripheral answers through its request callback, so
every responder shows either a delivered value or the reason its reply was
rejected.

Examples:
  safewire scan --i2c /dev/i2c-1 --payload int32
  safewire scan --i2c /dev/i2c-1 --first 0x08 --last 0x0F

Exit codes:
  0 - At least one peripheral answered with a valid frame
  1 - No valid frames
  2 - Connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Uint8Var(&scanFirst, "first", 0x08, "First address to probe")
	scanCmd.Flags().Uint8Var(&scanLast, "last", 0x77, "Last address to probe")
}

type scanResult struct {
	address uint8
	result  report
}

func runScan(cmd *cobra.Command, args []string) error {
	if i2cPath == "" {
		return fmt.Errorf("scan: %w (use --i2c)", safetransfer.ErrUnsupportedBus)
	}
	if scanFirst > scanLast {
		return fmt.Errorf("--first 0x%02X is after --last 0x%02X", scanFirst, scanLast)
	}

	sess, err := newSession(payloadType, channelOptions()...)
	if err != nil {
		return err
	}

	bus, closer, connInfo, err := openControllerBus(sess.FrameSize())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer closer.Close()
	sess.Bind(bus)

	fmt.Printf("Safewire - Bus Scan\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Range: 0x%02X-0x%02X\n", scanFirst, scanLast)
	fmt.Printf("Payload: %s (%d byte frames)\n\n", sess.PayloadName(), sess.FrameSize())

	found := scanRange(sess, scanFirst, scanLast)

	valid := 0
	for _, f := range found {
		if f.result.Status == safetransfer.StatusDelivered {
			valid++
			fmt.Printf("  0x%02X  value=%s [%s]\n", f.address, f.result.Value, safetransfer.FormatHex(f.result.Frame))
		} else {
			fmt.Printf("  0x%02X  %s: %v [%s]\n", f.address, f.result.Status, f.result.Reason, safetransfer.FormatHex(f.result.Frame))
		}
	}

	fmt.Printf("\n--- Scan Results ---\n")
	fmt.Printf("Responders: %d\n", len(found))
	fmt.Printf("Valid frames: %d\n", valid)

	if valid == 0 {
		os.Exit(1)
	}
	return nil
}

// scanRange reads one frame from each address in [first, last] and returns
// the addresses that acknowledged
func scanRange(sess session, first, last uint8) []scanResult {
	var found []scanResult
	for addr := int(first); addr <= int(last); addr++ {
		n, err := sess.RequestFrom(uint8(addr))
		if err != nil {
			logger.Debug().Err(err).Uint8("address", uint8(addr)).Msg("no answer")
			continue
		}
		if n == 0 {
			continue
		}
		found = append(found, scanResult{address: uint8(addr), result: sess.Poll()})
	}
	return found
}
