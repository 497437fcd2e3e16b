// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/safewire/pkg/capture"
	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Dispatch the frames of a capture file",
	Long: `Read a capture file written by 'monitor --capture' and dispatch every received
frame through a --payload channel, printing each result and a statistics
summary.

Frames whose result differs from the one recorded at capture time are flagged,
which shows the effect of a different --payload or --big-endian setting.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	records, err := capture.ReadAll(f)
	if err != nil {
		return err
	}

	stats := safetransfer.NewStatistics()
	sess, err := newSession(payloadType, channelOptions(stats)...)
	if err != nil {
		return err
	}

	fmt.Printf("Safewire - Replay\n")
	fmt.Printf("Capture: %s (%d records)\n", args[0], len(records))
	fmt.Printf("Payload: %s (%d byte frames)\n\n", sess.PayloadName(), sess.FrameSize())

	changed := 0
	for _, rec := range records {
		if rec.Direction != capture.Received {
			continue
		}
		r := sess.Dispatch(rec.Frame)
		line := fmt.Sprintf("%s %s", rec.Time.Format("15:04:05.000"), r.Line)
		if rec.Status != "" && rec.Status != r.Status.String() {
			changed++
			line += fmt.Sprintf("  (captured as %s)", rec.Status)
		}
		fmt.Println(line)
	}

	fmt.Println(stats.String())
	if changed > 0 {
		fmt.Printf("%d frames changed outcome since capture\n", changed)
	}
	return nil
}
