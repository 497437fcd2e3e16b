// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var rawLogDuration int

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw bytes as they arrive",
	Long: `Print every chunk read from the connection, without framing.

Each chunk is shown with its length and hex bytes. When a chunk is exactly one
--payload frame long, its decoded form is shown too. On a WebSocket bridge a
chunk is one message.

Useful for debugging connection stability and framing issues. With --duration
the command ends after that many seconds and exits 1 if the connection failed.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogDuration, "duration", 0, "Stop after this many seconds (0 runs until Ctrl+C)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	sess, err := newSession(payloadType, channelOptions()...)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Safewire - Raw Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if rawLogDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(rawLogDuration)*time.Second)
		defer cancel()
	}

	chunks := make(chan []byte, 100)
	errChan := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunks <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	start := time.Now()
	chunkCount, byteCount := 0, 0
	summary := func() {
		fmt.Printf("\n--- Raw log ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Chunks received: %d\n", chunkCount)
		fmt.Printf("Bytes received: %d\n", byteCount)
	}

	for {
		select {
		case data := <-chunks:
			chunkCount++
			byteCount += len(data)
			fmt.Printf("[%s] %3d bytes: % X\n", time.Now().Format("15:04:05.000"), len(data), data)
			if len(data) == sess.FrameSize() {
				fmt.Printf("  %s\n", sess.Describe(data))
			}

		case err := <-errChan:
			summary()
			if connectionEnded(err) {
				fmt.Printf("Result: connection closed\n")
				return nil
			}
			fmt.Printf("Result: FAILED (%v)\n", err)
			os.Exit(1)

		case <-ctx.Done():
			summary()
			return nil
		}
	}
}
