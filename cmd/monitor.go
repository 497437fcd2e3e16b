// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/safewire/pkg/capture"
	"github.com/Thermoquad/safewire/pkg/safetransfer"
	"github.com/Thermoquad/safewire/pkg/wire"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	capturePath   string
	metricsAddr   string
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Receive frames and track errors",
	Long: `Continuously poll a framed channel on the connection and report every frame.

Each frame is checked for:
  - Length (exactly one frame per transaction)
  - CRC-16/XMODEM integrity
  - Packet type (DATA, reserved ACK/ERROR/RETRY, unknown)

By default, only dropped and rejected frames are displayed. Use --show-all to
display delivered frames too. Statistics are printed at --stats-interval.

--capture appends every frame to a CBOR capture file for later replay.
--metrics-addr serves Prometheus counters on http://ADDR/metrics.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds, 0 to disable)")
	monitorCmd.Flags().StringVar(&capturePath, "capture", "", "Write received frames to a capture file")
	monitorCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", false, "Use terminal UI")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorders []safetransfer.Recorder

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := safetransfer.NewMetrics(reg)
		if err != nil {
			return err
		}
		recorders = append(recorders, metrics)

		srv := serveMetrics(metricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// The TUI keeps its own statistics on the UI goroutine and shows the
	// events the logger would print
	stats := safetransfer.NewStatistics()
	if useTUI {
		logger = zerolog.Nop()
	} else {
		recorders = append(recorders, stats)
	}

	sess, err := newSession(payloadType, channelOptions(recorders...)...)
	if err != nil {
		return err
	}

	stream, connInfo, err := openStreamBus(sess.FrameSize())
	if err != nil {
		return err
	}
	defer stream.Close()
	sess.Bind(stream)

	var captureWriter *capture.Writer
	if capturePath != "" {
		f, err := os.OpenFile(capturePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open capture file: %w", err)
		}
		defer f.Close()
		captureWriter = capture.NewWriter(f)
	}

	record := func(r report) {
		if captureWriter == nil {
			return
		}
		if err := captureWriter.Write(captureRecord(r)); err != nil {
			logger.Error().Err(err).Msg("capture write failed")
		}
	}

	if useTUI {
		return runMonitorTUI(ctx, sess, stream, connInfo, record)
	}

	fmt.Printf("Safewire - Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Payload: %s (%d byte frames)\n", sess.PayloadName(), sess.FrameSize())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	lastStats := time.Now()
	err = pollStream(ctx, sess, stream, func(r report) {
		record(r)
		if r.Status != safetransfer.StatusDelivered || showAll {
			fmt.Println(r.Line)
		}
		if statsInterval > 0 && time.Since(lastStats) >= time.Duration(statsInterval)*time.Second {
			lastStats = time.Now()
			fmt.Println(stats.String())
		}
	})

	fmt.Println(stats.String())
	return err
}

// runMonitorTUI forwards every result to the dashboard
func runMonitorTUI(ctx context.Context, sess session, stream *wire.Stream, connInfo string, record func(report)) error {
	m := initialMonitorModel(connInfo, sess.PayloadName(), sess.FrameSize(), showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	go func() {
		err := pollStream(ctx, sess, stream, func(r report) {
			record(r)
			p.Send(resultMsg(r))
		})
		p.Send(connectionEndedMsg{err: err})
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// pollStream drives sess until ctx ends or the stream stops, calling handle
// for every result that consumed bytes
func pollStream(ctx context.Context, sess session, stream *wire.Stream, handle func(report)) error {
	drain := func() {
		for {
			r := sess.Poll()
			if r.Status == safetransfer.StatusIdle {
				return
			}
			handle(r)
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		drain()

		select {
		case <-ctx.Done():
			return nil
		case <-stream.Done():
			// Bytes received before the error are still buffered
			drain()
			if err := stream.Err(); !connectionEnded(err) {
				return fmt.Errorf("read error: %w", err)
			}
			logger.Info().Msg("connection closed")
			return nil
		case <-ticker.C:
		}
	}
}

// serveMetrics starts a Prometheus endpoint for reg in the background
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	return srv
}

func captureRecord(r report) capture.Record {
	rec := capture.Record{
		Time:      time.Now(),
		Direction: capture.Received,
		Frame:     r.Frame,
		Status:    r.Status.String(),
	}
	if r.Reason != nil {
		rec.Reason = r.Reason.Error()
	}
	return rec
}
