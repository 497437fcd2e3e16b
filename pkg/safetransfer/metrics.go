// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports channel activity as prometheus counters
type Metrics struct {
	frames *prometheus.CounterVec
	sends  *prometheus.CounterVec
}

// NewMetrics creates the channel counters and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "safewire",
				Subsystem: "channel",
				Name:      "frames_total",
				Help:      "Frames consumed by Poll or Dispatch.",
			},
			[]string{"status", "reason"},
		),
		sends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "safewire",
				Subsystem: "channel",
				Name:      "sends_total",
				Help:      "Frame send attempts.",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.frames, m.sends} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// RecordReceive implements Recorder
func (m *Metrics) RecordReceive(status Status, typ PacketType, reason error) {
	if status == StatusIdle {
		return
	}
	m.frames.WithLabelValues(status.String(), reasonLabel(reason)).Inc()
}

// RecordSend implements Recorder
func (m *Metrics) RecordSend(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sends.WithLabelValues(result).Inc()
}

// reasonLabel maps a reason to a bounded label value
func reasonLabel(reason error) string {
	switch {
	case reason == nil:
		return "none"
	case errors.Is(reason, ErrIntegrity):
		return "crc"
	case errors.Is(reason, ErrMalformedFrame):
		return "malformed"
	case errors.Is(reason, ErrUnknownType):
		return "unknown_type"
	case errors.Is(reason, ErrReservedType):
		return "reserved_type"
	case errors.Is(reason, ErrNoHandler):
		return "no_handler"
	default:
		return "other"
	}
}
