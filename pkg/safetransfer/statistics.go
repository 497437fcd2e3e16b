// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame counts and error rates. It is not safe for
// concurrent use; update and read it from the goroutine that polls.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Receive counters
	TotalFrames     uint64
	DeliveredFrames uint64
	DroppedFrames   uint64
	RejectedFrames  uint64
	CRCErrors       uint64
	MalformedFrames uint64
	UnknownTypes    uint64
	ReservedTypes   uint64
	NoHandler       uint64

	// Send counters
	Sends      uint64
	SendErrors uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // rejected frames/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordReceive implements Recorder
func (s *Statistics) RecordReceive(status Status, typ PacketType, reason error) {
	if status == StatusIdle {
		return
	}
	s.TotalFrames++

	switch status {
	case StatusDelivered:
		s.DeliveredFrames++
	case StatusDropped:
		s.DroppedFrames++
		if errors.Is(reason, ErrNoHandler) {
			s.NoHandler++
		}
		if errors.Is(reason, ErrReservedType) {
			s.ReservedTypes++
		}
	case StatusRejected:
		s.RejectedFrames++
		switch {
		case errors.Is(reason, ErrIntegrity):
			s.CRCErrors++
		case errors.Is(reason, ErrMalformedFrame):
			s.MalformedFrames++
		case errors.Is(reason, ErrUnknownType):
			s.UnknownTypes++
		}
	}

	s.LastUpdateTime = time.Now()
}

// RecordSend implements Recorder
func (s *Statistics) RecordSend(err error) {
	s.Sends++
	if err != nil {
		s.SendErrors++
	}
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.RejectedFrames) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var deliveredPercent, droppedPercent, rejectedPercent float64
	if s.TotalFrames > 0 {
		deliveredPercent = float64(s.DeliveredFrames) * 100.0 / float64(s.TotalFrames)
		droppedPercent = float64(s.DroppedFrames) * 100.0 / float64(s.TotalFrames)
		rejectedPercent = float64(s.RejectedFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Delivered:       %8d (%.1f%%)\n", s.DeliveredFrames, deliveredPercent)

	if s.DroppedFrames > 0 {
		result += fmt.Sprintf("Dropped:         %8d (%.1f%%)\n", s.DroppedFrames, droppedPercent)
		if s.NoHandler > 0 {
			result += fmt.Sprintf("  No Handler:       %5d\n", s.NoHandler)
		}
		if s.ReservedTypes > 0 {
			result += fmt.Sprintf("  Reserved Type:    %5d\n", s.ReservedTypes)
		}
	}
	if s.RejectedFrames > 0 {
		result += fmt.Sprintf("Rejected:        %8d (%.1f%%)\n", s.RejectedFrames, rejectedPercent)
		if s.CRCErrors > 0 {
			result += fmt.Sprintf("  CRC Errors:       %5d\n", s.CRCErrors)
		}
		if s.MalformedFrames > 0 {
			result += fmt.Sprintf("  Malformed:        %5d\n", s.MalformedFrames)
		}
		if s.UnknownTypes > 0 {
			result += fmt.Sprintf("  Unknown Type:     %5d\n", s.UnknownTypes)
		}
	}
	if s.Sends > 0 {
		result += fmt.Sprintf("Sends:           %8d (%d failed)\n", s.Sends, s.SendErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
