// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"strings"
	"time"
)

// Statistics tracks frame counters and error rates of a Transport
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	FramesSent      uint64
	FramesReceived  uint64
	MalformedFrames uint64 // frames of the wrong size
	ReadErrors      uint64
	WriteErrors     uint64
	AbandonedTX     uint64 // dropped from a batch after a write failure
	DroppedTX       uint64 // pushed out of a full TX queue
	DroppedRX       uint64 // pushed out of a full RX queue
	Connects        uint64
	ConnectFailures uint64
	Disconnects     uint64

	// Rates (calculated)
	SendRate    float64 // frames/sec
	ReceiveRate float64 // frames/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.Reset()
	return s
}

// Errors returns the sum of every error counter.
func (s *Statistics) Errors() uint64 {
	return s.MalformedFrames + s.ReadErrors + s.WriteErrors + s.ConnectFailures
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.SendRate = float64(s.FramesSent) / elapsed
		s.ReceiveRate = float64(s.FramesReceived) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var b strings.Builder
	elapsed := time.Since(s.StartTime)

	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Frames Sent:     %8d\n", s.FramesSent)
	fmt.Fprintf(&b, "Frames Received: %8d\n", s.FramesReceived)

	if s.MalformedFrames > 0 {
		var pct float64
		if total := s.FramesReceived + s.MalformedFrames; total > 0 {
			pct = float64(s.MalformedFrames) * 100.0 / float64(total)
		}
		fmt.Fprintf(&b, "Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, pct)
	}
	if s.ReadErrors > 0 {
		fmt.Fprintf(&b, "Read Errors:     %8d\n", s.ReadErrors)
	}
	if s.WriteErrors > 0 {
		fmt.Fprintf(&b, "Write Errors:    %8d\n", s.WriteErrors)
		if s.AbandonedTX > 0 {
			fmt.Fprintf(&b, "  Abandoned TX:     %5d\n", s.AbandonedTX)
		}
	}
	if s.DroppedTX > 0 || s.DroppedRX > 0 {
		fmt.Fprintf(&b, "Queue Drops:     %8d TX, %d RX\n", s.DroppedTX, s.DroppedRX)
	}
	fmt.Fprintf(&b, "Connects:        %8d (%d failed, %d lost)\n", s.Connects, s.ConnectFailures, s.Disconnects)

	fmt.Fprintf(&b, "Send Rate:       %8.1f frames/sec\n", s.SendRate)
	fmt.Fprintf(&b, "Receive Rate:    %8.1f frames/sec\n", s.ReceiveRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")

	return b.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	*s = Statistics{StartTime: now, LastUpdateTime: now}
}
