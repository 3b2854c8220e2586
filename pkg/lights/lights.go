// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lights converts whole-strip canvases into Color messages.
package lights

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/beacon/pkg/message"
)

// Strip defaults
const (
	DefaultLEDs  = message.DefaultStripLength
	DefaultLimit = 0.5
)

// DefaultSegments is the stock layout around a monitor: left side from the
// top, bottom from the left, right side from the bottom, top from the right.
var DefaultSegments = []int{42, 72, 42, 72}

// Bounds colours used by BoundsCanvas.
var (
	SegmentStart = message.RGB{G: 255}
	SegmentEnd   = message.RGB{R: 255, B: 255}
)

// Canvas holds one colour per LED.
type Canvas []message.RGB

// Strip describes the LED strip attached to the device.
type Strip struct {
	LEDs     int
	Limit    float64 // every channel is scaled by Limit before sending
	Segments []int   // LED count per side, in strip order
}

// DefaultStrip returns the stock 228 LED strip.
func DefaultStrip() Strip {
	return Strip{
		LEDs:     DefaultLEDs,
		Limit:    DefaultLimit,
		Segments: append([]int(nil), DefaultSegments...),
	}
}

// WithDefaults fills in zero fields. Segments default to DefaultSegments only
// for a strip of DefaultLEDs, otherwise to a single segment.
func (s Strip) WithDefaults() Strip {
	if s.LEDs <= 0 {
		s.LEDs = DefaultLEDs
	}
	if s.Limit <= 0 {
		s.Limit = DefaultLimit
	}
	if len(s.Segments) == 0 {
		if s.LEDs == DefaultLEDs {
			s.Segments = append([]int(nil), DefaultSegments...)
		} else {
			s.Segments = []int{s.LEDs}
		}
	}
	return s
}

// Validate checks that the strip can be addressed by Color messages.
func (s Strip) Validate() error {
	var errs []error
	if s.LEDs <= 0 || s.LEDs > 0xFFFF {
		errs = append(errs, fmt.Errorf("leds = %d out of range [1, 65535]", s.LEDs))
	}
	if s.Limit < 0 || s.Limit > 1 {
		errs = append(errs, fmt.Errorf("limit = %g out of range [0, 1]", s.Limit))
	}
	sum := 0
	for i, n := range s.Segments {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("segment %d has %d LEDs", i, n))
		}
		sum += n
	}
	if len(s.Segments) > 0 && sum != s.LEDs {
		errs = append(errs, fmt.Errorf("segments cover %d LEDs, strip has %d", sum, s.LEDs))
	}
	return errors.Join(errs...)
}

// NewCanvas returns an all-black canvas for the strip.
func (s Strip) NewCanvas() Canvas {
	return make(Canvas, s.LEDs)
}

// Chunk splits canvas into Color messages of ColorsPerPacket LEDs at offsets
// 0, 19, 38, ... with the limiter applied. A final partial chunk is sent too;
// only the last message latches the strip. Entries beyond LEDs are ignored.
func (s Strip) Chunk(canvas Canvas) []message.Message {
	if len(canvas) > s.LEDs {
		canvas = canvas[:s.LEDs]
	}
	if len(canvas) == 0 {
		return nil
	}

	n := (len(canvas) + message.ColorsPerPacket - 1) / message.ColorsPerPacket
	msgs := make([]message.Message, 0, n)
	for start := 0; start < len(canvas); start += message.ColorsPerPacket {
		end := min(start+message.ColorsPerPacket, len(canvas))
		c := message.Color{Offset: uint16(start)}
		for i, rgb := range canvas[start:end] {
			c.Colors[i] = s.limit(rgb)
		}
		if end == len(canvas) {
			c.Settings = message.ColorShowAfter
		}
		msgs = append(msgs, c)
	}
	return msgs
}

func (s Strip) limit(rgb message.RGB) message.RGB {
	return rgb.Scale(s.Limit)
}

// Fill returns the messages that paint every LED with rgb.
func (s Strip) Fill(rgb message.RGB) []message.Message {
	canvas := s.NewCanvas()
	for i := range canvas {
		canvas[i] = rgb
	}
	return s.Chunk(canvas)
}

// SetAll returns the single SET_ALL message equivalent to Fill, limiter
// included.
func (s Strip) SetAll(rgb message.RGB) message.Color {
	return message.NewSetAll(s.limit(rgb))
}

// BoundsCanvas marks the first LED of every segment with SegmentStart and
// the last with SegmentEnd, which makes the strip orientation visible.
func (s Strip) BoundsCanvas() Canvas {
	canvas := s.NewCanvas()
	start := 0
	for _, n := range s.Segments {
		if n <= 0 || start+n > len(canvas) {
			break
		}
		canvas[start] = SegmentStart
		canvas[start+n-1] = SegmentEnd
		start += n
	}
	return canvas
}

// Segment returns the segment index and position within it of led.
func (s Strip) Segment(led int) (segment, pos int, ok bool) {
	start := 0
	for i, n := range s.Segments {
		if led >= start && led < start+n {
			return i, led - start, true
		}
		start += n
	}
	return 0, 0, false
}
