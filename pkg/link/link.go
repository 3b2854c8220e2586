// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link moves 64 byte packets between the host and the peripheral.
//
// A Transport owns one Link at a time, a transmit queue and a receive queue.
// Its worker loop writes queued messages, reads whole frames and decodes
// them. When the Link fails it is closed and forgotten; reconnecting is the
// caller's job.
package link

import (
	"errors"
	"io"
	"time"
)

// Link is an open byte stream to the device.
//
// Read must honour the read timeout given to the OpenFunc: when no data
// arrives in time it returns (0, nil). Any error is treated as fatal for the
// link.
type Link interface {
	io.Reader
	io.Writer
	io.Closer
}

// FrameLink is a Link that keeps message boundaries, such as a WebSocket
// bridge carrying one packet per message. ReadFrame returns one whole message,
// or (nil, nil) when none arrived within the read timeout. The Transport
// reads a FrameLink only through ReadFrame, so a message of the wrong size is
// discarded on its own and never joined with the next one.
type FrameLink interface {
	Link
	ReadFrame() ([]byte, error)
}

// OpenFunc opens a Link. Implementations that are not serial ports may ignore
// port and baud.
type OpenFunc func(port string, baud int, readTimeout time.Duration) (Link, error)

// ErrNotConnected is returned by operations that need an open link.
var ErrNotConnected = errors.New("not connected")

// MinReadTimeout is the lower bound applied by ReadTimeout.
const MinReadTimeout = time.Millisecond

// ReadTimeout returns the time needed to receive packetSize bytes at baud
// with ten percent slack, but never less than MinReadTimeout.
func ReadTimeout(packetSize, baud int) time.Duration {
	if baud <= 0 {
		return MinReadTimeout
	}
	d := time.Duration(float64(packetSize) * 1.1 / float64(baud) * float64(time.Second))
	if d < MinReadTimeout {
		return MinReadTimeout
	}
	return d
}

// State is the connection state of a Transport.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Direction tells an Observer which way a message travelled.
type Direction int

const (
	Inbound  Direction = iota // device → host
	Outbound                  // host → device
)

func (d Direction) String() string {
	if d == Inbound {
		return "RX"
	}
	return "TX"
}
