// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package message

import "fmt"

// Message is one decoded packet. The concrete type selects the body layout.
type Message interface {
	// Kind returns the tag written to the first byte of the packet.
	Kind() Kind
}

// Config tunes the firmware's colour decay.
type Config struct {
	DecayTimeDelayMs uint32 // 0 disables decay
	DecayIntervalUs  uint32
	DecayAmount      uint32
}

// RGB is a single LED colour.
type RGB struct {
	R, G, B uint8
}

// Uint32 packs the colour as 0x00RRGGBB.
func (c RGB) Uint32() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Scale multiplies every channel by f, clamping to [0, 255].
func (c RGB) Scale(f float64) RGB {
	scale := func(v uint8) uint8 {
		s := float64(v) * f
		switch {
		case s <= 0:
			return 0
		case s >= 255:
			return 255
		}
		return uint8(s)
	}
	return RGB{R: scale(c.R), G: scale(c.G), B: scale(c.B)}
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Color sets ColorsPerPacket LEDs starting at Offset.
type Color struct {
	Offset   uint16
	Settings uint8
	Colors   [ColorsPerPacket]RGB
}

// IRCode identifies an infrared signal. It is only ever compared for
// equality, so it can be used directly as a map key.
type IRCode struct {
	Protocol uint8
	Bits     uint8
	Address  uint16
	Value    uint32
}

func (c IRCode) String() string {
	return fmt.Sprintf("proto=%d bits=%d addr=0x%04X value=0x%X", c.Protocol, c.Bits, c.Address, c.Value)
}

// IRReceived is reported by the device after it decoded an IR signal.
type IRReceived struct {
	Code IRCode
}

// IRSend asks the device to transmit an IR signal.
type IRSend struct {
	Code IRCode
}

// Raw carries the body of NoOp packets and of any kind this package does not
// know. It keeps the tag so unknown packets survive a decode/encode cycle.
type Raw struct {
	Tag  Kind
	Data [BodySize]byte
}

func (Config) Kind() Kind     { return KindConfig }
func (Color) Kind() Kind      { return KindColor }
func (IRReceived) Kind() Kind { return KindIRReceived }
func (IRSend) Kind() Kind     { return KindIRSend }
func (r Raw) Kind() Kind      { return r.Tag }

var (
	_ Message = Config{}
	_ Message = Color{}
	_ Message = IRReceived{}
	_ Message = IRSend{}
	_ Message = Raw{}
)
