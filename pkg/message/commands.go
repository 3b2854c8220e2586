// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package message

// Builder functions return messages ready for Encode or a transmit queue.

// NewNoOp creates an empty NoOp message.
func NewNoOp() Raw {
	return Raw{Tag: KindNoOp}
}

// NewConfig creates a CONFIG message.
// decayDelayMs is the time after the last Color message before decay starts,
// 0 disables decay. Every decayIntervalUs each channel is lowered by
// decayAmount.
func NewConfig(decayDelayMs, decayIntervalUs, decayAmount uint32) Config {
	return Config{
		DecayTimeDelayMs: decayDelayMs,
		DecayIntervalUs:  decayIntervalUs,
		DecayAmount:      decayAmount,
	}
}

// NewColor creates a COLOR message for the LEDs starting at offset. At most
// ColorsPerPacket colours are used; the rest of the packet stays black.
func NewColor(offset uint16, settings uint8, colors ...RGB) Color {
	c := Color{Offset: offset, Settings: settings}
	copy(c.Colors[:], colors)
	return c
}

// NewSetAll creates a COLOR message that paints the whole strip with one
// colour and latches it.
func NewSetAll(rgb RGB) Color {
	return NewColor(0, ColorSetAll|ColorShowAfter, rgb)
}

// NewIRSend creates an IR_SEND message for code.
func NewIRSend(code IRCode) IRSend {
	return IRSend{Code: code}
}
