// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package message

import "fmt"

// DefaultStripLength is the number of LEDs driven by the stock firmware.
// 12 Color messages of ColorsPerPacket LEDs cover it exactly.
const DefaultStripLength = 228

// AnomalyType represents different types of message anomalies
type AnomalyType int

const (
	AnomalyUnknownKind AnomalyType = iota
	AnomalyUnknownSettings
	AnomalyUnalignedOffset
	AnomalyOffsetRange
	AnomalyInvalidDecay
	AnomalyInvalidBits
)

// ValidationError represents a message validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateMessage checks a decoded message against what the firmware can
// act on. Returns an empty slice if nothing looks wrong.
func ValidateMessage(m Message) []ValidationError {
	return ValidateMessageFor(m, DefaultStripLength)
}

// ValidateMessageFor is ValidateMessage for a strip of leds LEDs.
func ValidateMessageFor(m Message, leds int) []ValidationError {
	errors := []ValidationError{}

	switch v := m.(type) {
	case Config:
		errors = append(errors, validateConfig(v)...)
	case Color:
		errors = append(errors, validateColor(v, leds)...)
	case IRReceived:
		errors = append(errors, validateIRCode(v.Code)...)
	case IRSend:
		errors = append(errors, validateIRCode(v.Code)...)
	case Raw:
		if !v.Tag.Known() {
			errors = append(errors, ValidationError{
				Type:    AnomalyUnknownKind,
				Message: fmt.Sprintf("Unknown message kind %d", uint8(v.Tag)),
				Details: map[string]interface{}{"kind": uint8(v.Tag)},
			})
		}
	}

	return errors
}

func validateConfig(c Config) []ValidationError {
	if c.DecayTimeDelayMs != 0 && c.DecayIntervalUs == 0 {
		return []ValidationError{{
			Type:    AnomalyInvalidDecay,
			Message: fmt.Sprintf("Decay enabled (delay=%d ms) with zero interval", c.DecayTimeDelayMs),
			Details: map[string]interface{}{"decay_time_delay_ms": c.DecayTimeDelayMs},
		}}
	}
	return nil
}

func validateColor(c Color, leds int) []ValidationError {
	errors := []ValidationError{}

	if rest := c.Settings &^ colorSettingsMask; rest != 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownSettings,
			Message: fmt.Sprintf("Unknown color settings bits 0x%02X", rest),
			Details: map[string]interface{}{"settings": c.Settings},
		})
	}

	// SET_ALL ignores the offset.
	if c.Settings&ColorSetAll != 0 {
		return errors
	}

	if c.Offset%ColorsPerPacket != 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnalignedOffset,
			Message: fmt.Sprintf("Color offset=%d not a multiple of %d", c.Offset, ColorsPerPacket),
			Details: map[string]interface{}{"offset": c.Offset, "step": ColorsPerPacket},
		})
	}

	if int(c.Offset) >= leds {
		errors = append(errors, ValidationError{
			Type:    AnomalyOffsetRange,
			Message: fmt.Sprintf("Color offset=%d beyond strip of %d LEDs", c.Offset, leds),
			Details: map[string]interface{}{"offset": c.Offset, "leds": leds},
		})
	}

	return errors
}

func validateIRCode(c IRCode) []ValidationError {
	if c.Bits > 32 {
		return []ValidationError{{
			Type:    AnomalyInvalidBits,
			Message: fmt.Sprintf("IR bit count=%d exceeds 32-bit value", c.Bits),
			Details: map[string]interface{}{"bits": c.Bits, "max": 32},
		}}
	}
	return nil
}
