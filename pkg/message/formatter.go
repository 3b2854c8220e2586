// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package message

import (
	"fmt"
	"strings"
)

// FormatKind returns the upper-case display name for a kind.
func FormatKind(k Kind) string {
	if !k.Known() {
		return "UNKNOWN"
	}
	return strings.ToUpper(k.String())
}

// FormatMessage formats a message into a human-readable, single line string.
func FormatMessage(m Message) string {
	if m == nil {
		return "<nil>"
	}
	head := fmt.Sprintf("%s (0x%02X)", FormatKind(m.Kind()), uint8(m.Kind()))

	switch v := m.(type) {
	case Config:
		if v.DecayTimeDelayMs == 0 {
			return head + " decay=off"
		}
		return fmt.Sprintf("%s decay after %d ms, -%d every %d us",
			head, v.DecayTimeDelayMs, v.DecayAmount, v.DecayIntervalUs)
	case Color:
		return fmt.Sprintf("%s offset=%d settings=%s %s", head, v.Offset, formatSettings(v.Settings), formatColors(v))
	case IRReceived:
		return fmt.Sprintf("%s %s", head, v.Code)
	case IRSend:
		return fmt.Sprintf("%s %s", head, v.Code)
	case Raw:
		return fmt.Sprintf("%s % X", head, trimZeros(v.Data[:]))
	}
	return head
}

func formatSettings(s uint8) string {
	var parts []string
	if s&ColorShowAfter != 0 {
		parts = append(parts, "show")
	}
	if s&ColorSetAll != 0 {
		parts = append(parts, "all")
	}
	if rest := s &^ colorSettingsMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02X", rest))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

func formatColors(c Color) string {
	if c.Settings&ColorSetAll != 0 {
		return c.Colors[0].String()
	}
	names := make([]string, len(c.Colors))
	for i, rgb := range c.Colors {
		names[i] = rgb.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}

func trimZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
