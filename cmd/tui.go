// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/beacon/pkg/link"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// eventLog keeps the most recent entries.
type eventLog struct {
	entries []logEntry
	max     int
}

func newEventLog(max int) eventLog {
	return eventLog{entries: make([]logEntry, 0, max), max: max}
}

func (l *eventLog) add(ts time.Time, message string, isError bool) {
	l.entries = append(l.entries, logEntry{
		timestamp: ts,
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// last returns up to n of the newest entries, oldest first.
func (l *eventLog) last(n int) []logEntry {
	if n >= len(l.entries) {
		return l.entries
	}
	return l.entries[len(l.entries)-n:]
}

// tuiStyles holds the lipgloss styles shared by the TUI views.
type tuiStyles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	label      lipgloss.Style
	value      lipgloss.Style
	err        lipgloss.Style
	warning    lipgloss.Style
	box        lipgloss.Style
	focusedBox lipgloss.Style
}

func newTUIStyles() tuiStyles {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	return tuiStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		err: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true),
		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")),
		box:        box,
		focusedBox: box.BorderForeground(lipgloss.Color("12")),
	}
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}
	return strings.Join(parts, ", ")
}

// renderStatistics renders the link counters on two lines.
func renderStatistics(st tuiStyles, s link.Statistics) string {
	errors := st.value.Render("0")
	if n := s.Errors(); n > 0 {
		errors = st.err.Render(fmt.Sprintf("%d", n))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s\n",
		st.label.Render("Sent:"), st.value.Render(fmt.Sprintf("%d", s.FramesSent)),
		st.label.Render("Received:"), st.value.Render(fmt.Sprintf("%d", s.FramesReceived)),
		st.label.Render("Errors:"), errors,
		st.label.Render("Dropped:"), st.value.Render(fmt.Sprintf("%d TX / %d RX", s.DroppedTX, s.DroppedRX)),
	)
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s",
		st.label.Render("TX Rate:"), st.value.Render(fmt.Sprintf("%.1f msg/s", s.SendRate)),
		st.label.Render("RX Rate:"), st.value.Render(fmt.Sprintf("%.1f msg/s", s.ReceiveRate)),
		st.label.Render("Connects:"), st.value.Render(fmt.Sprintf("%d (%d lost)", s.Connects, s.Disconnects)),
	)
	return b.String()
}

// renderEventLog renders the newest entries that fit in height lines.
func renderEventLog(st tuiStyles, log *eventLog, height int) string {
	if height < 3 {
		height = 3
	}

	entries := log.last(height)
	if len(entries) == 0 {
		return st.header.Render("  (no events yet)")
	}

	var b strings.Builder
	for _, entry := range entries {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", st.header.Render(timestamp), st.err.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", st.header.Render(timestamp), st.warning.Render("ℹ "+entry.message))
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
