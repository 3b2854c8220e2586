// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/beacon/pkg/message"
	"github.com/Thermoquad/beacon/pkg/router"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display received messages in human-readable format",
	Long: `Continuously decode and display messages as they arrive from the device.

Each message is shown with a timestamp, its kind and decoded body. IR codes
known to the config file are shown with their name. Anomalies such as unknown
colour settings bits are flagged.

Supports both serial and WebSocket connections. The link is reopened when it
is lost.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	book, err := cfg.CodeBook()
	if err != nil {
		return err
	}
	leds := cfg.LightStrip().LEDs

	t, connInfo, err := newTransport(cfg, nil)
	if err != nil {
		return err
	}
	r := router.New(t, book, nil, router.Options{
		Port:   cfg.Port,
		Baud:   cfg.Baud,
		Logger: logger,
		OnEvent: func(e router.Event) {
			switch e.Type {
			case router.EventReceived:
				fmt.Print(formatLogLine(time.Now(), book, e.Message, leds))
			case router.EventReconnect:
				if !e.OK {
					fmt.Fprintf(os.Stderr, "waiting for %s...\n", e.Name)
				}
			}
		},
	})

	fmt.Printf("Beacon - Raw Message Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, cancel := signalContext()
	defer cancel()

	err = superviseLoops(ctx, t, r)
	stats := t.Statistics()
	fmt.Print("\n" + stats.String())
	return err
}

// formatLogLine renders one received message, its code name if known and
// any anomalies.
func formatLogLine(ts time.Time, book *router.CodeBook, m message.Message, leds int) string {
	line := fmt.Sprintf("[%s] %s\n", ts.Format("15:04:05.000"), message.FormatMessage(m))

	if rx, ok := m.(message.IRReceived); ok {
		if name, ok := book.Name(rx.Code); ok {
			line += fmt.Sprintf("  Name: %s\n", name)
		}
	}
	for i, v := range message.ValidateMessageFor(m, leds) {
		line += fmt.Sprintf("  Issue %d: %s\n", i+1, v.Message)
	}
	return line
}
