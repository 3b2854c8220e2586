// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/beacon/pkg/message"
)

var (
	probeTimeout int
	probeNoOp    bool
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connection by waiting for a complete message",
	Long: `Wait for a complete 64 byte message on the connection until timeout.

Partial packets are counted and ignored. With --nop a NOOP message is sent
first, which exercises the write path as well.

Exit codes:
  0 - Message received before timeout
  1 - Timeout reached without receiving a message
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
	probeCmd.Flags().BoolVar(&probeNoOp, "nop", false, "Send a NOOP message before waiting")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(probeTimeout)*time.Second)
	defer cancel()

	t, connInfo, stop, err := openTransport(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer stop()

	fmt.Printf("Beacon - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)

	if probeNoOp {
		t.PutMessage(message.NewNoOp())
	}
	fmt.Printf("Waiting for a message...\n\n")

	m, err := t.WaitMessage(ctx)
	stats := t.Statistics()

	switch {
	case err == nil:
		if stats.MalformedFrames > 0 {
			fmt.Printf("(discarded %d incomplete packets first)\n", stats.MalformedFrames)
		}
		fmt.Printf("SUCCESS: Received message\n")
		fmt.Printf("  %s\n", message.FormatMessage(m))
		for _, v := range message.ValidateMessageFor(m, cfg.LightStrip().LEDs) {
			fmt.Printf("  warning: %s\n", v.Message)
		}
		stop()
		os.Exit(0)

	case errors.Is(err, context.DeadlineExceeded):
		if !t.IsConnected() {
			fmt.Fprintf(os.Stderr, "Link lost: %d read errors, %d write errors\n", stats.ReadErrors, stats.WriteErrors)
			stop()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "TIMEOUT: No message received within %d seconds\n", probeTimeout)
		if stats.MalformedFrames > 0 {
			fmt.Fprintf(os.Stderr, "  %d incomplete packets were discarded\n", stats.MalformedFrames)
		}
		stop()
		os.Exit(1)
	}

	return err
}
