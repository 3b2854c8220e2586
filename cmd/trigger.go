// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/beacon/pkg/ingress"
)

var (
	triggerAddr    string
	triggerTimeout time.Duration
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <name>",
	Short: "Ask a running daemon to transmit a named IR code",
	Long: `Connect to the command port of a running daemon and send one code name.

The daemon replies with ok, unknown (no code with that name) or invalid.
The exit status is non-zero unless the reply is ok.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrigger,
}

func init() {
	rootCmd.AddCommand(triggerCmd)
	triggerCmd.Flags().StringVar(&triggerAddr, "addr", "", "Command port address (default from config)")
	triggerCmd.Flags().DurationVar(&triggerTimeout, "timeout", 5*time.Second, "Time allowed for the exchange")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	addr := triggerAddr
	if addr == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr = cfg.Listen
	}

	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()

	reply, err := ingress.Trigger(ctx, addr, args[0])
	if err != nil {
		return err
	}
	fmt.Println(reply)
	if reply != ingress.ReplyOK {
		return errors.Errorf("daemon replied %q", reply)
	}
	return nil
}
