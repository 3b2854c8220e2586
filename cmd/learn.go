// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/beacon/pkg/config"
	"github.com/Thermoquad/beacon/pkg/link"
	"github.com/Thermoquad/beacon/pkg/message"
)

var (
	learnTimeout time.Duration
	learnOutput  string
)

var learnCmd = &cobra.Command{
	Use:   "learn <name>...",
	Short: "Record IR codes from a remote and print them as config entries",
	Long: `Learn one IR code per name.

For every name, press the matching button on the remote. The first code
received that was not already learned in this session is bound to the name.
Codes with zero bits (repeat frames) are ignored.

The result is printed as [[code]] tables that can be pasted into the config
file, or written to --output.

Example:
  beacon learn power volume_up volume_down >> beacon.toml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLearn,
}

func init() {
	rootCmd.AddCommand(learnCmd)
	learnCmd.Flags().DurationVar(&learnTimeout, "timeout", 30*time.Second, "Time to wait for each button")
	learnCmd.Flags().StringVarP(&learnOutput, "output", "o", "", "Write the entries to this file instead of stdout")
}

func runLearn(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	t, connInfo, stop, err := openTransport(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer stop()
	fmt.Fprintf(os.Stderr, "Connection: %s\n\n", connInfo)

	var codes []config.CodeConfig
	learned := make(map[message.IRCode]string)
	for _, name := range args {
		fmt.Fprintf(os.Stderr, "Press the button for %q...\n", name)

		code, err := learnCode(ctx, t, learned)
		if err != nil {
			return errors.Wrapf(err, "no code for %q", name)
		}
		learned[code] = name
		codes = append(codes, config.CodeConfigFor(name, code))
		fmt.Fprintf(os.Stderr, "  %s\n", code)
	}

	data, err := config.MarshalCodes(codes)
	if err != nil {
		return err
	}
	if learnOutput == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return errors.Wrap(os.WriteFile(learnOutput, data, 0o644), "failed to write codes")
}

// learnCode waits for an IR code that is not in seen.
func learnCode(ctx context.Context, t *link.Transport, seen map[message.IRCode]string) (message.IRCode, error) {
	ctx, cancel := context.WithTimeout(ctx, learnTimeout)
	defer cancel()

	for {
		m, err := t.WaitMessage(ctx)
		if err != nil {
			return message.IRCode{}, err
		}
		rx, ok := m.(message.IRReceived)
		if !ok || rx.Code.Bits == 0 {
			continue
		}
		if other, ok := seen[rx.Code]; ok {
			fmt.Fprintf(os.Stderr, "  already learned as %q, press another button\n", other)
			continue
		}
		return rx.Code, nil
	}
}
