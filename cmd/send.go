// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/beacon/pkg/config"
	"github.com/Thermoquad/beacon/pkg/message"
)

var (
	sendCode    string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <kind> [fields]",
	Short: "Send one message to the device",
	Long: `Send a single message and exit.

The kind is a message name (nop, config, color, ir_received, ir_send) or
number. Fields are given as a JSON object in the same shape the config file
uses for message actions; the kind may be left out of it.

Examples:
  beacon send config '{"config": {"decay_time_delay_ms": 500, "decay_interval_us": 1000, "decay_amount": 2}}'
  beacon send color '{"color": {"settings": 3, "color": [[255, 0, 0]]}}'
  beacon send ir_send '{"ir": {"protocol": 1, "bits": 32, "value": 1101}}'
  beacon send --code power`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendCode, "code", "", "Send the IR code with this name from the config file")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 5*time.Second, "Time allowed to connect and transmit")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var m message.Message
	switch {
	case sendCode != "" && len(args) > 0:
		return errors.New("--code takes no arguments")
	case sendCode != "":
		book, err := cfg.CodeBook()
		if err != nil {
			return err
		}
		code, ok := book.Code(sendCode)
		if !ok {
			return errors.Errorf("no code named %q in %s", sendCode, configPath)
		}
		m = message.NewIRSend(code)
	case len(args) == 0:
		return errors.New("missing message kind")
	default:
		m, err = parseSendArgs(args)
		if err != nil {
			return err
		}
	}

	for _, v := range message.ValidateMessageFor(m, cfg.LightStrip().LEDs) {
		fmt.Printf("warning: %s\n", v.Message)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return sendMessages(ctx, cfg, m)
}

// parseSendArgs builds a message from a kind and an optional JSON object.
func parseSendArgs(args []string) (message.Message, error) {
	kind, err := message.ParseKind(args[0])
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if len(args) > 1 && strings.TrimSpace(args[1]) != "" {
		var doc interface{}
		if err := json.Unmarshal([]byte(args[1]), &doc); err != nil {
			return nil, errors.Wrap(err, "invalid fields")
		}
		fields, err = message.AsFields(doc)
		if err != nil {
			return nil, err
		}
	}

	return message.Apply(message.New(kind), fields)
}

// sendMessages connects, queues msgs in order and waits until they are
// written.
func sendMessages(ctx context.Context, cfg *config.Config, msgs ...message.Message) error {
	t, connInfo, stop, err := openTransport(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer stop()

	base := t.Statistics()
	for _, m := range msgs {
		t.PutMessage(m)
	}
	if err := flush(ctx, t, base, len(msgs)); err != nil {
		return errors.Wrapf(err, "failed to send (%s)", connInfo)
	}
	for _, m := range msgs {
		fmt.Printf("sent %s\n", message.FormatMessage(m))
	}
	return nil
}
