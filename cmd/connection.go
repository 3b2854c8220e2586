// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Thermoquad/beacon/pkg/config"
	"github.com/Thermoquad/beacon/pkg/link"
	"github.com/Thermoquad/beacon/pkg/message"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("BEACON_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// loadConfig reads the config file and applies connection flags given on
// the command line. A missing file is only an error when --config was set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	var cfg *config.Config
	if _, err := os.Stat(configPath); err != nil && !flags.Changed("config") {
		logger.Debug("no config file, using defaults", "path", configPath)
		cfg = config.Default()
	} else {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	applyFlags(cfg, flags)
	return cfg, nil
}

func applyFlags(cfg *config.Config, flags *pflag.FlagSet) {
	if flags.Changed("port") {
		cfg.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Baud = baudRate
	}
}

// linkOpener returns the OpenFunc selected by the connection flags and a
// description of the target.
func linkOpener(cfg *config.Config) (link.OpenFunc, string, error) {
	if wsURL == "" {
		return link.OpenSerial, fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud), nil
	}

	password := ""
	if wsUsername != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return nil, "", err
		}
	}

	opener := link.WebSocketOpener{
		URL:           wsURL,
		Username:      wsUsername,
		Password:      password,
		SkipSSLVerify: wsNoSSLVerify,
	}
	return opener.Open, fmt.Sprintf("WebSocket: %s", wsURL), nil
}

// newTransport builds a disconnected transport for cfg.
func newTransport(cfg *config.Config, observer link.Observer) (*link.Transport, string, error) {
	open, connInfo, err := linkOpener(cfg)
	if err != nil {
		return nil, "", err
	}

	txSize, rxSize := cfg.QueueSizes()
	t := link.New(link.Options{
		Open:     open,
		Logger:   logger,
		TX:       link.NewQueue[message.Message](txSize),
		RX:       link.NewQueue[message.Message](rxSize),
		Observer: observer,
	})
	return t, connInfo, nil
}

// openTransport connects once and starts the worker loop. The returned
// function stops the loop and waits for it to close the link.
func openTransport(ctx context.Context, cfg *config.Config, observer link.Observer) (*link.Transport, string, func(), error) {
	t, connInfo, err := newTransport(cfg, observer)
	if err != nil {
		return nil, "", nil, err
	}
	if !t.Connect(cfg.Port, cfg.Baud) {
		return nil, "", nil, errors.Errorf("failed to connect (%s)", connInfo)
	}

	go t.Run(ctx)
	stop := func() {
		t.Stop()
		<-t.Done()
	}
	return t, connInfo, stop, nil
}

// flush waits until the worker loop has written n frames more than base
// counted. A write failure or a TX queue drop after base is an error.
func flush(ctx context.Context, t *link.Transport, base link.Statistics, n int) error {
	ticker := time.NewTicker(link.DefaultPeriod)
	defer ticker.Stop()

	for {
		done, err := sendProgress(base, t.Statistics(), n)
		if err != nil || done {
			return err
		}
		if !t.IsConnected() {
			return link.ErrNotConnected
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sendProgress reports whether n frames were written between base and now.
func sendProgress(base, now link.Statistics, n int) (bool, error) {
	if now.WriteErrors > base.WriteErrors {
		return false, errors.Errorf("write failed, %d messages abandoned", now.AbandonedTX-base.AbandonedTX)
	}
	if now.DroppedTX > base.DroppedTX {
		return false, errors.Errorf("TX queue full, %d messages dropped", now.DroppedTX-base.DroppedTX)
	}
	return now.FramesSent-base.FramesSent >= uint64(n), nil
}
