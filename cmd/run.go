// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/beacon/pkg/ingress"
	"github.com/Thermoquad/beacon/pkg/link"
	"github.com/Thermoquad/beacon/pkg/router"
)

var (
	listenAddr string
	noListen   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the IR action daemon",
	Long: `Connect to the device and run actions for the IR codes it receives.

Codes and actions come from the config file. The daemon reconnects on its own
when the link is lost. Names written to the command port (one per TCP
connection) are transmitted as IR codes:

  echo power | nc 127.0.0.1 9999

Press Ctrl+C to exit.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "Command port address (overrides config)")
	runCmd.Flags().BoolVar(&noListen, "no-listen", false, "Disable the command port")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = listenAddr
	}

	book, err := cfg.CodeBook()
	if err != nil {
		return err
	}
	actions, err := cfg.BuildActions(cfg.LightStrip())
	if err != nil {
		return err
	}

	t, connInfo, err := newTransport(cfg, nil)
	if err != nil {
		return err
	}
	r := router.New(t, book, actions, router.Options{
		Port:   cfg.Port,
		Baud:   cfg.Baud,
		Logger: logger,
	})

	ctx, cancel := signalContext()
	defer cancel()

	var extra []func(context.Context) error
	if cfg.Listen != "" && !noListen {
		srv := ingress.New(cfg.Listen, r.SendByName, ingress.Options{Logger: logger})
		extra = append(extra, srv.Serve)
		fmt.Fprintf(os.Stderr, "Command port: %s\n", cfg.Listen)
	}

	fmt.Fprintf(os.Stderr, "Beacon - %s\n", connInfo)
	fmt.Fprintf(os.Stderr, "%d codes, %d actions\n", book.Len(), len(actions))
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to exit\n\n")

	err = superviseLoops(ctx, t, r, extra...)
	stats := t.Statistics()
	fmt.Fprint(os.Stderr, "\n"+stats.String())
	if err != nil {
		return errors.Wrap(err, "daemon failed")
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// superviseLoops runs the transport worker, the router loop and any extra
// loops until ctx is done or one of them fails. Cancellation is not an
// error.
func superviseLoops(ctx context.Context, t *link.Transport, r *router.Router, extra ...func(context.Context) error) error {
	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return t.Run(ctx)
	})
	errg.Go(func() error {
		return r.Run(ctx)
	})
	for _, f := range extra {
		errg.Go(func() error {
			return f(ctx)
		})
	}

	if err := errg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
