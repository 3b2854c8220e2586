// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/beacon/pkg/router"
)

var monitorActions bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for watching and driving the device",
	Long: `Watch the device and send codes via an interactive terminal UI.

Features:
  - Link statistics and connection state
  - Event log of received messages, actions and sent codes
  - Code list from the config file: Enter transmits the selected code,
    'a' runs its configured action
  - Colour input: Enter fills the LED strip with a #RRGGBB colour
  - Automatic reconnection on connection loss

With --actions the configured actions also run for received codes, exactly
as in the run command. Tab switches between the code list and the colour
input.

Supports both serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorActions, "actions", false, "Run configured actions for received codes")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	book, err := cfg.CodeBook()
	if err != nil {
		return err
	}
	strip := cfg.LightStrip()
	actions, err := cfg.BuildActions(strip)
	if err != nil {
		return err
	}

	t, connInfo, err := newTransport(cfg, nil)
	if err != nil {
		return err
	}

	// Events are forwarded to the program once it exists.
	events := make(chan router.Event, 256)
	var dispatched map[string]router.Action
	if monitorActions {
		dispatched = actions
	}
	r := router.New(t, book, dispatched, router.Options{
		Port:   cfg.Port,
		Baud:   cfg.Baud,
		Logger: logger,
		OnEvent: func(e router.Event) {
			select {
			case events <- e:
			default:
			}
		},
	})

	m := initialMonitorModel(monitorDeps{
		connInfo:  connInfo,
		transport: t,
		router:    r,
		book:      book,
		actions:   actions,
		strip:     strip,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loops := make(chan error, 1)
	go func() {
		loops <- superviseLoops(ctx, t, r)
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-events:
				p.Send(routerEventMsg(e))
			}
		}
	}()

	_, err = p.Run()
	cancel()
	if loopErr := <-loops; loopErr != nil {
		return loopErr
	}
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
