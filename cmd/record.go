// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/beacon/pkg/message"
	"github.com/Thermoquad/beacon/pkg/router"
)

var (
	replayPrint bool
	replaySpeed float64
)

var recordCmd = &cobra.Command{
	Use:   "record <file>",
	Short: "Record received messages to a CBOR file",
	Long: `Record every message received from the device until Ctrl+C.

The file is a CBOR sequence with one {t, msg} record per message, where t is
the offset from the first record in nanoseconds and msg is the message in its
mapping form. Use replay to print or resend a recording.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Resend or print a recorded session",
	Long: `Read a file written by record and send its messages to the device with
the original timing, scaled by --speed. With --print the messages are only
displayed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayPrint, "print", false, "Print the recording instead of sending it")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "Playback speed factor (0 sends without delays)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	book, err := cfg.CodeBook()
	if err != nil {
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return errors.Wrap(err, "failed to create recording")
	}
	defer f.Close()
	rec := message.NewRecorder(f)

	t, connInfo, err := newTransport(cfg, nil)
	if err != nil {
		return err
	}
	r := router.New(t, book, nil, router.Options{
		Port:   cfg.Port,
		Baud:   cfg.Baud,
		Logger: logger,
		OnEvent: func(e router.Event) {
			if e.Type != router.EventReceived {
				return
			}
			if err := rec.Record(e.Message); err != nil {
				logger.Error("failed to record message", "error", err)
				return
			}
			fmt.Printf("\r%d messages recorded", rec.Count())
		},
	})

	fmt.Printf("Beacon - Record\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Writing to %s, press Ctrl+C to stop\n\n", args[0])

	ctx, cancel := signalContext()
	defer cancel()

	err = superviseLoops(ctx, t, r)
	fmt.Printf("\n%d messages recorded\n", rec.Count())
	return err
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "failed to open recording")
	}
	defer f.Close()

	player := message.NewPlayer(f)

	if replayPrint {
		for {
			rec, err := player.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("+%-12s %s\n", rec.Offset.Round(time.Millisecond), message.FormatMessage(rec.Message))
		}
	}

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
	fmt.Printf("Replaying %s to %s\n", args[0], connInfo)

	base := t.Statistics()
	start := time.Now()
	sent := 0
	for {
		rec, err := player.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if replaySpeed > 0 {
			due := start.Add(time.Duration(float64(rec.Offset) / replaySpeed))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Until(due)):
			}
		}
		t.PutMessage(rec.Message)
		sent++
	}

	if err := flush(ctx, t, base, sent); err != nil {
		return errors.Wrap(err, "replay interrupted")
	}
	fmt.Printf("%d messages sent\n", sent)
	return nil
}
