// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/beacon/pkg/lights"
	"github.com/Thermoquad/beacon/pkg/message"
)

var (
	lightsSetAll bool

	decayDelay    uint32
	decayInterval uint32
	decayAmount   uint32
)

var lightsCmd = &cobra.Command{
	Use:   "lights",
	Short: "Paint the LED strip",
	Long: `Paint the LED strip attached to the device.

Colours are scaled by the strip limit from the config file before they are
sent. The strip layout (LED count, segments) also comes from the config file.`,
}

var lightsFillCmd = &cobra.Command{
	Use:   "fill <color>",
	Short: "Paint every LED with one colour",
	Long: `Paint every LED with one colour, given as #RRGGBB or as R G B.

Examples:
  beacon lights fill '#FF8000'
  beacon lights fill 255 128 0
  beacon lights fill --set-all '#FFFFFF'`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runLightsFill,
}

var lightsOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Turn every LED off",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return paint(cmd, func(s lights.Strip) []message.Message {
			return []message.Message{message.NewSetAll(message.RGB{})}
		})
	},
}

var lightsBoundsCmd = &cobra.Command{
	Use:   "bounds",
	Short: "Mark the first and last LED of every strip segment",
	Long: `Light the first LED of every segment green and the last one magenta, which
shows how the configured segments line up with the physical strip.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return paint(cmd, func(s lights.Strip) []message.Message {
			return s.Chunk(s.BoundsCanvas())
		})
	},
}

var lightsDecayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Configure how the strip fades after the last colour update",
	Long: `Send a CONFIG message. After --delay milliseconds without a colour update
the device lowers every channel by --amount every --interval microseconds.
A zero delay disables the fade.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return paint(cmd, func(s lights.Strip) []message.Message {
			return []message.Message{message.NewConfig(decayDelay, decayInterval, decayAmount)}
		})
	},
}

func init() {
	rootCmd.AddCommand(lightsCmd)
	lightsCmd.AddCommand(lightsFillCmd, lightsOffCmd, lightsBoundsCmd, lightsDecayCmd)

	lightsFillCmd.Flags().BoolVar(&lightsSetAll, "set-all", false, "Send a single SET_ALL message instead of the whole strip")

	lightsDecayCmd.Flags().Uint32Var(&decayDelay, "delay", 0, "Milliseconds before the fade starts (0 disables)")
	lightsDecayCmd.Flags().Uint32Var(&decayInterval, "interval", 1000, "Microseconds between fade steps")
	lightsDecayCmd.Flags().Uint32Var(&decayAmount, "amount", 1, "Amount subtracted from each channel per step")
}

func runLightsFill(cmd *cobra.Command, args []string) error {
	rgb, err := parseColor(args)
	if err != nil {
		return err
	}
	return paint(cmd, func(s lights.Strip) []message.Message {
		if lightsSetAll {
			return []message.Message{s.SetAll(rgb)}
		}
		return s.Fill(rgb)
	})
}

func paint(cmd *cobra.Command, build func(s lights.Strip) []message.Message) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return sendMessages(ctx, cfg, build(cfg.LightStrip())...)
}

// parseColor accepts "#RRGGBB", "RRGGBB" or three decimal channels.
func parseColor(args []string) (message.RGB, error) {
	if len(args) == 1 {
		hex := strings.TrimPrefix(args[0], "#")
		if len(hex) != 6 {
			return message.RGB{}, errors.Errorf("invalid colour %q, want #RRGGBB", args[0])
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return message.RGB{}, errors.Errorf("invalid colour %q, want #RRGGBB", args[0])
		}
		return message.RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
	}

	if len(args) != 3 {
		return message.RGB{}, errors.Errorf("want #RRGGBB or R G B, got %d values", len(args))
	}
	var ch [3]uint8
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 8)
		if err != nil {
			return message.RGB{}, errors.Errorf("invalid channel %q, want 0-255", a)
		}
		ch[i] = uint8(v)
	}
	return message.RGB{R: ch[0], G: ch[1], B: ch[2]}, nil
}
