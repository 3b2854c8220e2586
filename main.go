// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Beacon - IR and LED strip controller
//
// A daemon and CLI for the beacon microcontroller, which receives and sends
// infrared codes and drives an LED strip over a 64 byte packet serial link.

package main

import (
	"os"

	"github.com/Thermoquad/beacon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
