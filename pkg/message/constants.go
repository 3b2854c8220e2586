// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package message implements the Beacon wire protocol.
//
// Every packet exchanged with the peripheral is exactly PacketSize bytes: a
// one byte kind tag, three reserved bytes and a 60 byte body whose layout is
// selected by the kind. All multi-byte fields are little-endian.
package message

import (
	"fmt"
	"strconv"
	"strings"
)

// Packet layout
const (
	PacketSize = 64
	HeaderSize = 4
	BodySize   = PacketSize - HeaderSize
)

// ColorsPerPacket is the number of RGB triples carried by one Color packet.
// 2 + 1 + 19*3 fills the body exactly.
const ColorsPerPacket = 19

// Color settings bits
const (
	ColorShowAfter uint8 = 1 << 0 // latch the strip after this packet
	ColorSetAll    uint8 = 1 << 1 // apply Colors[0] to every LED

	colorSettingsMask = ColorShowAfter | ColorSetAll
)

// Kind is the discriminant stored in the first byte of a packet.
type Kind uint8

// Kind values
const (
	KindNoOp       Kind = 0x00
	KindConfig     Kind = 0x01
	KindColor      Kind = 0x02
	KindIRReceived Kind = 0x03 // Device → Host
	KindIRSend     Kind = 0x04 // Host → Device
)

// String returns the lowercase name used in the mapping view and on the CLI.
func (k Kind) String() string {
	if c, ok := codecs[k]; ok {
		return c.name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Known reports whether k has a registered body layout.
func (k Kind) Known() bool {
	_, ok := codecs[k]
	return ok
}

// Kinds returns every registered kind in ascending order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(codecs))
	for k := 0; k < 256; k++ {
		if _, ok := codecs[Kind(k)]; ok {
			kinds = append(kinds, Kind(k))
		}
	}
	return kinds
}

// ParseKind accepts a kind name ("color"), a decimal number ("2") or a hex
// number ("0x02").
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for k, c := range codecs {
		if c.name == s {
			return k, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown message kind %q", s)
	}
	return Kind(n), nil
}
