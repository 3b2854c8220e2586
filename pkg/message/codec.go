// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package message

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFrameSize is returned by Decode for any buffer that is not exactly
// PacketSize bytes long.
var ErrFrameSize = errors.New("invalid frame size")

// bodyCodec describes how one kind's body is laid out on the wire and in the
// mapping view.
type bodyCodec struct {
	name   string // kind name, also used by ParseKind
	field  string // section key in the mapping view
	zero   func() Message
	encode func(m Message, body []byte)
	decode func(body []byte) Message
	fields func(m Message) interface{}
	apply  func(m Message, section interface{}) (Message, error)
}

// codecs is the kind → body codec table. It is filled in init so that the
// codec functions may refer back to it.
var codecs map[Kind]bodyCodec

func init() {
	codecs = map[Kind]bodyCodec{
		KindNoOp: {
			name:   "nop",
			field:  "raw",
			zero:   func() Message { return Raw{Tag: KindNoOp} },
			encode: encodeRaw,
			decode: func(body []byte) Message { return decodeRaw(KindNoOp, body) },
			fields: rawFields,
			apply:  applyRaw,
		},
		KindConfig: {
			name:   "config",
			field:  "config",
			zero:   func() Message { return Config{} },
			encode: encodeConfig,
			decode: decodeConfig,
			fields: configFields,
			apply:  applyConfig,
		},
		KindColor: {
			name:   "color",
			field:  "color",
			zero:   func() Message { return Color{} },
			encode: encodeColor,
			decode: decodeColor,
			fields: colorFields,
			apply:  applyColor,
		},
		KindIRReceived: {
			name:   "ir_received",
			field:  "ir",
			zero:   func() Message { return IRReceived{} },
			encode: func(m Message, body []byte) { encodeIRCode(m.(IRReceived).Code, body) },
			decode: func(body []byte) Message { return IRReceived{Code: decodeIRCode(body)} },
			fields: irFields,
			apply:  applyIR,
		},
		KindIRSend: {
			name:   "ir_send",
			field:  "ir",
			zero:   func() Message { return IRSend{} },
			encode: func(m Message, body []byte) { encodeIRCode(m.(IRSend).Code, body) },
			decode: func(body []byte) Message { return IRSend{Code: decodeIRCode(body)} },
			fields: irFields,
			apply:  applyIR,
		},
	}
}

// New returns the zero message for kind. Unknown kinds yield a Raw message
// carrying the tag.
func New(kind Kind) Message {
	if c, ok := codecs[kind]; ok {
		return c.zero()
	}
	return Raw{Tag: kind}
}

// Encode returns the PacketSize byte wire form of m. Reserved bytes and body
// bytes outside the active variant are zero.
// Encode panics if m is nil or its concrete type does not match its kind.
func Encode(m Message) []byte {
	buf := make([]byte, PacketSize)
	EncodeTo(buf, m)
	return buf
}

// EncodeTo writes the wire form of m into the first PacketSize bytes of dst.
func EncodeTo(dst []byte, m Message) {
	if m == nil {
		panic("message: encode of nil message")
	}
	if len(dst) < PacketSize {
		panic(fmt.Sprintf("message: encode buffer too small: %d bytes", len(dst)))
	}
	frame := dst[:PacketSize]
	clear(frame)
	frame[0] = byte(m.Kind())

	body := frame[HeaderSize:]
	if r, ok := m.(Raw); ok {
		encodeRaw(r, body)
		return
	}
	c, ok := codecs[m.Kind()]
	if !ok {
		panic(fmt.Sprintf("message: no codec for %T with kind %s", m, m.Kind()))
	}
	c.encode(m, body)
}

// Decode parses a PacketSize byte frame. Unknown kinds are not an error: they
// decode to Raw so newer firmware can still talk to older hosts.
func Decode(frame []byte) (Message, error) {
	if len(frame) != PacketSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), PacketSize)
	}

	kind := Kind(frame[0])
	body := frame[HeaderSize:]
	if c, ok := codecs[kind]; ok {
		return c.decode(body), nil
	}
	return decodeRaw(kind, body), nil
}

func encodeRaw(m Message, body []byte) {
	r := m.(Raw)
	copy(body, r.Data[:])
}

func decodeRaw(kind Kind, body []byte) Message {
	r := Raw{Tag: kind}
	copy(r.Data[:], body)
	return r
}

func encodeConfig(m Message, body []byte) {
	c := m.(Config)
	binary.LittleEndian.PutUint32(body[0:4], c.DecayTimeDelayMs)
	binary.LittleEndian.PutUint32(body[4:8], c.DecayIntervalUs)
	binary.LittleEndian.PutUint32(body[8:12], c.DecayAmount)
}

func decodeConfig(body []byte) Message {
	return Config{
		DecayTimeDelayMs: binary.LittleEndian.Uint32(body[0:4]),
		DecayIntervalUs:  binary.LittleEndian.Uint32(body[4:8]),
		DecayAmount:      binary.LittleEndian.Uint32(body[8:12]),
	}
}

func encodeColor(m Message, body []byte) {
	c := m.(Color)
	binary.LittleEndian.PutUint16(body[0:2], c.Offset)
	body[2] = c.Settings
	for i, rgb := range c.Colors {
		off := 3 + i*3
		body[off] = rgb.R
		body[off+1] = rgb.G
		body[off+2] = rgb.B
	}
}

func decodeColor(body []byte) Message {
	c := Color{
		Offset:   binary.LittleEndian.Uint16(body[0:2]),
		Settings: body[2],
	}
	for i := range c.Colors {
		off := 3 + i*3
		c.Colors[i] = RGB{R: body[off], G: body[off+1], B: body[off+2]}
	}
	return c
}

func encodeIRCode(code IRCode, body []byte) {
	body[0] = code.Protocol
	body[1] = code.Bits
	binary.LittleEndian.PutUint16(body[2:4], code.Address)
	binary.LittleEndian.PutUint32(body[4:8], code.Value)
}

func decodeIRCode(body []byte) IRCode {
	return IRCode{
		Protocol: body[0],
		Bits:     body[1],
		Address:  binary.LittleEndian.Uint16(body[2:4]),
		Value:    binary.LittleEndian.Uint32(body[4:8]),
	}
}
