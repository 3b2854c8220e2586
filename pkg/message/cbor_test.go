// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package message

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ============================================================
// CBOR Tests
// ============================================================

func TestCBOR_RoundTrip(t *testing.T) {
	msgs := []Message{
		NewNoOp(),
		NewConfig(250, 1000, 4),
		distinctColor(57, ColorShowAfter),
		IRReceived{Code: IRCode{Protocol: 1, Bits: 32, Value: 1101}},
		Raw{Tag: 0x80, Data: [BodySize]byte{0xFF}},
	}

	for _, m := range msgs {
		data, err := MarshalCBOR(m)
		if err != nil {
			t.Fatalf("MarshalCBOR(%T) failed: %v", m, err)
		}
		got, err := UnmarshalCBOR(data)
		if err != nil {
			t.Fatalf("UnmarshalCBOR failed: %v", err)
		}
		if got != m {
			t.Errorf("CBOR round trip\n got %#v\nwant %#v", got, m)
		}
	}
}

func TestUnmarshalCBOR_Errors(t *testing.T) {
	notMap, _ := cbor.Marshal([]interface{}{uint64(1), nil})
	unknownKey, _ := cbor.Marshal(map[string]interface{}{"kind": "config", "bogus": 1})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xFF, 0xFF}},
		{"array", notMap},
		{"unknown key", unknownKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalCBOR(tt.data); err == nil {
				t.Error("UnmarshalCBOR should fail")
			}
		})
	}
}

// ============================================================
// Recorder / Player Tests
// ============================================================

func TestRecorder_Player(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Duration{0, 15 * time.Millisecond, 2 * time.Second}
	i := 0
	rec.now = func() time.Time {
		now := base.Add(ticks[i])
		i++
		return now
	}

	msgs := []Message{
		IRReceived{Code: IRCode{Value: 1101}},
		NewConfig(1, 2, 3),
		NewSetAll(RGB{R: 9}),
	}
	for _, m := range msgs {
		if err := rec.Record(m); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if rec.Count() != len(msgs) {
		t.Errorf("Count() = %d, want %d", rec.Count(), len(msgs))
	}

	player := NewPlayer(&buf)
	for n, m := range msgs {
		r, err := player.Next()
		if err != nil {
			t.Fatalf("Next() #%d failed: %v", n, err)
		}
		if r.Offset != ticks[n] {
			t.Errorf("record %d offset = %v, want %v", n, r.Offset, ticks[n])
		}
		if r.Message != m {
			t.Errorf("record %d = %#v, want %#v", n, r.Message, m)
		}
	}

	if _, err := player.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestRecorder_NilMessage(t *testing.T) {
	rec := NewRecorder(io.Discard)
	if err := rec.WriteRecord(Record{}); !errors.Is(err, ErrInvalidField) {
		t.Errorf("WriteRecord(nil message) = %v, want ErrInvalidField", err)
	}
	if rec.Count() != 0 {
		t.Errorf("Count() = %d after failed write", rec.Count())
	}
}
