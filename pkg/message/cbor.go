// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package message

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// MarshalCBOR encodes the mapping view of m as a CBOR map.
func MarshalCBOR(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidField)
	}
	data, err := cbor.Marshal(Fields(m))
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return data, nil
}

// UnmarshalCBOR decodes a CBOR map produced by MarshalCBOR.
func UnmarshalCBOR(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR payload")
	}
	var doc interface{}
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	fields, err := AsFields(doc)
	if err != nil {
		return nil, err
	}
	return FromFields(fields)
}

// Record is one entry of a recorded session.
type Record struct {
	Offset  time.Duration // since the first record
	Message Message
}

type recordWire struct {
	T   int64                  `cbor:"t"`
	Msg map[string]interface{} `cbor:"msg"`
}

// Recorder appends messages to a CBOR sequence (RFC 8742), one
// {t, msg} map per message. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	enc   *cbor.Encoder
	start time.Time
	now   func() time.Time
	count int
}

// NewRecorder returns a Recorder writing to w. Offsets are measured from the
// first call to Record.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: cbor.NewEncoder(w), now: time.Now}
}

// Record appends m stamped with the time elapsed since the first record.
func (r *Recorder) Record(m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.count == 0 {
		r.start = now
	}
	return r.write(Record{Offset: now.Sub(r.start), Message: m})
}

// WriteRecord appends rec with its offset unchanged.
func (r *Recorder) WriteRecord(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(rec)
}

// Count returns the number of records written so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Recorder) write(rec Record) error {
	if rec.Message == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidField)
	}
	if err := r.enc.Encode(recordWire{T: int64(rec.Offset), Msg: Fields(rec.Message)}); err != nil {
		return fmt.Errorf("failed to write record %d: %w", r.count, err)
	}
	r.count++
	return nil
}

// Player reads records written by a Recorder.
type Player struct {
	dec   *cbor.Decoder
	index int
}

// NewPlayer returns a Player reading from rd.
func NewPlayer(rd io.Reader) *Player {
	return &Player{dec: cbor.NewDecoder(rd)}
}

// Next returns the next record, or io.EOF once the stream is exhausted.
func (p *Player) Next() (Record, error) {
	var w recordWire
	if err := p.dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read record %d: %w", p.index, err)
	}
	m, err := FromFields(w.Msg)
	if err != nil {
		return Record{}, fmt.Errorf("record %d: %w", p.index, err)
	}
	p.index++
	return Record{Offset: time.Duration(w.T), Message: m}, nil
}
