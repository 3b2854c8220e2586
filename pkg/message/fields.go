// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package message

import (
	"errors"
	"fmt"
	"math"
)

// KindKey is the mapping view key holding the message kind.
const KindKey = "kind"

// ErrInvalidField is wrapped by every error returned from Apply and
// FromFields.
var ErrInvalidField = errors.New("invalid field")

// Fields returns the structural mapping view of m:
//
//	{"kind": "color", "color": {"offset": 0, "settings": 1, "color": [{"R": 255, "G": 0, "B": 0}, ...]}}
//
// Known kinds use their name, unknown kinds their number. Numbers are int64.
func Fields(m Message) map[string]interface{} {
	if r, ok := m.(Raw); ok {
		return map[string]interface{}{
			KindKey: kindValue(r.Tag),
			"raw":   rawFields(r),
		}
	}
	c, ok := codecs[m.Kind()]
	if !ok {
		panic(fmt.Sprintf("message: no codec for %T with kind %s", m, m.Kind()))
	}
	return map[string]interface{}{
		KindKey: c.name,
		c.field: c.fields(m),
	}
}

// Apply overwrites the fields of m named in fields and returns the result.
// Nested sections are applied one level deep and lists overwrite fixed arrays
// by position, so a short list leaves the remaining elements untouched.
// Unknown keys, numbers outside the field's range and lists longer than the
// array are errors. A "kind" entry, if present, must match m.
func Apply(m Message, fields map[string]interface{}) (Message, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidField)
	}

	section := "raw"
	if _, raw := m.(Raw); !raw {
		c, ok := codecs[m.Kind()]
		if !ok {
			return nil, fmt.Errorf("%w: no codec for kind %s", ErrInvalidField, m.Kind())
		}
		section = c.field
	}

	var sectionValue interface{}
	haveSection := false
	for key, val := range fields {
		switch key {
		case KindKey:
			k, err := parseKindValue(val)
			if err != nil {
				return nil, err
			}
			if k != m.Kind() {
				return nil, fmt.Errorf("%w: kind %s does not match %s message", ErrInvalidField, k, m.Kind())
			}
		case section:
			sectionValue, haveSection = val, true
		default:
			return nil, unknownField("", key)
		}
	}
	if !haveSection {
		return m, nil
	}

	if r, ok := m.(Raw); ok {
		return applyRaw(r, sectionValue)
	}
	return codecs[m.Kind()].apply(m, sectionValue)
}

// FromFields builds a message from its mapping view. The "kind" entry is
// required and may be a name or a number; the message starts out zeroed.
func FromFields(fields map[string]interface{}) (Message, error) {
	v, ok := fields[KindKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidField, KindKey)
	}
	k, err := parseKindValue(v)
	if err != nil {
		return nil, err
	}
	return Apply(New(k), fields)
}

// AsFields normalizes a decoded document (JSON, TOML, YAML or CBOR) into the
// map shape accepted by Apply and FromFields.
func AsFields(v interface{}) (map[string]interface{}, error) {
	return toSection("", v)
}

func kindValue(k Kind) interface{} {
	if k.Known() {
		return k.String()
	}
	return int64(k)
}

func parseKindValue(v interface{}) (Kind, error) {
	if s, ok := v.(string); ok {
		k, err := ParseKind(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidField, err)
		}
		return k, nil
	}
	n, err := toUint(KindKey, v, math.MaxUint8)
	if err != nil {
		return 0, err
	}
	return Kind(n), nil
}

// ============================================================================
// Per-variant views
// ============================================================================

func rawFields(m Message) interface{} {
	r := m.(Raw)
	out := make([]interface{}, len(r.Data))
	for i, b := range r.Data {
		out[i] = int64(b)
	}
	return out
}

func applyRaw(m Message, v interface{}) (Message, error) {
	r := m.(Raw)
	if b, ok := v.([]byte); ok {
		if len(b) > len(r.Data) {
			return nil, tooLong("raw", len(b), len(r.Data))
		}
		copy(r.Data[:], b)
		return r, nil
	}
	list, err := toList("raw", v)
	if err != nil {
		return nil, err
	}
	if len(list) > len(r.Data) {
		return nil, tooLong("raw", len(list), len(r.Data))
	}
	for i, el := range list {
		if err := setUint8(&r.Data[i], fmt.Sprintf("raw[%d]", i), el); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func configFields(m Message) interface{} {
	c := m.(Config)
	return map[string]interface{}{
		"decay_time_delay_ms": int64(c.DecayTimeDelayMs),
		"decay_interval_us":   int64(c.DecayIntervalUs),
		"decay_amount":        int64(c.DecayAmount),
	}
}

func applyConfig(m Message, v interface{}) (Message, error) {
	c := m.(Config)
	sec, err := toSection("config", v)
	if err != nil {
		return nil, err
	}
	for key, val := range sec {
		path := "config." + key
		switch key {
		case "decay_time_delay_ms":
			err = setUint32(&c.DecayTimeDelayMs, path, val)
		case "decay_interval_us":
			err = setUint32(&c.DecayIntervalUs, path, val)
		case "decay_amount":
			err = setUint32(&c.DecayAmount, path, val)
		default:
			err = unknownField("config", key)
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func colorFields(m Message) interface{} {
	c := m.(Color)
	colors := make([]interface{}, len(c.Colors))
	for i, rgb := range c.Colors {
		colors[i] = rgbFields(rgb)
	}
	return map[string]interface{}{
		"offset":   int64(c.Offset),
		"settings": int64(c.Settings),
		"color":    colors,
	}
}

func applyColor(m Message, v interface{}) (Message, error) {
	c := m.(Color)
	sec, err := toSection("color", v)
	if err != nil {
		return nil, err
	}
	for key, val := range sec {
		path := "color." + key
		switch key {
		case "offset":
			err = setUint16(&c.Offset, path, val)
		case "settings":
			err = setUint8(&c.Settings, path, val)
		case "color":
			err = applyColorList(&c.Colors, path, val)
		default:
			err = unknownField("color", key)
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func applyColorList(colors *[ColorsPerPacket]RGB, path string, v interface{}) error {
	list, err := toList(path, v)
	if err != nil {
		return err
	}
	if len(list) > len(colors) {
		return tooLong(path, len(list), len(colors))
	}
	for i, el := range list {
		if err := applyRGB(&colors[i], fmt.Sprintf("%s[%d]", path, i), el); err != nil {
			return err
		}
	}
	return nil
}

func rgbFields(c RGB) map[string]interface{} {
	return map[string]interface{}{"R": int64(c.R), "G": int64(c.G), "B": int64(c.B)}
}

// applyRGB accepts either {"R": r, "G": g, "B": b} (any subset) or a
// positional [r, g, b] list.
func applyRGB(c *RGB, path string, v interface{}) error {
	if list, err := toList(path, v); err == nil {
		channels := []*uint8{&c.R, &c.G, &c.B}
		if len(list) > len(channels) {
			return tooLong(path, len(list), len(channels))
		}
		for i, el := range list {
			if err := setUint8(channels[i], fmt.Sprintf("%s[%d]", path, i), el); err != nil {
				return err
			}
		}
		return nil
	}

	sec, err := toSection(path, v)
	if err != nil {
		return err
	}
	for key, val := range sec {
		switch key {
		case "R":
			err = setUint8(&c.R, path+".R", val)
		case "G":
			err = setUint8(&c.G, path+".G", val)
		case "B":
			err = setUint8(&c.B, path+".B", val)
		default:
			err = unknownField(path, key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func irFields(m Message) interface{} {
	var code IRCode
	switch v := m.(type) {
	case IRReceived:
		code = v.Code
	case IRSend:
		code = v.Code
	}
	return map[string]interface{}{
		"protocol": int64(code.Protocol),
		"bits":     int64(code.Bits),
		"address":  int64(code.Address),
		"value":    int64(code.Value),
	}
}

func applyIR(m Message, v interface{}) (Message, error) {
	var code IRCode
	switch msg := m.(type) {
	case IRReceived:
		code = msg.Code
	case IRSend:
		code = msg.Code
	}

	sec, err := toSection("ir", v)
	if err != nil {
		return nil, err
	}
	for key, val := range sec {
		path := "ir." + key
		switch key {
		case "protocol":
			err = setUint8(&code.Protocol, path, val)
		case "bits":
			err = setUint8(&code.Bits, path, val)
		case "address":
			err = setUint16(&code.Address, path, val)
		case "value":
			err = setUint32(&code.Value, path, val)
		default:
			err = unknownField("ir", key)
		}
		if err != nil {
			return nil, err
		}
	}

	if _, ok := m.(IRReceived); ok {
		return IRReceived{Code: code}, nil
	}
	return IRSend{Code: code}, nil
}

// ============================================================================
// Shape normalization
//
// Decoders disagree on how they represent documents: encoding/json yields
// float64, go-toml int64, yaml.v2 int and map[interface{}]interface{}, and
// fxamacker/cbor uint64 or int64.
// ============================================================================

func unknownField(section, key string) error {
	if section == "" {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidField, key)
	}
	return fmt.Errorf("%w: unknown key %q in %s", ErrInvalidField, key, section)
}

func tooLong(path string, got, max int) error {
	return fmt.Errorf("%w: %s has %d elements, at most %d allowed", ErrInvalidField, path, got, max)
}

func outOfRange(path string, v interface{}, max uint64) error {
	return fmt.Errorf("%w: %s = %v out of range [0, %d]", ErrInvalidField, path, v, max)
}

func toSection(path string, v interface{}) (map[string]interface{}, error) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for key, val := range m {
			s, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s has non-string key %v (%T)", ErrInvalidField, describe(path), key, key)
			}
			out[s] = val
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s must be a table, got %T", ErrInvalidField, describe(path), v)
}

func toList(path string, v interface{}) ([]interface{}, error) {
	switch l := v.(type) {
	case []interface{}:
		return l, nil
	case []map[string]interface{}:
		out := make([]interface{}, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, nil
	case []int64:
		out := make([]interface{}, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, nil
	case []int:
		out := make([]interface{}, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, nil
	case []uint64:
		out := make([]interface{}, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, nil
	case []float64:
		out := make([]interface{}, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s must be a list, got %T", ErrInvalidField, describe(path), v)
}

func describe(path string) string {
	if path == "" {
		return "document"
	}
	return path
}

// toUint converts any decoded number to a uint64 no larger than max.
// Fractional and negative values are rejected.
func toUint(path string, v interface{}, max uint64) (uint64, error) {
	var n uint64
	switch val := v.(type) {
	case uint64:
		n = val
	case uint32:
		n = uint64(val)
	case uint16:
		n = uint64(val)
	case uint8:
		n = uint64(val)
	case uint:
		n = uint64(val)
	case int64:
		if val < 0 {
			return 0, outOfRange(path, v, max)
		}
		n = uint64(val)
	case int32:
		if val < 0 {
			return 0, outOfRange(path, v, max)
		}
		n = uint64(val)
	case int16:
		if val < 0 {
			return 0, outOfRange(path, v, max)
		}
		n = uint64(val)
	case int8:
		if val < 0 {
			return 0, outOfRange(path, v, max)
		}
		n = uint64(val)
	case int:
		if val < 0 {
			return 0, outOfRange(path, v, max)
		}
		n = uint64(val)
	case float64:
		if val < 0 || val > float64(max) || val != math.Trunc(val) {
			return 0, outOfRange(path, v, max)
		}
		n = uint64(val)
	case float32:
		f := float64(val)
		if f < 0 || f > float64(max) || f != math.Trunc(f) {
			return 0, outOfRange(path, v, max)
		}
		n = uint64(f)
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidField, path, v)
	}
	if n > max {
		return 0, outOfRange(path, v, max)
	}
	return n, nil
}

func setUint8(dst *uint8, path string, v interface{}) error {
	n, err := toUint(path, v, math.MaxUint8)
	if err != nil {
		return err
	}
	*dst = uint8(n)
	return nil
}

func setUint16(dst *uint16, path string, v interface{}) error {
	n, err := toUint(path, v, math.MaxUint16)
	if err != nil {
		return err
	}
	*dst = uint16(n)
	return nil
}

func setUint32(dst *uint32, path string, v interface{}) error {
	n, err := toUint(path, v, math.MaxUint32)
	if err != nil {
		return err
	}
	*dst = uint32(n)
	return nil
}
