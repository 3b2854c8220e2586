// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/beacon/pkg/lights"
	"github.com/Thermoquad/beacon/pkg/link"
	"github.com/Thermoquad/beacon/pkg/message"
)

const sampleTOML = `
port = "/dev/ttyACM0"
baud = 115200

[queue]
tx = 0

[strip]
leds = 60
limit = 1.0

[[code]]
name = "power"
protocol = 1
bits = 32
value = 1101

[[code]]
name = "mute"
protocol = 1
bits = 32
address = 0x10
value = 1102

[[action]]
name = "power"
command = ["systemctl", "suspend"]
timeout = "5s"

[[action]]
name = "mute"
message = { kind = "config", config = { decay_time_delay_ms = 500, decay_interval_us = 1000, decay_amount = 2 } }
`

const sampleYAML = `
port: /dev/ttyACM0
baud: 115200
queue:
  rx: 16
code:
  - name: power
    protocol: 1
    bits: 32
    value: 1101
  - name: white
    protocol: 1
    bits: 32
    value: 1103
action:
  - name: power
    send: white
  - name: white
    fill: [255, 255, 255]
`

// ============================================================
// Parse Tests
// ============================================================

func TestParse_TOML(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleTOML), TOML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if cfg.Port != "/dev/ttyACM0" || cfg.Baud != 115200 {
		t.Errorf("port/baud = %q/%d", cfg.Port, cfg.Baud)
	}
	if cfg.Listen != "127.0.0.1:9999" {
		t.Errorf("Listen = %q, want default", cfg.Listen)
	}
	tx, rx := cfg.QueueSizes()
	if tx != 0 || rx != link.DefaultQueueCapacity {
		t.Errorf("QueueSizes() = %d, %d", tx, rx)
	}
	if got := time.Duration(cfg.Actions[0].Timeout); got != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", got)
	}

	book, err := cfg.CodeBook()
	if err != nil {
		t.Fatalf("CodeBook() error: %v", err)
	}
	want := message.IRCode{Protocol: 1, Bits: 32, Address: 0x10, Value: 1102}
	if name, ok := book.Name(want); !ok || name != "mute" {
		t.Errorf("Name(%v) = %q, %v", want, name, ok)
	}

	actions, err := cfg.BuildActions(cfg.LightStrip())
	if err != nil {
		t.Fatalf("BuildActions() error: %v", err)
	}
	if len(actions) != 2 {
		t.Errorf("got %d actions, want 2", len(actions))
	}
}

func TestParse_YAML(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleYAML), YAML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	tx, rx := cfg.QueueSizes()
	if tx != link.DefaultQueueCapacity || rx != 16 {
		t.Errorf("QueueSizes() = %d, %d", tx, rx)
	}
	if s := cfg.LightStrip(); s.LEDs != lights.DefaultLEDs || s.Limit != lights.DefaultLimit {
		t.Errorf("LightStrip() = %+v, want defaults", s)
	}
	if len(cfg.Codes) != 2 || cfg.Codes[1].Code().Value != 1103 {
		t.Errorf("Codes = %+v", cfg.Codes)
	}
}

func TestParse_YAMLMessageAction(t *testing.T) {
	doc := `
code:
  - name: red
    value: 7
action:
  - name: red
    message:
      kind: ir_send
      ir:
        protocol: 3
        bits: 12
        value: 0xABC
`
	cfg, err := Parse(strings.NewReader(doc), YAML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		format Format
	}{
		{"toml", "port = \"x\"\nbogus = 1\n", TOML},
		{"yaml", "port: x\nbogus: 1\n", YAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.doc), tt.format); err == nil {
				t.Error("Parse() accepted an unknown key")
			}
		})
	}
}

func TestFormatFor(t *testing.T) {
	tests := map[string]Format{
		"beacon.toml": TOML,
		"beacon.yaml": YAML,
		"BEACON.YML":  YAML,
		"beacon":      TOML,
	}
	for path, want := range tests {
		if got := FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %q, want %q", path, got, want)
		}
	}
}

// ============================================================
// Validation Tests
// ============================================================

func TestValidate_Errors(t *testing.T) {
	code := func(name string, value uint32) CodeConfig {
		return CodeConfig{Name: name, Protocol: 1, Bits: 32, Value: value}
	}
	negative := -1

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "duplicate code name",
			cfg:  Config{Codes: []CodeConfig{code("a", 1), code("a", 2)}},
			want: "duplicate code name",
		},
		{
			name: "duplicate code",
			cfg:  Config{Codes: []CodeConfig{code("a", 1), code("b", 1)}},
			want: "duplicate code",
		},
		{
			name: "bits",
			cfg:  Config{Codes: []CodeConfig{{Name: "a", Bits: 40}}},
			want: "exceeds 32",
		},
		{
			name: "action without code",
			cfg: Config{
				Codes:   []CodeConfig{code("a", 1)},
				Actions: []ActionConfig{{Name: "b", Log: "hi"}},
			},
			want: "no matching code",
		},
		{
			name: "duplicate action",
			cfg: Config{
				Codes:   []CodeConfig{code("a", 1)},
				Actions: []ActionConfig{{Name: "a", Log: "x"}, {Name: "a", Log: "y"}},
			},
			want: "duplicate action",
		},
		{
			name: "no body",
			cfg: Config{
				Codes:   []CodeConfig{code("a", 1)},
				Actions: []ActionConfig{{Name: "a"}},
			},
			want: "no action body",
		},
		{
			name: "several bodies",
			cfg: Config{
				Codes:   []CodeConfig{code("a", 1)},
				Actions: []ActionConfig{{Name: "a", Log: "x", Send: "a"}},
			},
			want: "several action bodies",
		},
		{
			name: "unknown send target",
			cfg: Config{
				Codes:   []CodeConfig{code("a", 1)},
				Actions: []ActionConfig{{Name: "a", Send: "z"}},
			},
			want: "unknown code name",
		},
		{
			name: "timeout without command",
			cfg: Config{
				Codes:   []CodeConfig{code("a", 1)},
				Actions: []ActionConfig{{Name: "a", Log: "x", Timeout: Duration(time.Second)}},
			},
			want: "timeout",
		},
		{
			name: "bad fill",
			cfg: Config{
				Codes:   []CodeConfig{code("a", 1)},
				Actions: []ActionConfig{{Name: "a", Fill: []int{1, 2}}},
			},
			want: "[R, G, B]",
		},
		{
			name: "bad message",
			cfg: Config{
				Codes:   []CodeConfig{code("a", 1)},
				Actions: []ActionConfig{{Name: "a", Message: map[string]interface{}{"config": map[string]interface{}{}}}},
			},
			want: "missing",
		},
		{
			name: "negative queue",
			cfg:  Config{Queue: QueueConfig{TX: &negative}},
			want: "queue.tx",
		},
		{
			name: "strip segments",
			cfg:  Config{Strip: StripConfig{LEDs: 10, Segments: []int{3, 3}}},
			want: "invalid strip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyDefaults()
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error: %v", err)
	}
	if cfg.Port != DefaultPort || cfg.Baud != DefaultBaud {
		t.Errorf("Default() = %+v", cfg)
	}
}

// ============================================================
// Load / Marshal Tests
// ============================================================

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.yml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Baud != 115200 {
		t.Errorf("Baud = %d", cfg.Baud)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestMarshalCodes(t *testing.T) {
	codes := []CodeConfig{
		CodeConfigFor("power", message.IRCode{Protocol: 1, Bits: 32, Value: 1101}),
		CodeConfigFor("mute", message.IRCode{Protocol: 1, Bits: 32, Address: 5, Value: 1102}),
	}

	data, err := MarshalCodes(codes)
	if err != nil {
		t.Fatalf("MarshalCodes() error: %v", err)
	}

	cfg, err := Parse(strings.NewReader(string(data)), TOML)
	if err != nil {
		t.Fatalf("Parse(MarshalCodes()) error: %v\n%s", err, data)
	}
	if len(cfg.Codes) != 2 || cfg.Codes[1] != codes[1] {
		t.Errorf("codes = %+v, want %+v", cfg.Codes, codes)
	}
}
