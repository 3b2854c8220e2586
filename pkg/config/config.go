// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the beacon configuration file.
package config

import (
	"bytes"
	"encoding"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/Thermoquad/beacon/pkg/ingress"
	"github.com/Thermoquad/beacon/pkg/lights"
	"github.com/Thermoquad/beacon/pkg/link"
	"github.com/Thermoquad/beacon/pkg/message"
	"github.com/Thermoquad/beacon/pkg/router"
)

// Defaults for keys missing from the file.
const (
	DefaultPort = "/dev/ttyUSB0"
	DefaultBaud = 9600
)

// Format is a configuration file syntax.
type Format string

const (
	TOML Format = "toml"
	YAML Format = "yaml"
)

// FormatFor picks the format from the file extension. Anything that is not
// .yaml or .yml is read as TOML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return TOML
}

// Config is the beacon configuration.
type Config struct {
	// Port is the serial device the beacon is attached to.
	Port string `toml:"port" yaml:"port"`
	// Baud is the serial baud rate.
	Baud int `toml:"baud" yaml:"baud"`
	// Listen is the TCP address of the command ingress. A missing or empty
	// value means ingress.DefaultAddr; run --no-listen disables the ingress.
	Listen string `toml:"listen" yaml:"listen"`

	Queue QueueConfig `toml:"queue" yaml:"queue"`
	Strip StripConfig `toml:"strip" yaml:"strip"`

	Codes   []CodeConfig   `toml:"code" yaml:"code"`
	Actions []ActionConfig `toml:"action" yaml:"action"`
}

// QueueConfig sizes the transport queues. Zero means unbounded; a missing
// key means link.DefaultQueueCapacity.
type QueueConfig struct {
	TX *int `toml:"tx" yaml:"tx"`
	RX *int `toml:"rx" yaml:"rx"`
}

// StripConfig describes the LED strip.
type StripConfig struct {
	LEDs     int     `toml:"leds" yaml:"leds"`
	Limit    float64 `toml:"limit" yaml:"limit"`
	Segments []int   `toml:"segments" yaml:"segments"`
}

// CodeConfig names one IR code.
type CodeConfig struct {
	Name     string `toml:"name" yaml:"name"`
	Protocol uint8  `toml:"protocol" yaml:"protocol"`
	Bits     uint8  `toml:"bits" yaml:"bits"`
	Address  uint16 `toml:"address" yaml:"address"`
	Value    uint32 `toml:"value" yaml:"value"`
}

// Code returns the IR code described by c.
func (c CodeConfig) Code() message.IRCode {
	return message.IRCode{
		Protocol: c.Protocol,
		Bits:     c.Bits,
		Address:  c.Address,
		Value:    c.Value,
	}
}

// CodeConfigFor is the inverse of CodeConfig.Code.
func CodeConfigFor(name string, code message.IRCode) CodeConfig {
	return CodeConfig{
		Name:     name,
		Protocol: code.Protocol,
		Bits:     code.Bits,
		Address:  code.Address,
		Value:    code.Value,
	}
}

// ActionConfig binds an action to a code name. Exactly one of the body
// fields must be set.
type ActionConfig struct {
	Name string `toml:"name" yaml:"name"`

	// Send transmits the code with this name.
	Send string `toml:"send" yaml:"send"`
	// Command runs a program. Timeout bounds its run time.
	Command []string `toml:"command" yaml:"command"`
	Timeout Duration `toml:"timeout" yaml:"timeout"`
	// Message sends one message given in its mapping form.
	Message map[string]interface{} `toml:"message" yaml:"message"`
	// Fill paints the whole strip with an [R, G, B] colour.
	Fill []int `toml:"fill" yaml:"fill"`
	// Log writes a line to the log.
	Log string `toml:"log" yaml:"log"`
}

func (a ActionConfig) bodies() []string {
	var set []string
	if a.Send != "" {
		set = append(set, "send")
	}
	if len(a.Command) > 0 {
		set = append(set, "command")
	}
	if a.Message != nil {
		set = append(set, "message")
	}
	if a.Fill != nil {
		set = append(set, "fill")
	}
	if a.Log != "" {
		set = append(set, "log")
	}
	return set
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

var (
	_ encoding.TextUnmarshaler = (*Duration)(nil)
	_ encoding.TextMarshaler   = (*Duration)(nil)
	_ yaml.Unmarshaler         = (*Duration)(nil)
)

func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config file")
	}
	defer f.Close()

	cfg, err := Parse(f, FormatFor(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration in %s", path)
	}
	return cfg, nil
}

// Parse decodes a configuration without validating it. Unknown keys are
// errors in both formats.
func Parse(r io.Reader, format Format) (*Config, error) {
	var cfg Config

	switch format {
	case TOML:
		if err := toml.NewDecoder(r).Strict(true).Decode(&cfg); err != nil {
			return nil, err
		}
	case YAML:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown config format %q", format)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.Listen == "" {
		c.Listen = ingress.DefaultAddr
	}
}

// Validate checks the whole configuration and builds every action once, so
// a file that loads can always be run.
func (c *Config) Validate() error {
	if c.Baud <= 0 {
		return errors.Errorf("baud = %d must be positive", c.Baud)
	}
	for _, q := range []struct {
		name string
		size *int
	}{{"tx", c.Queue.TX}, {"rx", c.Queue.RX}} {
		if q.size != nil && *q.size < 0 {
			return errors.Errorf("queue.%s = %d must not be negative", q.name, *q.size)
		}
	}

	strip := c.LightStrip()
	if err := strip.Validate(); err != nil {
		return errors.Wrap(err, "invalid strip")
	}

	for i, code := range c.Codes {
		if code.Bits > 32 {
			return errors.Errorf("code %d (%q): bits = %d exceeds 32", i, code.Name, code.Bits)
		}
	}
	book, err := c.CodeBook()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Actions))
	for i, a := range c.Actions {
		if a.Name == "" {
			return errors.Errorf("action %d has no name", i)
		}
		if seen[a.Name] {
			return errors.Errorf("duplicate action %q", a.Name)
		}
		seen[a.Name] = true

		if _, ok := book.Code(a.Name); !ok {
			return errors.Errorf("action %q has no matching code", a.Name)
		}
		if _, err := c.action(a, strip, book); err != nil {
			return errors.Wrapf(err, "action %q", a.Name)
		}
	}
	return nil
}

// CodeBook builds the code book from the [[code]] entries.
func (c *Config) CodeBook() (*router.CodeBook, error) {
	entries := make([]router.Entry, len(c.Codes))
	for i, code := range c.Codes {
		entries[i] = router.Entry{Name: code.Name, Code: code.Code()}
	}
	book, err := router.NewCodeBook(entries)
	if err != nil {
		return nil, errors.Wrap(err, "invalid codes")
	}
	return book, nil
}

// BuildActions builds the router actions from the [[action]] entries.
func (c *Config) BuildActions(strip lights.Strip) (map[string]router.Action, error) {
	book, err := c.CodeBook()
	if err != nil {
		return nil, err
	}

	actions := make(map[string]router.Action, len(c.Actions))
	for _, a := range c.Actions {
		action, err := c.action(a, strip, book)
		if err != nil {
			return nil, errors.Wrapf(err, "action %q", a.Name)
		}
		actions[a.Name] = action
	}
	return actions, nil
}

func (c *Config) action(a ActionConfig, strip lights.Strip, book *router.CodeBook) (router.Action, error) {
	bodies := a.bodies()
	switch len(bodies) {
	case 0:
		return nil, errors.New("no action body, want one of send, command, message, fill, log")
	case 1:
	default:
		return nil, errors.Errorf("several action bodies: %s", strings.Join(bodies, ", "))
	}
	if a.Timeout != 0 && len(a.Command) == 0 {
		return nil, errors.New("timeout is only valid with command")
	}

	switch bodies[0] {
	case "send":
		if _, ok := book.Code(a.Send); !ok {
			return nil, errors.Wrapf(router.ErrUnknownName, "send target %q", a.Send)
		}
		return router.SendAction(a.Send), nil

	case "command":
		if a.Timeout < 0 {
			return nil, errors.Errorf("negative timeout %s", time.Duration(a.Timeout))
		}
		return router.CommandAction(a.Command, time.Duration(a.Timeout)), nil

	case "message":
		fields, err := message.AsFields(a.Message)
		if err != nil {
			return nil, err
		}
		m, err := message.FromFields(fields)
		if err != nil {
			return nil, err
		}
		return router.MessageAction(m), nil

	case "fill":
		rgb, err := parseRGB(a.Fill)
		if err != nil {
			return nil, err
		}
		return router.MessageAction(strip.Fill(rgb)...), nil

	default:
		return router.LogAction(a.Log), nil
	}
}

func parseRGB(v []int) (message.RGB, error) {
	if len(v) != 3 {
		return message.RGB{}, errors.Errorf("fill wants [R, G, B], got %d values", len(v))
	}
	for _, c := range v {
		if c < 0 || c > 0xFF {
			return message.RGB{}, errors.Errorf("fill channel %d out of range [0, 255]", c)
		}
	}
	return message.RGB{R: uint8(v[0]), G: uint8(v[1]), B: uint8(v[2])}, nil
}

// LightStrip returns the strip described by [strip] with defaults applied.
func (c *Config) LightStrip() lights.Strip {
	return lights.Strip{
		LEDs:     c.Strip.LEDs,
		Limit:    c.Strip.Limit,
		Segments: c.Strip.Segments,
	}.WithDefaults()
}

// QueueSizes returns the TX and RX queue capacities.
func (c *Config) QueueSizes() (tx, rx int) {
	tx, rx = link.DefaultQueueCapacity, link.DefaultQueueCapacity
	if c.Queue.TX != nil {
		tx = *c.Queue.TX
	}
	if c.Queue.RX != nil {
		rx = *c.Queue.RX
	}
	return tx, rx
}

// MarshalCodes renders entries as [[code]] tables, ready to paste into a
// configuration file.
func MarshalCodes(codes []CodeConfig) ([]byte, error) {
	var buf bytes.Buffer
	doc := struct {
		Codes []CodeConfig `toml:"code"`
	}{codes}
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, errors.Wrap(err, "failed to encode codes")
	}
	return buf.Bytes(), nil
}
