// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/beacon/pkg/message"
)

// ============================================================
// Test Helpers
// ============================================================

type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	connectOK    bool
	connectCalls int
	rx           []message.Message
	tx           []message.Message
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Connect(port string, baud int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	f.connected = f.connectOK
	return f.connectOK
}

func (f *fakeTransport) PutMessage(m message.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tx = append(f.tx, m)
}

func (f *fakeTransport) GetMessage() (message.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rx) == 0 {
		return nil, false
	}
	m := f.rx[0]
	f.rx = f.rx[1:]
	return m, true
}

func (f *fakeTransport) receive(msgs ...message.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append(f.rx, msgs...)
}

func (f *fakeTransport) sent() []message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message.Message(nil), f.tx...)
}

func code(value uint32) message.IRCode {
	return message.IRCode{Protocol: 1, Bits: 32, Value: value}
}

// testBook is the A=1101, B=1102 code book.
func testBook(t *testing.T) *CodeBook {
	t.Helper()
	cb, err := NewCodeBook([]Entry{
		{Name: "A", Code: code(1101)},
		{Name: "B", Code: code(1102)},
	})
	if err != nil {
		t.Fatalf("NewCodeBook failed: %v", err)
	}
	return cb
}

// logBuffer returns a logger writing to the returned buffer at debug level.
func logBuffer() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

// counting returns an action that records how often it ran per name.
func counting(counts map[string]int) Action {
	return func(r *Router, name string) error {
		counts[name]++
		return nil
	}
}

// ============================================================
// CodeBook Tests
// ============================================================

func TestCodeBook_Inverse(t *testing.T) {
	cb := testBook(t)

	for _, e := range cb.Entries() {
		name, ok := cb.Name(e.Code)
		if !ok || name != e.Name {
			t.Errorf("Name(%v) = %q, %v, want %q", e.Code, name, ok, e.Name)
		}
		c, ok := cb.Code(e.Name)
		if !ok || c != e.Code {
			t.Errorf("Code(%q) = %v, %v, want %v", e.Name, c, ok, e.Code)
		}
	}
	if _, ok := cb.Name(code(9999)); ok {
		t.Error("Name(9999) should miss")
	}
	if names := cb.Names(); len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("Names() = %v", names)
	}
}

func TestNewCodeBook_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    error
	}{
		{"duplicate name", []Entry{{"A", code(1)}, {"A", code(2)}}, ErrDuplicateName},
		{"duplicate code", []Entry{{"A", code(1)}, {"B", code(1)}}, ErrDuplicateCode},
		{"empty name", []Entry{{"", code(1)}}, ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodeBook(tt.entries)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewCodeBook error = %v, want %v", err, tt.want)
			}
		})
	}
}

// ============================================================
// Dispatch Tests
// ============================================================

func TestDispatch_KnownCodeRunsActionOnce(t *testing.T) {
	counts := map[string]int{}
	r := New(&fakeTransport{connected: true}, testBook(t), map[string]Action{
		"A": counting(counts),
		"B": counting(counts),
	}, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	r.Dispatch(message.IRReceived{Code: code(1101)})

	if counts["A"] != 1 {
		t.Errorf("action A ran %d times, want 1", counts["A"])
	}
	if counts["B"] != 0 {
		t.Errorf("action B ran %d times, want 0", counts["B"])
	}
}

func TestDispatch_UnknownCodeOnlyLogs(t *testing.T) {
	counts := map[string]int{}
	logger, buf := logBuffer()
	ft := &fakeTransport{connected: true}
	r := New(ft, testBook(t), map[string]Action{
		"A": counting(counts),
		"B": counting(counts),
	}, Options{Logger: logger})

	r.Dispatch(message.IRReceived{Code: code(9999)})

	if len(counts) != 0 {
		t.Errorf("no action should run for an unknown code, got %v", counts)
	}
	if len(ft.sent()) != 0 {
		t.Error("unknown code should not send anything")
	}
	if !strings.Contains(buf.String(), "IR code not known") {
		t.Errorf("expected a debug log for the unknown code, got %q", buf.String())
	}
}

func TestDispatch_IgnoresOtherKinds(t *testing.T) {
	counts := map[string]int{}
	r := New(&fakeTransport{connected: true}, testBook(t), map[string]Action{"A": counting(counts)},
		Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	// Same value as A, but sent rather than received.
	r.Dispatch(message.NewIRSend(code(1101)))
	r.Dispatch(message.NewConfig(1, 1, 1))

	if len(counts) != 0 {
		t.Errorf("non IR_RECEIVED messages must not run actions, got %v", counts)
	}
}

func TestDispatch_NamedCodeWithoutAction(t *testing.T) {
	var events []Event
	r := New(&fakeTransport{connected: true}, testBook(t), nil, Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnEvent: func(e Event) { events = append(events, e) },
	})

	r.Dispatch(message.IRReceived{Code: code(1102)})

	last := events[len(events)-1]
	if last.Type != EventNoAction || last.Name != "B" {
		t.Errorf("last event = %v, want no action for B", last)
	}
}

func TestPerformAction_Error(t *testing.T) {
	var events []Event
	boom := errors.New("boom")
	r := New(&fakeTransport{connected: true}, testBook(t), map[string]Action{
		"A": func(*Router, string) error { return boom },
	}, Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnEvent: func(e Event) { events = append(events, e) },
	})

	if !r.PerformAction("A") {
		t.Error("PerformAction should report a bound action")
	}
	if len(events) != 1 || events[0].Type != EventActionError || !errors.Is(events[0].Err, boom) {
		t.Errorf("events = %v", events)
	}
}

// ============================================================
// SendByName Tests
// ============================================================

func TestSendByName(t *testing.T) {
	ft := &fakeTransport{connected: true}
	logger, buf := logBuffer()
	r := New(ft, testBook(t), nil, Options{Logger: logger})

	if !r.SendByName("A") {
		t.Error("SendByName(A) should succeed")
	}
	sent := ft.sent()
	if len(sent) != 1 {
		t.Fatalf("SendByName(A) queued %d messages, want 1", len(sent))
	}
	if sent[0] != message.Message(message.NewIRSend(code(1101))) {
		t.Errorf("queued %#v, want IR_SEND 1101", sent[0])
	}

	if r.SendByName("Z") {
		t.Error("SendByName(Z) should fail")
	}
	if len(ft.sent()) != 1 {
		t.Errorf("SendByName(Z) must not queue anything, TX has %d", len(ft.sent()))
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("SendByName(Z) should warn, log = %q", buf.String())
	}
}

// ============================================================
// Step Tests
// ============================================================

func TestStep_ReconnectWhenDisconnected(t *testing.T) {
	ft := &fakeTransport{connectOK: false}
	r := New(ft, testBook(t), nil, Options{
		Port:   "/dev/ttyUSB0",
		Baud:   9600,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if d := r.Step(); d != DefaultReconnectDelay {
		t.Errorf("Step() while disconnected = %v, want %v", d, DefaultReconnectDelay)
	}
	if ft.connectCalls != 1 {
		t.Errorf("Connect called %d times, want 1", ft.connectCalls)
	}

	// Still failing: every step retries.
	r.Step()
	if ft.connectCalls != 2 {
		t.Errorf("Connect called %d times, want 2", ft.connectCalls)
	}

	ft.connectOK = true
	if d := r.Step(); d != DefaultReconnectDelay {
		t.Errorf("Step() after successful reconnect = %v, want %v", d, DefaultReconnectDelay)
	}
	if d := r.Step(); d != DefaultIdleDelay {
		t.Errorf("Step() when connected and idle = %v, want %v", d, DefaultIdleDelay)
	}
	if ft.connectCalls != 3 {
		t.Errorf("Connect called %d times, want 3", ft.connectCalls)
	}
}

func TestStep_DispatchesOneMessage(t *testing.T) {
	counts := map[string]int{}
	ft := &fakeTransport{connected: true}
	ft.receive(message.IRReceived{Code: code(1101)}, message.IRReceived{Code: code(1102)})
	r := New(ft, testBook(t), map[string]Action{"A": counting(counts), "B": counting(counts)},
		Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	if d := r.Step(); d != 0 {
		t.Errorf("Step() after dispatch = %v, want 0", d)
	}
	if counts["A"] != 1 || counts["B"] != 0 {
		t.Errorf("after one step counts = %v, want only A", counts)
	}
	r.Step()
	if counts["B"] != 1 {
		t.Errorf("after two steps counts = %v", counts)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ft := &fakeTransport{connected: true}
	r := New(ft, testBook(t), nil, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
