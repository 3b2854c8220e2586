// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/beacon/pkg/message"
)

// ============================================================
// Test Helpers
// ============================================================

type readStep struct {
	data []byte
	err  error
}

// fakeLink replays scripted reads and records every write. An empty script
// behaves like a read timeout.
type fakeLink struct {
	mu         sync.Mutex
	reads      []readStep
	writes     [][]byte
	failWrite  int // 1-based index of the write that fails, 0 for never
	writeCount int
	closed     bool
}

func (f *fakeLink) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, io.ErrClosedPipe
	}
	if len(f.reads) == 0 {
		return 0, nil
	}
	step := f.reads[0]
	n := copy(p, step.data)
	if n < len(step.data) {
		f.reads[0].data = step.data[n:]
		return n, nil
	}
	f.reads = f.reads[1:]
	return n, step.err
}

func (f *fakeLink) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writeCount++
	if f.failWrite != 0 && f.writeCount == f.failWrite {
		return 0, errors.New("device unplugged")
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) script(steps ...readStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, steps...)
}

func (f *fakeLink) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func (f *fakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func contextWithTimeout(t *testing.T, d time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(t.Context(), d)
}

// connectedTransport returns a Transport already connected to a fresh fake.
func connectedTransport(t *testing.T) (*Transport, *fakeLink) {
	t.Helper()
	return connectedTransportWith(t, Options{})
}

func connectedTransportWith(t *testing.T, opts Options) (*Transport, *fakeLink) {
	t.Helper()
	fake := &fakeLink{}
	opts.Open = func(string, int, time.Duration) (Link, error) {
		return fake, nil
	}
	opts.Logger = testLogger()
	opts.Period = time.Millisecond
	tr := New(opts)
	if !tr.Connect("/dev/fake", 9600) {
		t.Fatal("Connect to fake link failed")
	}
	return tr, fake
}

func irFrame(value uint32) []byte {
	return message.Encode(message.IRReceived{Code: message.IRCode{Protocol: 1, Bits: 32, Value: value}})
}

// ============================================================
// ReadTimeout Tests
// ============================================================

func TestReadTimeout(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		baud     int
		expected time.Duration
	}{
		{"9600 baud", 64, 9600, 7333333 * time.Nanosecond},
		{"1200 baud", 64, 1200, 58666666 * time.Nanosecond},
		{"fast link clamps", 64, 1000000, MinReadTimeout},
		{"zero baud", 64, 0, MinReadTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReadTimeout(tt.size, tt.baud)
			diff := got - tt.expected
			if diff < -time.Microsecond || diff > time.Microsecond {
				t.Errorf("ReadTimeout(%d, %d) = %v, want %v", tt.size, tt.baud, got, tt.expected)
			}
		})
	}
}

// ============================================================
// Connect Tests
// ============================================================

func TestConnect_Unreachable(t *testing.T) {
	tr := New(Options{
		Open: func(port string, _ int, _ time.Duration) (Link, error) {
			return nil, errors.New("no such device")
		},
		Logger: testLogger(),
	})

	if tr.Connect("/dev/missing", 9600) {
		t.Error("Connect should fail for an unreachable port")
	}
	if tr.IsConnected() {
		t.Error("IsConnected() should be false after a failed connect")
	}
	if tr.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", tr.State())
	}
	if s := tr.Statistics(); s.ConnectFailures != 1 {
		t.Errorf("ConnectFailures = %d, want 1", s.ConnectFailures)
	}
	if _, _, err := tr.Parameters(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Parameters() error = %v, want ErrNotConnected", err)
	}
}

func TestConnect_PassesReadTimeout(t *testing.T) {
	var gotTimeout time.Duration
	tr := New(Options{
		Open: func(_ string, _ int, timeout time.Duration) (Link, error) {
			gotTimeout = timeout
			return &fakeLink{}, nil
		},
		Logger: testLogger(),
	})
	tr.Connect("/dev/fake", 9600)

	if gotTimeout != ReadTimeout(message.PacketSize, 9600) {
		t.Errorf("read timeout = %v, want %v", gotTimeout, ReadTimeout(message.PacketSize, 9600))
	}
	port, baud, err := tr.Parameters()
	if err != nil || port != "/dev/fake" || baud != 9600 {
		t.Errorf("Parameters() = %q, %d, %v", port, baud, err)
	}
}

func TestConnect_ReplacesLink(t *testing.T) {
	tr, first := connectedTransport(t)
	if !tr.Connect("/dev/fake", 9600) {
		t.Fatal("second Connect failed")
	}
	if !first.isClosed() {
		t.Error("previous link should be closed on reconnect")
	}
}

// ============================================================
// Receive Tests
// ============================================================

func TestPoll_ExactFrame(t *testing.T) {
	tr, fake := connectedTransport(t)
	fake.script(readStep{data: irFrame(1101)})

	tr.Poll()

	m, ok := tr.GetMessage()
	if !ok {
		t.Fatal("expected a message in RX")
	}
	ir, ok := m.(message.IRReceived)
	if !ok || ir.Code.Value != 1101 {
		t.Errorf("got %#v, want IRReceived 1101", m)
	}
	if _, ok := tr.GetMessage(); ok {
		t.Error("RX should hold exactly one message")
	}
}

func TestPoll_FrameInPieces(t *testing.T) {
	tr, fake := connectedTransport(t)
	frame := irFrame(42)
	fake.script(readStep{data: frame[:10]}, readStep{data: frame[10:40]}, readStep{data: frame[40:]})

	tr.Poll()

	if _, ok := tr.GetMessage(); !ok {
		t.Error("a frame split over several reads should still be received")
	}
}

func TestPoll_ShortRunsNeverQueued(t *testing.T) {
	for _, n := range []int{1, 17, 63} {
		tr, fake := connectedTransport(t)
		fake.script(readStep{data: irFrame(7)[:n]})

		tr.Poll()
		tr.Poll()

		if _, ok := tr.GetMessage(); ok {
			t.Errorf("%d byte run produced an RX entry", n)
		}
		if s := tr.Statistics(); s.MalformedFrames != 1 {
			t.Errorf("%d byte run: MalformedFrames = %d, want 1", n, s.MalformedFrames)
		}
		if !tr.IsConnected() {
			t.Errorf("%d byte run: a malformed frame must not drop the link", n)
		}
	}
}

// The tail of a short frame is not glued to the next one.
func TestPoll_PartialNotCarriedOver(t *testing.T) {
	tr, fake := connectedTransport(t)
	frame := irFrame(5)
	fake.script(readStep{data: frame[:20]})
	tr.Poll()

	fake.script(readStep{data: frame[20:]})
	tr.Poll()

	if _, ok := tr.GetMessage(); ok {
		t.Error("bytes from two iterations must not be combined into a frame")
	}
	if s := tr.Statistics(); s.MalformedFrames != 2 {
		t.Errorf("MalformedFrames = %d, want 2", s.MalformedFrames)
	}
}

func TestPoll_Idle(t *testing.T) {
	tr, _ := connectedTransport(t)
	tr.Poll()

	if _, ok := tr.GetMessage(); ok {
		t.Error("idle link should not produce messages")
	}
	if s := tr.Statistics(); s.MalformedFrames != 0 {
		t.Errorf("idle poll counted %d malformed frames", s.MalformedFrames)
	}
}

func TestPoll_ReadErrorTearsDown(t *testing.T) {
	tr, fake := connectedTransport(t)
	fake.script(readStep{err: errors.New("i/o error")})

	tr.Poll()

	if tr.IsConnected() {
		t.Error("read error should tear the link down")
	}
	if !fake.isClosed() {
		t.Error("link should be closed after a read error")
	}
	s := tr.Statistics()
	if s.ReadErrors != 1 || s.Disconnects != 1 {
		t.Errorf("ReadErrors = %d, Disconnects = %d, want 1, 1", s.ReadErrors, s.Disconnects)
	}
}

func TestPoll_RXQueueDropsOldest(t *testing.T) {
	fake := &fakeLink{}
	tr := New(Options{
		Open:   func(string, int, time.Duration) (Link, error) { return fake, nil },
		Logger: testLogger(),
		RX:     NewQueue[message.Message](2),
	})
	tr.Connect("fake", 9600)

	for v := uint32(1); v <= 3; v++ {
		fake.script(readStep{data: irFrame(v)})
		tr.Poll()
	}

	var got []uint32
	for {
		m, ok := tr.GetMessage()
		if !ok {
			break
		}
		got = append(got, m.(message.IRReceived).Code.Value)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("RX = %v, want [2 3]", got)
	}
	if s := tr.Statistics(); s.DroppedRX != 1 {
		t.Errorf("DroppedRX = %d, want 1", s.DroppedRX)
	}
}

// ============================================================
// Transmit Tests
// ============================================================

func TestPoll_WritesInOrder(t *testing.T) {
	tr, fake := connectedTransport(t)
	for v := uint32(1); v <= 3; v++ {
		tr.PutMessage(message.NewIRSend(message.IRCode{Value: v}))
	}

	tr.Poll()

	writes := fake.written()
	if len(writes) != 3 {
		t.Fatalf("wrote %d frames, want 3", len(writes))
	}
	for i, w := range writes {
		if len(w) != message.PacketSize {
			t.Errorf("write %d has %d bytes", i, len(w))
		}
		m, _ := message.Decode(w)
		if m.(message.IRSend).Code.Value != uint32(i+1) {
			t.Errorf("write %d = %#v, out of order", i, m)
		}
	}
}

func TestPoll_WriteFailureAbandonsBatch(t *testing.T) {
	tr, fake := connectedTransport(t)
	fake.failWrite = 2
	for v := uint32(1); v <= 4; v++ {
		tr.PutMessage(message.NewIRSend(message.IRCode{Value: v}))
	}

	tr.Poll()

	if len(fake.written()) != 1 {
		t.Errorf("wrote %d frames before failure, want 1", len(fake.written()))
	}
	if tr.IsConnected() {
		t.Error("write failure should tear the link down")
	}
	if tx, _ := tr.Pending(); tx != 0 {
		t.Errorf("TX holds %d messages, the failed batch should be dropped", tx)
	}
	s := tr.Statistics()
	if s.WriteErrors != 1 || s.AbandonedTX != 3 {
		t.Errorf("WriteErrors = %d, AbandonedTX = %d, want 1, 3", s.WriteErrors, s.AbandonedTX)
	}
}

func TestPoll_TXKeptWhileDisconnected(t *testing.T) {
	tr := New(Options{
		Open:   func(string, int, time.Duration) (Link, error) { return nil, errors.New("offline") },
		Logger: testLogger(),
	})
	tr.PutMessage(message.NewNoOp())
	tr.Poll()

	if tx, _ := tr.Pending(); tx != 1 {
		t.Errorf("TX holds %d messages while disconnected, want 1", tx)
	}
}

func TestObserver(t *testing.T) {
	var seen []Direction
	fake := &fakeLink{}
	tr := New(Options{
		Open:     func(string, int, time.Duration) (Link, error) { return fake, nil },
		Logger:   testLogger(),
		Observer: func(dir Direction, _ message.Message) { seen = append(seen, dir) },
	})
	tr.Connect("fake", 9600)
	tr.PutMessage(message.NewNoOp())
	fake.script(readStep{data: irFrame(1)})

	tr.Poll()

	if len(seen) != 2 || seen[0] != Outbound || seen[1] != Inbound {
		t.Errorf("observer saw %v, want [TX RX]", seen)
	}
}

// ============================================================
// Lifecycle Tests
// ============================================================

func TestStop_ClosesLink(t *testing.T) {
	tr, fake := connectedTransport(t)
	tr.Start()
	tr.Stop()

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("worker loop did not exit within 1s of Stop")
	}

	if !fake.isClosed() {
		t.Error("link should be closed after Stop")
	}
	if tr.IsConnected() {
		t.Error("IsConnected() should be false after Stop")
	}
	if err := tr.Run(t.Context()); !errors.Is(err, ErrStopped) {
		t.Errorf("Run after Stop = %v, want ErrStopped", err)
	}
}

func TestStop_BeforeRun(t *testing.T) {
	tr, fake := connectedTransport(t)
	tr.Stop()

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed by Stop without Run")
	}
	if !fake.isClosed() {
		t.Error("link should be closed after Stop")
	}
	if err := tr.Run(t.Context()); !errors.Is(err, ErrStopped) {
		t.Errorf("Run after Stop = %v, want ErrStopped", err)
	}
	tr.Stop()
}

func TestRun_Twice(t *testing.T) {
	tr, _ := connectedTransport(t)
	tr.Start()
	defer func() {
		tr.Stop()
		<-tr.Done()
	}()

	deadline := time.Now().Add(time.Second)
	for !tr.running.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := tr.Run(t.Context()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run = %v, want ErrAlreadyRunning", err)
	}
}

func TestWaitMessage(t *testing.T) {
	tr, fake := connectedTransport(t)
	fake.script(readStep{data: irFrame(99)})
	tr.Start()
	defer tr.Stop()

	ctx, cancel := contextWithTimeout(t, time.Second)
	defer cancel()

	m, err := tr.WaitMessage(ctx)
	if err != nil {
		t.Fatalf("WaitMessage failed: %v", err)
	}
	if m.(message.IRReceived).Code.Value != 99 {
		t.Errorf("got %#v", m)
	}
}

// Two producers race the worker; nothing is lost or duplicated and each
// producer's order survives.
func TestConcurrentProducers(t *testing.T) {
	const perProducer = 500

	tr, fake := connectedTransportWith(t, Options{TX: NewQueue[message.Message](0)})
	tr.Start()
	defer tr.Stop()

	var wg sync.WaitGroup
	for p := uint16(0); p < 2; p++ {
		wg.Add(1)
		go func(producer uint16) {
			defer wg.Done()
			for seq := uint32(0); seq < perProducer; seq++ {
				tr.PutMessage(message.NewIRSend(message.IRCode{Address: producer, Value: seq}))
			}
		}(p)
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for len(fake.written()) < 2*perProducer && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	writes := fake.written()
	if len(writes) != 2*perProducer {
		t.Fatalf("wrote %d frames, want %d", len(writes), 2*perProducer)
	}

	next := [2]uint32{}
	for _, w := range writes {
		m, err := message.Decode(w)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		code := m.(message.IRSend).Code
		if code.Value != next[code.Address] {
			t.Fatalf("producer %d: got seq %d, want %d", code.Address, code.Value, next[code.Address])
		}
		next[code.Address]++
	}
}
