// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/beacon/pkg/message"
)

// DefaultPeriod is the worker loop interval.
const DefaultPeriod = 10 * time.Millisecond

// ErrAlreadyRunning is returned by Run when the worker loop was started
// before.
var ErrAlreadyRunning = errors.New("transport already running")

// ErrStopped is returned by Run when Stop was called first.
var ErrStopped = errors.New("transport stopped")

// Observer is called from the worker loop for every frame written or
// received. It must not block.
type Observer func(dir Direction, m message.Message)

// Options configures a Transport. The zero value opens serial ports.
type Options struct {
	Open     OpenFunc                // defaults to OpenSerial
	Logger   *slog.Logger            // defaults to slog.Default()
	Period   time.Duration           // defaults to DefaultPeriod
	TX, RX   *Queue[message.Message] // default to DefaultQueueCapacity
	Observer Observer
}

// Transport pumps messages between its queues and the current Link.
type Transport struct {
	open     OpenFunc
	log      *slog.Logger
	period   time.Duration
	tx, rx   *Queue[message.Message]
	observer Observer

	mu    sync.Mutex
	link  Link
	state State
	port  string
	baud  int

	statsMu sync.Mutex
	stats   Statistics

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a disconnected Transport.
func New(opts Options) *Transport {
	t := &Transport{
		open:     opts.Open,
		log:      opts.Logger,
		period:   opts.Period,
		tx:       opts.TX,
		rx:       opts.RX,
		observer: opts.Observer,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if t.open == nil {
		t.open = OpenSerial
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	t.log = t.log.With("component", "transport")
	if t.period <= 0 {
		t.period = DefaultPeriod
	}
	if t.tx == nil {
		t.tx = NewQueue[message.Message](DefaultQueueCapacity)
	}
	if t.rx == nil {
		t.rx = NewQueue[message.Message](DefaultQueueCapacity)
	}
	t.stats.Reset()
	return t
}

// Connect opens port at baud, replacing any current link. On failure the
// Transport stays disconnected and Connect returns false.
func (t *Transport) Connect(port string, baud int) bool {
	t.mu.Lock()
	if t.link != nil {
		t.link.Close()
		t.link = nil
	}
	t.state = Connecting
	t.mu.Unlock()

	l, err := t.open(port, baud, ReadTimeout(message.PacketSize, baud))

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.state = Disconnected
		t.updateStats(func(s *Statistics) { s.ConnectFailures++ })
		t.log.Warn("failed to connect", "port", port, "baud", baud, "error", err)
		return false
	}

	if t.link != nil {
		t.link.Close()
	}
	t.link = l
	t.state = Connected
	t.port, t.baud = port, baud
	t.updateStats(func(s *Statistics) { s.Connects++ })
	t.log.Debug("connected", "port", port, "baud", baud)
	return true
}

// IsConnected reports whether a link is open.
func (t *Transport) IsConnected() bool {
	return t.State() == Connected
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Parameters returns the port and baud rate of the open link.
func (t *Transport) Parameters() (port string, baud int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link == nil {
		return "", 0, ErrNotConnected
	}
	return t.port, t.baud, nil
}

// PutMessage queues m for transmission. It never blocks; when the TX queue is
// full the oldest queued message is dropped.
func (t *Transport) PutMessage(m message.Message) {
	if m == nil {
		return
	}
	if t.tx.Put(m) {
		t.updateStats(func(s *Statistics) { s.DroppedTX++ })
		t.log.Warn("TX queue full, dropped oldest message", "capacity", t.tx.Cap())
	}
}

// GetMessage returns the oldest received message, if any.
func (t *Transport) GetMessage() (message.Message, bool) {
	return t.rx.Get()
}

// WaitMessage blocks until a message is received or ctx is done.
func (t *Transport) WaitMessage(ctx context.Context) (message.Message, error) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		if m, ok := t.rx.Get(); ok {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pending returns the number of messages waiting in the TX and RX queues.
func (t *Transport) Pending() (tx, rx int) {
	return t.tx.Len(), t.rx.Len()
}

// Statistics returns a snapshot of the counters with rates filled in.
func (t *Transport) Statistics() Statistics {
	t.statsMu.Lock()
	s := t.stats
	t.statsMu.Unlock()
	s.CalculateRates()
	return s
}

// ResetStatistics zeroes every counter.
func (t *Transport) ResetStatistics() {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.stats.Reset()
}

func (t *Transport) updateStats(f func(s *Statistics)) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	f(&t.stats)
	t.stats.LastUpdateTime = time.Now()
}

// ============================================================================
// Worker loop
// ============================================================================

// Start runs the worker loop in a new goroutine.
func (t *Transport) Start() {
	go t.Run(context.Background())
}

// Stop asks the worker loop to exit at the next iteration boundary. The loop
// closes the link before Done is closed. Stopping a Transport whose loop never
// ran closes the link and Done at once; a later Run returns ErrStopped.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	if t.running.CompareAndSwap(false, true) {
		t.closeLink()
		close(t.done)
	}
}

// Done is closed once Run has returned, or by Stop when Run was never called.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Run polls every period until Stop is called or ctx is done.
func (t *Transport) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		select {
		case <-t.stop:
			return ErrStopped
		default:
		}
		return ErrAlreadyRunning
	}
	defer close(t.done)
	defer t.closeLink()

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stop:
			return nil
		case <-ticker.C:
		}

		// A stop requested while sleeping wins over another iteration.
		select {
		case <-t.stop:
			return nil
		default:
		}

		t.Poll()
	}
}

// Poll runs one iteration of the worker loop: flush the TX queue, then read
// at most one frame.
func (t *Transport) Poll() {
	t.processTX()
	t.processRX()
}

func (t *Transport) current() Link {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link
}

func (t *Transport) closeLink() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link != nil {
		if err := t.link.Close(); err != nil {
			t.log.Debug("error closing link", "error", err)
		}
		t.link = nil
	}
	t.state = Disconnected
}

// teardown forgets l after an I/O failure. A link replaced by a concurrent
// Connect is left alone.
func (t *Transport) teardown(l Link, cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link != l {
		return
	}
	l.Close()
	t.link = nil
	t.state = Disconnected
	t.updateStats(func(s *Statistics) { s.Disconnects++ })
	t.log.Warn("link lost", "port", t.port, "error", cause)
}

// processTX writes a snapshot of the TX queue. Messages queued while it runs
// wait for the next iteration. Nothing is drained while disconnected.
func (t *Transport) processTX() {
	l := t.current()
	if l == nil {
		return
	}

	batch := t.tx.Drain()
	buf := make([]byte, message.PacketSize)
	for i, m := range batch {
		message.EncodeTo(buf, m)
		if err := writeFull(l, buf); err != nil {
			abandoned := len(batch) - i
			t.updateStats(func(s *Statistics) {
				s.WriteErrors++
				s.AbandonedTX += uint64(abandoned)
			})
			t.log.Warn("write failed, abandoning queued messages", "error", err, "abandoned", abandoned)
			t.teardown(l, err)
			return
		}
		t.updateStats(func(s *Statistics) { s.FramesSent++ })
		t.log.Debug("sent", "kind", m.Kind())
		if t.observer != nil {
			t.observer(Outbound, m)
		}
	}
}

// processRX reads one frame. Frames of the wrong size are discarded, never
// carried over to the next iteration.
func (t *Transport) processRX() {
	l := t.current()
	if l == nil {
		return
	}

	var data []byte
	var err error
	if fl, ok := l.(FrameLink); ok {
		data, err = fl.ReadFrame()
	} else {
		data, err = readStream(l)
	}
	if err != nil {
		t.updateStats(func(s *Statistics) { s.ReadErrors++ })
		if len(data) > 0 {
			t.log.Debug("discarding partial frame after read error", "bytes", len(data))
		}
		t.teardown(l, err)
		return
	}

	switch {
	case len(data) == 0:
		return
	case len(data) != message.PacketSize:
		t.updateStats(func(s *Statistics) { s.MalformedFrames++ })
		t.log.Warn("received packet of wrong size, discarded", "bytes", len(data), "data", fmt.Sprintf("% X", data))
		return
	}

	m, err := message.Decode(data)
	if err != nil {
		// Unreachable for a full frame.
		t.log.Error("decode failed", "error", err)
		return
	}

	if t.rx.Put(m) {
		t.updateStats(func(s *Statistics) { s.DroppedRX++ })
		t.log.Warn("RX queue full, dropped oldest message", "capacity", t.rx.Cap())
	}
	t.updateStats(func(s *Statistics) { s.FramesReceived++ })
	t.log.Debug("received", "kind", m.Kind())
	if t.observer != nil {
		t.observer(Inbound, m)
	}
}

// readStream reads until a full frame arrived or a read returned nothing.
func readStream(l Link) ([]byte, error) {
	frame := make([]byte, message.PacketSize)
	n := 0
	for n < len(frame) {
		r, err := l.Read(frame[n:])
		n += r
		if err != nil {
			return frame[:n], err
		}
		if r == 0 {
			break
		}
	}
	return frame[:n], nil
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
	}
	return nil
}
