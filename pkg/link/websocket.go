// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrLinkClosed is returned when reading from a closed WebSocket link
var ErrLinkClosed = errors.New("websocket link closed")

// WebSocketLink carries packets over a WebSocket bridge, one binary message
// per packet. Text messages are ignored.
type WebSocketLink struct {
	conn    *websocket.Conn
	url     string
	timeout time.Duration

	incoming chan []byte
	done     chan struct{}
	readErr  error // valid once incoming is closed

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ FrameLink = (*WebSocketLink)(nil)

func newWebSocketLink(conn *websocket.Conn, rawURL string, timeout time.Duration) *WebSocketLink {
	w := &WebSocketLink{
		conn:     conn,
		url:      rawURL,
		timeout:  timeout,
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketLink) readLoop() {
	defer close(w.incoming)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.readErr = err
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.incoming <- data:
		case <-w.done:
			w.readErr = ErrLinkClosed
			return
		}
	}
}

// ReadFrame waits up to the read timeout for the next binary message and
// returns it whole, whatever its size.
func (w *WebSocketLink) ReadFrame() ([]byte, error) {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case data, ok := <-w.incoming:
		if !ok {
			if w.readErr != nil {
				return nil, w.readErr
			}
			return nil, ErrLinkClosed
		}
		return data, nil
	case <-timer.C:
		return nil, nil
	}
}

// Read returns at most one message. Bytes that do not fit in p are
// discarded.
func (w *WebSocketLink) Read(p []byte) (int, error) {
	data, err := w.ReadFrame()
	if err != nil {
		return 0, err
	}
	return copy(p, data), nil
}

func (w *WebSocketLink) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketLink) Close() error {
	err := ErrLinkClosed
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}

func (w *WebSocketLink) String() string {
	return "WebSocket: " + w.url
}

// WebSocketOpener dials a WebSocket bridge. Its Open method satisfies
// OpenFunc; port and baud are ignored.
type WebSocketOpener struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool

	// HandshakeTimeout defaults to 10 seconds.
	HandshakeTimeout time.Duration
}

// Open dials the bridge with HTTP Basic auth when credentials are set.
func (o WebSocketOpener) Open(_ string, _ int, readTimeout time.Duration) (Link, error) {
	u, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	handshake := o.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshake,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: o.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if o.Username != "" && o.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(o.Username + ":" + o.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshake+5*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, o.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketLink(conn, o.URL, readTimeout), nil
}
