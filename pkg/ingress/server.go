// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ingress accepts names over TCP, one per connection, and hands them
// to a Handler. It is meant for local scripts: no authentication, no framing
// beyond "connect, write a name, disconnect".
package ingress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults
const (
	DefaultAddr        = "127.0.0.1:9999"
	DefaultReadTimeout = 5 * time.Second
	MaxCommandSize     = 1024
)

// Replies written back before the connection is closed.
const (
	ReplyOK      = "ok"
	ReplyUnknown = "unknown"
	ReplyInvalid = "invalid"
)

// ErrInvalidCommand is returned for empty or non-printable commands.
var ErrInvalidCommand = errors.New("invalid command")

// Handler receives one validated name. It reports whether the name was
// known.
type Handler func(name string) bool

// Options configures a Server.
type Options struct {
	Logger      *slog.Logger
	ReadTimeout time.Duration // defaults to DefaultReadTimeout
}

// Server is the TCP command listener.
type Server struct {
	addr        string
	handler     Handler
	log         *slog.Logger
	readTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a Server for addr. An empty addr means DefaultAddr.
func New(addr string, handler Handler, opts Options) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:        addr,
		handler:     handler,
		log:         opts.Logger,
		readTimeout: opts.ReadTimeout,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "ingress")
	if s.readTimeout <= 0 {
		s.readTimeout = DefaultReadTimeout
	}
	return s
}

// Listen binds the listening socket. Serve calls it if needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = l
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done, then waits for open
// connections to finish.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	defer s.wg.Wait()

	s.log.Info("listening", "addr", l.Addr().String())

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	log := s.log.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	raw, err := readCommand(conn)
	if err != nil {
		log.Warn("failed to read command", "error", err)
		return
	}

	name, err := ParseCommand(raw)
	if err != nil {
		log.Warn("rejected command", "error", err)
		s.reply(conn, ReplyInvalid)
		return
	}

	log.Debug("incoming command", "name", name)
	if s.handler(name) {
		s.reply(conn, ReplyOK)
	} else {
		s.reply(conn, ReplyUnknown)
	}
}

// readCommand reads until EOF, a newline, MaxCommandSize bytes or the
// deadline. Data read before a timeout still counts.
func readCommand(r io.Reader) ([]byte, error) {
	buf := make([]byte, MaxCommandSize)
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if bytes.IndexByte(buf[:n], '\n') >= 0 {
			break
		}
		if err != nil {
			var ne net.Error
			if errors.Is(err, io.EOF) || (errors.As(err, &ne) && ne.Timeout() && n > 0) {
				break
			}
			return nil, err
		}
	}
	return buf[:n], nil
}

// ParseCommand trims surrounding whitespace and requires the remainder to be
// non-empty printable ASCII.
func ParseCommand(raw []byte) (string, error) {
	name := strings.TrimSpace(string(raw))
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCommand)
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 0x20 || c > 0x7E {
			return "", fmt.Errorf("%w: byte 0x%02X at %d", ErrInvalidCommand, c, i)
		}
	}
	return name, nil
}

func (s *Server) reply(conn net.Conn, text string) {
	conn.SetWriteDeadline(time.Now().Add(s.readTimeout))
	io.WriteString(conn, text+"\n")
}

// Trigger connects to a Server at addr, sends name and returns the reply.
func Trigger(ctx context.Context, addr, name string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, name+"\n"); err != nil {
		return "", fmt.Errorf("failed to send: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}

	resp, err := io.ReadAll(io.LimitReader(conn, MaxCommandSize))
	if err != nil {
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	return strings.TrimSpace(string(resp)), nil
}
