// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package router turns received IR codes into named actions and names into
// IR codes to transmit.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/beacon/pkg/message"
)

// Default loop timing
const (
	DefaultReconnectDelay = time.Second
	DefaultIdleDelay      = 10 * time.Millisecond
)

// ErrUnknownName is returned by actions that refer to a name missing from the
// CodeBook.
var ErrUnknownName = errors.New("unknown code name")

// Transport is the part of link.Transport the Router drives.
type Transport interface {
	IsConnected() bool
	Connect(port string, baud int) bool
	PutMessage(m message.Message)
	GetMessage() (message.Message, bool)
}

// Action is invoked with the Router and the name it is bound to. Actions run
// on the router loop; long work belongs in Router.Go.
type Action func(r *Router, name string) error

// EventType classifies an Event.
type EventType int

const (
	EventReceived    EventType = iota // any message taken from RX
	EventAction                       // an action ran
	EventActionError                  // an action returned an error
	EventUnknownCode                  // IR code with no name
	EventNoAction                     // named code with no action
	EventSent                         // message queued for TX
	EventUnknownName                  // SendByName miss
	EventReconnect                    // reconnect attempt
)

func (e EventType) String() string {
	switch e {
	case EventReceived:
		return "received"
	case EventAction:
		return "action"
	case EventActionError:
		return "action error"
	case EventUnknownCode:
		return "unknown code"
	case EventNoAction:
		return "no action"
	case EventSent:
		return "sent"
	case EventUnknownName:
		return "unknown name"
	case EventReconnect:
		return "reconnect"
	}
	return "unknown"
}

// Event describes something the Router did. Fields not relevant to Type are
// zero.
type Event struct {
	Type    EventType
	Name    string
	Message message.Message
	Err     error
	OK      bool // EventReconnect: whether Connect succeeded
}

// Options configures a Router.
type Options struct {
	Port           string
	Baud           int
	Logger         *slog.Logger
	ReconnectDelay time.Duration // defaults to DefaultReconnectDelay
	IdleDelay      time.Duration // defaults to DefaultIdleDelay

	// OnEvent is called synchronously from whichever goroutine caused the
	// event. It must not block.
	OnEvent func(Event)
}

// Router owns the dispatch loop.
type Router struct {
	transport Transport
	codes     *CodeBook
	actions   map[string]Action

	port           string
	baud           int
	log            *slog.Logger
	reconnectDelay time.Duration
	idleDelay      time.Duration
	onEvent        func(Event)

	wg sync.WaitGroup
}

// New creates a Router. codes and actions may be nil.
func New(t Transport, codes *CodeBook, actions map[string]Action, opts Options) *Router {
	if codes == nil {
		codes, _ = NewCodeBook(nil)
	}
	r := &Router{
		transport:      t,
		codes:          codes,
		actions:        make(map[string]Action, len(actions)),
		port:           opts.Port,
		baud:           opts.Baud,
		log:            opts.Logger,
		reconnectDelay: opts.ReconnectDelay,
		idleDelay:      opts.IdleDelay,
		onEvent:        opts.OnEvent,
	}
	for name, a := range actions {
		r.actions[name] = a
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.log = r.log.With("component", "router")
	if r.reconnectDelay <= 0 {
		r.reconnectDelay = DefaultReconnectDelay
	}
	if r.idleDelay <= 0 {
		r.idleDelay = DefaultIdleDelay
	}
	return r
}

// Logger returns the router's logger, for use by actions.
func (r *Router) Logger() *slog.Logger {
	return r.log
}

// CodeBook returns the code book the router was built with.
func (r *Router) CodeBook() *CodeBook {
	return r.codes
}

// Run calls Step until ctx is done, sleeping for the delay Step asks for.
// It waits for background actions before returning.
func (r *Router) Run(ctx context.Context) error {
	defer r.Wait()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		delay := r.Step()
		if delay <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		timer.Reset(delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Step runs one loop iteration and returns how long to wait before the next.
//
// When the transport is down it tries to reconnect and asks for the
// reconnect delay. Then at most one received message is dispatched; when
// there was none the idle delay is returned.
func (r *Router) Step() time.Duration {
	var delay time.Duration

	if !r.transport.IsConnected() {
		r.log.Warn("no serial port, reconnecting", "port", r.port, "baud", r.baud)
		ok := r.transport.Connect(r.port, r.baud)
		r.emit(Event{Type: EventReconnect, Name: r.port, OK: ok})
		if ok {
			r.log.Info("reconnected", "port", r.port)
		}
		delay = r.reconnectDelay
	}

	m, ok := r.transport.GetMessage()
	if !ok {
		if delay == 0 {
			delay = r.idleDelay
		}
		return delay
	}

	r.Dispatch(m)
	return delay
}

// Dispatch handles one received message. A known IR code runs its bound
// action exactly once; anything else is only logged.
func (r *Router) Dispatch(m message.Message) {
	r.emit(Event{Type: EventReceived, Message: m})

	received, ok := m.(message.IRReceived)
	if !ok {
		r.log.Debug("ignoring message", "kind", m.Kind())
		return
	}

	name, ok := r.codes.Name(received.Code)
	if !ok {
		r.log.Debug("IR code not known", "code", received.Code.String())
		r.emit(Event{Type: EventUnknownCode, Message: m})
		return
	}

	r.log.Debug("IR name known", "name", name)
	r.PerformAction(name)
}

// PerformAction runs the action bound to name. It reports whether one was
// bound.
func (r *Router) PerformAction(name string) bool {
	action, ok := r.actions[name]
	if !ok {
		r.log.Debug("no action bound", "name", name)
		r.emit(Event{Type: EventNoAction, Name: name})
		return false
	}

	r.log.Info("performing action", "name", name)
	if err := action(r, name); err != nil {
		r.log.Error("action failed", "name", name, "error", err)
		r.emit(Event{Type: EventActionError, Name: name, Err: err})
		return true
	}
	r.emit(Event{Type: EventAction, Name: name})
	return true
}

// SendByName queues one IR_SEND for the code bound to name. Unknown names are
// logged and nothing is sent.
func (r *Router) SendByName(name string) bool {
	code, ok := r.codes.Code(name)
	if !ok {
		r.log.Warn("tried to send unknown IR code", "name", name)
		r.emit(Event{Type: EventUnknownName, Name: name})
		return false
	}
	r.log.Debug("sending IR", "name", name, "code", code.String())
	r.sendMessage(name, message.NewIRSend(code))
	return true
}

// SendCode queues one IR_SEND for code.
func (r *Router) SendCode(code message.IRCode) {
	r.SendMessage(message.NewIRSend(code))
}

// SendMessage queues m for transmission.
func (r *Router) SendMessage(m message.Message) {
	r.sendMessage("", m)
}

func (r *Router) sendMessage(name string, m message.Message) {
	r.transport.PutMessage(m)
	r.emit(Event{Type: EventSent, Name: name, Message: m})
}

// Go runs f in the background. Run waits for every such goroutine before
// returning.
func (r *Router) Go(f func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		f()
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) emit(e Event) {
	if r.onEvent != nil {
		r.onEvent(e)
	}
}

func (e Event) String() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Type, e.Name, e.Err)
	case e.Message != nil && e.Name != "":
		return fmt.Sprintf("%s %s: %s", e.Type, e.Name, message.FormatMessage(e.Message))
	case e.Message != nil:
		return fmt.Sprintf("%s: %s", e.Type, message.FormatMessage(e.Message))
	case e.Type == EventReconnect:
		return fmt.Sprintf("%s %s ok=%t", e.Type, e.Name, e.OK)
	}
	return fmt.Sprintf("%s %s", e.Type, e.Name)
}
