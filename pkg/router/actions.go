// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Thermoquad/beacon/pkg/message"
)

// DefaultCommandTimeout bounds CommandAction when no timeout is given.
const DefaultCommandTimeout = 30 * time.Second

// SendAction transmits the code bound to target.
func SendAction(target string) Action {
	return func(r *Router, name string) error {
		if !r.SendByName(target) {
			return fmt.Errorf("%w: %q", ErrUnknownName, target)
		}
		return nil
	}
}

// MessageAction queues msgs in order.
func MessageAction(msgs ...message.Message) Action {
	return func(r *Router, name string) error {
		for _, m := range msgs {
			r.SendMessage(m)
		}
		return nil
	}
}

// CommandAction starts argv in the background and kills it after timeout.
// The action itself returns as soon as the process was scheduled; the
// outcome is logged.
func CommandAction(argv []string, timeout time.Duration) Action {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	argv = append([]string(nil), argv...)

	return func(r *Router, name string) error {
		if len(argv) == 0 {
			return errors.New("empty command")
		}

		r.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			log := r.Logger().With("action", name, "command", argv[0])
			start := time.Now()
			output, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
			if err != nil {
				log.Error("command failed",
					"error", err,
					"output", strings.TrimSpace(string(output)))
				return
			}
			log.Debug("command finished",
				"elapsed", time.Since(start),
				"output", strings.TrimSpace(string(output)))
		})
		return nil
	}
}

// LogAction logs text at info level.
func LogAction(text string) Action {
	return func(r *Router, name string) error {
		r.Logger().Info(text, "action", name)
		return nil
	}
}

// Chain runs actions in order. Every action runs even if an earlier one
// failed; the errors are joined.
func Chain(actions ...Action) Action {
	return func(r *Router, name string) error {
		var errs []error
		for _, a := range actions {
			if err := a(r, name); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
