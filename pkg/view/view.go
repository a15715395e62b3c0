// Package view tracks which screen is active and owns the lifetime of
// whatever that screen runs, refresh timers included. Navigating away
// from a screen, or closing the router, cancels it and waits for it to
// return before anything else happens.
package view

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type Kind int

const (
	List Kind = iota
	Add
	Code
)

func (k Kind) String() string {
	switch k {
	case List:
		return "list"
	case Add:
		return "add"
	case Code:
		return "code"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// State identifies a screen. Account is only set for Code.
type State struct {
	Kind    Kind
	Account string
}

func ListState() State               { return State{Kind: List} }
func AddState() State                { return State{Kind: Add} }
func CodeState(account string) State { return State{Kind: Code, Account: account} }

func (s State) String() string {
	if s.Kind == Code {
		return s.Kind.String() + "(" + s.Account + ")"
	}
	return s.Kind.String()
}

// Screen is the running content of a state. Run returns when the screen is
// finished or ctx is cancelled.
type Screen interface {
	Run(ctx context.Context) error
}

// ScreenFunc adapts a function to the Screen interface.
type ScreenFunc func(ctx context.Context) error

func (f ScreenFunc) Run(ctx context.Context) error { return f(ctx) }

// Factory builds the screen for a state.
type Factory func(State) (Screen, error)

var ErrClosed = errors.New("router closed")

// Router runs at most one screen at a time.
type Router struct {
	factory Factory
	logger  *slog.Logger

	// nav serializes Navigate and Close; mu guards the fields below
	nav    sync.Mutex
	mu     sync.Mutex
	state  State
	active bool
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	closed bool
}

func NewRouter(factory Factory, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{factory: factory, logger: logger}
}

// Current returns the active state and whether its screen is running.
func (r *Router) Current() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.active
}

// Navigate stops the active screen and starts the one for state. The new
// screen runs until it returns, the router navigates again, ctx is
// cancelled, or Close is called.
func (r *Router) Navigate(ctx context.Context, state State) error {
	r.nav.Lock()
	defer r.nav.Unlock()

	r.mu.Lock()
	var closed = r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	r.stop()

	screen, err := r.factory(state)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s", state)
	}

	screenCtx, cancel := context.WithCancel(ctx)
	var done = make(chan struct{})
	r.mu.Lock()
	r.state, r.active, r.cancel, r.done, r.err = state, true, cancel, done, nil
	r.mu.Unlock()
	r.logger.Debug("navigate", slog.String("state", state.String()))

	go func() {
		defer close(done)
		err := screen.Run(screenCtx)
		if cause := screenCtx.Err(); cause != nil && errors.Is(err, cause) {
			// stopped by the router or the parent context
			err = nil
		}
		if err != nil {
			r.logger.Warn("screen failed", slog.String("state", state.String()), slog.Any("error", err))
		}
		r.mu.Lock()
		if r.done == done {
			r.active = false
			r.err = err
		}
		r.mu.Unlock()
	}()
	return nil
}

// Wait blocks until the active screen returns and reports its error. It
// returns nil if the screen was replaced or stopped by the router.
func (r *Router) Wait() error {
	r.mu.Lock()
	var done = r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != done {
		return nil
	}
	return r.err
}

// Close stops the active screen and rejects further navigation.
func (r *Router) Close() {
	r.nav.Lock()
	defer r.nav.Unlock()
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stop()
}

// stop cancels the running screen and waits for it to return. Callers
// hold r.nav.
func (r *Router) stop() {
	r.mu.Lock()
	var cancel, done = r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}

// Ticker calls fn immediately and then every interval until ctx is done or
// fn returns an error. The timer is stopped before Ticker returns.
func Ticker(ctx context.Context, interval time.Duration, fn func(now time.Time) error) error {
	if interval <= 0 {
		return errors.Errorf("invalid interval %s", interval)
	}
	if err := fn(time.Now()); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := fn(now); err != nil {
				return err
			}
		}
	}
}
