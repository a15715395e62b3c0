package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/jbester/otpkeeper/pkg/view"
)

var timeNow = time.Now

type addOptions struct {
	name   string
	strict bool
}

func (a *app) screens(opts addOptions) view.Factory {
	return func(state view.State) (view.Screen, error) {
		switch state.Kind {
		case view.List:
			return view.ScreenFunc(a.listScreen), nil
		case view.Add:
			return view.ScreenFunc(func(ctx context.Context) error {
				return a.addScreen(ctx, opts)
			}), nil
		case view.Code:
			secret, err := a.db.Secret(state.Account)
			if err != nil {
				return nil, err
			}
			return view.ScreenFunc(func(ctx context.Context) error {
				return a.codeScreen(ctx, secret)
			}), nil
		}
		return nil, errors.Errorf("unknown view %v", state)
	}
}

func (a *app) listScreen(context.Context) error {
	var names = a.db.Names()
	if len(names) == 0 {
		fmt.Fprintln(a.out, "No accounts")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(a.out, name)
	}
	return nil
}

func (a *app) addScreen(ctx context.Context, opts addOptions) error {
	var name = opts.name
	if name == "" {
		n, err := a.ask(ctx, "Account name: ")
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "cannot process input")
		}
		name = n
	}
	if _, err := a.db.Secret(name); err == nil {
		return errors.Errorf("account named '%v' already exists", name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	secret, err := a.ask(ctx, "Secret: ")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "cannot process input")
	}
	return a.addAccount(name, secret, opts.strict)
}

// codeScreen redraws the code and its remaining lifetime on every refresh,
// always from the live clock. A generation failure ends the screen instead
// of leaving a stale code on display.
func (a *app) codeScreen(ctx context.Context, secret string) error {
	defer fmt.Fprintln(a.out)
	return view.Ticker(ctx, a.cfg.Refresh, func(time.Time) error {
		var now = timeNow()
		code, err := a.generator.Generate(ctx, secret, now)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprint(a.out, "\runable to generate code")
			return errors.Wrap(err, "unable to generate code")
		}
		fmt.Fprintf(a.out, "\r%s  %2ds ", code, countdown(a.generator.Remaining(now)))
		return nil
	})
}

// countdown is the whole seconds left, truncated so the display reaches 0s
// before the code changes.
func countdown(remaining time.Duration) int {
	if remaining < 0 {
		return 0
	}
	return int(remaining / time.Second)
}
