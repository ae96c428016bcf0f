// Package strategy runs ordered fallbacks. Each attempt is recorded as a
// tagged result so callers can log or report what was tried.
package strategy

import (
	"context"
	"errors"
	"fmt"
)

// Strategy is one way of producing a T.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Result is the outcome of a single attempt.
type Result[T any] struct {
	Name  string
	Value T
	Err   error
}

func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Outcome collects every attempt made by a chain.
type Outcome[T any] struct {
	Attempts []Result[T]
}

// Winner returns the successful attempt, if any.
func (o Outcome[T]) Winner() (Result[T], bool) {
	for _, r := range o.Attempts {
		if r.OK() {
			return r, true
		}
	}
	return Result[T]{}, false
}

// Err joins the failures of all attempts, or returns nil when one succeeded.
func (o Outcome[T]) Err() error {
	if _, ok := o.Winner(); ok {
		return nil
	}
	if len(o.Attempts) == 0 {
		return ErrNoStrategies
	}
	errs := make([]error, 0, len(o.Attempts))
	for _, r := range o.Attempts {
		errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
	}
	return errors.Join(errs...)
}

// LastErr returns the error of the final failed attempt.
func (o Outcome[T]) LastErr() error {
	if len(o.Attempts) == 0 {
		return ErrNoStrategies
	}
	return o.Attempts[len(o.Attempts)-1].Err
}

var ErrNoStrategies = errors.New("no strategies configured")

// Chain is an ordered list of strategies.
type Chain[T any] []Strategy[T]

// Run tries strategies in order and stops at the first success. The optional
// onAttempt hook sees every result as it is produced. A cancelled context
// stops the chain before the next attempt.
func (c Chain[T]) Run(ctx context.Context, onAttempt func(Result[T])) (T, Outcome[T]) {
	var outcome Outcome[T]
	var zero T

	for _, s := range c {
		if err := ctx.Err(); err != nil {
			outcome.Attempts = append(outcome.Attempts, Result[T]{Name: s.Name, Err: err})
			break
		}

		value, err := s.Run(ctx)
		result := Result[T]{Name: s.Name, Value: value, Err: err}
		outcome.Attempts = append(outcome.Attempts, result)
		if onAttempt != nil {
			onAttempt(result)
		}
		if err == nil {
			return value, outcome
		}
	}
	return zero, outcome
}
