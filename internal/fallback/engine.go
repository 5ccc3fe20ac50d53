// Package fallback retries a fetch across an ordered list of extraction
// strategies and classifies what went wrong.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/logger"
)

// Decision is what the engine does after a failed attempt.
type Decision int

const (
	Continue Decision = iota
	Abort
)

func (d Decision) String() string {
	if d == Abort {
		return "abort"
	}
	return "continue"
}

// decisions is keyed by failure class. Classes not listed continue.
var decisions = map[domain.FailureClass]Decision{
	domain.FailureAccessDenied:     Continue,
	domain.FailureExtractionFailed: Continue,
	domain.FailureUnknown:          Continue,
	domain.FailureInvalidInput:     Abort,
	domain.FailureNotFound:         Abort,
}

// Decide looks up the decision for a class.
func Decide(class domain.FailureClass) Decision {
	if d, ok := decisions[class]; ok {
		return d
	}
	return Continue
}

// Outcome is the tagged result of a single attempt.
type Outcome[T any] struct {
	Value T
	Class domain.FailureClass
	Err   error
}

// OK reports whether the attempt succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Succeeded builds a success outcome.
func Succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Failed builds a failure outcome, classifying err.
func Failed[T any](err error) Outcome[T] {
	return Outcome[T]{Class: Classify(err), Err: err}
}

// Result is a successful Run.
type Result[T any] struct {
	Value    T
	Strategy domain.ExtractionStrategy
	Attempts int
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Engine holds the retry policy. It has no per-run state and is safe for
// concurrent use.
type Engine struct {
	delay time.Duration
	sleep Sleeper
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleeper replaces the inter-attempt wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) {
		if s != nil {
			e.sleep = s
		}
	}
}

// NewEngine creates an Engine that waits delay between failed attempts.
func NewEngine(delay time.Duration, opts ...Option) *Engine {
	e := &Engine{delay: delay, sleep: contextSleep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Delay returns the configured wait between attempts.
func (e *Engine) Delay() time.Duration {
	return e.delay
}

// Run tries op with each strategy in order until one succeeds.
// Parameters:
//   - ctx: cancels the loop between attempts
//   - e: retry policy
//   - strategies: ordered, non-empty
//   - op: the fetch, parameterized by strategy
//
// Returns:
//   - the value and the strategy that produced it
//   - a *Error for the aborting failure, or the last failure when every
//     strategy was exhausted
func Run[T any](ctx context.Context, e *Engine, strategies []domain.ExtractionStrategy, op func(context.Context, domain.ExtractionStrategy) (T, error)) (Result[T], error) {
	var zero Result[T]
	if len(strategies) == 0 {
		return zero, ErrNoStrategies
	}

	var last *Error
	for i, strategy := range strategies {
		attempt := i + 1
		if i > 0 {
			if err := e.sleep(ctx, e.delay); err != nil {
				return zero, interrupted(err, last)
			}
		}
		if err := ctx.Err(); err != nil {
			return zero, interrupted(err, last)
		}

		attemptCtx := logger.SetStrategy(ctx, strategy.Name)
		v, err := op(attemptCtx, strategy)
		outcome := Succeeded(v)
		if err != nil {
			outcome = Failed[T](err)
		}

		if outcome.OK() {
			if attempt > 1 {
				logger.With(logger.Fields{logger.FieldStrategy: strategy.Name}).
					WithAttempt(attempt).
					Info(ctx, "Fetch succeeded after fallback")
			}
			return Result[T]{Value: outcome.Value, Strategy: strategy, Attempts: attempt}, nil
		}

		last = &Error{
			Class:    outcome.Class,
			Strategy: strategy.Name,
			Attempts: attempt,
			Message:  rawMessage(outcome.Err),
			Err:      outcome.Err,
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, interrupted(ctxErr, last)
		}

		decision := Decide(outcome.Class)
		logger.With(logger.Fields{
			logger.FieldStrategy: strategy.Name,
			"class":              string(outcome.Class),
			"decision":           decision.String(),
		}).WithAttempt(attempt).Warn(ctx, "Fetch attempt failed: %s", last.Message)

		if decision == Abort {
			return zero, last
		}
	}
	return zero, last
}

// rawMessage unwraps an already classified error so its message is not
// prefixed twice.
func rawMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}

func interrupted(err error, last *Error) error {
	if last != nil {
		return fmt.Errorf("fallback interrupted after %s: %w", last.Strategy, err)
	}
	return fmt.Errorf("fallback interrupted: %w", err)
}
