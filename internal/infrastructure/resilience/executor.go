package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what a failed attempt means.
// Retryable errors are attempted again; RecordFailure counts against the breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// RetryOn retries and records failures for errors matching any target.
// Everything else fails fast without tripping the breaker.
func RetryOn(targets ...error) ErrorClassifier {
	return func(err error) ErrorClassification {
		for _, target := range targets {
			if errors.Is(err, target) {
				return ErrorClassification{Retryable: true, RecordFailure: true}
			}
		}
		return ErrorClassification{}
	}
}

func failFast(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

// RetryObserver is notified before each backoff sleep.
type RetryObserver func(operation string, attempt int, err error)

// Executor guards outbound calls (ollama, ledger, nats) with retries and a
// breaker per operation name.
type Executor struct {
	cfg     Config
	onRetry RetryObserver

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: map[string]*gobreaker.CircuitBreaker[struct{}]{},
	}
}

// WithRetryObserver registers a hook used for retry metrics.
func (e *Executor) WithRetryObserver(observer RetryObserver) *Executor {
	e.onRetry = observer
	return e
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	return e.ExecuteWithPolicy(ctx, operation, e.cfg.Retry, fn, classify)
}

// ExecuteWithPolicy runs fn under the operation's breaker with a caller
// supplied retry policy. The breaker sees one outcome per call, not per attempt.
func (e *Executor) ExecuteWithPolicy(
	ctx context.Context,
	operation string,
	policy RetryPolicy,
	fn func(context.Context) error,
	classify ErrorClassifier,
) error {
	if fn == nil {
		return errors.New("resilience: nil operation")
	}
	if classify == nil {
		classify = failFast
	}
	name := strings.TrimSpace(operation)
	if name == "" {
		name = "unnamed"
	}
	run := attemptLoop{
		operation: name,
		policy:    policy.normalize(e.cfg.Retry),
		classify:  classify,
		onRetry:   e.onRetry,
	}

	if !e.cfg.Breaker.Enabled {
		return run.do(ctx, fn)
	}
	_, err := e.breaker(name, classify).Execute(func() (struct{}, error) {
		return struct{}{}, run.do(ctx, fn)
	})
	return err
}

type attemptLoop struct {
	operation string
	policy    RetryPolicy
	classify  ErrorClassifier
	onRetry   RetryObserver
}

func (l attemptLoop) do(ctx context.Context, fn func(context.Context) error) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= l.policy.MaxAttempts || !l.classify(err).Retryable {
			return err
		}

		wait := l.policy.backoff(attempt)
		slog.Warn("retry_attempt",
			"operation", l.operation,
			"attempt", attempt,
			"max_attempts", l.policy.MaxAttempts,
			"backoff", wait.String(),
			"error", err,
		)
		if l.onRetry != nil {
			l.onRetry(l.operation, attempt, err)
		}
		if !sleep(ctx, wait) {
			return err
		}
	}
}

// sleep reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
