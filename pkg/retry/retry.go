package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "github.com/Yuvi9587/Kemono-Downloader/pkg/errors"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func() (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// Halt, when set, is polled before each attempt and while waiting out
	// a backoff delay. A true result abandons the operation without
	// aborting an in-flight request.
	Halt func() bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context for cancellation
	Context context.Context
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		OnRetry:     nil,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// APIConfig returns the retry configuration used for feed and post requests.
// Zero values fall back to three attempts with a 5 second base delay
// doubling between attempts.
func APIConfig(ctx context.Context, attempts int, baseDelay time.Duration, log logger.Logger) *Config {
	if attempts <= 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}
	return &Config{
		MaxAttempts: attempts,
		Backoff: &ExponentialBackoff{
			BaseDelay:  baseDelay,
			MaxDelay:   60 * time.Second,
			Multiplier: 2.0,
		},
		RetryIf: DefaultRetryIf,
		Context: ctx,
		Logger:  log,
	}
}

// DefaultRetryIf is the default retry predicate
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}

	// Context errors are never retried
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Default to retrying unknown errors
	return true
}

// Do executes an operation with retry logic
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	attempt := 0

	for {
		attempt++

		if cfg.Halt != nil && cfg.Halt() {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("operation halted", map[string]interface{}{
					"attempt": attempt,
				})
			}
			if lastErr != nil {
				return errs.Wrap(errs.ErrorTypeCancelled, "operation halted", lastErr)
			}
			return errs.New(errs.ErrorTypeCancelled, "operation halted")
		}

		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt - 1,
					"last_error": lastErr.Error(),
				})
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		err := op()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		lastErr = err

		if !cfg.RetryIf(err) {
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return err
		}

		delay := cfg.Backoff.NextDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}

		if err := cfg.wait(delay); err != nil {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("retry cancelled", map[string]interface{}{
					"attempt": attempt,
					"reason":  err.Error(),
				})
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// wait sleeps out a backoff delay. With a Halt predicate the delay is
// sliced so a halt request interrupts the wait within a quarter second.
func (cfg *Config) wait(delay time.Duration) error {
	if cfg.Halt == nil {
		return Wait(cfg.Context, delay)
	}

	const slice = 250 * time.Millisecond
	for remaining := delay; remaining > 0; remaining -= slice {
		if cfg.Halt() {
			return errs.New(errs.ErrorTypeCancelled, "operation halted")
		}
		step := remaining
		if step > slice {
			step = slice
		}
		if err := Wait(cfg.Context, step); err != nil {
			return err
		}
	}
	if cfg.Halt() {
		return errs.New(errs.ErrorTypeCancelled, "operation halted")
	}
	return nil
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, cfg)

	return result, err
}
