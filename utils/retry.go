package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds configuration for retry mechanisms
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries uint64
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// Jitter is the randomization factor applied to each delay
	Jitter float64
	// RetryCondition decides whether an error is transient; nil retries nothing
	RetryCondition func(error) bool
}

// DefaultRetryConfig retries a transient failure once after a short backoff.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        1,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// RetryExecutor handles retry logic
type RetryExecutor struct {
	config *RetryConfig
	logger *Logger
}

// NewRetryExecutor creates a new retry executor
func NewRetryExecutor(config *RetryConfig, logger *Logger) *RetryExecutor {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &RetryExecutor{config: config, logger: logger}
}

// Execute runs operation, retrying errors accepted by RetryCondition.
// Errors are returned as produced by the operation, never wrapped. If ctx ends
// while waiting to retry, ctx.Err() is returned.
func (re *RetryExecutor) Execute(ctx context.Context, operation func(context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				re.logger.WithSource("retry_executor").Info("Operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		if !re.isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		re.logger.WithSource("retry_executor").Warn("Operation failed, retrying", map[string]interface{}{
			"error":       err.Error(),
			"attempt":     attempt,
			"max_retries": re.config.MaxRetries,
			"retry_delay": delay.String(),
		})
	}

	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(re.newBackOff(), re.config.MaxRetries), ctx), notify)
}

func (re *RetryExecutor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = re.config.InitialDelay
	b.MaxInterval = re.config.MaxDelay
	b.Multiplier = re.config.BackoffMultiplier
	b.RandomizationFactor = re.config.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// isRetryable determines if an error should trigger a retry
func (re *RetryExecutor) isRetryable(err error) bool {
	if re.config.RetryCondition == nil {
		return false
	}
	return re.config.RetryCondition(err)
}
