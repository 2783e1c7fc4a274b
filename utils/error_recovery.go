package utils

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Recover logs a panic in a background goroutine instead of crashing the
// process. It must be deferred directly.
func Recover(logger *Logger, source string) {
	r := recover()
	if r == nil {
		return
	}
	if logger == nil {
		logger = GetLogger()
	}
	stack := make([]byte, 4096)
	stack = stack[:runtime.Stack(stack, false)]
	logger.WithSource(source).Error("Panic recovered", fmt.Errorf("panic: %v", r), map[string]interface{}{
		"stack_trace": string(stack),
	})
}

// Go runs fn in a goroutine guarded by Recover.
func Go(logger *Logger, source string, fn func()) {
	go func() {
		defer Recover(logger, source)
		fn()
	}()
}

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// GracefulShutdown runs registered shutdown steps in reverse order of
// registration under a shared deadline.
type GracefulShutdown struct {
	steps   []shutdownStep
	timeout time.Duration
	logger  *Logger
	mu      sync.Mutex
}

// NewGracefulShutdown creates a new graceful shutdown handler
func NewGracefulShutdown(timeout time.Duration, logger *Logger) *GracefulShutdown {
	if logger == nil {
		logger = GetLogger()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GracefulShutdown{timeout: timeout, logger: logger}
}

// Register adds a named shutdown step.
func (gs *GracefulShutdown) Register(name string, fn func(context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.steps = append(gs.steps, shutdownStep{name: name, fn: fn})
}

// Shutdown runs every step, last registered first. A failing or panicking
// step does not stop the rest; their errors are joined. Steps not reached
// before the deadline are skipped.
func (gs *GracefulShutdown) Shutdown(ctx context.Context) error {
	gs.mu.Lock()
	steps := append([]shutdownStep(nil), gs.steps...)
	gs.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, gs.timeout)
	defer cancel()

	log := gs.logger.WithSource("graceful_shutdown")
	log.Info("Starting graceful shutdown", map[string]interface{}{
		"steps":   len(steps),
		"timeout": gs.timeout.String(),
	})

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			log.Warn("Shutdown timeout reached", map[string]interface{}{"remaining_steps": i + 1})
			errs = append(errs, err)
			break
		}
		if err := gs.run(ctx, steps[i]); err != nil {
			log.Error("Shutdown step failed", err, map[string]interface{}{"step": steps[i].name})
			errs = append(errs, fmt.Errorf("%s: %w", steps[i].name, err))
		}
	}
	return errors.Join(errs...)
}

func (gs *GracefulShutdown) run(ctx context.Context, step shutdownStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.fn(ctx)
}
