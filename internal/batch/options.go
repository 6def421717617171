package batch

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Option is a functional option for configuring a batch run.
type Option func(*config)

type config struct {
	workers      int
	description  string
	showProgress bool
	sequential   bool
	log          *zap.Logger
	limiter      *rate.Limiter
	maxAttempts  uint64
	initialDelay time.Duration
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		workers:      1,
		description:  "processing",
		showProgress: true,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithWorkers sets the requested concurrency. Values below 1 are coerced
// to 1; values above the batch size are capped at the batch size.
func WithWorkers(n int) Option {
	return func(cfg *config) {
		cfg.workers = n
	}
}

// WithDescription sets the progress bar description for this batch.
func WithDescription(desc string) Option {
	return func(cfg *config) {
		if desc != "" {
			cfg.description = desc
		}
	}
}

// WithoutProgress disables the progress bar. Results are unaffected.
func WithoutProgress() Option {
	return func(cfg *config) {
		cfg.showProgress = false
	}
}

// WithSequential bypasses the worker pool and runs tasks one at a time in
// input order. Useful for debugging; output is identical to parallel mode
// for deterministic work functions.
func WithSequential() Option {
	return func(cfg *config) {
		cfg.sequential = true
	}
}

// WithLogger sets the logger used to report per-task failures.
// Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(cfg *config) {
		if log != nil {
			cfg.log = log
		}
	}
}

// WithRateLimit throttles task starts to tasksPerSecond with the given
// burst. If not specified, no rate limiting is applied.
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(cfg *config) {
		if tasksPerSecond > 0 && burst > 0 {
			cfg.limiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
		}
	}
}

// WithRetryPolicy retries a failing task up to maxAttempts times with
// exponential backoff starting at initialDelay. Panics are not retried.
func WithRetryPolicy(maxAttempts int, initialDelay time.Duration) Option {
	return func(cfg *config) {
		if maxAttempts > 1 {
			cfg.maxAttempts = uint64(maxAttempts)
		}
		if initialDelay > 0 {
			cfg.initialDelay = initialDelay
		}
	}
}
