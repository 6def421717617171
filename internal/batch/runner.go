// Package batch runs a fixed list of independent tasks over a bounded
// worker pool, collecting results back into input order. A failing task
// is isolated: it is logged and its slot holds an absent result, the
// rest of the batch is unaffected.
package batch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result holds the outcome of a single task. Err is non-nil when the task
// failed (returned an error, panicked, or was cancelled); the slot is then
// "absent" and Value is the zero value. An absent result is distinct from
// a successful result that happens to be empty.
type Result[R any] struct {
	Value R
	Err   error
}

// Absent reports whether the task produced no value.
func (r Result[R]) Absent() bool { return r.Err != nil }

// Values filters a result sequence down to the successful values,
// preserving their relative order.
func Values[R any](results []Result[R]) []R {
	out := make([]R, 0, len(results))
	for _, r := range results {
		if !r.Absent() {
			out = append(out, r.Value)
		}
	}
	return out
}

type indexed[A any] struct {
	idx int
	arg A
}

// Run executes fn once per element of args and returns a result sequence
// of the same length, where slot i holds the outcome of fn(ctx, args[i])
// regardless of completion order. Tasks run on up to
// max(1, min(workers, len(args))) workers scoped to this one call.
//
// Run never returns an error: per-task failures are logged with the task
// index and argument and surface as absent slots. Cancelling ctx stops
// workers from picking up further tasks; unrun slots become absent
// carrying the context error.
func Run[A, R any](ctx context.Context, fn func(context.Context, A) (R, error), args []A, opts ...Option) []Result[R] {
	cfg := newConfig(opts...)

	n := len(args)
	results := make([]Result[R], n)
	if n == 0 {
		return results
	}

	var bar *progressbar.ProgressBar
	if cfg.showProgress {
		bar = newBar(n, cfg.description)
	}
	tick := func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if cfg.sequential {
		runSequential(ctx, cfg, fn, args, results, tick)
	} else {
		runParallel(ctx, cfg, fn, args, results, tick)
	}

	if bar != nil {
		_ = bar.Finish()
	}
	return results
}

func runSequential[A, R any](ctx context.Context, cfg *config, fn func(context.Context, A) (R, error), args []A, results []Result[R], tick func()) {
	for i, arg := range args {
		if err := ctx.Err(); err != nil {
			results[i] = Result[R]{Err: err}
			tick()
			continue
		}
		results[i] = runOne(ctx, cfg, fn, arg)
		if results[i].Absent() {
			logFailure(cfg, i, arg, results[i].Err)
		}
		tick()
	}
}

func runParallel[A, R any](ctx context.Context, cfg *config, fn func(context.Context, A) (R, error), args []A, results []Result[R], tick func()) {
	workers := cfg.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(args) {
		workers = len(args)
	}

	tasks := make(chan indexed[A])

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for t := range tasks {
				if cfg.limiter != nil {
					if err := cfg.limiter.Wait(ctx); err != nil {
						results[t.idx] = Result[R]{Err: err}
						logFailure(cfg, t.idx, t.arg, err)
						tick()
						continue
					}
				}
				results[t.idx] = runOne(ctx, cfg, fn, t.arg)
				if results[t.idx].Absent() {
					logFailure(cfg, t.idx, t.arg, results[t.idx].Err)
				}
				tick()
			}
			return nil
		})
	}

feed:
	for i, arg := range args {
		select {
		case tasks <- indexed[A]{idx: i, arg: arg}:
		case <-ctx.Done():
			// Slots never handed to a worker are owned by this
			// goroutine, so writing them here is race-free.
			for j := i; j < len(args); j++ {
				results[j] = Result[R]{Err: ctx.Err()}
				tick()
			}
			break feed
		}
	}
	close(tasks)
	_ = g.Wait()
}

// runOne invokes fn for a single argument, converting panics into absent
// results and applying the retry policy when one is configured.
func runOne[A, R any](ctx context.Context, cfg *config, fn func(context.Context, A) (R, error), arg A) (res Result[R]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[R]{Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()

	if cfg.maxAttempts > 1 {
		var value R
		op := func() error {
			v, err := fn(ctx, arg)
			if err != nil {
				return err
			}
			value = v
			return nil
		}
		b := backoff.NewExponentialBackOff()
		if cfg.initialDelay > 0 {
			b.InitialInterval = cfg.initialDelay
		}
		err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, cfg.maxAttempts-1), ctx))
		return Result[R]{Value: value, Err: err}
	}

	v, err := fn(ctx, arg)
	return Result[R]{Value: v, Err: err}
}

func logFailure[A any](cfg *config, idx int, arg A, err error) {
	cfg.log.Warn("unable to get result for task",
		zap.Int("task", idx),
		zap.Any("args", arg),
		zap.Error(err))
}

func newBar(total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("item"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
