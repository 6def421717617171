package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func double(_ context.Context, n int) (int, error) {
	return n * 2, nil
}

func TestRun_OrderPreserved(t *testing.T) {
	args := make([]int, 100)
	for i := range args {
		args[i] = i
	}

	results := Run(context.Background(), double, args,
		WithWorkers(8), WithoutProgress())

	if len(results) != len(args) {
		t.Fatalf("expected %d results, got %d", len(args), len(results))
	}
	for i, r := range results {
		if r.Absent() {
			t.Fatalf("task %d unexpectedly absent: %v", i, r.Err)
		}
		if r.Value != i*2 {
			t.Errorf("task %d: expected %d, got %d", i, i*2, r.Value)
		}
	}
}

func TestRun_EmptyArgs(t *testing.T) {
	results := Run(context.Background(), double, nil, WithWorkers(4))
	if len(results) != 0 {
		t.Fatalf("expected empty result sequence, got %d", len(results))
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	failing := errors.New("boom")
	fn := func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, failing
		}
		return n * 10, nil
	}

	results := Run(context.Background(), fn, []int{0, 1, 2, 3, 4},
		WithWorkers(3), WithoutProgress())

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for i, r := range results {
		if i == 2 {
			if !r.Absent() {
				t.Errorf("task 2: expected absent result, got %v", r.Value)
			}
			if !errors.Is(r.Err, failing) {
				t.Errorf("task 2: expected boom error, got %v", r.Err)
			}
			continue
		}
		if r.Absent() {
			t.Errorf("task %d: unexpectedly absent: %v", i, r.Err)
		}
		if r.Value != i*10 {
			t.Errorf("task %d: expected %d, got %d", i, i*10, r.Value)
		}
	}
}

func TestRun_PanicIsolation(t *testing.T) {
	fn := func(_ context.Context, n int) (int, error) {
		if n == 1 {
			panic("bad file")
		}
		return n, nil
	}

	results := Run(context.Background(), fn, []int{0, 1, 2},
		WithWorkers(2), WithoutProgress())

	if !results[1].Absent() {
		t.Fatal("expected panicking task to be absent")
	}
	if results[0].Absent() || results[2].Absent() {
		t.Fatal("sibling tasks affected by a panic")
	}
}

func TestRun_SequentialMatchesParallel(t *testing.T) {
	args := make([]int, 50)
	for i := range args {
		args[i] = i * 3
	}
	fn := func(_ context.Context, n int) (string, error) {
		if n%9 == 0 && n != 0 {
			return "", fmt.Errorf("rejected %d", n)
		}
		return fmt.Sprintf("v%d", n), nil
	}

	seq := Run(context.Background(), fn, args, WithSequential(), WithoutProgress())
	par := Run(context.Background(), fn, args, WithWorkers(7), WithoutProgress())

	for i := range args {
		if seq[i].Absent() != par[i].Absent() {
			t.Fatalf("slot %d: sequential absent=%v, parallel absent=%v",
				i, seq[i].Absent(), par[i].Absent())
		}
		if seq[i].Value != par[i].Value {
			t.Fatalf("slot %d: sequential %q != parallel %q",
				i, seq[i].Value, par[i].Value)
		}
	}
}

func TestRun_WorkerCountCoercion(t *testing.T) {
	for _, workers := range []int{-3, 0, 1, 2, 100} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			results := Run(context.Background(), double, []int{1, 2, 3},
				WithWorkers(workers), WithoutProgress())
			if len(results) != 3 {
				t.Fatalf("expected 3 results, got %d", len(results))
			}
			for i, r := range results {
				if r.Value != (i+1)*2 {
					t.Errorf("slot %d: got %d", i, r.Value)
				}
			}
		})
	}
}

func TestRun_RetryPolicy(t *testing.T) {
	var calls atomic.Int32
	fn := func(_ context.Context, n int) (int, error) {
		if calls.Add(1) < 3 {
			return 0, errors.New("transient")
		}
		return n, nil
	}

	results := Run(context.Background(), fn, []int{7},
		WithRetryPolicy(3, time.Millisecond), WithoutProgress())

	if results[0].Absent() {
		t.Fatalf("expected retries to succeed, got %v", results[0].Err)
	}
	if results[0].Value != 7 {
		t.Fatalf("expected 7, got %d", results[0].Value)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRun_RateLimitedBatchStillComplete(t *testing.T) {
	args := []int{1, 2, 3, 4, 5}
	results := Run(context.Background(), double, args,
		WithWorkers(5), WithRateLimit(1000, 1), WithoutProgress())

	for i, r := range results {
		if r.Absent() || r.Value != args[i]*2 {
			t.Fatalf("slot %d: got (%d, %v)", i, r.Value, r.Err)
		}
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Run(ctx, double, []int{1, 2, 3},
		WithSequential(), WithoutProgress())

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if !r.Absent() {
			t.Errorf("slot %d: expected absent after cancellation", i)
		}
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("slot %d: expected context.Canceled, got %v", i, r.Err)
		}
	}
}

func TestValues(t *testing.T) {
	results := []Result[int]{
		{Value: 1},
		{Err: errors.New("gone")},
		{Value: 3},
	}
	got := Values(results)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("unexpected values: %v", got)
	}
}
