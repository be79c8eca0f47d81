// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"testing"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/fiber"
	"github.com/stretchr/testify/require"
)

// TestFiberRunsToCompletion tests Go on a parallel pool.
func TestFiberRunsToCompletion(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	pool := fiber.NewPool(4)
	defer pool.Stop()

	var ran atomix.Int64
	for range 100 {
		fiber.Go(pool, func() { ran.Add(1) })
	}

	pool.WaitIdle()
	if got := ran.Load(); got != 100 {
		t.Fatalf("completed %d fibers, want 100", got)
	}
}

// TestFiberSelf tests handle validity inside and outside a fiber.
func TestFiberSelf(t *testing.T) {
	if fiber.Self().Valid() {
		t.Fatal("Self valid outside a fiber")
	}

	var manual fiber.ManualExecutor
	checked := false
	fiber.Go(&manual, func() {
		h := fiber.Self()
		if !h.Valid() {
			t.Error("Self invalid inside a fiber")
		}
		if h.Scheduler() != fiber.Executor(&manual) {
			t.Error("Scheduler does not match the executor the fiber was started on")
		}
		checked = true
	})

	manual.WaitIdle()
	if !checked {
		t.Fatal("fiber body never ran")
	}
}

// TestFiberYieldInterleaves tests that Yield parks the fiber behind
// every queued task: two yielding fibers on a manual executor alternate
// strictly.
func TestFiberYieldInterleaves(t *testing.T) {
	var manual fiber.ManualExecutor

	var order []string
	turn := func(name string) func() {
		return func() {
			for range 3 {
				order = append(order, name)
				fiber.Yield()
			}
		}
	}
	fiber.Go(&manual, turn("a"))
	fiber.Go(&manual, turn("b"))

	manual.WaitIdle()
	require.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, order)
}

// TestFiberReschedule tests the suspension point that requeues through
// the regular execute path.
func TestFiberReschedule(t *testing.T) {
	var manual fiber.ManualExecutor

	steps := 0
	fiber.Go(&manual, func() {
		steps++
		fiber.Reschedule()
		steps++
	})

	// Step one runs the body to the reschedule point and requeues.
	if manual.RunNext(); steps != 1 {
		t.Fatalf("after first step: body advanced to %d, want 1", steps)
	}
	if !manual.HasTasks() {
		t.Fatal("rescheduled fiber not queued")
	}
	if manual.RunNext(); steps != 2 {
		t.Fatalf("after second step: body advanced to %d, want 2", steps)
	}
	if manual.HasTasks() {
		t.Fatal("completed fiber still queued")
	}
}

// TestFiberSuspendOutsidePanics tests the misuse assertion for the
// package-level suspension points.
func TestFiberSuspendOutsidePanics(t *testing.T) {
	require.PanicsWithValue(t, "fiber: blocking operation outside a fiber", func() {
		fiber.Yield()
	})
}

// promise is a minimal Future implementation for the boundary test.
type promise[T any] struct {
	subscribed chan func(fiber.Result[T])
}

func newPromise[T any]() *promise[T] {
	return &promise[T]{subscribed: make(chan func(fiber.Result[T]), 1)}
}

func (p *promise[T]) Subscribe(fn func(fiber.Result[T])) {
	p.subscribed <- fn
}

func (p *promise[T]) complete(r fiber.Result[T]) {
	fn := <-p.subscribed
	fn(r)
}

// TestFiberAwaitFuture tests the future boundary: the fiber suspends on
// Await and resumes with the result once the callback fires.
func TestFiberAwaitFuture(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	pool := fiber.NewPool(2)
	defer pool.Stop()

	p := newPromise[int]()
	done := make(chan int, 1)

	fiber.Go(pool, func() {
		v, err := fiber.Await[int](p)
		if err != nil {
			t.Errorf("Await: %v", err)
		}
		done <- v
	})

	// Completing on a plain goroutine schedules the fiber back onto its
	// pool.
	p.complete(fiber.Result[int]{Value: 42})

	if got := <-done; got != 42 {
		t.Fatalf("Await: got %d, want 42", got)
	}
	pool.WaitIdle()
}

// TestFiberAwaitError tests that a failed future surfaces as an error.
func TestFiberAwaitError(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	pool := fiber.NewPool(2)
	defer pool.Stop()

	p := newPromise[int]()
	done := make(chan error, 1)

	fiber.Go(pool, func() {
		_, err := fiber.Await[int](p)
		done <- err
	})

	p.complete(fiber.Result[int]{Err: fiber.ErrWouldBlock})

	if err := <-done; !fiber.IsWouldBlock(err) {
		t.Fatalf("Await error: got %v", err)
	}
	pool.WaitIdle()
}
