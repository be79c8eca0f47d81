// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"sync"
	"testing"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/fiber"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestPoolRunsTasks tests that every submitted task runs.
func TestPoolRunsTasks(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	pool := fiber.NewPool(4)
	defer pool.Stop()

	const tasks = 500
	var ran atomix.Int64
	for range tasks {
		pool.Execute(fiber.NewTask(func() { ran.Add(1) }, true))
	}

	pool.WaitIdle()
	if got := ran.Load(); got != tasks {
		t.Fatalf("ran %d tasks, want %d", got, tasks)
	}
}

// TestPoolWaitIdleNested tests that WaitIdle covers tasks enqueued by
// running tasks.
func TestPoolWaitIdleNested(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	pool := fiber.NewPool(4)
	defer pool.Stop()

	const fanout = 50
	var ran atomix.Int64
	for range fanout {
		pool.Execute(fiber.NewTask(func() {
			// Tasks submitted from a worker land in its local ring.
			for range fanout {
				pool.Execute(fiber.NewTask(func() { ran.Add(1) }, true))
			}
		}, true))
	}

	pool.WaitIdle()
	if got := ran.Load(); got != fanout*fanout {
		t.Fatalf("ran %d nested tasks, want %d", got, fanout*fanout)
	}
}

// TestPoolYieldExecute tests that yielded tasks still run.
func TestPoolYieldExecute(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	pool := fiber.NewPool(2)
	defer pool.Stop()

	var ran atomix.Int64
	for range 100 {
		pool.YieldExecute(fiber.NewTask(func() { ran.Add(1) }, true))
	}
	pool.WaitIdle()
	if got := ran.Load(); got != 100 {
		t.Fatalf("ran %d tasks, want 100", got)
	}
}

// TestPoolSingleWorkerPanics tests the misuse assertion on construction.
func TestPoolSingleWorkerPanics(t *testing.T) {
	require.PanicsWithValue(t, "fiber: pool needs more than one worker", func() {
		fiber.NewPool(1)
	})
}

// TestPoolTaskPanicKeepsWorkerAlive tests that a panicking task is
// logged and the pool keeps running tasks afterwards.
func TestPoolTaskPanicKeepsWorkerAlive(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	core, logs := observer.New(zap.ErrorLevel)
	pool := fiber.NewPool(2, fiber.WithLogger(zap.New(core)))
	defer pool.Stop()

	pool.Execute(fiber.NewTask(func() { panic("bad task") }, true))
	pool.WaitIdle()

	var ran atomix.Int64
	for range 50 {
		pool.Execute(fiber.NewTask(func() { ran.Add(1) }, true))
	}
	pool.WaitIdle()

	if got := ran.Load(); got != 50 {
		t.Fatalf("pool ran %d tasks after a panic, want 50", got)
	}
	if got := logs.FilterMessage("task panicked").Len(); got != 1 {
		t.Fatalf("logged %d panic entries, want 1", got)
	}
}

// trackedTask counts its Run and Discard calls for shutdown accounting.
type trackedTask struct {
	fiber.TaskBase
	ran       *atomix.Int64
	discarded *atomix.Int64
	gate      <-chan struct{}
}

func (t *trackedTask) Run() {
	if t.gate != nil {
		<-t.gate
	}
	t.ran.Add(1)
}

func (t *trackedTask) Discard()              { t.discarded.Add(1) }
func (t *trackedTask) AllocatedOnHeap() bool { return true }

// TestPoolStopDiscardsQueued tests shutdown safety: after Stop no worker
// runs, and every task either ran or was discarded, exactly once.
func TestPoolStopDiscardsQueued(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	pool := fiber.NewPool(2)

	var ran, discarded atomix.Int64
	gate := make(chan struct{})

	const tasks = 40
	for range 2 {
		// Occupy both workers so the remaining tasks stay queued.
		pool.Execute(&trackedTask{ran: &ran, discarded: &discarded, gate: gate})
	}
	for range tasks - 2 {
		pool.Execute(&trackedTask{ran: &ran, discarded: &discarded})
	}

	close(gate)
	pool.Stop()

	// Every heap task is discarded exactly once: after its run, or in
	// place of it.
	if got := discarded.Load(); got != tasks {
		t.Fatalf("discarded %d tasks, want %d", got, tasks)
	}
	if got := ran.Load(); got > tasks {
		t.Fatalf("ran %d tasks, more than the %d submitted", got, tasks)
	}
}

// TestPoolExecuteHintLIFO tests the LIFO slot: a follow-up enqueued with
// the LIFO hint from a running task still runs, and the hint panics off
// a worker.
func TestPoolExecuteHintLIFO(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	pool := fiber.NewPool(2)
	defer pool.Stop()

	var ran atomix.Int64
	done := make(chan struct{})
	pool.Execute(fiber.NewTask(func() {
		for range 10 {
			pool.ExecuteHint(fiber.NewTask(func() {
				if ran.Add(1) == 10 {
					close(done)
				}
			}, true), fiber.HintLIFO)
		}
	}, true))

	<-done
	pool.WaitIdle()
	if got := ran.Load(); got != 10 {
		t.Fatalf("ran %d lifo tasks, want 10", got)
	}

	require.PanicsWithValue(t, "fiber: lifo hint outside a pool worker", func() {
		pool.ExecuteHint(fiber.NewTask(func() {}, true), fiber.HintLIFO)
	})
}

// TestPoolStopTwicePanics tests the misuse assertion.
func TestPoolStopTwicePanics(t *testing.T) {
	pool := fiber.NewPool(2)
	pool.Stop()
	require.PanicsWithValue(t, "fiber: pool stopped twice", func() {
		pool.Stop()
	})
}

// TestPoolManyWaiters tests WaitIdle from several goroutines at once.
func TestPoolManyWaiters(t *testing.T) {
	if fiber.RaceEnabled {
		t.Skip("skip: synchronizes through atomic orderings the race detector cannot track")
	}

	pool := fiber.NewPool(4)
	defer pool.Stop()

	var ran atomix.Int64
	for range 200 {
		pool.Execute(fiber.NewTask(func() { ran.Add(1) }, true))
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.WaitIdle()
			if got := ran.Load(); got != 200 {
				t.Errorf("WaitIdle returned with %d tasks done, want 200", got)
			}
		}()
	}
	wg.Wait()
}
