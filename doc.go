// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fiber provides a user-space concurrency runtime: a
// work-stealing task executor, stackful fibers with a first-class
// suspension protocol, and synchronization primitives that suspend
// fibers instead of blocking threads — bounded channels with randomized
// multi-way select, mutex, condition variable and wait group.
//
// # Quick Start
//
//	pool := fiber.NewPool(4)
//	defer pool.Stop()
//
//	ch := fiber.NewChannel[int](16)
//
//	fiber.Go(pool, func() {
//	    for i := range 100 {
//	        ch.Send(i)
//	    }
//	})
//	fiber.Go(pool, func() {
//	    for range 100 {
//	        process(ch.Receive())
//	    }
//	})
//
//	pool.WaitIdle()
//
// # Executors
//
// [Pool] runs tasks on a fixed set of workers. Every worker owns a LIFO
// hand-off slot (taken first, for producer-consumer locality) and a
// bounded local ring; a global FIFO backs them and idle workers steal
// batches from random victims. Roughly one take in sixty-one goes to the
// global queue first so globally submitted tasks always make progress,
// and a worker that has run twenty consecutive tasks out of its LIFO
// slot demotes the slot for a round.
//
// [Strand] serializes tasks over any executor — an asynchronous mutex:
//
//	st := fiber.NewStrand(pool)
//	st.Execute(fiber.NewTask(func() { counter++ }, true)) // no race
//
// [ManualExecutor] runs tasks only when the caller asks, for
// deterministic tests.
//
// # Fibers and Awaiters
//
// [Go] starts a function as a fiber: a stackful coroutine scheduled on
// an executor. Inside a fiber, [Self] returns a handle, [Yield] gives up
// the worker, and the channel/mutex/wait-group operations below suspend
// the fiber when they must wait.
//
// A suspension publishes an [Awaiter] before the coroutine yields; the
// worker invokes its AwaitSuspend right after the yield. An awaiter may
// hold a spinlock guard across the yield and release it there — nothing
// can reschedule the fiber earlier, because the fiber only re-enters a
// queue through AwaitSuspend.
//
// # Channels and Select
//
// [Channel] is a bounded FIFO. Send delivers directly to a waiting
// consumer, else buffers, else suspends; Receive drains the buffer and
// refills it from waiting producers in FIFO order. TrySend/TryReceive
// never suspend and return [ErrWouldBlock] when they cannot proceed.
//
// [Select] receives exactly one value from one of several channels of
// arbitrary element types; [TrySelect] is its non-suspending form. The
// channel order is reshuffled on every call, so when several channels
// are ready each is chosen with equal probability:
//
//	ints := fiber.NewChannel[int](1)
//	strs := fiber.NewChannel[string](1)
//
//	sel := fiber.Select(ints, strs)
//	switch v := sel.Value.(type) {
//	case int:    // sel.Index == 0
//	case string: // sel.Index == 1
//	}
//
// # Error Handling
//
// Non-blocking operations signal "not now" with [ErrWouldBlock], sourced
// from [code.hybscloud.com/iox] for ecosystem consistency; classify with
// [IsWouldBlock], [IsSemantic] and [IsNonFailure]. A panic in a fiber
// body terminates that fiber and is logged by the pool (see
// [WithLogger]); the worker survives. Misuse — unlocking a guard twice,
// discarding a strand batch, a pool of one worker, suspending off-fiber
// — panics.
//
// # Race Detection
//
// The scheduler substrate synchronizes through atomic orderings on
// separate variables (ring indices guarding slot contents, claim flags
// guarding result slots). Go's race detector does not track
// happens-before established that way and may report false positives on
// stress workloads; such tests skip themselves when [RaceEnabled] is set.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomics with
// explicit memory ordering, [code.hybscloud.com/spin] for CPU pause
// instructions, [code.hybscloud.com/iox] for semantic errors, and
// go.uber.org/zap for the pool's panic log.
package fiber
