// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Fiber is a stackful user-space thread scheduled on an executor.
//
// A fiber owns one coroutine and an inline "step" task, which is what the
// executor actually runs. Each step resumes the coroutine and then, if the
// body suspended rather than returned, invokes the awaiter the body
// published through Suspend. That ordering is load-bearing: an awaiter may
// hold a spinlock guard taken before the yield and release it in
// AwaitSuspend, certain that nobody can reschedule the fiber before the
// release, because the fiber re-enters an executor queue only through
// AwaitSuspend itself.
type Fiber struct {
	coro     *Coroutine
	executor Executor

	// awaiter is published by Suspend on the coroutine side and consumed
	// by the step on the worker side; the coroutine rendezvous orders the
	// two.
	awaiter Awaiter

	// worker is the pool worker currently driving the coroutine, set by
	// the step for the duration of a resume. It gives code running on the
	// fiber the local-queue fast path of the worker that resumed it.
	worker *poolWorker

	step fiberStep
}

// fiberStep is the task an executor schedules on behalf of a fiber.
//
// The step reports AllocatedOnHeap so executors discard it after every
// run; Discard destroys the fiber unless the fiber is mid-suspension, in
// which case Suspend has cleared destroyOnDiscard and Discard merely
// re-arms it. A racing executor shutdown that discards a queued step of a
// suspending fiber therefore cannot free a fiber that is still live.
type fiberStep struct {
	node             TaskNode
	fiber            *Fiber
	destroyOnDiscard bool
}

func (s *fiberStep) Node() *TaskNode { return &s.node }

func (s *fiberStep) AllocatedOnHeap() bool { return true }

func (s *fiberStep) Run() {
	f := s.fiber
	f.worker = workerRegistry.lookup(currentGoroutineID())
	f.coro.Resume()
	if !f.coro.Completed() {
		aw := f.awaiter
		f.awaiter = nil
		aw.AwaitSuspend()
	}
}

func (s *fiberStep) Discard() {
	if s.destroyOnDiscard {
		s.fiber.destroy()
	} else {
		s.destroyOnDiscard = true
	}
}

func newFiber(body func(), executor Executor) *Fiber {
	f := &Fiber{executor: executor}
	f.step = fiberStep{fiber: f, destroyOnDiscard: true}
	f.coro = NewCoroutine(func() {
		id := currentGoroutineID()
		fiberRegistry.register(id, f)
		defer fiberRegistry.unregister(id)
		body()
	})
	return f
}

// destroy releases the fiber's coroutine. For a completed fiber this is a
// no-op; for a never-run or killed-at-shutdown fiber it unwinds the
// coroutine goroutine so nothing leaks.
func (f *Fiber) destroy() {
	f.coro.Destroy()
}

// Schedule enqueues the fiber's step on its executor.
func (f *Fiber) Schedule() {
	f.executor.Execute(&f.step)
}

// YieldSchedule enqueues the fiber's step with yield semantics.
func (f *Fiber) YieldSchedule() {
	f.executor.YieldExecute(&f.step)
}

// Suspend publishes awaiter as the reason for this suspension and yields
// the coroutine. The awaiter's AwaitSuspend runs on the worker right
// after the yield; Suspend returns when the fiber is next resumed.
//
// The awaiter must stay valid until Suspend returns (in practice it lives
// in the suspending call frame).
func (f *Fiber) Suspend(awaiter Awaiter) {
	f.awaiter = awaiter
	f.step.destroyOnDiscard = false
	f.coro.Suspend()
}

// Scheduler returns the executor this fiber is scheduled on.
func (f *Fiber) Scheduler() Executor {
	return f.executor
}

// Go starts fn as a new fiber on executor.
func Go(executor Executor, fn func()) {
	f := newFiber(fn, executor)
	f.Schedule()
}

// FiberHandle is a non-owning reference to a fiber.
type FiberHandle struct {
	fiber *Fiber
}

// Self returns a handle to the fiber the calling goroutine is running,
// or an invalid handle when called off-fiber.
func Self() FiberHandle {
	return FiberHandle{fiber: fiberRegistry.lookup(currentGoroutineID())}
}

func mustSelf() FiberHandle {
	h := Self()
	if !h.Valid() {
		panic("fiber: blocking operation outside a fiber")
	}
	return h
}

// Valid reports whether the handle refers to a fiber.
func (h FiberHandle) Valid() bool { return h.fiber != nil }

// Schedule enqueues the fiber to run.
func (h FiberHandle) Schedule() { h.fiber.Schedule() }

// YieldSchedule enqueues the fiber with yield semantics.
func (h FiberHandle) YieldSchedule() { h.fiber.YieldSchedule() }

// Suspend suspends the fiber with the given awaiter; see [Fiber.Suspend].
func (h FiberHandle) Suspend(awaiter Awaiter) { h.fiber.Suspend(awaiter) }

// Scheduler returns the fiber's executor.
func (h FiberHandle) Scheduler() Executor { return h.fiber.Scheduler() }

// Yield reschedules the calling fiber through its executor's yield path,
// giving every other queued task a chance to run first.
func Yield() {
	h := mustSelf()
	aw := yieldAwaiter{handle: h}
	h.Suspend(&aw)
}

// Reschedule suspends the calling fiber and immediately re-enqueues it
// through the regular Execute path. Unlike [Yield] it keeps the fast
// local placement, so it is a suspension point but not a fairness point.
func Reschedule() {
	h := mustSelf()
	aw := rescheduleAwaiter{handle: h}
	h.Suspend(&aw)
}
