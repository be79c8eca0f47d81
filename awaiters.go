// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "code.hybscloud.com/atomix"

// Awaiter represents the reason a fiber suspended. Its single callback is
// invoked exactly once, on the worker, immediately after the coroutine
// has yielded control; it is the handshake between the suspending fiber
// and whatever will resume it.
//
// An awaiter may capture references to locks held at the yield point and
// is responsible for releasing them in AwaitSuspend, before the fiber can
// be scheduled elsewhere.
type Awaiter interface {
	AwaitSuspend()
}

// rescheduleAwaiter re-enqueues the fiber immediately.
type rescheduleAwaiter struct {
	handle FiberHandle
}

func (a *rescheduleAwaiter) AwaitSuspend() {
	a.handle.Schedule()
}

// yieldAwaiter re-enqueues the fiber through the yield path.
type yieldAwaiter struct {
	handle FiberHandle
}

func (a *yieldAwaiter) AwaitSuspend() {
	a.handle.YieldSchedule()
}

// mutexAwaiter parks a fiber in a wait list guarded by a spinlock. The
// guard was taken before the yield; AwaitSuspend releases it once the
// fiber can no longer be observed running.
//
// Shared by the fiber mutex and the condition variable.
type mutexAwaiter struct {
	node   listNode
	handle FiberHandle
	guard  *Guard
}

func (a *mutexAwaiter) AwaitSuspend() {
	a.guard.Unlock()
}

func (a *mutexAwaiter) resume() {
	a.handle.Schedule()
}

// rendezvous resolves the race between a suspending fiber and a resumer
// that fires before the fiber has actually yielded. Each side increments
// once; whichever side arrives second is the one that has both halves in
// hand and schedules the fiber.
//
// It also publishes data: a resumer that writes a result slot before its
// arrive makes the write visible to the fiber, which arrives (or spins
// on settled) after.
type rendezvous struct {
	state atomix.Int64
}

// arrive records one side of the handshake and reports whether this call
// completed it.
func (r *rendezvous) arrive() bool {
	return r.state.AddAcqRel(1) == 2
}

// settled reports whether at least one side has arrived.
func (r *rendezvous) settled() bool {
	return r.state.LoadAcquire() > 0
}

// waitGroupAwaiter parks a fiber on a wait group's lock-free stack. The
// push is not covered by any lock held to the yield point, so Done may
// find the awaiter before the fiber has yielded; the rendezvous decides
// which side schedules.
type waitGroupAwaiter struct {
	next   *waitGroupAwaiter
	handle FiberHandle
	rv     rendezvous
}

func (a *waitGroupAwaiter) AwaitSuspend() {
	if a.rv.arrive() {
		a.handle.Schedule()
	}
}

func (a *waitGroupAwaiter) resume() {
	if a.rv.arrive() {
		a.handle.Schedule()
	}
}
