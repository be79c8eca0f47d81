// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// ConditionVariable lets fibers wait for a condition guarded by a
// [Mutex]. As with any condition variable, Wait can wake spuriously
// relative to the condition itself; callers re-check in a loop.
type ConditionVariable struct {
	lock    QueueSpinLock
	waiters awaiterList
}

// Wait atomically releases m and suspends the calling fiber until a
// notify wakes it, then reacquires m before returning.
//
// The condition variable's spinlock is taken before m is released and
// held (through the suspension protocol) until the fiber has yielded, so
// a notify issued at any point after the mutex release observes this
// waiter enqueued and cannot be missed.
func (cv *ConditionVariable) Wait(m *Mutex) {
	var g Guard
	cv.lock.Lock(&g)
	m.Unlock()
	h := mustSelf()
	aw := mutexAwaiter{handle: h, guard: &g}
	aw.node.owner = &aw
	cv.waiters.PushBack(&aw.node)
	h.Suspend(&aw)

	m.Lock()
}

// NotifyOne wakes the longest-waiting fiber, if any.
func (cv *ConditionVariable) NotifyOne() {
	var g Guard
	cv.lock.Lock(&g)
	if n := cv.waiters.PopFront(); n != nil {
		n.owner.(*mutexAwaiter).resume()
	}
	g.Unlock()
}

// NotifyAll wakes every waiting fiber.
func (cv *ConditionVariable) NotifyAll() {
	var g Guard
	cv.lock.Lock(&g)
	for {
		n := cv.waiters.PopFront()
		if n == nil {
			break
		}
		n.owner.(*mutexAwaiter).resume()
	}
	g.Unlock()
}
