// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Mutex is a mutual-exclusion lock that suspends fibers instead of
// blocking threads.
//
// Unlock hands the lock directly to the longest-waiting fiber: ownership
// transfers without an intermediate free state, so a fiber calling Lock
// between an Unlock and the waiter actually running cannot barge in
// ahead of it.
type Mutex struct {
	lock    QueueSpinLock
	closed  bool // guarded by lock
	waiters awaiterList
}

// Lock acquires the mutex, suspending the calling fiber while another
// fiber holds it.
func (m *Mutex) Lock() {
	var g Guard
	m.lock.Lock(&g)

	if !m.closed {
		m.closed = true
		g.Unlock()
		return
	}

	h := mustSelf()
	aw := mutexAwaiter{handle: h, guard: &g}
	aw.node.owner = &aw
	m.waiters.PushBack(&aw.node)
	h.Suspend(&aw)
}

// Unlock releases the mutex, transferring it to the next waiter if any.
func (m *Mutex) Unlock() {
	var g Guard
	m.lock.Lock(&g)

	if n := m.waiters.PopFront(); n != nil {
		// Ownership passes to the popped waiter; closed stays set.
		n.owner.(*mutexAwaiter).resume()
	} else {
		m.closed = false
	}
	g.Unlock()
}
