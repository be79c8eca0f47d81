// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// QueueSpinLock is an MCS-style queued spinlock.
//
// Acquirers form an intrusive FIFO of Guard records; each waiter spins on
// a flag local to its own guard, so contended acquisition does not
// ping-pong a shared cache line, and the lock hands off in strict FIFO
// order. The channel implementation leans on that fairness: producers and
// consumers contending for a channel acquire its lock in arrival order.
//
// Usage:
//
//	var lock fiber.QueueSpinLock
//
//	var g fiber.Guard
//	lock.Lock(&g)
//	// critical section
//	g.Unlock()
//
// A guard may be re-armed with lock.Lock(&g) after it has been unlocked.
// Guards must not be copied while armed.
type QueueSpinLock struct {
	tail atomic.Pointer[Guard]
}

// Guard is a per-acquirer record for a QueueSpinLock.
//
// The zero Guard is ready for use. A guard participating in a suspension
// handoff (a channel or mutex awaiter holding a reference to it) stays
// valid until its Unlock, which an awaiter performs inside AwaitSuspend.
type Guard struct {
	lock   *QueueSpinLock
	next   atomic.Pointer[Guard]
	owner  atomix.Bool
	locked bool
}

// Lock acquires the spinlock, arming g as the acquirer record. It spins
// (with CPU pauses) while a predecessor holds the lock.
func (l *QueueSpinLock) Lock(g *Guard) {
	g.lock = l
	g.next.Store(nil)
	g.owner.StoreRelaxed(false)
	g.locked = true

	var prev *Guard
	for {
		prev = l.tail.Load()
		if l.tail.CompareAndSwap(prev, g) {
			break
		}
	}
	if prev == nil {
		return
	}

	prev.next.Store(g)
	sw := spin.Wait{}
	for !g.owner.LoadAcquire() {
		sw.Once()
	}
}

// Unlock releases the spinlock held through g. Unlocking a guard that is
// not armed panics.
func (g *Guard) Unlock() {
	if !g.locked {
		panic("fiber: spinlock guard unlocked twice")
	}
	g.locked = false

	l := g.lock
	if l.tail.CompareAndSwap(g, nil) {
		return
	}

	// A successor swapped itself in; wait for it to link, then hand off.
	sw := spin.Wait{}
	var next *Guard
	for {
		if next = g.next.Load(); next != nil {
			break
		}
		sw.Once()
	}
	next.owner.StoreRelease(true)
}

// Held reports whether g currently holds its lock.
func (g *Guard) Held() bool { return g.locked }
