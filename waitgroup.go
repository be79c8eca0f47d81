// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// WaitGroup waits for a collection of fibers to finish. Add before
// starting them, Done from each as it completes, Wait from any fiber
// that needs the fan-in.
//
// Waiters park on a lock-free stack; the Done that drops the count to
// zero steals the whole stack, reverses it into FIFO order and resumes
// every waiter. The count must stay non-negative throughout.
type WaitGroup struct {
	count atomix.Int64
	head  atomic.Pointer[waitGroupAwaiter]
}

// Add increases the count by n.
func (wg *WaitGroup) Add(n int) {
	wg.count.AddAcqRel(int64(n))
}

// Done decreases the count by one, resuming all waiters when it reaches
// zero.
func (wg *WaitGroup) Done() {
	if wg.count.AddAcqRel(-1) == 0 {
		wg.resumeAll()
	}
}

// AllDone forces the count to zero and resumes all waiters.
func (wg *WaitGroup) AllDone() {
	wg.count.StoreRelease(0)
	wg.resumeAll()
}

// Wait suspends the calling fiber until the count reaches zero. Returns
// immediately when it already has.
func (wg *WaitGroup) Wait() {
	if wg.count.LoadAcquire() == 0 {
		return
	}

	h := mustSelf()
	aw := waitGroupAwaiter{handle: h}
	for {
		head := wg.head.Load()
		aw.next = head
		if wg.head.CompareAndSwap(head, &aw) {
			break
		}
	}

	// The last Done may have stolen the stack between the count check
	// and the push above; its steal would then miss this awaiter. Pick
	// the stack up ourselves in that case. The per-awaiter rendezvous
	// makes a double resume harmless and a self resume sound.
	if wg.count.LoadAcquire() == 0 {
		wg.resumeAll()
	}

	h.Suspend(&aw)
}

func (wg *WaitGroup) resumeAll() {
	var stack *waitGroupAwaiter
	for {
		stack = wg.head.Load()
		if wg.head.CompareAndSwap(stack, nil) {
			break
		}
	}

	// Reverse the LIFO chain so waiters resume in arrival order.
	var queue *waitGroupAwaiter
	for stack != nil {
		next := stack.next
		stack.next = queue
		queue = stack
		stack = next
	}

	for queue != nil {
		// The awaiter's frame may die as soon as its fiber resumes;
		// step off it before resuming.
		next := queue.next
		queue.resume()
		queue = next
	}
}
