// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// stealQueue is a bounded single-producer multi-consumer ring of task
// nodes. The owning worker pushes and pops at will; other workers steal
// batches through Grab.
//
// The buffer holds capacity+1 physical slots so a full queue and an empty
// queue are distinguishable from the index pair alone. Capacity does not
// need to be a power of two.
//
// Slots are GC-traced pointers; the index pair carries the ordering
// (release on the tail increment, acquire on tail loads by consumers).
type stealQueue struct {
	_        pad
	head     atomix.Uint64 // count of successful pops
	_        pad
	tail     atomix.Uint64 // count of successful pushes
	_        pad
	buffer   []atomic.Pointer[TaskNode]
	capacity uint64
}

func newStealQueue(capacity int) *stealQueue {
	if capacity < 1 {
		panic("fiber: steal queue capacity must be >= 1")
	}
	return &stealQueue{
		buffer:   make([]atomic.Pointer[TaskNode], capacity+1),
		capacity: uint64(capacity),
	}
}

// TryPush appends n (owner only). Returns false when the queue is full;
// it never blocks.
func (q *stealQueue) TryPush(n *TaskNode) bool {
	head := q.head.LoadRelaxed()
	tail := q.tail.LoadRelaxed()

	if tail-head == q.capacity {
		return false
	}

	q.buffer[tail%uint64(len(q.buffer))].Store(n)
	q.tail.AddAcqRel(1)
	return true
}

// TryPop removes and returns the front node, contending with stealers.
// Returns nil when the queue is empty.
func (q *stealQueue) TryPop() *TaskNode {
	head := q.head.LoadRelaxed()
	for {
		tail := q.tail.LoadAcquire()
		if head == tail {
			return nil
		}

		n := q.buffer[head%uint64(len(q.buffer))].Load()
		if q.head.CompareAndSwapAcqRel(head, head+1) {
			return n
		}
		head = q.head.LoadRelaxed()
	}
}

// Grab claims up to len(scratch) front nodes into scratch and returns the
// number claimed.
//
// The copy is optimistic: slots are read first and the head is advanced
// by CAS afterwards. Any CAS failure restarts the whole copy, so the
// returned batch is exactly the set of nodes actually claimed. Nodes are
// written only into the caller-owned scratch; losing racers never touch
// queue or node state.
func (q *stealQueue) Grab(scratch []*TaskNode) int {
	head := q.head.LoadRelaxed()
	sw := spin.Wait{}
	for {
		tail := q.tail.LoadAcquire()
		grabbed := min(tail-head, uint64(len(scratch)))
		for i := uint64(0); i < grabbed; i++ {
			scratch[i] = q.buffer[(head+i)%uint64(len(q.buffer))].Load()
		}
		if q.head.CompareAndSwapAcqRel(head, head+grabbed) {
			return int(grabbed)
		}
		head = q.head.LoadRelaxed()
		sw.Once()
	}
}

// Cap returns the queue capacity.
func (q *stealQueue) Cap() int { return int(q.capacity) }
