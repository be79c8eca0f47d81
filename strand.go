// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "sync/atomic"

// strandClosed marks the submission stack of a strand whose batch is in
// flight. It is the address of a private node rather than a tagged
// pointer so the marker stays a valid, GC-visible pointer value.
var strandClosed = new(TaskNode)

// Strand is a serial sub-executor: tasks submitted to it run on the
// underlying executor one after another, in submission order, with no
// overlap. It is an asynchronous mutex over tasks.
//
// Submissions push onto a lock-free stack; the submitter that finds the
// stack empty becomes the locker, reverses the captured chain into FIFO
// order and ships it to the underlying executor as a single batch task.
// At most one batch is live at any time.
type Strand struct {
	executor Executor
	head     atomic.Pointer[TaskNode]

	// batch is reused across submissions; the single-live-batch
	// invariant makes that safe.
	batch strandBatch
}

// NewStrand returns a strand over executor.
func NewStrand(executor Executor) *Strand {
	s := &Strand{executor: executor}
	s.batch.strand = s
	return s
}

// Execute submits t to run after all previously submitted tasks.
func (s *Strand) Execute(t Task) {
	n := t.Node()
	n.task = t
	if s.pushNode(n) == nil {
		s.lock()
	}
}

// YieldExecute is identical to Execute; a strand has no fast path a
// yielding task could abuse.
func (s *Strand) YieldExecute(t Task) {
	s.Execute(t)
}

// pushNode pushes n onto the submission stack and returns the previous
// head (nil when the stack was empty and unlocked).
func (s *Strand) pushNode(n *TaskNode) *TaskNode {
	for {
		prev := s.head.Load()
		n.next = prev
		if s.head.CompareAndSwap(prev, n) {
			return prev
		}
	}
}

// lock claims the stack, turning its LIFO chain into a FIFO batch and
// submitting it.
func (s *Strand) lock() {
	var head *TaskNode
	for {
		head = s.head.Load()
		if s.head.CompareAndSwap(head, strandClosed) {
			break
		}
	}

	s.batch.queue = reverseChain(head)
	s.executor.Execute(&s.batch)
}

// unlock reopens the strand, or starts the next batch if submissions
// arrived while the previous one ran.
func (s *Strand) unlock() {
	if s.head.CompareAndSwap(strandClosed, nil) {
		return
	}
	s.lock()
}

// reverseChain converts the captured LIFO chain (newest first) into a
// FIFO task queue (oldest first). The chain ends at nil or at the closed
// sentinel left by a concurrent push.
func reverseChain(head *TaskNode) TaskQueue {
	var first, last *TaskNode
	count := 0
	for n := head; n != nil && n != strandClosed; {
		next := n.next
		n.next = first
		if first == nil {
			last = n
		}
		first = n
		n = next
		count++
	}
	return TaskQueue{head: first, tail: last, size: count}
}

// strandBatch runs one captured chain of tasks in FIFO order. It lives
// inline in the strand and is never heap-owned by an executor.
type strandBatch struct {
	node   TaskNode
	queue  TaskQueue
	strand *Strand
}

func (b *strandBatch) Node() *TaskNode { return &b.node }

func (b *strandBatch) AllocatedOnHeap() bool { return false }

func (b *strandBatch) Run() {
	for {
		n := b.queue.TryPop()
		if n == nil {
			break
		}
		t := n.Task()
		needDiscard := t.AllocatedOnHeap()
		t.Run()
		if needDiscard {
			t.Discard()
		}
	}
	b.strand.unlock()
}

func (b *strandBatch) Discard() {
	panic("fiber: strand batch discarded")
}
