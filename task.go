// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Task is a unit of work that an Executor schedules and runs.
//
// A task is enqueued at most once at a time, run at most once per enqueue,
// and may be re-enqueued after it has run. When AllocatedOnHeap reports
// true, the executor calls Discard after running the task (and when
// discarding a queue at shutdown) so the task can release itself.
//
// Implementations embed TaskBase to obtain the intrusive node the
// executor queues link through:
//
//	type job struct {
//	    fiber.TaskBase
//	    payload []byte
//	}
//
//	func (j *job) Run()                  { process(j.payload) }
//	func (j *job) Discard()              {}
//	func (j *job) AllocatedOnHeap() bool { return true }
type Task interface {
	// Run executes the task body.
	Run()

	// Discard releases a heap-allocated task. Called by the executor after
	// Run when AllocatedOnHeap is true, and for every still-queued heap
	// task when an executor shuts down.
	Discard()

	// AllocatedOnHeap reports whether the executor must Discard the task
	// after running it.
	AllocatedOnHeap() bool

	// Node returns the intrusive node used to link the task into executor
	// queues. The node belongs to exactly one queue at a time.
	Node() *TaskNode
}

// TaskNode is the intrusive link embedded (via TaskBase) in every Task.
//
// The node records a back reference to its task when pushed, so queues
// traffic in single-word node pointers while pops recover the full task.
type TaskNode struct {
	next *TaskNode
	task Task
}

// Task returns the task this node was last enqueued for.
func (n *TaskNode) Task() Task { return n.task }

// TaskBase provides the intrusive node for Task implementations.
type TaskBase struct {
	node TaskNode
}

// Node returns the embedded intrusive node.
func (b *TaskBase) Node() *TaskNode { return &b.node }

// funcTask adapts a plain function to the Task interface.
type funcTask struct {
	TaskBase
	fn   func()
	heap bool
}

// NewTask wraps fn as a Task. When allocatedOnHeap is true the executor
// discards the task after running it; a false flag is for tasks whose
// storage the caller owns (the task must then outlive its run).
func NewTask(fn func(), allocatedOnHeap bool) Task {
	return &funcTask{fn: fn, heap: allocatedOnHeap}
}

func (t *funcTask) Run() { t.fn() }

func (t *funcTask) Discard() {
	if !t.heap {
		panic("fiber: discard of a non-heap task")
	}
}

func (t *funcTask) AllocatedOnHeap() bool { return t.heap }

// TaskQueue is a single-threaded intrusive FIFO of tasks.
//
// The queue provides no synchronization of its own; callers serialize
// access (the pool guards its global queue with a mutex, the strand runs
// its batch queue from a single task).
type TaskQueue struct {
	head *TaskNode
	tail *TaskNode
	size int
}

// Push appends t to the queue.
func (q *TaskQueue) Push(t Task) {
	n := t.Node()
	n.task = t
	q.PushNode(n)
}

// PushNode appends an already-bound node to the queue.
func (q *TaskQueue) PushNode(n *TaskNode) {
	n.next = nil
	if q.head == nil {
		q.head = n
		q.tail = n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.size++
}

// PushQueue splices all of other onto the back of q, leaving other empty.
func (q *TaskQueue) PushQueue(other *TaskQueue) {
	if other.size == 0 {
		return
	}
	if q.size == 0 {
		q.head = other.head
		q.tail = other.tail
		q.size = other.size
	} else {
		q.tail.next = other.head
		q.tail = other.tail
		q.size += other.size
	}
	other.head = nil
	other.tail = nil
	other.size = 0
}

// TryPop removes and returns the front node, or nil if the queue is empty.
func (q *TaskQueue) TryPop() *TaskNode {
	if q.head == nil {
		return nil
	}
	n := q.head
	q.size--
	if q.head == q.tail {
		q.head = nil
		q.tail = nil
	} else {
		q.head = n.next
	}
	n.next = nil
	return n
}

// Clear drops all queued nodes without discarding their tasks.
func (q *TaskQueue) Clear() {
	q.head = nil
	q.tail = nil
	q.size = 0
}

// Size returns the number of queued tasks.
func (q *TaskQueue) Size() int { return q.size }

// listNode is the intrusive link for awaiter wait lists. The owner field
// points back at the enqueued awaiter; the linked flag makes Remove
// idempotent, which select cleanup relies on.
type listNode struct {
	next   *listNode
	prev   *listNode
	owner  any
	linked bool
}

// awaiterList is a single-threaded intrusive doubly-linked list of waiting
// awaiters. Every list is guarded by the spinlock of its enclosing
// primitive; the list itself is not synchronized.
type awaiterList struct {
	head *listNode
	tail *listNode
	size int
}

func (l *awaiterList) PushBack(n *listNode) {
	n.next = nil
	n.prev = l.tail
	n.linked = true
	if l.tail == nil {
		l.head = n
	} else {
		l.tail.next = n
	}
	l.tail = n
	l.size++
}

// PopFront removes and returns the front node, or nil if the list is empty.
func (l *awaiterList) PopFront() *listNode {
	n := l.head
	if n == nil {
		return nil
	}
	l.head = n.next
	if l.head == nil {
		l.tail = nil
	} else {
		l.head.prev = nil
	}
	n.next = nil
	n.prev = nil
	n.linked = false
	l.size--
	return n
}

// Remove unlinks n if it is still linked; removing an already-popped node
// is a no-op.
func (l *awaiterList) Remove(n *listNode) {
	if !n.linked {
		return
	}
	if n.prev == nil {
		l.head = n.next
	} else {
		n.prev.next = n.next
	}
	if n.next == nil {
		l.tail = n.prev
	} else {
		n.next.prev = n.prev
	}
	n.next = nil
	n.prev = nil
	n.linked = false
	l.size--
}

func (l *awaiterList) Size() int { return l.size }
