// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// ManualExecutor is a single-threaded executor driven by its caller.
// Nothing runs until the caller asks for it, which makes scheduling
// deterministic; the test suite uses it to pin down suspension points.
//
// Not safe for concurrent use.
type ManualExecutor struct {
	tasks TaskQueue
}

// Execute enqueues t to run on a later RunAtMost/RunNext/Drain call.
func (m *ManualExecutor) Execute(t Task) {
	m.tasks.Push(t)
}

// YieldExecute is identical to Execute.
func (m *ManualExecutor) YieldExecute(t Task) {
	m.Execute(t)
}

// RunAtMost runs up to limit queued tasks and returns how many ran.
// Tasks enqueued by the tasks it runs are not picked up in this call.
func (m *ManualExecutor) RunAtMost(limit int) int {
	count := min(m.tasks.Size(), limit)
	for i := 0; i < count; i++ {
		n := m.tasks.TryPop()
		t := n.Task()
		needDiscard := t.AllocatedOnHeap()
		t.Run()
		if needDiscard {
			t.Discard()
		}
	}
	return count
}

// RunNext runs one queued task; returns false if the queue was empty.
func (m *ManualExecutor) RunNext() bool {
	return m.RunAtMost(1) == 1
}

// Drain runs every currently queued task, excluding tasks they enqueue.
func (m *ManualExecutor) Drain() int {
	return m.RunAtMost(m.tasks.Size())
}

// WaitIdle runs tasks until the queue stays empty, including follow-up
// tasks enqueued along the way, and returns the total count run.
func (m *ManualExecutor) WaitIdle() int {
	count := 0
	for m.RunNext() {
		count++
	}
	return count
}

// TaskCount returns the number of currently queued tasks.
func (m *ManualExecutor) TaskCount() int {
	return m.tasks.Size()
}

// HasTasks reports whether any task is queued.
func (m *ManualExecutor) HasTasks() bool {
	return m.tasks.Size() > 0
}

// Dispose discards every still-queued heap task.
func (m *ManualExecutor) Dispose() {
	for {
		n := m.tasks.TryPop()
		if n == nil {
			return
		}
		discardNode(n)
	}
}
