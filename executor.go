// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Executor schedules tasks for execution.
//
// Implementations in this package: [Pool] (parallel work-stealing),
// [Strand] (serial sub-executor over another executor) and
// [ManualExecutor] (single-threaded, caller-driven).
type Executor interface {
	// Execute enqueues t to run once.
	Execute(t Task)

	// YieldExecute enqueues t after a yield. Scheduling after a yield may
	// differ from a plain Execute: the pool routes yielded tasks through
	// the global queue so they cannot bounce straight back through the
	// LIFO fast path.
	YieldExecute(t Task)
}

// Hint directs where the pool enqueues a task.
type Hint uint8

const (
	// HintLIFO swaps the task into the current worker's LIFO slot. The
	// slot is the first place the worker looks for its next task, which
	// keeps a producer and the consumer it just woke on the same worker.
	HintLIFO Hint = iota

	// HintLocal pushes to the current worker's local ring.
	HintLocal

	// HintGlobal pushes to the shared global FIFO.
	HintGlobal
)
