// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Result carries the outcome of an asynchronous computation: a value or
// an error, never both.
type Result[T any] struct {
	Value T
	Err   error
}

// Future is the boundary this runtime consumes from a futures library.
// Subscribe registers a callback invoked exactly once with the result;
// the runtime never looks deeper than that.
type Future[T any] interface {
	Subscribe(fn func(Result[T]))
}

// futureAwaiter subscribes to the future only after the fiber has
// yielded, so a future completing on another goroutine cannot schedule
// the fiber while it is still running.
type futureAwaiter[T any] struct {
	handle FiberHandle
	future Future[T]
	result *Result[T]
}

func (a *futureAwaiter[T]) AwaitSuspend() {
	a.future.Subscribe(func(r Result[T]) {
		*a.result = r
		a.handle.Schedule()
	})
}

// Await suspends the calling fiber until f completes and returns its
// result.
func Await[T any](f Future[T]) (T, error) {
	h := mustSelf()

	var result Result[T]
	aw := futureAwaiter[T]{handle: h, future: f, result: &result}
	h.Suspend(&aw)
	return result.Value, result.Err
}
