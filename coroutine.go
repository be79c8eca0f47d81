// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Coroutine runs a function on its own stack with explicit control
// transfer: Resume hands control to the body, Suspend (called from inside
// the body) hands it back. A panic in the body is captured and re-raised
// at the Resume that observed it.
//
// The body runs on a dedicated goroutine parked on an unbuffered
// rendezvous; exactly one side is runnable at any time, which is what
// makes the published-awaiter handshake of the fiber layer sound. This is
// the one place in the package that uses native channels: they are the
// runtime's stackful context-switch facility here, not a queue.
//
// A Coroutine must not be copied.
type Coroutine struct {
	resume chan struct{}
	yield  chan struct{}

	// The fields below are owned by whichever side holds control; the
	// channel rendezvous orders every access.
	started    bool
	completed  bool
	killed     bool
	panicked   bool
	panicValue any
}

// coroutineKill unwinds a live coroutine stack during Destroy. It is
// never visible outside the package: the body wrapper swallows it.
type coroutineKill struct{}

// NewCoroutine creates a coroutine around body. The body does not start
// until the first Resume.
func NewCoroutine(body func()) *Coroutine {
	c := &Coroutine{
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}
	go func() {
		<-c.resume
		c.started = true
		if !c.killed {
			func() {
				defer func() {
					if r := recover(); r != nil {
						if _, kill := r.(coroutineKill); !kill {
							c.panicked = true
							c.panicValue = r
						}
					}
				}()
				body()
			}()
		}
		c.completed = true
		c.yield <- struct{}{}
	}()
	return c
}

// Resume transfers control to the coroutine until its next Suspend or
// until the body returns. A panic raised by the body since the last
// Resume is re-raised here. Resuming a completed coroutine panics.
func (c *Coroutine) Resume() {
	if c.completed {
		panic("fiber: resume of a completed coroutine")
	}
	c.resume <- struct{}{}
	<-c.yield

	if c.panicked {
		r := c.panicValue
		c.panicked = false
		c.panicValue = nil
		panic(r)
	}
}

// Suspend transfers control back to the resumer. Must be called from
// inside the coroutine body.
func (c *Coroutine) Suspend() {
	c.yield <- struct{}{}
	<-c.resume
	if c.killed {
		panic(coroutineKill{})
	}
}

// Completed reports whether the body has returned.
func (c *Coroutine) Completed() bool { return c.completed }

// Destroy releases a coroutine that will never be resumed again. A
// started-but-incomplete coroutine is resumed one final time with an
// injected unwind signal so its goroutine exits; a never-started one is
// released directly. Destroying a completed coroutine is a no-op.
func (c *Coroutine) Destroy() {
	if c.completed {
		return
	}
	c.killed = true
	c.resume <- struct{}{}
	<-c.yield
}
