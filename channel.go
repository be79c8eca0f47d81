// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// Channel is a bounded FIFO channel between fibers.
//
// Send and Receive suspend the calling fiber when they cannot proceed;
// TrySend and TryReceive never suspend and report [ErrWouldBlock]
// instead, which also makes them safe to call off-fiber.
//
// All channel state is guarded by one queued spinlock, whose FIFO
// fairness carries over to the channel: producers and consumers are woken
// in the order they queued, and lock acquisition itself cannot invert
// their priority.
type Channel[T any] struct {
	lock QueueSpinLock

	// Ring buffer; head/tail are free-running counters.
	buffer []T
	head   uint64
	tail   uint64
	size   int

	// Waiting producers (FIFO) and consumers. The consumer list is
	// doubly linked because select unlinks from its middle.
	producers awaiterList
	consumers awaiterList
}

// NewChannel creates a channel with the given capacity. Panics if
// capacity is not positive.
func NewChannel[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		panic("fiber: channel capacity must be positive")
	}
	return &Channel[T]{buffer: make([]T, capacity)}
}

// Cap returns the channel capacity.
func (c *Channel[T]) Cap() int { return len(c.buffer) }

// chanConsumer is the minimal contract between a channel and whatever is
// parked in its consumer list, be it a plain Receive or one arm of a
// Select.
// deliver offers v; a false return means the consumer could no longer
// accept (a select already settled elsewhere) and the value stays with
// the sender.
type chanConsumer[T any] interface {
	deliver(v T) bool
}

// producerAwaiter carries a value a suspended Send is waiting to hand
// over, plus the guard the suspension holds until AwaitSuspend.
type producerAwaiter[T any] struct {
	node   listNode
	handle FiberHandle
	value  T
	guard  *Guard
}

func (a *producerAwaiter[T]) AwaitSuspend() {
	a.guard.Unlock()
}

// consumerAwaiter is a suspended Receive: a slot for the incoming value
// and the guard held to the yield point.
type consumerAwaiter[T any] struct {
	node   listNode
	handle FiberHandle
	slot   *T
	guard  *Guard
}

func (a *consumerAwaiter[T]) AwaitSuspend() {
	a.guard.Unlock()
}

func (a *consumerAwaiter[T]) deliver(v T) bool {
	*a.slot = v
	a.handle.Schedule()
	return true
}

// Send delivers v to the channel, suspending the calling fiber while the
// buffer is full and no consumer is waiting.
func (c *Channel[T]) Send(v T) {
	var g Guard
	c.lock.Lock(&g)

	if c.deliverToConsumer(v) {
		g.Unlock()
		return
	}
	if c.size < len(c.buffer) {
		c.push(v)
		g.Unlock()
		return
	}

	h := mustSelf()
	aw := producerAwaiter[T]{handle: h, value: v, guard: &g}
	aw.node.owner = &aw
	c.producers.PushBack(&aw.node)
	h.Suspend(&aw)
}

// TrySend delivers v if a consumer is waiting or the buffer has room.
// Returns ErrWouldBlock otherwise. Never suspends.
func (c *Channel[T]) TrySend(v T) error {
	var g Guard
	c.lock.Lock(&g)

	if c.deliverToConsumer(v) {
		g.Unlock()
		return nil
	}
	if c.size < len(c.buffer) {
		c.push(v)
		g.Unlock()
		return nil
	}

	g.Unlock()
	return ErrWouldBlock
}

// Receive takes the next value, suspending the calling fiber while the
// channel is empty.
func (c *Channel[T]) Receive() T {
	var g Guard
	c.lock.Lock(&g)

	if c.size > 0 {
		v := c.pop()
		c.refillFromProducer()
		g.Unlock()
		return v
	}

	h := mustSelf()
	var slot T
	aw := consumerAwaiter[T]{handle: h, slot: &slot, guard: &g}
	aw.node.owner = &aw
	c.consumers.PushBack(&aw.node)
	h.Suspend(&aw)
	return slot
}

// TryReceive takes the next value if one is buffered; otherwise it
// returns ErrWouldBlock. Never suspends.
func (c *Channel[T]) TryReceive() (T, error) {
	var g Guard
	c.lock.Lock(&g)

	if c.size > 0 {
		v := c.pop()
		c.refillFromProducer()
		g.Unlock()
		return v, nil
	}

	g.Unlock()
	var zero T
	return zero, ErrWouldBlock
}

// deliverToConsumer hands v to the first parked consumer that still
// accepts it. Consumers that decline (settled selects) are dropped from
// the list and the search continues.
func (c *Channel[T]) deliverToConsumer(v T) bool {
	for {
		n := c.consumers.PopFront()
		if n == nil {
			return false
		}
		if n.owner.(chanConsumer[T]).deliver(v) {
			return true
		}
	}
}

// refillFromProducer moves one waiting producer's value into the slot a
// pop just freed and schedules that producer.
func (c *Channel[T]) refillFromProducer() {
	n := c.producers.PopFront()
	if n == nil {
		return
	}
	p := n.owner.(*producerAwaiter[T])
	c.push(p.value)
	p.handle.Schedule()
}

func (c *Channel[T]) push(v T) {
	c.buffer[c.tail%uint64(len(c.buffer))] = v
	c.tail++
	c.size++
}

func (c *Channel[T]) pop() T {
	i := c.head % uint64(len(c.buffer))
	v := c.buffer[i]
	var zero T
	c.buffer[i] = zero
	c.head++
	c.size--
	return v
}
