// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"math/rand/v2"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Selected is the result of a [Select] or [TrySelect]: the position of
// the chosen channel in the argument list and the value received from it.
type Selected struct {
	Index int
	Value any
}

// SelectChannel is the facet of a channel that Select operates on.
// Every *Channel[T] implements it; element types may differ freely
// within one Select call.
type SelectChannel interface {
	selectReceive(st *selectState, index int) selectOutcome
	tryReceiveValue() (any, error)
	removeSelector(n *listNode)
}

type selectOutcome uint8

const (
	// selectEnqueued: no value ready; an arm was parked in the channel's
	// consumer list.
	selectEnqueued selectOutcome = iota
	// selectClaimed: this call claimed a buffered value synchronously.
	selectClaimed
	// selectSettled: another arm of the same select already claimed.
	selectSettled
)

// selectState is the per-call state shared by every arm of one select:
// the claim flag that makes the choice exclusive, the result slot, the
// suspension rendezvous, and the bookkeeping needed to unlink the losing
// arms afterwards. It doubles as the awaiter the fiber suspends on.
type selectState struct {
	handle  FiberHandle
	claimed atomix.Int64
	rv      rendezvous
	value   any
	index   int
	entries []selectEntry // indexed by original argument position
}

type selectEntry struct {
	node     *listNode
	ch       SelectChannel
	enqueued bool
}

// claim makes the caller the unique chooser of this select.
func (st *selectState) claim() bool {
	return st.claimed.CompareAndSwapAcqRel(0, 1)
}

func (st *selectState) AwaitSuspend() {
	if st.rv.arrive() {
		st.handle.Schedule()
	}
}

// unlinkAll removes every still-parked arm from its channel's consumer
// list, taking one channel lock at a time with none held. Arms a sender
// already popped are skipped via the idempotent Remove.
func (st *selectState) unlinkAll() {
	for i := range st.entries {
		e := &st.entries[i]
		if e.enqueued {
			e.ch.removeSelector(e.node)
		}
	}
}

// selectorReceiver is one arm of a select parked in a channel's consumer
// list. Its deliver claims the shared state; on a lost claim the value
// stays with the sender, who moves on to the next consumer.
type selectorReceiver[T any] struct {
	node  listNode
	st    *selectState
	index int
}

func (r *selectorReceiver[T]) deliver(v T) bool {
	st := r.st
	if !st.claim() {
		return false
	}
	st.value = v
	st.index = r.index
	if st.rv.arrive() {
		st.handle.Schedule()
	}
	return true
}

// selectReceive implements one arm of a blocking select on this channel:
// claim a buffered value synchronously, or park an arm in the consumer
// list.
func (c *Channel[T]) selectReceive(st *selectState, index int) selectOutcome {
	var g Guard
	c.lock.Lock(&g)

	if c.size > 0 {
		if !st.claim() {
			g.Unlock()
			return selectSettled
		}
		v := c.pop()
		c.refillFromProducer()
		g.Unlock()
		st.value = v
		st.index = index
		return selectClaimed
	}

	r := &selectorReceiver[T]{st: st, index: index}
	r.node.owner = r
	c.consumers.PushBack(&r.node)
	st.entries[index] = selectEntry{node: &r.node, ch: c, enqueued: true}
	g.Unlock()
	return selectEnqueued
}

func (c *Channel[T]) tryReceiveValue() (any, error) {
	v, err := c.TryReceive()
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Channel[T]) removeSelector(n *listNode) {
	var g Guard
	c.lock.Lock(&g)
	c.consumers.Remove(n)
	g.Unlock()
}

// Select receives one value from exactly one of the given channels,
// suspending the calling fiber until some channel can deliver. When
// several channels are ready, the choice is uniform: the channel order is
// shuffled anew on every call.
//
// The returned Index refers to the argument position of the chosen
// channel.
func Select(channels ...SelectChannel) Selected {
	h := mustSelf()
	n := len(channels)
	if n == 0 {
		panic("fiber: select over no channels")
	}

	chs, order := shuffled(channels)
	st := &selectState{
		handle:  h,
		index:   -1,
		entries: make([]selectEntry, n),
	}

	for i := 0; i < n; i++ {
		switch chs[i].selectReceive(st, order[i]) {
		case selectClaimed:
			st.unlinkAll()
			return Selected{Index: st.index, Value: st.value}
		case selectSettled:
			// A sender claimed through an arm parked earlier in this
			// loop. Wait for it to publish, then clean up.
			sw := spin.Wait{}
			for !st.rv.settled() {
				sw.Once()
			}
			st.unlinkAll()
			return Selected{Index: st.index, Value: st.value}
		}
	}

	h.Suspend(st)
	st.unlinkAll()
	return Selected{Index: st.index, Value: st.value}
}

// TrySelect polls the channels in a fresh random order and returns the
// first value found, or ErrWouldBlock when no channel has a value ready.
// Never suspends; safe to call off-fiber.
func TrySelect(channels ...SelectChannel) (Selected, error) {
	if len(channels) == 0 {
		panic("fiber: select over no channels")
	}

	chs, order := shuffled(channels)
	for i := range chs {
		v, err := chs[i].tryReceiveValue()
		if err == nil {
			return Selected{Index: order[i], Value: v}, nil
		}
	}
	return Selected{Index: -1}, ErrWouldBlock
}

// shuffled returns a Fisher–Yates permutation of channels along with each
// element's original argument position.
func shuffled(channels []SelectChannel) ([]SelectChannel, []int) {
	n := len(channels)
	chs := make([]SelectChannel, n)
	order := make([]int, n)
	copy(chs, channels)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		chs[i], chs[j] = chs[j], chs[i]
		order[i], order[j] = order[j], order[i]
	}
	return chs, order
}
