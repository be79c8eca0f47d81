// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "github.com/petermattis/goid"

const registryShardCount = 16

// goidRegistry maps goroutine ids to per-goroutine context. It stands in
// for the thread-local slots the runtime does not expose: worker
// goroutines register themselves here, and every fiber coroutine registers
// its fiber when its body starts.
//
// Sharded by goroutine id; each shard is guarded by a queued spinlock
// since the critical sections are a single map operation.
type goidRegistry[V any] struct {
	shards [registryShardCount]registryShard[V]
}

type registryShard[V any] struct {
	_    pad
	lock QueueSpinLock
	m    map[int64]V
}

func newGoidRegistry[V any]() *goidRegistry[V] {
	r := &goidRegistry[V]{}
	for i := range r.shards {
		r.shards[i].m = make(map[int64]V)
	}
	return r
}

func (r *goidRegistry[V]) shard(id int64) *registryShard[V] {
	return &r.shards[uint64(id)%registryShardCount]
}

func (r *goidRegistry[V]) register(id int64, v V) {
	s := r.shard(id)
	var g Guard
	s.lock.Lock(&g)
	s.m[id] = v
	g.Unlock()
}

func (r *goidRegistry[V]) unregister(id int64) {
	s := r.shard(id)
	var g Guard
	s.lock.Lock(&g)
	delete(s.m, id)
	g.Unlock()
}

// lookup returns the value registered for id, or the zero value.
func (r *goidRegistry[V]) lookup(id int64) V {
	s := r.shard(id)
	var g Guard
	s.lock.Lock(&g)
	v := s.m[id]
	g.Unlock()
	return v
}

var (
	fiberRegistry  = newGoidRegistry[*Fiber]()
	workerRegistry = newGoidRegistry[*poolWorker]()
)

func currentGoroutineID() int64 { return goid.Get() }
