// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"code.hybscloud.com/atomix"
	"go.uber.org/zap"
)

const (
	defaultLocalQueueSize = 1024

	// A worker that has dispatched this many consecutive tasks through
	// its LIFO slot takes the slot last on the next round, bounding the
	// starvation a ping-ponging task pair can inflict on the queues.
	maxLIFOStreak = 20

	// One take in globalTakeInterval goes to the global queue first,
	// guaranteeing forward progress for globally submitted tasks even
	// under heavy local churn.
	globalTakeInterval = 61

	// Added to tasksInQueue on Stop so no worker can park again.
	stopBias = int64(1) << 40
)

type takeStep uint8

const (
	stepLIFO takeStep = iota
	stepLocal
	stepGlobal
	stepSteal
)

var (
	takeDefault     = [4]takeStep{stepLIFO, stepLocal, stepGlobal, stepSteal}
	takeGlobalFirst = [4]takeStep{stepGlobal, stepLIFO, stepLocal, stepSteal}
	takeWithoutLIFO = [4]takeStep{stepLocal, stepGlobal, stepSteal, stepLIFO}
)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLogger sets the logger used to report recovered task panics.
// Defaults to a no-op logger.
func WithLogger(l *zap.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// WithLocalQueueSize sets the capacity of each worker's local ring.
// Defaults to 1024.
func WithLocalQueueSize(n int) PoolOption {
	return func(p *Pool) { p.localQueueSize = n }
}

// Pool is a parallel work-stealing executor.
//
// Each worker owns a LIFO hand-off slot and a bounded local ring; a
// mutex-guarded global FIFO backs them, and idle workers steal batches
// from random victims. Tasks enqueued from a worker (or from a fiber
// running on a worker) default to the local ring; tasks enqueued from
// outside go to the global queue.
//
//	pool := fiber.NewPool(4)
//	pool.Execute(fiber.NewTask(work, true))
//	pool.WaitIdle()
//	pool.Stop()
//
// A Pool must be stopped exactly once; Stop joins the workers and
// discards everything still queued.
type Pool struct {
	workers []poolWorker
	joined  sync.WaitGroup

	globalMu sync.Mutex
	global   TaskQueue // guarded by globalMu

	// tasksInQueue counts enqueued-but-not-yet-taken tasks; a worker
	// parks on parkCond while it reads zero, and the 0→1 transition
	// signals one parked worker.
	tasksInQueue atomix.Int64
	parkMu       sync.Mutex
	parkCond     *sync.Cond

	idle idleGroup

	// robbers bounds the number of concurrent stealers to the worker
	// count, so steal attempts cannot pile onto a drained victim.
	robbers atomix.Int64

	logger         *zap.Logger
	localQueueSize int
	stopped        bool
}

type poolWorker struct {
	pool       *Pool
	id         int
	closed     atomix.Bool
	rng        *rand.Rand
	lifoSlot   *TaskNode // owner goroutine only
	lifoStreak int       // consecutive LIFO-slot dispatches
	local      *stealQueue
	scratch    []*TaskNode
}

// NewPool starts a work-stealing pool with the given number of workers.
// Panics if workers <= 1.
func NewPool(workers int, opts ...PoolOption) *Pool {
	if workers <= 1 {
		panic("fiber: pool needs more than one worker")
	}

	p := &Pool{
		workers:        make([]poolWorker, workers),
		logger:         zap.NewNop(),
		localQueueSize: defaultLocalQueueSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.parkCond = sync.NewCond(&p.parkMu)

	for i := range p.workers {
		w := &p.workers[i]
		w.pool = p
		w.id = i
		w.rng = newWorkerRand()
		w.local = newStealQueue(p.localQueueSize)
		w.scratch = make([]*TaskNode, p.localQueueSize/2)
	}

	// Workers start only after every record above is in place, since a
	// stealer indexes any of them.
	p.joined.Add(workers)
	for i := range p.workers {
		go p.workers[i].run()
	}
	return p
}

// newWorkerRand builds a per-worker PCG generator seeded from OS entropy.
func newWorkerRand() *rand.Rand {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("fiber: seeding worker rng: " + err.Error())
	}
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))
}

// Execute enqueues t. From a worker (or a fiber running on one) the task
// goes to that worker's local ring; otherwise to the global queue.
func (p *Pool) Execute(t Task) {
	if w := p.currentWorker(); w != nil {
		p.executeOn(t, HintLocal, w)
		return
	}
	p.executeOn(t, HintGlobal, nil)
}

// YieldExecute enqueues t through the global queue, so a yielding task
// cannot return immediately via the LIFO fast path.
func (p *Pool) YieldExecute(t Task) {
	p.executeOn(t, HintGlobal, nil)
}

// ExecuteHint enqueues t at the placement named by hint. HintLocal and
// HintLIFO panic when the caller is not running on this pool.
func (p *Pool) ExecuteHint(t Task, hint Hint) {
	p.executeOn(t, hint, p.currentWorker())
}

func (p *Pool) executeOn(t Task, hint Hint, w *poolWorker) {
	p.idle.Add(1)

	n := t.Node()
	n.task = t

	switch hint {
	case HintLocal:
		if w == nil {
			panic("fiber: local hint outside a pool worker")
		}
		w.pushLocal(n)
	case HintGlobal:
		p.globalMu.Lock()
		p.global.PushNode(n)
		p.globalMu.Unlock()
	case HintLIFO:
		if w == nil {
			panic("fiber: lifo hint outside a pool worker")
		}
		prev := w.lifoSlot
		w.lifoSlot = n
		if prev != nil {
			w.pushLocal(prev)
		}
	default:
		panic("fiber: unknown execute hint")
	}

	if p.tasksInQueue.AddAcqRel(1) == 1 {
		p.parkMu.Lock()
		p.parkCond.Signal()
		p.parkMu.Unlock()
	}
}

// currentWorker resolves the worker of the calling goroutine: either a
// worker goroutine of this pool, or the worker currently driving the
// calling fiber's coroutine.
func (p *Pool) currentWorker() *poolWorker {
	id := currentGoroutineID()
	if w := workerRegistry.lookup(id); w != nil && w.pool == p {
		return w
	}
	if f := fiberRegistry.lookup(id); f != nil {
		if w := f.worker; w != nil && w.pool == p {
			return w
		}
	}
	return nil
}

// WaitIdle blocks until every task enqueued before the call has finished.
func (p *Pool) WaitIdle() {
	p.idle.Wait()
}

// Stop wakes and joins every worker, then discards all still-queued heap
// tasks. No task runs after Stop returns. Stopping twice panics.
func (p *Pool) Stop() {
	if p.stopped {
		panic("fiber: pool stopped twice")
	}
	p.stopped = true

	p.tasksInQueue.AddAcqRel(stopBias)
	p.parkMu.Lock()
	p.parkCond.Broadcast()
	p.parkMu.Unlock()

	for i := range p.workers {
		p.workers[i].closed.StoreRelease(true)
	}
	p.joined.Wait()

	p.idle.AllDone()

	p.globalMu.Lock()
	for {
		n := p.global.TryPop()
		if n == nil {
			break
		}
		discardNode(n)
	}
	p.globalMu.Unlock()

	for i := range p.workers {
		w := &p.workers[i]
		if w.lifoSlot != nil {
			discardNode(w.lifoSlot)
			w.lifoSlot = nil
		}
		for {
			n := w.local.TryPop()
			if n == nil {
				break
			}
			discardNode(n)
		}
	}
}

func discardNode(n *TaskNode) {
	if t := n.Task(); t.AllocatedOnHeap() {
		t.Discard()
	}
}

func (w *poolWorker) run() {
	p := w.pool
	defer p.joined.Done()

	id := currentGoroutineID()
	workerRegistry.register(id, w)
	defer workerRegistry.unregister(id)

	for !w.closed.LoadAcquire() {
		var strategy [4]takeStep
		switch {
		case w.rng.Uint64N(globalTakeInterval) == 0:
			strategy = takeGlobalFirst
		case w.lifoStreak >= maxLIFOStreak:
			strategy = takeWithoutLIFO
		default:
			strategy = takeDefault
		}

		if n := w.tryTake(strategy); n != nil {
			p.runTask(w, n.Task())
			continue
		}
		p.park()
	}
}

// tryTake walks the strategy steps in order and returns the first task
// found, maintaining the LIFO dispatch streak.
func (w *poolWorker) tryTake(strategy [4]takeStep) *TaskNode {
	wasLocal := false
	for _, step := range strategy {
		var n *TaskNode
		switch step {
		case stepLIFO:
			n = w.takeLIFO()
		case stepLocal:
			wasLocal = true
			n = w.local.TryPop()
		case stepGlobal:
			// A local step already came up empty, so the batch grab can
			// refill the ring without displacing anything.
			n = w.takeGlobal(wasLocal)
		case stepSteal:
			n = w.trySteal()
		}
		if n == nil {
			continue
		}
		if step == stepLIFO {
			w.lifoStreak++
		} else {
			w.lifoStreak = 0
		}
		return n
	}
	return nil
}

func (w *poolWorker) takeLIFO() *TaskNode {
	n := w.lifoSlot
	w.lifoSlot = nil
	return n
}

// takeGlobal pops one task from the global queue. When grab is set (the
// local ring is known empty) it additionally moves a fair share of the
// global backlog into the local ring.
func (w *poolWorker) takeGlobal(grab bool) *TaskNode {
	p := w.pool

	p.globalMu.Lock()
	result := p.global.TryPop()
	grabCount := min(p.localQueueSize/2, p.global.Size()/len(p.workers))
	if result == nil || !grab || grabCount == 0 {
		p.globalMu.Unlock()
		return result
	}

	var batch TaskQueue
	for i := 0; i < grabCount; i++ {
		n := p.global.TryPop()
		if n == nil {
			break
		}
		batch.PushNode(n)
	}
	p.globalMu.Unlock()

	for {
		n := batch.TryPop()
		if n == nil {
			break
		}
		w.pushLocal(n)
	}
	return result
}

// trySteal grabs a batch from a random victim's ring, keeping the first
// task and queueing the rest locally. Fails when the stealer cap is hit.
func (w *poolWorker) trySteal() *TaskNode {
	p := w.pool

	for {
		robbers := p.robbers.LoadRelaxed()
		if robbers >= int64(len(p.workers)) {
			return nil
		}
		if p.robbers.CompareAndSwapAcqRel(robbers, robbers+1) {
			break
		}
	}
	defer p.robbers.AddAcqRel(-1)

	var victim int
	for {
		victim = int(w.rng.Uint64N(uint64(len(p.workers))))
		if victim != w.id {
			break
		}
	}

	scratch := w.scratch[:p.localQueueSize/4]
	grabbed := p.workers[victim].local.Grab(scratch)
	if grabbed == 0 {
		return nil
	}
	for _, n := range scratch[1:grabbed] {
		w.pushLocal(n)
	}
	return scratch[0]
}

// pushLocal pushes n to the worker's ring, draining half the ring into
// the global queue whenever it is full.
func (w *poolWorker) pushLocal(n *TaskNode) {
	for !w.local.TryPush(n) {
		w.drainLocalToGlobal()
	}
}

func (w *poolWorker) drainLocalToGlobal() {
	p := w.pool

	scratch := w.scratch[:p.localQueueSize/2]
	grabbed := w.local.Grab(scratch)
	if grabbed == 0 {
		return
	}

	var batch TaskQueue
	for _, n := range scratch[:grabbed] {
		batch.PushNode(n)
	}
	p.globalMu.Lock()
	p.global.PushQueue(&batch)
	p.globalMu.Unlock()
}

func (p *Pool) runTask(w *poolWorker, t Task) {
	p.tasksInQueue.AddAcqRel(-1)

	needDiscard := t.AllocatedOnHeap()
	p.invoke(w, t)
	if needDiscard {
		t.Discard()
	}
	p.idle.Done()
}

// invoke runs t, containing any panic so the worker survives. A fiber
// whose body panics terminates; the pool does not.
func (p *Pool) invoke(w *poolWorker, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.Int("worker", w.id),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	t.Run()
}

// park blocks the worker until tasksInQueue leaves zero.
func (p *Pool) park() {
	p.parkMu.Lock()
	for p.tasksInQueue.LoadAcquire() == 0 {
		p.parkCond.Wait()
	}
	p.parkMu.Unlock()
}

// idleGroup counts in-flight tasks for WaitIdle. The count is atomic so
// Add/Done stay off the mutex; the mutex only serializes the transition
// to zero against sleeping waiters.
type idleGroup struct {
	count atomix.Int64
	mu    sync.Mutex
	cond  *sync.Cond
	once  sync.Once
}

func (g *idleGroup) init() {
	g.once.Do(func() { g.cond = sync.NewCond(&g.mu) })
}

func (g *idleGroup) Add(n int64) {
	g.count.AddAcqRel(n)
}

func (g *idleGroup) Done() {
	if g.count.AddAcqRel(-1) == 0 {
		g.init()
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	}
}

func (g *idleGroup) Wait() {
	g.init()
	g.mu.Lock()
	for g.count.LoadAcquire() != 0 {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// AllDone drops the count to zero and releases every waiter. Called once
// at pool shutdown, after the workers have joined.
func (g *idleGroup) AllDone() {
	g.count.StoreRelease(0)
	g.init()
	g.mu.Lock()
	g.cond.Broadcast()
	g.mu.Unlock()
}
