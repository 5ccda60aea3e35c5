package pools

import (
	"sync/atomic"
)

// Task represents a unit of work
type Task func()

// WorkerPool is a small work-stealing goroutine pool. The engine creates one
// per dispatch core when the core is configured to run multi-threaded
// (workers-per-core > 1); in the default single-threaded configuration no
// pool exists at all. Stealing happens only between the threads of one core,
// never across cores.
type WorkerPool struct {
	numWorkers int
	queues     []chan Task
	closed     atomic.Bool

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		stealsSuccess  atomic.Uint64
		stealsFailed   atomic.Uint64
	}
}

// NewWorkerPool creates a pool of numWorkers goroutines, each with its own
// task queue.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	pool := &WorkerPool{
		numWorkers: numWorkers,
		queues:     make([]chan Task, numWorkers),
	}

	for i := 0; i < numWorkers; i++ {
		pool.queues[i] = make(chan Task, 256)
	}

	for i := 0; i < numWorkers; i++ {
		go pool.run(i)
	}

	return pool
}

// Submit hands a task to the pool, round-robin over the worker queues. When
// every queue is full the task runs inline on the caller: overload degrades
// to the cooperative single-threaded behavior instead of queuing unboundedly.
func (p *WorkerPool) Submit(task Task) bool {
	if p.closed.Load() {
		return false
	}

	n := p.stats.tasksSubmitted.Add(1)
	idx := int(n) % p.numWorkers

	select {
	case p.queues[idx] <- task:
		return true
	default:
	}

	idx = (idx + 1) % p.numWorkers
	select {
	case p.queues[idx] <- task:
		return true
	default:
		task()
		p.stats.tasksCompleted.Add(1)
		return true
	}
}

// run is the main loop for worker id.
func (p *WorkerPool) run(id int) {
	own := p.queues[id]

	for {
		// Own queue first.
		select {
		case task, ok := <-own:
			if !ok || task == nil {
				return
			}
			task()
			p.stats.tasksCompleted.Add(1)
			continue
		default:
		}

		// Own queue empty: steal from siblings.
		if p.trySteal(id) {
			continue
		}

		// Nothing anywhere: block on own queue.
		task, ok := <-own
		if !ok || task == nil {
			return
		}
		task()
		p.stats.tasksCompleted.Add(1)
	}
}

// trySteal runs one task from a sibling queue if any holds work. Victims are
// scanned starting after the stealer's own slot to spread contention.
func (p *WorkerPool) trySteal(id int) bool {
	start := (id + 1) % p.numWorkers

	for i := 0; i < p.numWorkers-1; i++ {
		victim := p.queues[(start+i)%p.numWorkers]

		select {
		case task := <-victim:
			if task == nil {
				return false
			}
			p.stats.stealsSuccess.Add(1)
			task()
			p.stats.tasksCompleted.Add(1)
			return true
		default:
		}
	}

	p.stats.stealsFailed.Add(1)
	return false
}

// Close shuts the pool down. Queued tasks still drain; new submissions are
// rejected.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	for _, q := range p.queues {
		close(q)
	}
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		TasksSubmitted: p.stats.tasksSubmitted.Load(),
		TasksCompleted: p.stats.tasksCompleted.Load(),
		StealsSuccess:  p.stats.stealsSuccess.Load(),
		StealsFailed:   p.stats.stealsFailed.Load(),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int
	TasksSubmitted uint64
	TasksCompleted uint64
	StealsSuccess  uint64
	StealsFailed   uint64
}
