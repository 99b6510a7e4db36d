package cache

import (
	"sync"

	"github.com/rs/zerolog"
)

// workerPool runs fire-and-forget background tasks (promotions, async
// tier writes, prefetch lookups) on a fixed set of goroutines with a
// bounded queue. When the queue is full the task is dropped and counted,
// so background pressure can never block a caller.
type workerPool struct {
	tasks   chan func()
	pending sync.WaitGroup
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	dropped func()
	logger  zerolog.Logger
}

func newWorkerPool(workers, queueSize int, dropped func(), logger zerolog.Logger) *workerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	p := &workerPool{
		tasks:   make(chan func(), queueSize),
		dropped: dropped,
		logger:  logger,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
		p.pending.Done()
	}
}

// submit enqueues task, dropping it when the pool is closed or the queue
// is full. Reports whether the task was accepted.
func (p *workerPool) submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}

	p.pending.Add(1)
	select {
	case p.tasks <- task:
		return true
	default:
		p.pending.Done()
		if p.dropped != nil {
			p.dropped()
		}
		p.logger.Debug().Msg("background task dropped, queue full")
		return false
	}
}

// flush blocks until every accepted task has finished.
func (p *workerPool) flush() {
	p.pending.Wait()
}

// close stops accepting tasks, waits for queued ones, and stops workers.
func (p *workerPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.pending.Wait()
	close(p.tasks)
	p.wg.Wait()
}
