package download

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Add after GracefulShutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// WorkerPool runs queued job ids on a fixed number of workers.
type WorkerPool struct {
	taskChan chan string
	quit     chan struct{}
	run      func(ctx context.Context, id string)

	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	wg   sync.WaitGroup // workers
}

// NewWorkerPool starts workers goroutines that call run for each added id.
func NewWorkerPool(workers int, run func(ctx context.Context, id string)) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		taskChan: make(chan string, 100), // buffered to avoid blocking add
		quit:     make(chan struct{}),
		run:      run,
		ctx:      ctx,
		cancel:   cancel,
	}
	for range workers {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Add queues id. It blocks while the buffer is full.
func (p *WorkerPool) Add(id string) error {
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}
	select {
	case p.taskChan <- id:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case id := <-p.taskChan:
			p.run(p.ctx, id)
		}
	}
}

// GracefulShutdown stops accepting work, cancels running jobs and waits for
// every worker to return. Ids still buffered are dropped; they stay pending in
// the persisted list.
func (p *WorkerPool) GracefulShutdown() {
	p.once.Do(func() {
		close(p.quit)
		p.cancel()
	})
	p.wg.Wait()
}
