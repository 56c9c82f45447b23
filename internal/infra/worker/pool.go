// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// Task is one unit of fan-out work. It receives the pool's run context and
// reports its own failure; the pool only logs it.
type Task func(ctx context.Context) error

// ErrQueueFull is returned by Submit when the buffer is saturated. Callers
// decide whether to run the task inline or drop it.
var ErrQueueFull = errors.New("worker: queue full")

// Pool fans tasks out over a fixed set of goroutines.
//
// Cancelling the run context does not stop the workers: every accepted task
// still runs, with the cancelled context passed through so it can fail fast.
// A waiter counting task completions is therefore never stranded by tasks
// left sitting in the buffer.
type Pool struct {
	workers int
	jobs    chan Task
	quit    chan struct{}
	wg      sync.WaitGroup
	log     *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan Task, workers*4),
		quit:    make(chan struct{}),
		log:     logger,
	}
}

// Start launches the workers. ctx is handed to every task; only Stop ends
// the workers themselves.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.jobs:
			p.exec(ctx, id, task)
		case <-p.quit:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case task := <-p.jobs:
					p.exec(ctx, id, task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) exec(ctx context.Context, id int, task Task) {
	if task == nil {
		return
	}
	if err := task(ctx); err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("worker: task failed")
	}
}

// Submit enqueues the task without blocking.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("worker: nil task")
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop waits for the workers to finish the queued work and exit. Submitting
// after Stop is a caller bug.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}
