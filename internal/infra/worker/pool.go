// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"rag-chat/internal/domain"
	"rag-chat/internal/domain/ports/adapter"
	"rag-chat/internal/infra/metrics"
)

var _ adapter.TaskRunner = (*Pool)(nil)

// ErrPoolStopped is returned for jobs submitted after Stop or after the
// Start context ends, and as the result of jobs still queued at that point.
var ErrPoolStopped = errors.New("worker pool stopped")

// Pool runs submitted jobs on a fixed set of goroutines. Submit never
// blocks: when the queue is saturated the job is rejected.
type Pool struct {
	wg      sync.WaitGroup
	jobs    chan *task
	quit    chan struct{}
	n       int
	log     *zerolog.Logger
	mu      sync.RWMutex // held by Submit while enqueueing
	stopped bool
	stop    sync.Once
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{
		jobs: make(chan *task, workers*4),
		quit: make(chan struct{}),
		n:    workers,
		log:  &l,
	}
}

// Start launches the workers. When ctx ends the pool stops accepting jobs
// and fails whatever is still queued, the same as Stop.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case t := <-p.jobs:
					metrics.SetWorkerQueueDepth(len(p.jobs))
					p.run(ctx, id, t)
				}
			}
		}(i)
	}
	go func() {
		select {
		case <-ctx.Done():
			p.close()
			p.wg.Wait()
			p.failQueued()
		case <-p.quit:
		}
	}()
	p.log.Info().Int("workers", p.n).Msg("worker pool started")
}

// Stop signals workers to exit, waits for running jobs and fails whatever
// is still queued with ErrPoolStopped so no handle is left pending.
func (p *Pool) Stop() {
	p.stop.Do(func() {
		p.close()
		close(p.quit)
		p.wg.Wait()
		p.failQueued()
		p.log.Info().Msg("worker pool stopped")
	})
}

// close rejects further submits. Once it returns no job can enter the queue.
func (p *Pool) close() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

func (p *Pool) failQueued() {
	for {
		select {
		case t := <-p.jobs:
			t.finish("", ErrPoolStopped)
		default:
			metrics.SetWorkerQueueDepth(0)
			return
		}
	}
}

func (p *Pool) Submit(job adapter.Job) (adapter.TaskHandle, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: nil job", domain.ErrInvalidArgument)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, ErrPoolStopped
	}
	t := &task{job: job, done: make(chan struct{})}
	select {
	case p.jobs <- t:
		metrics.SetWorkerQueueDepth(len(p.jobs))
		return t, nil
	default:
		// drop when saturated to avoid back-pressure
		metrics.IncWorkerJob("rejected")
		return nil, domain.ErrQueueFull
	}
}

func (p *Pool) run(ctx context.Context, id int, t *task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncWorkerJob("panicked")
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("job panicked")
			t.finish("", fmt.Errorf("job panicked: %v", r))
		}
	}()
	res, err := t.job(ctx)
	if err != nil {
		metrics.IncWorkerJob("failed")
		p.log.Debug().Int("worker", id).Err(err).Msg("job failed")
	} else {
		metrics.IncWorkerJob("completed")
	}
	t.finish(res, err)
}

// task is the TaskHandle returned by Submit. result and err are written
// once before done is closed.
type task struct {
	job    adapter.Job
	done   chan struct{}
	once   sync.Once
	result string
	err    error
}

func (t *task) finish(res string, err error) {
	t.once.Do(func() {
		t.result, t.err = res, err
		close(t.done)
	})
}

func (t *task) Done() <-chan struct{} { return t.done }

func (t *task) Ready() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *task) Result() (string, error) {
	if !t.Ready() {
		return "", domain.ErrTaskNotReady
	}
	return t.result, t.err
}
