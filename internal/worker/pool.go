package worker

import (
	"context"
	"errors"
	"sync"

	"placement-credit-sync/internal/logger"

	"github.com/rs/zerolog"
)

// Job is a unit of work. Long-running jobs, such as queue consumers, hold
// their worker until ctx is done.
type Job func(ctx context.Context) error

type task struct {
	name string
	run  Job
}

// WorkerPool runs jobs on a fixed number of goroutines.
type WorkerPool struct {
	size  int
	tasks chan task
	wg    sync.WaitGroup
	log   zerolog.Logger
}

func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:  size,
		tasks: make(chan task, size*2),
		log:   logger.Get().With().Str("component", "worker_pool").Logger(),
	}
}

func (wp *WorkerPool) Size() int {
	return wp.size
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("size", wp.size).Msg("Starting worker pool")

	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop closes the pool and waits for running jobs. No Submit may follow.
func (wp *WorkerPool) Stop() {
	close(wp.tasks)
	wp.wg.Wait()
	wp.log.Info().Msg("Worker pool stopped")
}

// Submit blocks until the pool accepts the job or ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, name string, job Job) error {
	select {
	case wp.tasks <- task{name: name, run: job}:
		return nil
	case <-ctx.Done():
		wp.log.Warn().Str("job", name).Msg("Job not accepted before cancellation")
		return ctx.Err()
	}
}

// Saturate submits one copy of job per worker.
func (wp *WorkerPool) Saturate(ctx context.Context, name string, job Job) error {
	for i := 0; i < wp.size; i++ {
		if err := wp.Submit(ctx, name, job); err != nil {
			return err
		}
	}
	return nil
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-wp.tasks:
			if !ok {
				return
			}
			if err := t.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("job", t.name).Msg("Job failed")
			}
		}
	}
}
