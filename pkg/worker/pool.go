package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/utils/logging"
	"golang.org/x/sync/semaphore"
)

// Job is a unit of background work. Its context is detached from the caller
// and never cancelled.
type Job func(ctx context.Context) error

// Pool runs detached jobs with bounded concurrency. Job errors and panics are
// logged and never reach the submitter.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a pool running at most size jobs at once
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem: semaphore.NewWeighted(int64(size)),
	}
}

// Submit schedules job and returns immediately. The logger of ctx is carried
// over to the job, its cancellation is not.
func (p *Pool) Submit(ctx context.Context, name string, job Job) {
	jobCtx := logging.With(context.WithoutCancel(ctx), logging.From(ctx).With("job", name))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(jobCtx, 1); err != nil {
			logging.From(jobCtx).Warn("job dropped", "error", err)
			return
		}
		defer p.sem.Release(1)

		if err := run(jobCtx, job); err != nil {
			logging.From(jobCtx).Error("background job failed", "error", err)
		}
	}()
}

func run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New(fmt.Sprintf("panic in background job: %v", r),
				goerr.V("stack", string(debug.Stack())))
		}
	}()
	return job(ctx)
}

// Wait blocks until every submitted job has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown waits up to timeout for running jobs and reports whether all of
// them completed in time. Jobs still running are left alone and end with
// the process.
func (p *Pool) Shutdown(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
