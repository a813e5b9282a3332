package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/datallboy/rangefetch/internal/domain"
)

type segmentJob struct {
	Window  domain.Window
	Attempt int
}

type segmentResult struct {
	Job   segmentJob
	Error error
}

// runWorkerPool fetches windows concurrently, one connection per in-flight
// segment. Each in-flight job holds the only loan on its slice of buf.
func (s *Downloader) runWorkerPool(ctx context.Context, run *domain.Run, buf *Buffer, windows []domain.Window, digester *Digester) error {
	workerCount := s.ctx.Config.Download.Workers
	if workerCount > len(windows) {
		workerCount = len(windows)
	}
	bufferSize := workerCount * 2

	jobs := make(chan segmentJob, bufferSize)
	results := make(chan segmentResult, bufferSize)

	poolCtx, cancel := context.WithCancel(ctx)

	// Start the Workers
	var wg sync.WaitGroup

	// jobs is never closed: retries may still be queued by timers, so
	// workers stop on cancellation instead
	defer func() {
		cancel()
		wg.Wait()
	}()

	for w := 1; w <= workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(poolCtx, run, buf, jobs, results)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dispatchJobs(poolCtx, windows, jobs)
	}()

	// Collect Results
	completedCount := 0
	for completedCount < len(windows) {
		select {
		case <-poolCtx.Done():
			return ctx.Err()
		case res := <-results:
			if res.Error != nil {
				if domain.IsRetryable(res.Error) && res.Job.Attempt < s.retry.MaxAttempts {
					delay := s.retry.Delay(res.Job.Attempt)

					s.ctx.Logger.Warn("[Retry] Segment %s: Attempt %d/%d - Error: %v",
						res.Job.Window, res.Job.Attempt, s.retry.MaxAttempts, res.Error)

					job := res.Job
					job.Attempt++

					// Re-queue from a timer so this loop keeps draining results
					time.AfterFunc(delay, func() {
						select {
						case <-poolCtx.Done():
						case jobs <- job:
						}
					})
					continue
				}

				s.ctx.Logger.Error("[FAIL] Segment %s permanently failed: %v", res.Job.Window, res.Error)

				if domain.IsRetryable(res.Error) {
					return fmt.Errorf("segment %s: %w after %d attempts: %w",
						res.Job.Window, domain.ErrRetriesExhausted, res.Job.Attempt, res.Error)
				}
				return res.Error
			}

			digester.Complete(res.Job.Window, buf.Slice(res.Job.Window))
			completedCount++
		}
	}

	return nil
}

// worker pulls jobs until the pool is cancelled
func (s *Downloader) worker(ctx context.Context, run *domain.Run, buf *Buffer, jobs <-chan segmentJob, results chan<- segmentResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-jobs:
			err := s.fetchWindow(ctx, run, buf, job.Window)
			select {
			case results <- segmentResult{Job: job, Error: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// dispatchJobs queues every window in ascending offset order.
func (s *Downloader) dispatchJobs(ctx context.Context, windows []domain.Window, jobs chan<- segmentJob) {
	for _, w := range windows {
		select {
		case <-ctx.Done():
			return
		case jobs <- segmentJob{Window: w, Attempt: 1}:
		}
	}
}
