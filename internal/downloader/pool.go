package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/api"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/events"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
)

// PostJob represents one post handed to a worker
type PostJob struct {
	Post  api.Post
	Index int // position in feed order
}

// PostResult is what one post worker reports back
type PostResult struct {
	Post              api.Post
	Downloaded        int
	Skipped           int
	KeptOriginalNames []string
	Retryable         []events.RetryFile
	Missed            bool
	Err               error
	Duration          time.Duration
}

// PostProcessor runs the per-post state machine
type PostProcessor interface {
	Process(ctx context.Context, post *api.Post) PostResult
}

// WorkerPool manages concurrent post workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan PostJob
	resultQueue chan PostResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	processor   PostProcessor
	control     *Control
	logger      logger.Logger
}

// NewWorkerPool creates a post worker pool
func NewWorkerPool(ctx context.Context, numWorkers int, processor PostProcessor, control *Control, log logger.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	if numWorkers < 1 {
		numWorkers = 1
	}
	if control == nil {
		control = NewControl()
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan PostJob, numWorkers*2),
		resultQueue: make(chan PostResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		processor:   processor,
		control:     control,
		logger:      log,
	}
}

// Start launches all workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, drains the workers and closes the result
// queue. Safe to call after cancellation; outstanding jobs finish or are
// dropped by the workers' cancellation checks.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("worker pool stopped")
}

// Submit queues one post job
func (wp *WorkerPool) Submit(job PostJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// SubmitAll queues every post, splitting the submission into timed batches
// when the plan asks for it so a large worker count does not hit the remote
// with one burst. Returns the number of jobs actually submitted; submission
// stops early on cancellation.
func (wp *WorkerPool) SubmitAll(posts []api.Post, plan Plan) int {
	batches := 1
	if plan.Batched && plan.NumBatches > 1 && len(posts) > plan.NumBatches {
		batches = plan.NumBatches
	}

	submitted := 0
	batchSize := (len(posts) + batches - 1) / batches

	for b := 0; b < batches; b++ {
		if wp.control.Cancelled() {
			return submitted
		}
		if b > 0 {
			wp.logger.DebugWithFields("pausing between submission batches", map[string]interface{}{
				"batch":    b + 1,
				"batches":  batches,
				"delay_ms": plan.BatchDelay.Milliseconds(),
			})
			select {
			case <-wp.ctx.Done():
				return submitted
			case <-time.After(plan.BatchDelay):
			}
		}

		start := b * batchSize
		end := start + batchSize
		if end > len(posts) {
			end = len(posts)
		}
		for i := start; i < end; i++ {
			if wp.control.Cancelled() {
				return submitted
			}
			if err := wp.Submit(PostJob{Post: posts[i], Index: i}); err != nil {
				return submitted
			}
			submitted++
		}
	}
	return submitted
}

// Results returns the result channel
func (wp *WorkerPool) Results() <-chan PostResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.control.Cancelled() {
			continue // keep draining so Stop does not block
		}
		if err := wp.control.Wait(wp.ctx); err != nil {
			continue
		}

		start := time.Now()
		result := wp.processor.Process(wp.ctx, &job.Post)
		result.Duration = time.Since(start)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}
