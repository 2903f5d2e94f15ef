package downloader

import (
	"context"
	"sync"

	"github.com/Yuvi9587/Kemono-Downloader/internal/transfer"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/events"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
)

// RetryCoordinator re-runs the retryable file failures collected during the
// main pass as one smaller second pass. Files that fail again are discarded.
type RetryCoordinator struct {
	engine  FileDownloader
	control *Control
	log     logger.Logger
}

// NewRetryCoordinator creates a retry coordinator
func NewRetryCoordinator(engine FileDownloader, control *Control, log logger.Logger) *RetryCoordinator {
	if control == nil {
		control = NewControl()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &RetryCoordinator{engine: engine, control: control, log: log}
}

// Run processes every retry item once with a small bounded worker count and
// reports how many succeeded and failed. The worker count never exceeds the
// item count.
func (r *RetryCoordinator) Run(ctx context.Context, files []events.RetryFile, requestedWorkers int) (succeeded, failed int) {
	if len(files) == 0 {
		return 0, 0
	}

	workers := requestedWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > config.MaxFileWorkersPerPost {
		workers = config.MaxFileWorkersPerPost
	}
	if workers > len(files) {
		workers = len(files)
	}

	r.log.InfoWithFields("starting retry pass", map[string]interface{}{
		"files":   len(files),
		"workers": workers,
	})

	jobs := make(chan events.RetryFile)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				if r.control.Cancelled() || ctx.Err() != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				if err := r.control.Wait(ctx); err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}

				res := r.engine.Download(ctx, transfer.Request{
					URL:            file.URL,
					Name:           file.Name,
					TargetFolder:   file.TargetFolder,
					Headers:        file.Headers,
					PostID:         file.PostID,
					PostTitle:      file.PostTitle,
					Index:          file.Index,
					Total:          file.Total,
					ForcedFilename: file.ForcedFilename,
					NameSequence:   file.NameSequence,
				})

				mu.Lock()
				if res.Status == transfer.StatusDownloaded || res.Status == transfer.StatusSkipped {
					succeeded++
				} else {
					failed++
					if res.Err != nil {
						r.log.WarnWithFields("retry failed, discarding file", map[string]interface{}{
							"filename": file.Name,
							"post_id":  file.PostID,
							"error":    res.Err.Error(),
						})
					}
				}
				mu.Unlock()
			}
		}()
	}

	for _, file := range files {
		jobs <- file
	}
	close(jobs)
	wg.Wait()

	r.log.InfoWithFields("retry pass finished", map[string]interface{}{
		"succeeded": succeeded,
		"failed":    failed,
	})
	return succeeded, failed
}
