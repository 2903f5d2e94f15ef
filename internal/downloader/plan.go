package downloader

import (
	"time"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
)

// Plan is the set of concurrency parameters for one session, resolved once
// at session start instead of branching inside the scheduler.
type Plan struct {
	// PostWorkers is the number of concurrent post workers
	PostWorkers int
	// FileWorkers is the number of concurrent file transfers per post
	FileWorkers int
	// Batched splits job submission into timed batches
	Batched    bool
	NumBatches int
	BatchDelay time.Duration
	// RetryWorkers is the requested worker count for the retry pass,
	// further capped by the number of retry items at run time
	RetryWorkers int
}

// ResolvePlan computes the session plan from configuration. A single-post
// target gets one worker with concurrent file transfers; a creator feed
// fans out across posts with sequential files per post. Date-based naming
// forces full serialization since filenames follow global post order.
func ResolvePlan(cfg *config.Config, singlePost bool) Plan {
	requested := cfg.Download.PostWorkers
	if requested <= 0 {
		requested = config.RecommendedPostWorkers
	}
	if requested > config.MaxPostWorkers {
		requested = config.MaxPostWorkers
	}

	plan := Plan{
		PostWorkers:  requested,
		FileWorkers:  1,
		RetryWorkers: min(requested, config.MaxFileWorkersPerPost),
	}

	if singlePost {
		plan.PostWorkers = 1
		fileWorkers := cfg.Download.FileWorkersPerPost
		if fileWorkers <= 0 {
			fileWorkers = 1
		}
		if fileWorkers > config.MaxFileWorkersPerPost {
			fileWorkers = config.MaxFileWorkersPerPost
		}
		plan.FileWorkers = fileWorkers
		return plan
	}

	if cfg.Manga.Enabled && cfg.Manga.Style == config.StyleDateBased {
		plan.PostWorkers = 1
		return plan
	}

	if cfg.Filters.NameScope == config.ScopeComments && plan.PostWorkers > config.CommentScopeWorkerCap {
		plan.PostWorkers = config.CommentScopeWorkerCap
	}

	if plan.PostWorkers > config.BatchWorkerThreshold {
		plan.Batched = true
		plan.NumBatches = config.NumBatches
		plan.BatchDelay = config.BatchDelay
	}

	return plan
}
