// Package downloader schedules the per-post work of a session. A Plan
// resolved once at session start fixes the two concurrency axes (post
// workers and file transfers per post), the worker pool fans posts out over
// a job queue with optional batched submission, each PostWorker runs the
// filter/folder/transfer pipeline for one post, and the RetryCoordinator
// gives transient file failures one bounded second pass. Cancellation and
// pause are polled flags on a shared Control block.
package downloader
