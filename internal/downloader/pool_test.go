package downloader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/api"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
)

// mockProcessor counts processed posts and reports one download each
type mockProcessor struct {
	delay     time.Duration
	processed atomic.Int32
}

func (m *mockProcessor) Process(ctx context.Context, post *api.Post) PostResult {
	m.processed.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return PostResult{Post: *post, Downloaded: 1}
}

func feedPosts(n int) []api.Post {
	posts := make([]api.Post, n)
	for i := range posts {
		posts[i] = api.Post{ID: fmt.Sprintf("%d", i), Title: fmt.Sprintf("post %d", i)}
	}
	return posts
}

func collectResults(pool *WorkerPool) (*[]PostResult, *sync.WaitGroup) {
	results := &[]PostResult{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range pool.Results() {
			*results = append(*results, result)
		}
	}()
	return results, &wg
}

func TestWorkerPoolProcessesAllJobs(t *testing.T) {
	processor := &mockProcessor{delay: time.Millisecond}
	pool := NewWorkerPool(context.Background(), 3, processor, nil, logger.NewNopLogger())
	pool.Start()

	results, wg := collectResults(pool)

	const numJobs = 10
	for i, post := range feedPosts(numJobs) {
		require.NoError(t, pool.Submit(PostJob{Post: post, Index: i}))
	}

	pool.Stop()
	wg.Wait()

	assert.Len(t, *results, numJobs)
	assert.Equal(t, int32(numJobs), processor.processed.Load())
}

func TestWorkerPoolSubmitAllUnbatched(t *testing.T) {
	processor := &mockProcessor{}
	pool := NewWorkerPool(context.Background(), 2, processor, nil, logger.NewNopLogger())
	pool.Start()

	_, wg := collectResults(pool)

	submitted := pool.SubmitAll(feedPosts(7), Plan{PostWorkers: 2})
	assert.Equal(t, 7, submitted)

	pool.Stop()
	wg.Wait()
	assert.Equal(t, int32(7), processor.processed.Load())
}

func TestWorkerPoolSubmitAllBatched(t *testing.T) {
	processor := &mockProcessor{}
	pool := NewWorkerPool(context.Background(), 4, processor, nil, logger.NewNopLogger())
	pool.Start()

	_, wg := collectResults(pool)

	plan := Plan{
		PostWorkers: 40,
		Batched:     true,
		NumBatches:  4,
		BatchDelay:  5 * time.Millisecond,
	}

	start := time.Now()
	submitted := pool.SubmitAll(feedPosts(20), plan)
	elapsed := time.Since(start)

	assert.Equal(t, 20, submitted)
	// Three inter-batch pauses
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)

	pool.Stop()
	wg.Wait()
	assert.Equal(t, int32(20), processor.processed.Load())
}

func TestWorkerPoolCancelledSubmissionStops(t *testing.T) {
	processor := &mockProcessor{}
	control := NewControl()
	control.Cancel()

	pool := NewWorkerPool(context.Background(), 2, processor, control, logger.NewNopLogger())
	pool.Start()

	_, wg := collectResults(pool)

	submitted := pool.SubmitAll(feedPosts(10), Plan{PostWorkers: 2})
	assert.Equal(t, 0, submitted)

	pool.Stop()
	wg.Wait()
	assert.Equal(t, int32(0), processor.processed.Load())
}

func TestWorkerPoolDrainsQueueAfterCancel(t *testing.T) {
	processor := &mockProcessor{}
	control := NewControl()
	pool := NewWorkerPool(context.Background(), 1, processor, control, logger.NewNopLogger())

	// Fill the queue before any worker runs, then cancel
	for i, post := range feedPosts(2) {
		require.NoError(t, pool.Submit(PostJob{Post: post, Index: i}))
	}
	control.Cancel()
	pool.Start()

	_, wg := collectResults(pool)
	pool.Stop()
	wg.Wait()

	// Jobs were drained without being processed
	assert.Equal(t, int32(0), processor.processed.Load())
}

func TestControlPauseAndResume(t *testing.T) {
	control := NewControl()
	control.Pause()
	assert.True(t, control.Paused())

	released := make(chan error, 1)
	go func() {
		released <- control.Wait(context.Background())
	}()

	select {
	case <-released:
		t.Fatal("Wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	control.Resume()
	select {
	case err := <-released:
		assert.NoError(t, err)
	case <-time.After(2 * pausePollInterval):
		t.Fatal("Wait did not return after resume")
	}
}

func TestControlWaitReturnsOnCancel(t *testing.T) {
	control := NewControl()
	control.Pause()

	released := make(chan error, 1)
	go func() {
		released <- control.Wait(context.Background())
	}()

	control.Cancel()
	select {
	case err := <-released:
		assert.Error(t, err)
	case <-time.After(2 * pausePollInterval):
		t.Fatal("Wait did not return after cancel")
	}
}
