package downloader

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Yuvi9587/Kemono-Downloader/internal/transfer"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/events"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
)

func retryFiles(n int) []events.RetryFile {
	files := make([]events.RetryFile, n)
	for i := range files {
		files[i] = events.RetryFile{
			URL:          fmt.Sprintf("https://files.test/%d", i),
			Name:         fmt.Sprintf("file_%d.jpg", i),
			TargetFolder: "/downloads",
			PostID:       "42",
		}
	}
	return files
}

func TestRetryCoordinatorAllSucceed(t *testing.T) {
	engine := &mockEngine{statuses: make(map[string]transfer.Status)}
	rc := NewRetryCoordinator(engine, nil, logger.NewNopLogger())

	succeeded, failed := rc.Run(context.Background(), retryFiles(3), 4)
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 0, failed)
	assert.Len(t, engine.requests, 3)
}

func TestRetryCoordinatorCountsFailures(t *testing.T) {
	engine := &mockEngine{statuses: map[string]transfer.Status{
		"file_1.jpg": transfer.StatusFailed,
		"file_2.jpg": transfer.StatusRetryable, // failing again is terminal
	}}
	rc := NewRetryCoordinator(engine, nil, logger.NewNopLogger())

	succeeded, failed := rc.Run(context.Background(), retryFiles(4), 2)
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 2, failed)
	// succeeded + failed accounts for every retry item exactly once
	assert.Equal(t, 4, succeeded+failed)
}

func TestRetryCoordinatorPassesNameSequence(t *testing.T) {
	engine := &mockEngine{statuses: make(map[string]transfer.Status)}
	rc := NewRetryCoordinator(engine, nil, logger.NewNopLogger())

	files := retryFiles(1)
	files[0].NameSequence = func() string { return "007.jpg" }

	rc.Run(context.Background(), files, 1)
	assert.Len(t, engine.requests, 1)
	assert.NotNil(t, engine.requests[0].NameSequence)
	assert.Equal(t, "007.jpg", engine.requests[0].NameSequence())
}

func TestRetryCoordinatorEmpty(t *testing.T) {
	engine := &mockEngine{}
	rc := NewRetryCoordinator(engine, nil, logger.NewNopLogger())

	succeeded, failed := rc.Run(context.Background(), nil, 4)
	assert.Zero(t, succeeded)
	assert.Zero(t, failed)
	assert.Empty(t, engine.requests)
}

func TestRetryCoordinatorCancelledFailsRemaining(t *testing.T) {
	engine := &mockEngine{statuses: make(map[string]transfer.Status)}
	control := NewControl()
	control.Cancel()
	rc := NewRetryCoordinator(engine, control, logger.NewNopLogger())

	succeeded, failed := rc.Run(context.Background(), retryFiles(5), 2)
	assert.Zero(t, succeeded)
	assert.Equal(t, 5, failed)
	assert.Empty(t, engine.requests)
}
