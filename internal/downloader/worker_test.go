package downloader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yuvi9587/Kemono-Downloader/internal/transfer"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/api"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/events"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/filter"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/storage"
)

// mockSourceClient serves file URLs, headers and canned comments
type mockSourceClient struct {
	comments    []string
	commentsErr error
}

func (m *mockSourceClient) FileURL(path string) string {
	return "https://files.test" + path
}

func (m *mockSourceClient) RequestHeaders() map[string]string {
	return map[string]string{"User-Agent": "test"}
}

func (m *mockSourceClient) CommentTexts(ctx context.Context, postID string) ([]string, error) {
	return m.comments, m.commentsErr
}

// mockEngine records requests and returns per-filename statuses
type mockEngine struct {
	mu       sync.Mutex
	requests []transfer.Request
	statuses map[string]transfer.Status // by request name, default downloaded
}

func (m *mockEngine) Download(ctx context.Context, req transfer.Request) transfer.Result {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	status := transfer.StatusDownloaded
	if s, ok := m.statuses[req.Name]; ok {
		status = s
	}
	result := transfer.Result{Status: status, Filename: req.Name, Bytes: 1}
	if status == transfer.StatusFailed || status == transfer.StatusRetryable {
		result.Err = errors.New("mock failure")
	}
	return result
}

func (m *mockEngine) requestNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.requests))
	for i, r := range m.requests {
		names[i] = r.Name
	}
	return names
}

type workerFixture struct {
	client   *mockSourceClient
	engine   *mockEngine
	holder   *filter.Holder
	store    *storage.Manager
	reporter *events.Reporter
	cfg      *config.Config
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	store, err := storage.NewManager(afero.NewMemMapFs(), "/downloads")
	require.NoError(t, err)

	return &workerFixture{
		client:   &mockSourceClient{},
		engine:   &mockEngine{statuses: make(map[string]transfer.Status)},
		holder:   filter.NewHolder(nil, nil),
		store:    store,
		reporter: events.NewReporter(64),
		cfg:      config.DefaultConfig(),
	}
}

func (f *workerFixture) worker(seq *transfer.Sequencer, fileWorkers int) *PostWorker {
	return NewPostWorker(f.client, f.engine, f.holder, f.store, f.reporter, seq, f.cfg, fileWorkers, logger.NewNopLogger())
}

func testPost() *api.Post {
	return &api.Post{
		ID:    "42",
		Title: "Tifa Beach Day",
		Files: []api.Attachment{
			{Name: "tifa_01.jpg", Path: "/data/a/tifa_01.jpg"},
			{Name: "tifa_02.jpg", Path: "/data/b/tifa_02.jpg"},
			{Name: "notes.txt", Path: "/data/c/notes.txt"},
		},
	}
}

func TestProcessDownloadsAllWithoutFilters(t *testing.T) {
	f := newWorkerFixture(t)
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Downloaded)
	assert.Equal(t, 0, result.Skipped)
	assert.False(t, result.Missed)
	assert.Len(t, f.engine.requests, 3)
}

func TestProcessMissedPostEmitsKeyTerm(t *testing.T) {
	f := newWorkerFixture(t)
	f.holder.SetFilters([]string{"Aerith"})
	f.cfg.Filters.NameScope = config.ScopeTitle
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	assert.True(t, result.Missed)
	assert.Empty(t, f.engine.requests)

	ev := <-f.reporter.Events()
	require.Equal(t, events.TypePostMissed, ev.Type)
	assert.Equal(t, "Tifa Beach Day", ev.PostMissed.Title)
	assert.Equal(t, "Beach", ev.PostMissed.KeyTerm)
}

func TestProcessFilesScopeSelectsMatchesOnly(t *testing.T) {
	f := newWorkerFixture(t)
	f.holder.SetFilters([]string{"tifa"})
	f.cfg.Filters.NameScope = config.ScopeFiles
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	assert.Equal(t, 2, result.Downloaded)
	assert.ElementsMatch(t, []string{"tifa_01.jpg", "tifa_02.jpg"}, f.engine.requestNames())
}

func TestProcessCommentFallback(t *testing.T) {
	f := newWorkerFixture(t)
	f.holder.SetFilters([]string{"Cloud"})
	f.cfg.Filters.NameScope = config.ScopeComments
	f.client.comments = []string{"more Cloud please"}
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	assert.False(t, result.Missed)
	assert.Equal(t, 3, result.Downloaded)
}

func TestProcessCommentFetchFailureMissesPost(t *testing.T) {
	f := newWorkerFixture(t)
	f.holder.SetFilters([]string{"Cloud"})
	f.cfg.Filters.NameScope = config.ScopeComments
	f.client.commentsErr = errors.New("boom")
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	assert.True(t, result.Missed)
}

func TestProcessSkipWordDiscardsPost(t *testing.T) {
	f := newWorkerFixture(t)
	f.holder.SetSkipWords([]string{"beach"})
	f.cfg.Filters.SkipScope = config.ScopePosts
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	assert.Equal(t, 0, result.Downloaded)
	assert.False(t, result.Missed)
	assert.Empty(t, f.engine.requests)
}

func TestProcessSkipWordDiscardsFiles(t *testing.T) {
	f := newWorkerFixture(t)
	f.holder.SetSkipWords([]string{"notes"})
	f.cfg.Filters.SkipScope = config.ScopeFiles
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	assert.Equal(t, 2, result.Downloaded)
	assert.NotContains(t, f.engine.requestNames(), "notes.txt")
}

func TestProcessFileTypeFilter(t *testing.T) {
	f := newWorkerFixture(t)
	f.cfg.Filters.FileType = config.FileTypeImage
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	assert.Equal(t, 2, result.Downloaded)
	assert.NotContains(t, f.engine.requestNames(), "notes.txt")
}

func TestProcessPerPostDuplicateSuppression(t *testing.T) {
	f := newWorkerFixture(t)
	post := testPost()
	post.Files = append(post.Files, api.Attachment{Name: "tifa_01.jpg", Path: "/data/z/tifa_01.jpg"})
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), post)
	assert.Equal(t, 3, result.Downloaded)
	assert.Len(t, f.engine.requests, 3)
}

func TestProcessRetryableCollected(t *testing.T) {
	f := newWorkerFixture(t)
	f.engine.statuses["tifa_02.jpg"] = transfer.StatusRetryable
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	assert.Equal(t, 2, result.Downloaded)
	require.Len(t, result.Retryable, 1)
	assert.Equal(t, "tifa_02.jpg", result.Retryable[0].Name)
	assert.NotEmpty(t, result.Retryable[0].TargetFolder)
}

func TestProcessFailedCountsAsSkipped(t *testing.T) {
	f := newWorkerFixture(t)
	f.engine.statuses["notes.txt"] = transfer.StatusFailed
	w := f.worker(nil, 1)

	result := w.Process(context.Background(), testPost())
	assert.Equal(t, 2, result.Downloaded)
	assert.Equal(t, 1, result.Skipped)
}

func TestProcessMangaSequencerForcesNames(t *testing.T) {
	f := newWorkerFixture(t)
	seq := transfer.NewSequencer(config.StylePostID, "")
	w := f.worker(seq, 1)

	w.Process(context.Background(), testPost())

	require.Len(t, f.engine.requests, 3)
	forced := make([]string, len(f.engine.requests))
	for i, r := range f.engine.requests {
		forced[i] = r.ForcedFilename
	}
	assert.Equal(t, []string{"42_1.jpg", "42_2.jpg", "42_3.txt"}, forced)
}

func TestProcessDateStyleDefersNaming(t *testing.T) {
	f := newWorkerFixture(t)
	seq := transfer.NewSequencer(config.StyleDateBased, "")
	w := f.worker(seq, 1)

	w.Process(context.Background(), testPost())

	require.Len(t, f.engine.requests, 3)
	names := make([]string, len(f.engine.requests))
	for i, r := range f.engine.requests {
		// Counter-driven styles hand the engine a callback instead of a
		// pre-assigned name
		assert.Empty(t, r.ForcedFilename)
		require.NotNil(t, r.NameSequence)
		names[i] = r.NameSequence()
	}
	assert.Equal(t, []string{"001.jpg", "002.jpg", "003.txt"}, names)
}

func TestProcessRetryableCarriesNameSequence(t *testing.T) {
	f := newWorkerFixture(t)
	f.engine.statuses["tifa_02.jpg"] = transfer.StatusRetryable
	seq := transfer.NewSequencer(config.StyleDateBased, "")
	w := f.worker(seq, 1)

	result := w.Process(context.Background(), testPost())
	require.Len(t, result.Retryable, 1)
	require.NotNil(t, result.Retryable[0].NameSequence)
	assert.Equal(t, "001.jpg", result.Retryable[0].NameSequence())
}

func TestProcessKeptOriginalNamesAccounted(t *testing.T) {
	f := newWorkerFixture(t)
	seq := transfer.NewSequencer(config.StyleOriginalName, "")
	w := f.worker(seq, 1)

	result := w.Process(context.Background(), testPost())
	assert.Len(t, result.KeptOriginalNames, 3)
}

func TestProcessFolderFromMatchedFilter(t *testing.T) {
	f := newWorkerFixture(t)
	f.holder.SetFilters([]string{"Tifa"})
	f.cfg.Filters.NameScope = config.ScopeTitle
	f.cfg.Output.FilterFolders = true
	w := f.worker(nil, 1)

	w.Process(context.Background(), testPost())
	require.NotEmpty(t, f.engine.requests)
	assert.Equal(t, "/downloads/Tifa", f.engine.requests[0].TargetFolder)
}

func TestProcessCustomFolderWins(t *testing.T) {
	f := newWorkerFixture(t)
	f.cfg.Output.CustomFolderName = "My Stash"
	w := f.worker(nil, 1)

	w.Process(context.Background(), testPost())
	require.NotEmpty(t, f.engine.requests)
	assert.Equal(t, "/downloads/My Stash", f.engine.requests[0].TargetFolder)
}

func TestProcessConcurrentFileWorkers(t *testing.T) {
	f := newWorkerFixture(t)
	w := f.worker(nil, 3)

	result := w.Process(context.Background(), testPost())
	assert.Equal(t, 3, result.Downloaded)
}
