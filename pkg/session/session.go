package session

import (
	"context"
	"errors"

	"github.com/spf13/afero"

	"github.com/Yuvi9587/Kemono-Downloader/internal/downloader"
	"github.com/Yuvi9587/Kemono-Downloader/internal/transfer"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/api"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/cookies"
	errs "github.com/Yuvi9587/Kemono-Downloader/pkg/errors"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/events"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/filter"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/storage"
)

// Options configures a Session. Only Config is required.
type Options struct {
	Config *config.Config
	// Fs defaults to the OS filesystem
	Fs afero.Fs
	// BaseURL overrides the source host, used by tests
	BaseURL  string
	Logger   logger.Logger
	Reporter *events.Reporter
}

// Session wires one download run: the API client, the storage and dedup
// layers, the worker pool and the retry pass. Exactly one Summary event
// fires per session, whether it completes, fails at startup or is
// cancelled.
type Session struct {
	cfg      *config.Config
	source   api.Source
	client   *api.Client
	store    *storage.Manager
	dedup    *storage.DedupStore
	holder   *filter.Holder
	reporter *events.Reporter
	control  *downloader.Control
	engine   *transfer.Engine
	seq      *transfer.Sequencer
	plan     downloader.Plan
	log      logger.Logger
}

// New builds a session from configuration
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = events.NewReporter(0)
	}

	source, err := api.ParseSourceURL(cfg.Source.URL)
	if err != nil {
		return nil, err
	}

	cookieHeader, err := resolveCookies(cfg, fs)
	if err != nil {
		return nil, err
	}

	control := downloader.NewControl()

	client := api.NewClient(api.Options{
		Source:        source,
		BaseURL:       opts.BaseURL,
		UserAgent:     cfg.Source.UserAgent,
		CookieHeader:  cookieHeader,
		Timeout:       cfg.Download.RequestTimeout,
		RetryAttempts: cfg.Download.RetryAttempts,
		RetryDelay:    cfg.Download.RetryDelay,
		Halt:          control.Cancelled,
		Logger:        log,
	})

	store, err := storage.NewManager(fs, cfg.Output.Directory)
	if err != nil {
		return nil, err
	}

	dedup := storage.NewDedupStore()
	holder := filter.NewHolder(cfg.Filters.Names, cfg.Filters.SkipWords)

	engine := transfer.NewEngine(transfer.Options{
		Store:            store,
		Dedup:            dedup,
		Reporter:         reporter,
		Logger:           log,
		RemoveWords:      cfg.Filters.RemoveWords,
		Multipart:        cfg.Download.Multipart,
		MultipartParts:   cfg.Download.MultipartParts,
		MultipartMinSize: cfg.Download.MultipartMinSize,
		CompressImages:   cfg.Download.CompressImages,
	})

	var seq *transfer.Sequencer
	if cfg.Manga.Enabled {
		seq = transfer.NewSequencer(cfg.Manga.Style, cfg.Manga.Prefix)
	}

	return &Session{
		cfg:      cfg,
		source:   source,
		client:   client,
		store:    store,
		dedup:    dedup,
		holder:   holder,
		reporter: reporter,
		control:  control,
		engine:   engine,
		seq:      seq,
		plan:     downloader.ResolvePlan(cfg, source.IsSinglePost()),
		log:      log,
	}, nil
}

func resolveCookies(cfg *config.Config, fs afero.Fs) (string, error) {
	if !cfg.Cookies.Enabled {
		return "", nil
	}

	appDir, err := cookies.AppDir()
	if err != nil {
		return "", err
	}
	store, _ := cookies.OpenStore()

	source, err := api.ParseSourceURL(cfg.Source.URL)
	if err != nil {
		return "", err
	}

	resolver := cookies.NewResolver(fs, appDir, store)
	header, err := resolver.Resolve(cfg.Cookies, source.Domain)
	if errors.Is(err, cookies.ErrNoCookies) {
		return "", nil
	}
	return header, err
}

// Events returns the event stream consumed by the presentation layer
func (s *Session) Events() <-chan events.Event {
	return s.reporter.Events()
}

// Control returns the session's cancel/pause flags
func (s *Session) Control() *downloader.Control {
	return s.control
}

// Filters returns the live-mutable filter list. Edits apply to posts not
// yet evaluated.
func (s *Session) Filters() *filter.Holder {
	return s.holder
}

// Plan returns the resolved concurrency parameters
func (s *Session) Plan() downloader.Plan {
	return s.plan
}

// Run executes the session to completion. The Summary event fires exactly
// once on every path out of this method.
func (s *Session) Run(ctx context.Context) error {
	worker := downloader.NewPostWorker(
		s.client, s.engine, s.holder, s.store, s.reporter, s.seq, s.cfg, s.plan.FileWorkers, s.log)
	pool := downloader.NewWorkerPool(ctx, s.plan.PostWorkers, worker, s.control, s.log)
	pool.Start()

	var (
		downloaded int
		skipped    int
		kept       []string
		retryable  []events.RetryFile
		processed  int
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for result := range pool.Results() {
			downloaded += result.Downloaded
			skipped += result.Skipped
			kept = append(kept, result.KeptOriginalNames...)
			retryable = append(retryable, result.Retryable...)
			processed++

			if result.Err != nil {
				s.log.WarnWithFields("post finished with error", map[string]interface{}{
					"post_id": result.Post.ID,
					"error":   result.Err.Error(),
				})
			}
		}
	}()

	feedErr := s.submitPosts(ctx, pool)
	pool.Stop()
	<-done

	names, hashes := s.dedup.Counts()
	s.log.InfoWithFields("main pass finished", map[string]interface{}{
		"posts":        processed,
		"downloaded":   downloaded,
		"skipped":      skipped,
		"retryable":    len(retryable),
		"known_names":  names,
		"known_hashes": hashes,
	})

	var retrySucceeded, retryFailed int
	if len(retryable) > 0 && !s.cancelled(ctx) {
		s.reporter.RetryPending(retryable)
		coordinator := downloader.NewRetryCoordinator(s.engine, s.control, s.log)
		retrySucceeded, retryFailed = coordinator.Run(ctx, retryable, s.plan.RetryWorkers)
	}

	s.reporter.Summary(events.SummaryEvent{
		Downloaded:        downloaded,
		Skipped:           skipped,
		Cancelled:         s.cancelled(ctx),
		KeptOriginalNames: kept,
		RetrySucceeded:    retrySucceeded,
		RetryFailed:       retryFailed,
	})

	if feedErr != nil && !s.cancelled(ctx) {
		return feedErr
	}
	return nil
}

func (s *Session) cancelled(ctx context.Context) bool {
	return s.control.Cancelled() || ctx.Err() != nil
}

// submitPosts feeds the pool. Single-post targets submit exactly one job;
// sequential naming collects and sorts the whole feed first; batched plans
// collect first so submission can be split into timed batches; everything
// else streams page by page so fetching and processing overlap.
func (s *Session) submitPosts(ctx context.Context, pool *downloader.WorkerPool) error {
	if s.source.IsSinglePost() {
		post, err := s.client.ResolveSinglePost(ctx)
		if err != nil {
			return s.feedError(err)
		}
		return pool.Submit(downloader.PostJob{Post: *post})
	}

	start := s.cfg.Source.StartPage
	end := s.cfg.Source.EndPage

	fullFetch := s.cfg.Manga.Enabled && s.cfg.Manga.Style != config.StyleDatePostTitle
	if fullFetch || s.plan.Batched {
		posts, err := s.client.FetchAllPosts(ctx, start, end)
		if err != nil {
			return s.feedError(err)
		}
		if fullFetch {
			api.SortOldestFirst(posts, s.log)
		}
		pool.SubmitAll(posts, s.plan)
		return nil
	}

	it := s.client.PageIterator(start, end)
	index := 0
	for {
		if s.control.Cancelled() {
			return nil
		}
		if err := s.control.Wait(ctx); err != nil {
			return nil
		}

		posts, ok, err := it.Next(ctx)
		if err != nil {
			return s.feedError(err)
		}
		if !ok {
			return nil
		}
		for i := range posts {
			if s.control.Cancelled() {
				return nil
			}
			if err := pool.Submit(downloader.PostJob{Post: posts[i], Index: index}); err != nil {
				return nil
			}
			index++
		}
	}
}

// feedError maps cancellation to a clean stop instead of a failure
func (s *Session) feedError(err error) error {
	if errs.TypeOf(err) == errs.ErrorTypeCancelled {
		return nil
	}
	return err
}
