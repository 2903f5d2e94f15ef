package downloader

import (
	"context"
	"sync"

	"github.com/Yuvi9587/Kemono-Downloader/internal/transfer"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/api"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/events"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/filter"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/storage"
)

// SourceClient is the slice of the API client the post worker needs
type SourceClient interface {
	FileURL(path string) string
	RequestHeaders() map[string]string
	CommentTexts(ctx context.Context, postID string) ([]string, error)
}

// FileDownloader transfers one file
type FileDownloader interface {
	Download(ctx context.Context, req transfer.Request) transfer.Result
}

// PostWorker runs the per-post pipeline: skip words, filter decision,
// folder resolution, then one transfer per selected attachment.
type PostWorker struct {
	client      SourceClient
	engine      FileDownloader
	holder      *filter.Holder
	store       *storage.Manager
	reporter    *events.Reporter
	seq         *transfer.Sequencer
	cfg         *config.Config
	fileWorkers int
	log         logger.Logger
}

// NewPostWorker wires a post worker. seq may be nil when sequential naming
// is disabled.
func NewPostWorker(
	client SourceClient,
	engine FileDownloader,
	holder *filter.Holder,
	store *storage.Manager,
	reporter *events.Reporter,
	seq *transfer.Sequencer,
	cfg *config.Config,
	fileWorkers int,
	log logger.Logger,
) *PostWorker {
	if fileWorkers < 1 {
		fileWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &PostWorker{
		client:      client,
		engine:      engine,
		holder:      holder,
		store:       store,
		reporter:    reporter,
		seq:         seq,
		cfg:         cfg,
		fileWorkers: fileWorkers,
		log:         log,
	}
}

// Process runs one post through the state machine
func (w *PostWorker) Process(ctx context.Context, post *api.Post) PostResult {
	result := PostResult{Post: *post}

	skipWords := w.holder.SkipWords()
	if word, skip := filter.SkipPost(skipWords, w.cfg.Filters.SkipScope, post.Title); skip {
		w.log.DebugWithFields("post skipped by skip word", map[string]interface{}{
			"post_id": post.ID,
			"word":    word,
		})
		return result
	}

	attachments := post.AllAttachments()
	filenames := make([]string, len(attachments))
	for i, a := range attachments {
		filenames[i] = a.Name
	}

	filters := w.holder.Filters()
	decision := filter.EvaluatePost(filters, w.cfg.Filters.NameScope, post.Title, filenames)

	if decision.NeedComments {
		comments, err := w.client.CommentTexts(ctx, post.ID)
		if err != nil {
			w.log.WarnWithFields("comment fetch failed", map[string]interface{}{
				"post_id": post.ID,
				"error":   err.Error(),
			})
			decision = filter.Decision{}
		} else {
			decision = filter.EvaluateComments(filters, comments)
		}
	}

	if !decision.Matched {
		result.Missed = true
		if w.reporter != nil {
			w.reporter.PostMissed(post.Title, filter.ExtractKeyTerm(post.Title))
		}
		return result
	}

	dir, err := w.resolveFolder(post, decision)
	if err != nil {
		result.Err = err
		return result
	}

	selected := w.selectAttachments(post, attachments, decision, skipWords)
	if len(selected) == 0 {
		w.finish(post, &result)
		return result
	}

	w.downloadAll(ctx, post, dir, selected, &result)
	w.finish(post, &result)
	return result
}

func (w *PostWorker) finish(post *api.Post, result *PostResult) {
	if w.reporter != nil {
		w.reporter.PostFinished(post.ID, post.Title, result.Downloaded, result.Skipped)
	}
}

// resolveFolder picks the output directory: an explicit custom folder wins,
// then the matched filter's name, then a name derived from the title.
func (w *PostWorker) resolveFolder(post *api.Post, decision filter.Decision) (string, error) {
	name := ""
	switch {
	case w.cfg.Output.CustomFolderName != "":
		name = w.cfg.Output.CustomFolderName
	case !w.cfg.Output.FilterFolders:
		name = ""
	case decision.Filter.Name != "":
		name = decision.Filter.Name
	default:
		if term := filter.ExtractKeyTerm(post.Title); term != "" {
			name = term
		} else {
			name = storage.CleanFolderName(post.Title)
		}
	}

	dir, err := w.store.EnsureFolder(name)
	if err != nil {
		return "", err
	}
	if w.cfg.Output.PostSubfolders {
		return w.store.EnsureUniqueSubfolder(dir, post.Title)
	}
	return dir, nil
}

type selectedFile struct {
	attachment api.Attachment
	index      int // 1-based position within the selection
}

// selectAttachments narrows the attachment list to what will actually be
// fetched: the filter decision's selection minus skip-word hits, file-type
// mismatches and names already seen within this post.
func (w *PostWorker) selectAttachments(post *api.Post, attachments []api.Attachment, decision filter.Decision, skipWords []string) []selectedFile {
	indices := decision.FileIndices
	if decision.AllFiles {
		indices = make([]int, len(attachments))
		for i := range attachments {
			indices[i] = i
		}
	}

	var selected []selectedFile
	seen := make(map[string]bool)
	for _, i := range indices {
		att := attachments[i]
		if _, skip := filter.SkipFile(skipWords, w.cfg.Filters.SkipScope, att.Name); skip {
			continue
		}
		if !filter.AllowedByType(w.cfg.Filters.FileType, att.Name) {
			continue
		}
		if !filter.AllowedByArchiveToggles(w.cfg.Filters.SkipZip, w.cfg.Filters.SkipRar, att.Name) {
			continue
		}
		key := storage.CleanFilename(att.Name)
		if seen[key] {
			w.log.DebugWithFields("duplicate filename within post", map[string]interface{}{
				"post_id":  post.ID,
				"filename": att.Name,
			})
			continue
		}
		seen[key] = true
		selected = append(selected, selectedFile{attachment: att, index: len(selected) + 1})
	}
	return selected
}

// downloadAll transfers the selection, fanning out up to fileWorkers
// concurrent transfers. Feed sessions run with fileWorkers=1 so this
// degenerates to a sequential loop.
func (w *PostWorker) downloadAll(ctx context.Context, post *api.Post, dir string, selected []selectedFile, result *PostResult) {
	headers := w.client.RequestHeaders()
	total := len(selected)

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, w.fileWorkers)

	for _, sel := range selected {
		if ctx.Err() != nil {
			break
		}

		req := transfer.Request{
			URL:          w.client.FileURL(sel.attachment.Path),
			Name:         sel.attachment.Name,
			TargetFolder: dir,
			Headers:      headers,
			PostID:       post.ID,
			PostTitle:    post.Title,
			Index:        sel.index,
			Total:        total,
		}

		keptOriginal := false
		if w.seq != nil {
			if w.seq.Deferred() {
				// Counter-driven styles get their number only once the
				// engine confirms the write
				sel := sel
				req.NameSequence = func() string {
					renamed, _ := w.seq.Rename(post, sel.attachment.Name, sel.index)
					return renamed
				}
			} else {
				name, kept := w.seq.Rename(post, sel.attachment.Name, sel.index)
				if kept {
					keptOriginal = true
				} else {
					req.ForcedFilename = name
				}
			}
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(req transfer.Request, keptOriginal bool) {
			defer wg.Done()
			defer func() { <-sem }()

			res := w.engine.Download(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			switch res.Status {
			case transfer.StatusDownloaded:
				result.Downloaded++
				if keptOriginal {
					result.KeptOriginalNames = append(result.KeptOriginalNames, res.Filename)
				}
			case transfer.StatusSkipped:
				result.Skipped++
			case transfer.StatusRetryable:
				result.Retryable = append(result.Retryable, events.RetryFile{
					URL:            req.URL,
					Name:           req.Name,
					TargetFolder:   req.TargetFolder,
					PostID:         req.PostID,
					PostTitle:      req.PostTitle,
					Index:          req.Index,
					Total:          req.Total,
					ForcedFilename: req.ForcedFilename,
					Headers:        req.Headers,
					NameSequence:   req.NameSequence,
				})
			case transfer.StatusFailed:
				// A permanently failed file counts as skipped in the totals
				result.Skipped++
				w.log.ErrorWithFields("file download failed", map[string]interface{}{
					"post_id":  req.PostID,
					"filename": res.Filename,
					"error":    res.Err.Error(),
				})
			case transfer.StatusCancelled:
				// Nothing recorded; the session reports cancellation
			}
		}(req, keptOriginal)
	}

	wg.Wait()
}
