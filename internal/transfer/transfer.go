package transfer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	errs "github.com/Yuvi9587/Kemono-Downloader/pkg/errors"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/events"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/storage"
)

const (
	// Stream copy buffer for single-stream downloads
	bufferSize = 1 << 20

	// Minimum spacing between progress events for one file
	progressInterval = 500 * time.Millisecond
)

// Status is the terminal outcome of one download attempt
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
	StatusRetryable  Status = "retryable"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Request describes one file transfer
type Request struct {
	URL            string
	Name           string
	TargetFolder   string
	Headers        map[string]string
	PostID         string
	PostTitle      string
	Index          int // 1-based position within the post
	Total          int // the post's file count
	ForcedFilename string
	// NameSequence, when set, supplies the output filename only after the
	// transfer and duplicate checks have succeeded, so skipped and failed
	// files never consume a sequence number.
	NameSequence func() string
}

// Result reports what happened to one Request
type Result struct {
	Status   Status
	Filename string
	Path     string
	Bytes    int64
	Hash     string
	Err      error
}

// Options configures an Engine
type Options struct {
	HTTPClient       *http.Client
	Store            *storage.Manager
	Dedup            *storage.DedupStore
	Reporter         *events.Reporter
	Logger           logger.Logger
	RemoveWords      []string
	Multipart        bool
	MultipartParts   int
	MultipartMinSize int64
	CompressImages   bool
	RetryLater       errs.RetryLaterPredicate
}

// Engine downloads files either as a single stream or as concurrent
// byte-range chunks, deduplicating against the session store.
type Engine struct {
	httpClient     *http.Client
	store          *storage.Manager
	dedup          *storage.DedupStore
	reporter       *events.Reporter
	log            logger.Logger
	removeWords    []string
	multipart      bool
	parts          int
	minPartSize    int64
	compressImages bool
	retryLater     errs.RetryLaterPredicate
}

// NewEngine creates a transfer engine
func NewEngine(opts Options) *Engine {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	parts := opts.MultipartParts
	if parts < 2 {
		parts = 4
	}
	minPartSize := opts.MultipartMinSize
	if minPartSize <= 0 {
		minPartSize = 10 << 20
	}
	retryLater := opts.RetryLater
	if retryLater == nil {
		retryLater = errs.DefaultRetryLater
	}

	return &Engine{
		httpClient:     httpClient,
		store:          opts.Store,
		dedup:          opts.Dedup,
		reporter:       opts.Reporter,
		log:            log,
		removeWords:    opts.RemoveWords,
		multipart:      opts.Multipart,
		parts:          parts,
		minPartSize:    minPartSize,
		compressImages: opts.CompressImages,
		retryLater:     retryLater,
	}
}

// Download transfers one file to its target folder. Duplicate filenames and
// duplicate content are skipped; transient failures come back as
// StatusRetryable for a later pass.
func (e *Engine) Download(ctx context.Context, req Request) Result {
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusCancelled, Filename: req.Name, Err: err}
	}

	filename := e.resolveFilename(req)

	// Sequence-named files dedup by content only: the provisional name is
	// the remote one, which repeats across posts by design of the styles
	// that defer naming.
	reserved := req.NameSequence == nil
	if reserved && !e.dedup.TryReserve(req.TargetFolder, filename, "") {
		e.log.DebugWithFields("skipping duplicate filename", map[string]interface{}{
			"filename": filename,
			"post_id":  req.PostID,
		})
		return Result{Status: StatusSkipped, Filename: filename}
	}
	release := func() {
		if reserved {
			e.dedup.Release(req.TargetFolder, filename, "")
		}
	}

	finalPath, err := e.store.UniqueFilePath(req.TargetFolder, filename)
	if err != nil {
		release()
		return Result{
			Status:   StatusFailed,
			Filename: filename,
			Err:      errs.Wrap(errs.ErrorTypeLocalIO, "failed to resolve destination", err),
		}
	}

	written, hash, err := e.transfer(ctx, req, finalPath)
	if err != nil {
		release()
		return e.classify(ctx, filename, err)
	}

	if !e.dedup.TryReserveHash(hash) {
		e.store.Fs().Remove(finalPath)
		release()
		e.log.DebugWithFields("skipping duplicate content", map[string]interface{}{
			"filename": filename,
			"hash":     hash,
		})
		return Result{Status: StatusSkipped, Filename: filename, Hash: hash}
	}

	if req.NameSequence != nil {
		finalPath = e.applySequenceName(req, finalPath)
	}

	if e.compressImages {
		finalPath, written = e.maybeRecompress(finalPath, written)
	}

	return Result{
		Status:   StatusDownloaded,
		Filename: filepath.Base(finalPath),
		Path:     finalPath,
		Bytes:    written,
		Hash:     hash,
	}
}

// transfer picks the multi-part path when it applies and falls back to a
// fresh single-stream attempt when a chunk fails.
func (e *Engine) transfer(ctx context.Context, req Request, finalPath string) (int64, string, error) {
	if e.multipart {
		if size, ok := e.probeRange(ctx, req); ok && size >= e.minPartSize {
			written, hash, err := e.multiPart(ctx, req, finalPath, size)
			if err == nil {
				return written, hash, nil
			}
			if ctx.Err() != nil {
				return 0, "", errs.Wrap(errs.ErrorTypeCancelled, "transfer cancelled", ctx.Err())
			}
			e.log.WarnWithFields("multi-part transfer failed, restarting single-stream", map[string]interface{}{
				"filename": filepath.Base(finalPath),
				"error":    err.Error(),
			})
		}
	}
	return e.singleStream(ctx, req, finalPath)
}

// singleStream downloads the file in one GET, hashing while streaming
func (e *Engine) singleStream(ctx context.Context, req Request, finalPath string) (int64, string, error) {
	res, err := e.doGet(ctx, req, "")
	if err != nil {
		return 0, "", err
	}
	defer res.Body.Close()

	total := res.ContentLength
	tempPath := e.store.TempPath(finalPath)
	fs := e.store.Fs()

	out, err := fs.Create(tempPath)
	if err != nil {
		return 0, "", errs.Wrap(errs.ErrorTypeLocalIO, "failed to create temporary file", err)
	}

	hasher := md5.New()
	buf := make([]byte, bufferSize)
	var written int64
	lastReport := time.Now()
	filename := filepath.Base(finalPath)

	cleanup := func() {
		out.Close()
		fs.Remove(tempPath)
	}

	for {
		if ctx.Err() != nil {
			cleanup()
			return 0, "", errs.Wrap(errs.ErrorTypeCancelled, "transfer cancelled", ctx.Err())
		}

		n, readErr := res.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				cleanup()
				return 0, "", errs.Wrap(errs.ErrorTypeLocalIO, "failed to write file data", werr)
			}
			hasher.Write(buf[:n])
			written += int64(n)

			if e.reporter != nil && time.Since(lastReport) >= progressInterval {
				e.reporter.FileProgress(filename, written, total)
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			cleanup()
			if total > 0 && written < total {
				return 0, "", errs.Wrap(errs.ErrorTypeIncomplete,
					fmt.Sprintf("read %d of %d bytes", written, total), readErr)
			}
			return 0, "", errs.Wrap(errs.ErrorTypeNetwork, "failed to read response body", readErr)
		}
	}

	if total > 0 && written < total {
		cleanup()
		return 0, "", errs.New(errs.ErrorTypeIncomplete,
			fmt.Sprintf("read %d of %d bytes", written, total))
	}

	if err := out.Close(); err != nil {
		fs.Remove(tempPath)
		return 0, "", errs.Wrap(errs.ErrorTypeLocalIO, "failed to close file", err)
	}
	if err := fs.Rename(tempPath, finalPath); err != nil {
		fs.Remove(tempPath)
		return 0, "", errs.Wrap(errs.ErrorTypeLocalIO, "failed to finalize file", err)
	}

	if e.reporter != nil {
		e.reporter.FileProgress(filename, written, total)
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// doGet issues one file request. rangeHeader, when set, is sent as-is and a
// 206 is expected.
func (e *Engine) doGet(ctx context.Context, req Request, rangeHeader string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, "failed to build request", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if rangeHeader != "" {
		httpReq.Header.Set("Range", rangeHeader)
	}

	res, err := e.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.ErrorTypeCancelled, "transfer cancelled", ctx.Err())
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "request failed", err)
	}

	wantStatus := http.StatusOK
	if rangeHeader != "" {
		wantStatus = http.StatusPartialContent
	}
	if res.StatusCode != wantStatus {
		res.Body.Close()
		return nil, errs.FromStatusCode(res.StatusCode, "unexpected status for "+req.URL)
	}
	return res, nil
}

// classify converts a transfer error into the terminal Result the post
// worker acts on.
func (e *Engine) classify(ctx context.Context, filename string, err error) Result {
	if ctx.Err() != nil || errs.TypeOf(err) == errs.ErrorTypeCancelled {
		return Result{Status: StatusCancelled, Filename: filename, Err: err}
	}
	if e.retryLater(err) {
		return Result{Status: StatusRetryable, Filename: filename, Err: err}
	}
	return Result{Status: StatusFailed, Filename: filename, Err: err}
}

// applySequenceName renames a confirmed write to its sequence-assigned
// name. The provisional name stays in place when the rename fails.
func (e *Engine) applySequenceName(req Request, path string) string {
	name := storage.CleanFilename(req.NameSequence())
	seqPath, err := e.store.UniqueFilePath(req.TargetFolder, name)
	if err == nil {
		err = e.store.Fs().Rename(path, seqPath)
	}
	if err != nil {
		e.log.WarnWithFields("failed to apply sequence name", map[string]interface{}{
			"filename": name,
			"error":    err.Error(),
		})
		return path
	}
	return seqPath
}

// resolveFilename runs the naming pipeline: clean the remote name, apply
// remove-words, and let a forced override win outright.
func (e *Engine) resolveFilename(req Request) string {
	if req.ForcedFilename != "" {
		return storage.CleanFilename(req.ForcedFilename)
	}
	name := storage.CleanFilename(req.Name)
	return ApplyRemoveWords(name, e.removeWords)
}
