package transfer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	errs "github.com/Yuvi9587/Kemono-Downloader/pkg/errors"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/events"
)

// Per-chunk copy buffer, smaller than the single-stream buffer since
// several chunks run at once
const chunkBufferSize = 256 << 10

// probeRange asks the remote for the file size and range support
func (e *Engine) probeRange(ctx context.Context, req Request) (int64, bool) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, req.URL, nil)
	if err != nil {
		return 0, false
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	res, err := e.httpClient.Do(httpReq)
	if err != nil {
		return 0, false
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK || res.ContentLength <= 0 {
		return 0, false
	}
	if !strings.Contains(strings.ToLower(res.Header.Get("Accept-Ranges")), "bytes") {
		return 0, false
	}
	return res.ContentLength, true
}

// multiPart downloads the file as concurrent byte-range chunks written at
// their offsets into a preallocated temporary file. Any chunk failure fails
// the whole attempt; the caller restarts single-stream.
func (e *Engine) multiPart(ctx context.Context, req Request, finalPath string, size int64) (int64, string, error) {
	fs := e.store.Fs()
	tempPath := e.store.TempPath(finalPath)

	file, err := fs.Create(tempPath)
	if err != nil {
		return 0, "", errs.Wrap(errs.ErrorTypeLocalIO, "failed to create temporary file", err)
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		fs.Remove(tempPath)
		return 0, "", errs.Wrap(errs.ErrorTypeLocalIO, "failed to preallocate file", err)
	}

	filename := filepath.Base(finalPath)
	chunks := make([]events.ChunkState, e.parts)
	var mu sync.Mutex

	chunkSize := size / int64(e.parts)
	for i := 0; i < e.parts; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if i == e.parts-1 {
			end = size
		}
		chunks[i] = events.ChunkState{ID: i, Total: end - start, Active: true}
	}

	done := make(chan struct{})
	if e.reporter != nil {
		go func() {
			ticker := time.NewTicker(progressInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					mu.Lock()
					e.reporter.ChunkProgress(filename, chunks)
					mu.Unlock()
				}
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.parts; i++ {
		i := i
		start := int64(i) * chunkSize
		end := start + chunkSize
		if i == e.parts-1 {
			end = size
		}
		g.Go(func() error {
			err := e.downloadChunk(gctx, req, file, i, start, end, chunks, &mu)
			mu.Lock()
			chunks[i].Active = false
			mu.Unlock()
			return err
		})
	}

	err = g.Wait()
	close(done)
	closeErr := file.Close()

	if err == nil {
		err = closeErr
	}
	if err != nil {
		fs.Remove(tempPath)
		return 0, "", err
	}

	// Hash the assembled file so content dedup sees the same fingerprint a
	// single-stream transfer would produce
	assembled, err := fs.Open(tempPath)
	if err != nil {
		fs.Remove(tempPath)
		return 0, "", errs.Wrap(errs.ErrorTypeLocalIO, "failed to reopen file", err)
	}
	hasher := md5.New()
	if _, err := io.Copy(hasher, assembled); err != nil {
		assembled.Close()
		fs.Remove(tempPath)
		return 0, "", errs.Wrap(errs.ErrorTypeLocalIO, "failed to hash file", err)
	}
	assembled.Close()

	if err := fs.Rename(tempPath, finalPath); err != nil {
		fs.Remove(tempPath)
		return 0, "", errs.Wrap(errs.ErrorTypeLocalIO, "failed to finalize file", err)
	}

	if e.reporter != nil {
		mu.Lock()
		e.reporter.ChunkProgress(filename, chunks)
		mu.Unlock()
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// downloadChunk streams the byte range [start,end) into the file at its
// offset, updating the shared chunk state as it goes.
func (e *Engine) downloadChunk(ctx context.Context, req Request, file io.WriterAt, id int, start, end int64, chunks []events.ChunkState, mu *sync.Mutex) error {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", start, end-1)
	res, err := e.doGet(ctx, req, rangeHeader)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	buf := make([]byte, chunkBufferSize)
	offset := start
	began := time.Now()

	for {
		if ctx.Err() != nil {
			return errs.Wrap(errs.ErrorTypeCancelled, "transfer cancelled", ctx.Err())
		}

		n, readErr := res.Body.Read(buf)
		if n > 0 {
			if _, werr := file.WriteAt(buf[:n], offset); werr != nil {
				return errs.Wrap(errs.ErrorTypeLocalIO, "failed to write chunk data", werr)
			}
			offset += int64(n)

			mu.Lock()
			chunks[id].Downloaded = offset - start
			if elapsed := time.Since(began).Seconds(); elapsed > 0 {
				chunks[id].SpeedBPS = float64(offset-start) / elapsed
			}
			mu.Unlock()
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errs.Wrap(errs.ErrorTypeNetwork,
				fmt.Sprintf("chunk %d read failed at offset %d", id, offset), readErr)
		}
	}

	if offset != end {
		return errs.New(errs.ErrorTypeIncomplete,
			fmt.Sprintf("chunk %d read %d of %d bytes", id, offset-start, end-start))
	}
	return nil
}
