package api

import (
	"context"
	"sort"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
	errs "github.com/Yuvi9587/Kemono-Downloader/pkg/errors"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
)

// PageIterator walks a creator feed page by page
type PageIterator struct {
	client   *Client
	nextPage int // 1-based
	endPage  int // 0 means no upper bound
	done     bool
}

// PageIterator returns an iterator over the feed, limited to the given
// 1-based page range. start <= 0 means the first page, end <= 0 means
// no upper bound.
func (c *Client) PageIterator(startPage, endPage int) *PageIterator {
	if startPage <= 0 {
		startPage = 1
	}
	return &PageIterator{
		client:   c,
		nextPage: startPage,
		endPage:  endPage,
	}
}

// Next fetches the next page. It returns false once the feed is exhausted
// or the configured end page has been passed.
func (it *PageIterator) Next(ctx context.Context) ([]Post, bool, error) {
	if it.done {
		return nil, false, nil
	}
	if it.endPage > 0 && it.nextPage > it.endPage {
		it.done = true
		return nil, false, nil
	}

	offset := (it.nextPage - 1) * config.PageSize
	posts, err := it.client.FetchPage(ctx, offset)
	if err != nil {
		it.done = true
		return nil, false, err
	}

	it.client.log.DebugWithFields("fetched feed page", map[string]interface{}{
		"page":  it.nextPage,
		"posts": len(posts),
	})
	it.nextPage++

	if len(posts) == 0 {
		it.done = true
		return nil, false, nil
	}
	if len(posts) < config.PageSize {
		it.done = true
	}
	return posts, true, nil
}

// FetchAllPosts drains the feed into memory, honoring the page range
func (c *Client) FetchAllPosts(ctx context.Context, startPage, endPage int) ([]Post, error) {
	var all []Post
	it := c.PageIterator(startPage, endPage)
	for {
		posts, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		all = append(all, posts...)
	}
	return all, nil
}

// SortOldestFirst orders posts for sequential naming: published date
// ascending, then numeric post id ascending. Posts missing a published
// date fall back to the added date.
func SortOldestFirst(posts []Post, log logger.Logger) {
	fallbacks := 0
	for i := range posts {
		if _, usedFallback, _ := posts[i].OrderingTime(); usedFallback {
			fallbacks++
		}
	}
	if fallbacks > 0 && log != nil {
		log.WarnWithFields("posts missing published date, ordering by added date", map[string]interface{}{
			"posts": fallbacks,
		})
	}

	sort.SliceStable(posts, func(i, j int) bool {
		ti, _, okI := posts[i].OrderingTime()
		tj, _, okJ := posts[j].OrderingTime()
		if okI != okJ {
			return okJ // undated posts sort first, keeping dated order intact
		}
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return posts[i].NumericID() < posts[j].NumericID()
	})
}

// ResolveSinglePost fetches the post named by the source URL. When the
// direct post endpoint fails it falls back to scanning the feed for a
// matching id.
func (c *Client) ResolveSinglePost(ctx context.Context) (*Post, error) {
	if !c.source.IsSinglePost() {
		return nil, errs.New(errs.ErrorTypeUnknown, "source does not name a post")
	}

	post, err := c.FetchPost(ctx, c.source.PostID)
	if err == nil {
		return post, nil
	}
	if errs.TypeOf(err) == errs.ErrorTypeCancelled {
		return nil, err
	}
	c.log.WarnWithFields("direct post fetch failed, scanning feed", map[string]interface{}{
		"post_id": c.source.PostID,
		"error":   err.Error(),
	})

	it := c.PageIterator(0, 0)
	for {
		posts, ok, scanErr := it.Next(ctx)
		if scanErr != nil {
			return nil, scanErr
		}
		if !ok {
			break
		}
		for i := range posts {
			if posts[i].ID == c.source.PostID {
				return &posts[i], nil
			}
		}
	}
	return nil, errs.New(errs.ErrorTypeNotFound, "post "+c.source.PostID+" not found in feed")
}
