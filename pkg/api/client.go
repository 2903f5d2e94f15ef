package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
	errs "github.com/Yuvi9587/Kemono-Downloader/pkg/errors"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/retry"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client talks to the content API of one creator source
type Client struct {
	httpClient    *http.Client
	baseURL       string
	source        Source
	userAgent     string
	cookieHeader  string
	limiter       *rate.Limiter
	retryAttempts int
	retryDelay    time.Duration
	halt          func() bool
	log           logger.Logger
}

// Options configures a Client
type Options struct {
	Source        Source
	BaseURL       string // overrides Source.BaseURL, used by tests
	UserAgent     string
	CookieHeader  string
	Timeout       time.Duration
	PageDelay     time.Duration // minimum spacing between API requests
	RetryAttempts int           // request attempts per page, 0 for the default
	RetryDelay    time.Duration // base backoff delay, 0 for the default
	// Halt, when set, stops retries and backoff waits early. Unlike
	// context cancellation it never aborts an in-flight request.
	Halt   func() bool
	Logger logger.Logger
}

// NewClient creates an API client for the given source
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = opts.Source.BaseURL()
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	pageDelay := opts.PageDelay
	if pageDelay == 0 {
		pageDelay = config.PageDelay
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(baseURL, "/"),
		source:        opts.Source,
		userAgent:     userAgent,
		cookieHeader:  opts.CookieHeader,
		limiter:       rate.NewLimiter(rate.Every(pageDelay), 1),
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
		halt:          opts.Halt,
		log:           log,
	}
}

// Source returns the creator source this client was built for
func (c *Client) Source() Source {
	return c.source
}

// FileURL builds the absolute download URL for an attachment path
func (c *Client) FileURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// RequestHeaders returns the headers file transfers should send
func (c *Client) RequestHeaders() map[string]string {
	headers := map[string]string{
		"User-Agent": c.userAgent,
		"Referer":    c.referer(),
	}
	if c.cookieHeader != "" {
		headers["Cookie"] = c.cookieHeader
	}
	return headers
}

func (c *Client) referer() string {
	return fmt.Sprintf("%s/%s/user/%s", c.baseURL, c.source.Service, c.source.UserID)
}

// FetchPage fetches one feed page at the given post offset. A response that
// is not JSON is treated as an empty page rather than an error.
func (c *Client) FetchPage(ctx context.Context, offset int) ([]Post, error) {
	query := url.Values{}
	if offset > 0 {
		query.Set("o", strconv.Itoa(offset))
	}

	body, contentType, err := c.get(ctx, c.source.FeedPath(), query)
	if err != nil {
		return nil, err
	}
	if !isJSON(contentType) {
		c.log.WarnWithFields("feed page returned non-JSON response, treating as empty", map[string]interface{}{
			"offset":       offset,
			"content_type": contentType,
		})
		return nil, nil
	}

	var posts []Post
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, "failed to decode feed page", err)
	}
	return posts, nil
}

// FetchPost fetches a single post by id
func (c *Client) FetchPost(ctx context.Context, postID string) (*Post, error) {
	body, contentType, err := c.get(ctx, c.source.PostPath(postID), nil)
	if err != nil {
		return nil, err
	}
	if !isJSON(contentType) {
		return nil, errs.New(errs.ErrorTypeParsing, "post response is not JSON")
	}

	// Newer API versions wrap the post in an envelope
	var envelope struct {
		Post Post `json:"post"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Post.ID != "" {
		return &envelope.Post, nil
	}

	var post Post
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, "failed to decode post", err)
	}
	if post.ID == "" {
		return nil, errs.New(errs.ErrorTypeParsing, "post response missing id")
	}
	return &post, nil
}

// FetchComments fetches the comments of a post
func (c *Client) FetchComments(ctx context.Context, postID string) ([]Comment, error) {
	body, contentType, err := c.get(ctx, c.source.CommentsPath(postID), nil)
	if err != nil {
		return nil, err
	}
	if !isJSON(contentType) {
		return nil, nil
	}

	var comments []Comment
	if err := json.Unmarshal(body, &comments); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, "failed to decode comments", err)
	}
	return comments, nil
}

// CommentTexts fetches a post's comments and returns their text bodies
func (c *Client) CommentTexts(ctx context.Context, postID string) ([]string, error) {
	comments, err := c.FetchComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(comments))
	for _, comment := range comments {
		if comment.Content != "" {
			texts = append(texts, comment.Content)
		}
	}
	return texts, nil
}

// get performs a paced GET with retry on transient network failures. HTTP
// rejections and decode failures are returned without retrying.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", errs.Wrap(errs.ErrorTypeCancelled, "request cancelled", err)
	}
	if c.halt != nil && c.halt() {
		return nil, "", errs.New(errs.ErrorTypeCancelled, "request halted")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", errs.Wrap(errs.ErrorTypeCancelled, "request cancelled", err)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	cfg := retry.APIConfig(ctx, c.retryAttempts, c.retryDelay, c.log)
	cfg.RetryIf = isTransportError
	cfg.Halt = c.halt

	type response struct {
		body        []byte
		contentType string
	}

	resp, err := retry.DoWithResult(func() (response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return response{}, errs.Wrap(errs.ErrorTypeUnknown, "failed to build request", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Referer", c.referer())
		req.Header.Set("Accept", "application/json")
		if c.cookieHeader != "" {
			req.Header.Set("Cookie", c.cookieHeader)
		}

		res, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return response{}, errs.Wrap(errs.ErrorTypeCancelled, "request cancelled", ctx.Err())
			}
			return response{}, errs.Wrap(errs.ErrorTypeNetwork, "request failed", err)
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			return response{}, errs.FromStatusCode(res.StatusCode, "unexpected status for "+path)
		}

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return response{}, errs.Wrap(errs.ErrorTypeNetwork, "failed to read response body", err)
		}

		return response{body: body, contentType: res.Header.Get("Content-Type")}, nil
	}, cfg)
	if err != nil {
		return nil, "", err
	}
	return resp.body, resp.contentType, nil
}

// isTransportError limits API retries to timeouts and connection failures.
// Rate limits and server errors surface immediately so a page can be counted
// as failed instead of stalling the whole feed.
func isTransportError(err error) bool {
	return errs.TypeOf(err) == errs.ErrorTypeNetwork
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}
