// Package api implements the client for the content hosting API: source URL
// parsing, paced page-by-page feed traversal, single post and comment
// fetching, and the oldest-first ordering used for sequential file naming.
//
// Requests are spaced by a rate limiter and transient network failures are
// retried with exponential backoff. HTTP rejections and malformed payloads
// fail the individual request so the caller can account for the page and
// move on.
package api
