package api

import (
	"strconv"
	"time"
)

// Post is one content item from the remote service
type Post struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user"`
	Service   string       `json:"service"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	Published string       `json:"published"`
	Added     string       `json:"added"`
	File      FileRef      `json:"file"`
	Files     []Attachment `json:"attachments"`
}

// FileRef is the optional primary file of a post
type FileRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Attachment is one downloadable file referenced by a post
type Attachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Comment is one comment on a post
type Comment struct {
	ID        string `json:"id"`
	Commenter string `json:"commenter"`
	Content   string `json:"content"`
	Published string `json:"published"`
}

// AllAttachments merges the primary file and the attachment list, skipping
// entries without a path and duplicate paths.
func (p *Post) AllAttachments() []Attachment {
	var out []Attachment
	seen := make(map[string]bool)

	if p.File.Path != "" {
		out = append(out, Attachment{Name: p.File.Name, Path: p.File.Path})
		seen[p.File.Path] = true
	}
	for _, a := range p.Files {
		if a.Path == "" || seen[a.Path] {
			continue
		}
		seen[a.Path] = true
		out = append(out, a)
	}
	return out
}

// NumericID parses the post id as an integer for ordering; non-numeric ids
// sort last.
func (p *Post) NumericID() int64 {
	n, err := strconv.ParseInt(p.ID, 10, 64)
	if err != nil {
		return 1<<63 - 1
	}
	return n
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the service's timestamp formats; the zero time and
// false are returned when nothing matches.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// OrderingTime returns the timestamp used for oldest-first ordering:
// published when present, added as fallback. The second return reports
// whether the fallback was used, the third whether any timestamp parsed.
func (p *Post) OrderingTime() (time.Time, bool, bool) {
	if t, ok := ParseTimestamp(p.Published); ok {
		return t, false, true
	}
	if t, ok := ParseTimestamp(p.Added); ok {
		return t, true, true
	}
	return time.Time{}, false, false
}
