package api

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultDomain is used when the input URL carries no recognized host
const DefaultDomain = "kemono.su"

var knownDomains = map[string]bool{
	"kemono.su":    true,
	"kemono.party": true,
	"coomer.su":    true,
	"coomer.party": true,
}

// Source identifies a creator feed or a single post on a host
type Source struct {
	Domain  string
	Service string
	UserID  string
	PostID  string
}

// IsSinglePost reports whether the source targets one specific post
func (s Source) IsSinglePost() bool {
	return s.PostID != ""
}

// BaseURL returns the scheme+host prefix for API and file requests
func (s Source) BaseURL() string {
	return "https://" + s.Domain
}

// FeedPath returns the creator feed API path
func (s Source) FeedPath() string {
	return fmt.Sprintf("/api/v1/%s/user/%s", s.Service, s.UserID)
}

// PostPath returns the API path of a specific post
func (s Source) PostPath(postID string) string {
	return fmt.Sprintf("/api/v1/%s/user/%s/post/%s", s.Service, s.UserID, postID)
}

// CommentsPath returns the API path of a post's comments
func (s Source) CommentsPath(postID string) string {
	return fmt.Sprintf("/api/v1/%s/user/%s/post/%s/comments", s.Service, s.UserID, postID)
}

// ParseSourceURL extracts the domain, service, creator id and optional post id
// from a creator or post URL. Accepted shapes:
//
//	https://kemono.su/patreon/user/12345
//	https://kemono.su/patreon/user/12345/post/98765
func ParseSourceURL(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, fmt.Errorf("empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Source{}, fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	if host == "" {
		host = DefaultDomain
	}
	if !knownDomains[host] {
		return Source{}, fmt.Errorf("unsupported host %q", host)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[1] != "user" || parts[0] == "" || parts[2] == "" {
		return Source{}, fmt.Errorf("URL path %q does not match {service}/user/{id}", u.Path)
	}

	src := Source{
		Domain:  host,
		Service: parts[0],
		UserID:  parts[2],
	}

	if len(parts) >= 5 && parts[3] == "post" && parts[4] != "" {
		src.PostID = parts[4]
	}

	return src, nil
}
