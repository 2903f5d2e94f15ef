package filter

import (
	"path/filepath"
	"strings"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
)

// Filter is a single name filter. Grouped entries like "(Cloud, Strife)"
// match any of their aliases and share one folder name.
type Filter struct {
	Name    string
	IsGroup bool
	Aliases []string
}

// Terms returns every string this filter matches on
func (f Filter) Terms() []string {
	if f.IsGroup {
		return f.Aliases
	}
	return []string{f.Name}
}

// Parse builds filters from raw config entries. A parenthesized,
// comma-separated entry becomes a group; the folder name joins the aliases.
// Duplicate aliases within a group are dropped case-insensitively.
func Parse(entries []string) []Filter {
	var filters []Filter
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.HasPrefix(entry, "(") && strings.HasSuffix(entry, ")") {
			inner := entry[1 : len(entry)-1]
			seen := make(map[string]bool)
			var aliases []string
			for _, part := range strings.Split(inner, ",") {
				part = strings.TrimSpace(part)
				if part == "" || seen[strings.ToLower(part)] {
					continue
				}
				seen[strings.ToLower(part)] = true
				aliases = append(aliases, part)
			}
			if len(aliases) == 0 {
				continue
			}
			filters = append(filters, Filter{
				Name:    strings.Join(aliases, " "),
				IsGroup: true,
				Aliases: aliases,
			})
			continue
		}

		filters = append(filters, Filter{Name: entry})
	}
	return filters
}

// MatchTitle reports whether the term occurs in the title as a whole-word
// sequence, case-insensitively.
func MatchTitle(title, term string) bool {
	titleWords := tokenize(title)
	termWords := tokenize(term)
	if len(termWords) == 0 || len(termWords) > len(titleWords) {
		return false
	}

	for i := 0; i+len(termWords) <= len(titleWords); i++ {
		match := true
		for j, w := range termWords {
			if titleWords[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// MatchFilename reports whether the term occurs in the filename as a
// case-insensitive substring.
func MatchFilename(filename, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(filename), strings.ToLower(term))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// Decision is the outcome of evaluating a post against the filter list
type Decision struct {
	// Matched is true when the post is kept
	Matched bool
	// Filter is the rule that matched; its Name is the folder name
	Filter Filter
	// AllFiles selects every attachment; otherwise FileIndices lists the
	// selected attachment positions
	AllFiles    bool
	FileIndices []int
	// NeedComments is set when the scope requires comment text to decide.
	// The caller fetches comments and calls EvaluateComments.
	NeedComments bool
	// ViaComment records that the match came from comment text
	ViaComment bool
}

// EvaluatePost checks a post against the filter list under the given scope.
//
//   - files: only attachments whose name matches are selected
//   - title: a title match selects all attachments
//   - both: title first, falling back to files semantics
//   - comments: files first (a filename match keeps the whole post), then
//     comment text as a deferred fallback
//
// An empty filter list matches everything.
func EvaluatePost(filters []Filter, scope, title string, filenames []string) Decision {
	if len(filters) == 0 {
		return Decision{Matched: true, AllFiles: true}
	}

	switch strings.ToLower(scope) {
	case config.ScopeFiles:
		return evaluateFiles(filters, filenames, false)
	case config.ScopeTitle:
		return evaluateTitle(filters, title)
	case config.ScopeBoth:
		if d := evaluateTitle(filters, title); d.Matched {
			return d
		}
		return evaluateFiles(filters, filenames, false)
	case config.ScopeComments:
		if d := evaluateFiles(filters, filenames, true); d.Matched {
			return d
		}
		return Decision{NeedComments: true}
	default:
		return evaluateTitle(filters, title)
	}
}

func evaluateTitle(filters []Filter, title string) Decision {
	for _, f := range filters {
		for _, term := range f.Terms() {
			if MatchTitle(title, term) {
				return Decision{Matched: true, Filter: f, AllFiles: true}
			}
		}
	}
	return Decision{}
}

// evaluateFiles selects matching attachments. Under the comments scope a
// filename match keeps the whole post instead of narrowing the selection.
func evaluateFiles(filters []Filter, filenames []string, keepAll bool) Decision {
	var matched Filter
	var indices []int
	found := false
	for i, name := range filenames {
	perFile:
		for _, f := range filters {
			for _, term := range f.Terms() {
				if MatchFilename(name, term) {
					if !found {
						matched = f
						found = true
					}
					indices = append(indices, i)
					break perFile
				}
			}
		}
	}
	if !found {
		return Decision{}
	}
	if keepAll {
		return Decision{Matched: true, Filter: matched, AllFiles: true}
	}
	return Decision{Matched: true, Filter: matched, FileIndices: indices}
}

// EvaluateComments resolves a NeedComments decision once comment text is
// available. A match keeps the post with all attachments.
func EvaluateComments(filters []Filter, comments []string) Decision {
	for _, f := range filters {
		for _, term := range f.Terms() {
			for _, comment := range comments {
				if MatchTitle(comment, term) {
					return Decision{Matched: true, Filter: f, AllFiles: true, ViaComment: true}
				}
			}
		}
	}
	return Decision{}
}

// SkipPost reports whether a post title hits a skip word under the scope
func SkipPost(skipWords []string, scope, title string) (string, bool) {
	scope = strings.ToLower(scope)
	if scope != config.ScopePosts && scope != config.ScopeBoth {
		return "", false
	}
	return containsSkipWord(skipWords, title)
}

// SkipFile reports whether a filename hits a skip word under the scope
func SkipFile(skipWords []string, scope, filename string) (string, bool) {
	scope = strings.ToLower(scope)
	if scope != config.ScopeFiles && scope != config.ScopeBoth {
		return "", false
	}
	return containsSkipWord(skipWords, filename)
}

func containsSkipWord(skipWords []string, s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, word := range skipWords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(word)) {
			return word, true
		}
	}
	return "", false
}

var (
	imageExts = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
		".bmp": true, ".webp": true, ".tif": true, ".tiff": true, ".heic": true,
	}
	videoExts = map[string]bool{
		".mp4": true, ".mov": true, ".mkv": true, ".webm": true,
		".avi": true, ".wmv": true, ".flv": true, ".m4v": true, ".ts": true,
	}
	archiveExts = map[string]bool{
		".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
	}
	audioExts = map[string]bool{
		".mp3": true, ".wav": true, ".flac": true, ".ogg": true,
		".m4a": true, ".aac": true, ".opus": true,
	}
)

// IsImage reports whether the filename has an image extension
func IsImage(filename string) bool {
	return imageExts[strings.ToLower(filepath.Ext(filename))]
}

// AllowedByType checks a filename against the file type filter mode
func AllowedByType(mode, filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	switch strings.ToLower(mode) {
	case config.FileTypeImage:
		return imageExts[ext]
	case config.FileTypeVideo:
		return videoExts[ext]
	case config.FileTypeArchive:
		return archiveExts[ext]
	case config.FileTypeAudio:
		return audioExts[ext]
	default:
		return true
	}
}

// AllowedByArchiveToggles applies the skip zip and skip rar toggles
func AllowedByArchiveToggles(skipZip, skipRar bool, filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if skipZip && ext == ".zip" {
		return false
	}
	if skipRar && ext == ".rar" {
		return false
	}
	return true
}
