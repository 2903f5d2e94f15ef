package transfer

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/api"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/storage"
)

// ApplyRemoveWords strips every remove-word from the filename stem,
// case-insensitively, keeping the extension intact.
func ApplyRemoveWords(filename string, words []string) string {
	if len(words) == 0 {
		return filename
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		lower := strings.ToLower(word)
		for {
			i := strings.Index(strings.ToLower(stem), lower)
			if i < 0 {
				break
			}
			stem = stem[:i] + stem[i+len(word):]
		}
	}

	stem = strings.Join(strings.Fields(stem), " ")
	stem = strings.Trim(stem, " _-.")
	if stem == "" {
		stem = "file"
	}
	return stem + ext
}

// Sequencer assigns output filenames under the sequential naming styles.
// The global counter makes it stateful; date-based numbering additionally
// requires posts to arrive in feed order, which the scheduler enforces by
// running a single post worker.
type Sequencer struct {
	style  string
	prefix string

	mu     sync.Mutex
	global int
}

// NewSequencer creates a sequencer for the given naming style
func NewSequencer(style, prefix string) *Sequencer {
	return &Sequencer{style: style, prefix: prefix}
}

// Rename returns the output filename for one attachment and whether the
// original remote name was kept. fileIndex is 1-based within the post.
func (s *Sequencer) Rename(post *api.Post, originalName string, fileIndex int) (string, bool) {
	ext := filepath.Ext(originalName)
	title := storage.CleanFilename(post.Title)
	if title == "" || title == "file" {
		title = "post_" + post.ID
	}

	switch s.style {
	case config.StyleOriginalName:
		name := originalName
		if s.prefix != "" {
			name = s.prefix + name
		}
		return name, true

	case config.StylePostTitle:
		if fileIndex <= 1 {
			return title + ext, false
		}
		return fmt.Sprintf("%s_%d%s", title, fileIndex-1, ext), false

	case config.StyleDateBased:
		return fmt.Sprintf("%03d%s", s.next(), ext), false

	case config.StyleTitleGlobal:
		return fmt.Sprintf("%s_%03d%s", title, s.next(), ext), false

	case config.StylePostID:
		return fmt.Sprintf("%s_%d%s", post.ID, fileIndex, ext), false

	case config.StyleDatePostTitle:
		date := postDate(post)
		if fileIndex <= 1 {
			return fmt.Sprintf("%s_%s%s", date, title, ext), false
		}
		return fmt.Sprintf("%s_%s_%d%s", date, title, fileIndex-1, ext), false
	}

	return originalName, true
}

// Deferred reports whether this style numbers files from the global
// counter. Deferred names are assigned only once a file is confirmed
// written, so skipped and failed files never consume a number.
func (s *Sequencer) Deferred() bool {
	return s.style == config.StyleDateBased || s.style == config.StyleTitleGlobal
}

func (s *Sequencer) next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global++
	return s.global
}

func postDate(post *api.Post) string {
	if t, _, ok := post.OrderingTime(); ok {
		return t.Format("2006-01-02")
	}
	return "no-date"
}
