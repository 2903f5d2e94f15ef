package events

import (
	"sync"
	"time"
)

// Type identifies an event kind
type Type string

const (
	TypeLog          Type = "log"
	TypeFileProgress Type = "file_progress"
	TypePostFinished Type = "post_finished"
	TypePostMissed   Type = "post_missed"
	TypeRetryPending Type = "retry_pending"
	TypeSummary      Type = "summary"
)

// ChunkState is the live progress of one byte-range segment of a
// multi-part transfer
type ChunkState struct {
	ID         int
	Downloaded int64
	Total      int64
	Active     bool
	SpeedBPS   float64
}

// LogEvent is a plain log line forwarded to the consumer
type LogEvent struct {
	Level   string
	Message string
}

// FileProgressEvent reports transfer progress for one file. Either the
// Downloaded/Total pair is set or Chunks carries per-chunk state.
type FileProgressEvent struct {
	Filename   string
	Downloaded int64
	Total      int64
	Chunks     []ChunkState
}

// PostFinishedEvent reports one post worker completing
type PostFinishedEvent struct {
	PostID     string
	Title      string
	Downloaded int
	Skipped    int
}

// PostMissedEvent reports a post discarded purely by filter mismatch
type PostMissedEvent struct {
	Title   string
	KeyTerm string
}

// RetryFile describes one retryable file failure, carrying everything a
// second pass needs to re-attempt the transfer standalone.
type RetryFile struct {
	URL            string
	Name           string
	TargetFolder   string
	PostID         string
	PostTitle      string
	Index          int
	Total          int
	ForcedFilename string
	Headers        map[string]string
	// NameSequence carries the deferred naming callback for styles that
	// number files only on confirmed writes
	NameSequence func() string
}

// RetryPendingEvent carries the batch of retryable failures collected
// during the main pass
type RetryPendingEvent struct {
	Files []RetryFile
}

// SummaryEvent is the terminal session report, emitted exactly once
type SummaryEvent struct {
	Downloaded        int
	Skipped           int
	Cancelled         bool
	KeptOriginalNames []string
	RetrySucceeded    int
	RetryFailed       int
}

// Event is one record pushed to the consumer
type Event struct {
	Type         Type
	Time         time.Time
	Log          *LogEvent
	FileProgress *FileProgressEvent
	PostFinished *PostFinishedEvent
	PostMissed   *PostMissedEvent
	RetryPending *RetryPendingEvent
	Summary      *SummaryEvent
}

// Reporter is a bounded multi-producer event conduit. File progress events
// are dropped when the consumer falls behind; lifecycle events are never
// dropped. The channel closes after the summary fires.
type Reporter struct {
	ch          chan Event
	summaryOnce sync.Once
}

// NewReporter creates a reporter with the given channel capacity
func NewReporter(buffer int) *Reporter {
	if buffer <= 0 {
		buffer = 256
	}
	return &Reporter{ch: make(chan Event, buffer)}
}

// Events returns the consumer side of the event channel
func (r *Reporter) Events() <-chan Event {
	return r.ch
}

// Log emits a log line event
func (r *Reporter) Log(level, message string) {
	r.send(Event{Type: TypeLog, Time: time.Now(), Log: &LogEvent{Level: level, Message: message}})
}

// FileProgress emits single-stream progress for a file. Dropped if the
// consumer is not keeping up.
func (r *Reporter) FileProgress(filename string, downloaded, total int64) {
	r.trySend(Event{
		Type: TypeFileProgress,
		Time: time.Now(),
		FileProgress: &FileProgressEvent{
			Filename:   filename,
			Downloaded: downloaded,
			Total:      total,
		},
	})
}

// ChunkProgress emits multi-part progress for a file. Dropped if the
// consumer is not keeping up.
func (r *Reporter) ChunkProgress(filename string, chunks []ChunkState) {
	snapshot := make([]ChunkState, len(chunks))
	copy(snapshot, chunks)
	r.trySend(Event{
		Type: TypeFileProgress,
		Time: time.Now(),
		FileProgress: &FileProgressEvent{
			Filename: filename,
			Chunks:   snapshot,
		},
	})
}

// PostFinished emits a post completion event
func (r *Reporter) PostFinished(postID, title string, downloaded, skipped int) {
	r.send(Event{
		Type: TypePostFinished,
		Time: time.Now(),
		PostFinished: &PostFinishedEvent{
			PostID:     postID,
			Title:      title,
			Downloaded: downloaded,
			Skipped:    skipped,
		},
	})
}

// PostMissed emits a filtered-out post event with its inferred key term
func (r *Reporter) PostMissed(title, keyTerm string) {
	r.send(Event{
		Type:       TypePostMissed,
		Time:       time.Now(),
		PostMissed: &PostMissedEvent{Title: title, KeyTerm: keyTerm},
	})
}

// RetryPending emits the collected retryable failures
func (r *Reporter) RetryPending(files []RetryFile) {
	r.send(Event{
		Type:         TypeRetryPending,
		Time:         time.Now(),
		RetryPending: &RetryPendingEvent{Files: files},
	})
}

// Summary emits the terminal summary and closes the channel. Safe to call
// more than once; only the first call has any effect.
func (r *Reporter) Summary(s SummaryEvent) {
	r.summaryOnce.Do(func() {
		r.ch <- Event{Type: TypeSummary, Time: time.Now(), Summary: &s}
		close(r.ch)
	})
}

func (r *Reporter) send(ev Event) {
	defer func() {
		// The summary may have closed the channel under a racing producer;
		// a late lifecycle event is discarded rather than panicking.
		_ = recover()
	}()
	r.ch <- ev
}

func (r *Reporter) trySend(ev Event) {
	defer func() {
		_ = recover()
	}()
	select {
	case r.ch <- ev:
	default:
	}
}
