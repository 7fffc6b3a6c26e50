// Package reqlog buffers everything logged while handling one submission
// and uploads it as a single JSON document once the request ends.
package reqlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/blob"
)

// Entry is one buffered log record.
type Entry struct {
	Time    time.Time      `json:"timestamp"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// UploadResult reports the outcome of UploadToStorage. FilePath is set on
// success, Err on failure.
type UploadResult struct {
	Success  bool
	FilePath string
	Err      error
}

// Log is the per-request submission log. It is safe for concurrent use by
// fan-out goroutines.
type Log struct {
	store   blob.Store
	started time.Time
	logger  *slog.Logger

	mu           sync.Mutex
	entries      []Entry
	submissionID string
	temporary    bool
}

// New starts a request log. Records are forwarded to next as well as being
// buffered. The log is keyed by a temporary id until UpdateSubmissionID is
// called.
func New(store blob.Store, next slog.Handler) *Log {
	l := &Log{
		store:        store,
		started:      time.Now().UTC(),
		submissionID: "temp_" + uuid.NewString(),
		temporary:    true,
	}
	l.logger = slog.New(&handler{log: l, next: next})
	return l
}

// Logger returns a logger that writes into this request log.
func (l *Log) Logger() *slog.Logger { return l.logger }

// UpdateSubmissionID retargets the log at the persisted submission.
func (l *Log) UpdateSubmissionID(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submissionID = id
	l.temporary = false
}

// SubmissionID returns the id the log will be stored under.
func (l *Log) SubmissionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submissionID
}

// Entries returns a copy of the buffered records.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Key is the blob key the log uploads to.
func (l *Log) Key() string {
	return fmt.Sprintf("submission-logs/%s/%s.json", l.started.Format("2006/01/02"), l.SubmissionID())
}

type document struct {
	SubmissionID string    `json:"submission_id"`
	Temporary    bool      `json:"temporary"`
	StartedAt    time.Time `json:"started_at"`
	Entries      []Entry   `json:"entries"`
}

// UploadToStorage writes the buffered log to the blob store. Failures are
// reported in the result and never returned as errors.
func (l *Log) UploadToStorage(ctx context.Context) UploadResult {
	l.mu.Lock()
	doc := document{
		SubmissionID: l.submissionID,
		Temporary:    l.temporary,
		StartedAt:    l.started,
		Entries:      append([]Entry(nil), l.entries...),
	}
	l.mu.Unlock()

	key := l.Key()
	body, err := json.Marshal(doc)
	if err != nil {
		return UploadResult{Err: fmt.Errorf("encode submission log: %w", err)}
	}
	if l.store == nil {
		return UploadResult{Err: fmt.Errorf("no blob store configured for submission logs")}
	}
	if err := l.store.Put(ctx, key, "application/json", body); err != nil {
		return UploadResult{Err: fmt.Errorf("upload submission log: %w", err)}
	}
	return UploadResult{Success: true, FilePath: key}
}

func (l *Log) append(e Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l *Log) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request log in ctx, or nil.
func FromContext(ctx context.Context) *Log {
	l, _ := ctx.Value(ctxKey{}).(*Log)
	return l
}

// Logger returns the request logger in ctx, falling back to slog.Default.
func Logger(ctx context.Context) *slog.Logger {
	if l := FromContext(ctx); l != nil {
		return l.Logger()
	}
	return slog.Default()
}
