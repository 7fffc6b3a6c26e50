package reqlog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/znz-systems/formdrop/internal/blob"
)

func newStore(t *testing.T) *blob.FilesystemStore {
	t.Helper()
	s, err := blob.NewFilesystemStore(t.TempDir(), "submissions", "http://localhost/files")
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	return s
}

func TestLog_BuffersAndUploads(t *testing.T) {
	store := newStore(t)
	l := New(store, slog.DiscardHandler)

	if !strings.HasPrefix(l.SubmissionID(), "temp_") {
		t.Fatalf("initial id = %q, want temp_ prefix", l.SubmissionID())
	}

	logger := l.Logger().With("endpoint", "contact")
	logger.Info("submission received", "bytes", 42)
	logger.WithGroup("zapier").Warn("delivery failed", "error", errors.New("timeout"))
	logger.Debug("dropped")

	l.UpdateSubmissionID("sub-1")
	res := l.UploadToStorage(context.Background())
	if !res.Success || res.Err != nil {
		t.Fatalf("UploadToStorage = %+v", res)
	}
	if !strings.HasPrefix(res.FilePath, "submission-logs/") || !strings.HasSuffix(res.FilePath, "/sub-1.json") {
		t.Fatalf("FilePath = %q", res.FilePath)
	}

	raw, err := store.Get(context.Background(), res.FilePath)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var doc struct {
		SubmissionID string  `json:"submission_id"`
		Temporary    bool    `json:"temporary"`
		Entries      []Entry `json:"entries"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.SubmissionID != "sub-1" || doc.Temporary {
		t.Fatalf("doc = %+v", doc)
	}
	if len(doc.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(doc.Entries))
	}
	if doc.Entries[0].Attrs["endpoint"] != "contact" || doc.Entries[0].Attrs["bytes"] != float64(42) {
		t.Fatalf("first entry attrs = %#v", doc.Entries[0].Attrs)
	}
	if doc.Entries[1].Level != "warn" || doc.Entries[1].Attrs["zapier.error"] != "timeout" {
		t.Fatalf("second entry = %#v", doc.Entries[1])
	}
}

func TestLog_TemporaryUpload(t *testing.T) {
	l := New(newStore(t), slog.DiscardHandler)
	l.Logger().Error("endpoint not found")
	res := l.UploadToStorage(context.Background())
	if !res.Success || !strings.Contains(res.FilePath, "/temp_") {
		t.Fatalf("UploadToStorage = %+v", res)
	}
}

type failingStore struct{ blob.Store }

func (failingStore) Put(context.Context, string, string, []byte) error {
	return errors.New("bucket unavailable")
}

func TestLog_UploadFailureIsReported(t *testing.T) {
	l := New(failingStore{}, slog.DiscardHandler)
	res := l.UploadToStorage(context.Background())
	if res.Success || res.Err == nil {
		t.Fatalf("UploadToStorage = %+v, want failure", res)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if Logger(context.Background()) != slog.Default() {
		t.Fatal("expected default logger without a request log")
	}
	l := New(nil, slog.DiscardHandler)
	ctx := NewContext(context.Background(), l)
	Logger(ctx).Info("hello")
	if len(l.Entries()) != 1 {
		t.Fatalf("entries = %d, want 1", len(l.Entries()))
	}
}
