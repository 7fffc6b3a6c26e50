package blob

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestFilesystemStore_PutGetDelete(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blobs")
	store, err := NewFilesystemStore(root, "uploads", "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}

	key := "project/endpoint/1700000000000_abc.pdf"
	payload := []byte("hello")
	if err := store.Put(context.Background(), key, "application/pdf", payload); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("unexpected payload: %q", string(got))
	}

	if err := store.Delete(context.Background(), key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = store.Get(context.Background(), key)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestFilesystemStore_DeleteMissingIsNoop(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir(), "", "")
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	if err := store.Delete(context.Background(), "a/b.txt", "c.txt"); err != nil {
		t.Fatalf("expected nil error deleting missing keys, got %v", err)
	}
	if store.Bucket() != "submissions" {
		t.Fatalf("expected default bucket, got %q", store.Bucket())
	}
}

func TestFilesystemStore_TraversalStaysInsideRoot(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir(), "b", "")
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	// "/../../etc/passwd" cleans to "etc/passwd" under the store root.
	if _, err := store.Get(context.Background(), "../../etc/passwd"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if err := store.Put(context.Background(), "  ", "", nil); err == nil {
		t.Fatal("expected error for blank key")
	}
}

func TestFilesystemStore_PublicURLEscapesSegments(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir(), "b", "https://forms.example.com/files/")
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	got := store.PublicURL("p/e/my file.pdf")
	want := "https://forms.example.com/files/p/e/my%20file.pdf"
	if got != want {
		t.Fatalf("PublicURL = %q, want %q", got, want)
	}
}
