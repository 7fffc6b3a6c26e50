package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/znz-systems/formdrop/internal/blob"
)

// FilesHandler serves uploaded files from the filesystem blob backend, which
// has no public URL of its own.
type FilesHandler struct {
	blobs blob.Store
}

// NewFilesHandler creates a new FilesHandler.
func NewFilesHandler(blobs blob.Store) *FilesHandler {
	return &FilesHandler{blobs: blobs}
}

// HandleGetFile streams one stored upload as an attachment. Request logs
// share the store and are never served.
func (h *FilesHandler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" || strings.HasPrefix(key, "submission-logs/") {
		http.NotFound(w, r)
		return
	}

	data, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			http.NotFound(w, r)
			return
		}
		slog.Error("failed to read file", "key", key, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
