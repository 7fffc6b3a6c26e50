package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-API-Key"
)

// errorResponse is the body of every failed submission response.
type errorResponse struct {
	Error string `json:"error"`
}

type fileResponse struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	FileSizeBytes    int64  `json:"file_size_bytes"`
	MIMEType         string `json:"mime_type"`
}

type submitResponse struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	SubmissionID  string         `json:"submission_id"`
	FilesUploaded int            `json:"files_uploaded"`
	Files         []fileResponse `json:"files"`
}

type redirectResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SubmissionID string `json:"submission_id"`
	RedirectURL  string `json:"redirect_url"`
}

// setCORSHeaders writes the CORS headers every submission response carries.
func setCORSHeaders(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	if origin != "*" {
		h.Add("Vary", "Origin")
	}
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}
