// Package validation applies an endpoint's upload policy and optional JSON
// Schema to a decoded submission before anything is persisted.
package validation

import (
	"fmt"
	"strings"

	"github.com/znz-systems/formdrop/internal/apierr"
	"github.com/znz-systems/formdrop/internal/intake"
	"github.com/znz-systems/formdrop/internal/models"
)

const (
	DefaultMaxFiles      = 5
	DefaultMaxFileSizeMB = 10
)

// DefaultAllowedFileTypes applies when an endpoint has no explicit list.
var DefaultAllowedFileTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"text/csv",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ValidateFiles checks count, size and type of the extracted files against
// the endpoint's upload settings. It does nothing when there are no files.
func ValidateFiles(ep *models.Endpoint, files []intake.File) error {
	if len(files) == 0 {
		return nil
	}
	if !ep.FileUploadsEnabled {
		return apierr.BadRequest("File uploads are not enabled for this endpoint")
	}

	maxFiles := ep.MaxFilesPerSubmission
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if len(files) > maxFiles {
		return apierr.BadRequest(fmt.Sprintf("Too many files. Maximum %d files allowed per submission", maxFiles))
	}

	maxMB := ep.MaxFileSizeMB
	if maxMB <= 0 {
		maxMB = DefaultMaxFileSizeMB
	}
	maxBytes := int64(maxMB) << 20

	allowed := ep.AllowedFileTypes
	if len(allowed) == 0 {
		allowed = DefaultAllowedFileTypes
	}

	for _, f := range files {
		if f.Size() > maxBytes {
			return apierr.BadRequest(fmt.Sprintf("File %q exceeds maximum size of %dMB", f.Filename, maxMB))
		}
		if !typeAllowed(allowed, f.ContentType) {
			return apierr.BadRequest(fmt.Sprintf("File type %q is not allowed for file %q", f.ContentType, f.Filename))
		}
	}
	return nil
}

// typeAllowed matches exact MIME types and "type/*" wildcards.
func typeAllowed(allowed []string, contentType string) bool {
	contentType = strings.ToLower(contentType)
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == contentType || a == "*/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(contentType, prefix+"/") {
			return true
		}
	}
	return false
}
