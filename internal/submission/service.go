package submission

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/znz-systems/formdrop/internal/apierr"
	"github.com/znz-systems/formdrop/internal/blob"
	"github.com/znz-systems/formdrop/internal/intake"
	"github.com/znz-systems/formdrop/internal/jsonvalue"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/store"
)

const defaultErrorMessage = "Failed to save submission"

// StoredFile is a persisted upload together with its download URL.
type StoredFile struct {
	Record    *models.FileUpload
	PublicURL string
}

// Result is everything the fan-out stage needs about a persisted submission.
type Result struct {
	Submission *models.Submission
	Data       jsonvalue.Value
	Files      []StoredFile
}

// Service writes submissions and their files.
type Service struct {
	submissions store.SubmissionStore
	files       store.FileUploadStore
	blobs       blob.Store
	now         func() time.Time
}

// NewService creates a new submission Service.
func NewService(submissions store.SubmissionStore, files store.FileUploadStore, blobs blob.Store) *Service {
	return &Service{
		submissions: submissions,
		files:       files,
		blobs:       blobs,
		now:         time.Now,
	}
}

// Persist inserts the submission row and then stores each file. A file is
// written to the blob store before its row is inserted; if the insert fails
// the blob is removed again and Persist stops with an error naming the file.
func (s *Service) Persist(ctx context.Context, ep *models.Endpoint, data jsonvalue.Value, files []intake.File, ipAddress, userAgent string) (*Result, error) {
	logger := reqlog.Logger(ctx)

	encoded, err := jsonvalue.Marshal(data)
	if err != nil {
		return nil, apierr.Internal(errorMessage(ep), fmt.Errorf("encoding submission data: %w", err))
	}

	sub, err := s.submissions.CreateSubmission(ctx, models.SubmissionCreateParams{
		EndpointID: ep.ID,
		Data:       encoded,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
	})
	if err != nil {
		logger.Error("failed to insert submission", "endpoint_id", ep.ID, "error", err)
		return nil, apierr.Internal(errorMessage(ep), err)
	}
	if l := reqlog.FromContext(ctx); l != nil {
		l.UpdateSubmissionID(sub.ID.String())
	}
	logger.Info("submission saved", "submission_id", sub.ID, "endpoint_id", ep.ID)

	result := &Result{Submission: sub, Data: data}
	for _, f := range files {
		stored, err := s.storeFile(ctx, ep, sub, f)
		if err != nil {
			return nil, err
		}
		result.Files = append(result.Files, *stored)
	}
	return result, nil
}

func (s *Service) storeFile(ctx context.Context, ep *models.Endpoint, sub *models.Submission, f intake.File) (*StoredFile, error) {
	logger := reqlog.Logger(ctx)

	storedName, err := StoredFilename(s.now(), f.Filename)
	if err != nil {
		return nil, apierr.Internal(fmt.Sprintf("Failed to upload file %q", f.Filename), err)
	}
	key := path.Join(ep.ProjectID.String(), ep.ID.String(), storedName)

	if err := s.blobs.Put(ctx, key, f.ContentType, f.Data); err != nil {
		logger.Error("failed to write file blob", "file", f.Filename, "key", key, "error", err)
		return nil, apierr.Internal(fmt.Sprintf("Failed to upload file %q", f.Filename), err)
	}

	record, err := s.files.CreateFileUpload(ctx, models.FileUploadCreateParams{
		SubmissionID:     sub.ID,
		OriginalFilename: f.Filename,
		StoredFilename:   storedName,
		FilePath:         key,
		SizeBytes:        f.Size(),
		MIMEType:         f.ContentType,
		Bucket:           s.blobs.Bucket(),
	})
	if err != nil {
		logger.Error("failed to insert file record, removing blob", "file", f.Filename, "key", key, "error", err)
		// Use a fresh context so an expired request still cleans up.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if delErr := s.blobs.Delete(cleanupCtx, key); delErr != nil {
			logger.Error("failed to remove orphaned file blob", "key", key, "error", delErr)
		}
		return nil, apierr.Internal(fmt.Sprintf("Failed to save file record for %q", f.Filename), err)
	}

	logger.Info("file stored", "file_id", record.ID, "file", f.Filename, "size_bytes", record.SizeBytes)
	return &StoredFile{Record: record, PublicURL: s.blobs.PublicURL(key)}, nil
}

// StoredFilename builds a collision-resistant object name of the form
// <unix millis>_<random hex><ext>, keeping a short alphanumeric extension
// from the original name.
func StoredFilename(now time.Time, original string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}
	return fmt.Sprintf("%d_%s%s", now.UnixMilli(), hex.EncodeToString(b), safeExt(original)), nil
}

func safeExt(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func errorMessage(ep *models.Endpoint) string {
	if ep.ErrorMessage != "" {
		return ep.ErrorMessage
	}
	return defaultErrorMessage
}
