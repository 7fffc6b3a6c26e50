package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/models"
)

type FileUploadStore struct {
	db *sql.DB
}

func NewFileUploadStore(db *sql.DB) *FileUploadStore {
	return &FileUploadStore{db: db}
}

func (s *FileUploadStore) CreateFileUpload(ctx context.Context, params models.FileUploadCreateParams) (*models.FileUpload, error) {
	f := &models.FileUpload{
		ID:               uuid.New(),
		SubmissionID:     params.SubmissionID,
		OriginalFilename: params.OriginalFilename,
		StoredFilename:   params.StoredFilename,
		FilePath:         params.FilePath,
		SizeBytes:        params.SizeBytes,
		MIMEType:         params.MIMEType,
		Bucket:           params.Bucket,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO file_uploads
		 (id, submission_id, original_filename, stored_filename, file_path, size_bytes, mime_type, bucket)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		f.ID, f.SubmissionID, f.OriginalFilename, f.StoredFilename, f.FilePath, f.SizeBytes, f.MIMEType, f.Bucket,
	).Scan(&f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}
