package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/models"
)

type SubmissionStore struct {
	db *sql.DB
}

func NewSubmissionStore(db *sql.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

func (s *SubmissionStore) CreateSubmission(ctx context.Context, params models.SubmissionCreateParams) (*models.Submission, error) {
	sub := &models.Submission{
		ID:         uuid.New(),
		EndpointID: params.EndpointID,
		Data:       params.Data,
		IPAddress:  params.IPAddress,
		UserAgent:  params.UserAgent,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO submissions (id, endpoint_id, data, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		sub.ID, sub.EndpointID, []byte(sub.Data), sub.IPAddress, sub.UserAgent,
	).Scan(&sub.CreatedAt)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (s *SubmissionStore) UpdateZapierStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE submissions SET zapier_status = $2 WHERE id = $1`, id, status)
	return err
}

func (s *SubmissionStore) UpdateGoogleSheetsStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE submissions SET google_sheets_status = $2 WHERE id = $1`, id, status)
	return err
}
