package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/models"
)

type DeliveryLogStore struct {
	db *sql.DB
}

func NewDeliveryLogStore(db *sql.DB) *DeliveryLogStore {
	return &DeliveryLogStore{db: db}
}

func (s *DeliveryLogStore) CreateWebhookLog(ctx context.Context, params models.WebhookLogCreateParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_logs (webhook_url_id, submission_id, success, status_code, response_body, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		params.WebhookURLID, params.SubmissionID, params.Success,
		nullableInt(params.StatusCode), nullableString(params.ResponseBody), nullableString(params.ErrorMessage),
	)
	return err
}

func (s *DeliveryLogStore) CreateEmailLog(ctx context.Context, params models.EmailLogCreateParams) (uuid.UUID, error) {
	kind := params.Kind
	if kind == "" {
		kind = "notification"
	}
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO email_logs (submission_id, recipient, kind, status, error_message)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		params.SubmissionID, params.Recipient, kind, params.Status, nullableString(params.ErrorMessage),
	).Scan(&id)
	return id, err
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
