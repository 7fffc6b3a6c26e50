package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/models"
)

type SheetsConnectionStore struct {
	db *sql.DB
}

func NewSheetsConnectionStore(db *sql.DB) *SheetsConnectionStore {
	return &SheetsConnectionStore{db: db}
}

func (s *SheetsConnectionStore) GetSheetsConnection(ctx context.Context, endpointID uuid.UUID) (*models.SheetsConnection, error) {
	c := &models.SheetsConnection{EndpointID: endpointID}
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expiry FROM google_sheets_connections WHERE endpoint_id = $1`,
		endpointID,
	).Scan(&c.AccessToken, &c.RefreshToken, &c.Expiry)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateSheetsTokens stores a refreshed token. An empty refresh token keeps
// the one on file.
func (s *SheetsConnectionStore) UpdateSheetsTokens(ctx context.Context, endpointID uuid.UUID, accessToken, refreshToken string, expiry time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE google_sheets_connections
		 SET access_token = $2,
		     refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
		     expiry = $4,
		     updated_at = now()
		 WHERE endpoint_id = $1`,
		endpointID, accessToken, refreshToken, expiry,
	)
	return err
}
