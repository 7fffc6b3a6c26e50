package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/models"
)

// SubscriptionStore reads the notification targets attached to an endpoint.
type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) ListActiveWebhookURLs(ctx context.Context, endpointID uuid.UUID) ([]models.WebhookURL, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint_id, url, is_active, created_at
		 FROM webhook_urls WHERE endpoint_id = $1 AND is_active = TRUE
		 ORDER BY created_at`,
		endpointID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []models.WebhookURL
	for rows.Next() {
		var h models.WebhookURL
		if err := rows.Scan(&h.ID, &h.EndpointID, &h.URL, &h.IsActive, &h.CreatedAt); err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

func (s *SubscriptionStore) ListActiveEmailRecipients(ctx context.Context, endpointID uuid.UUID) ([]models.EmailRecipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint_id, email, is_active, created_at
		 FROM email_recipients WHERE endpoint_id = $1 AND is_active = TRUE
		 ORDER BY created_at`,
		endpointID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipients []models.EmailRecipient
	for rows.Next() {
		var r models.EmailRecipient
		if err := rows.Scan(&r.ID, &r.EndpointID, &r.Email, &r.IsActive, &r.CreatedAt); err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

func (s *SubscriptionStore) ListActiveZapierSubscriptions(ctx context.Context, endpointID uuid.UUID, event string) ([]models.ZapierSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint_id, target_url, event, is_active, created_at
		 FROM zapier_subscriptions
		 WHERE endpoint_id = $1 AND event = $2 AND is_active = TRUE
		 ORDER BY created_at`,
		endpointID, event,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.ZapierSubscription
	for rows.Next() {
		var z models.ZapierSubscription
		if err := rows.Scan(&z.ID, &z.EndpointID, &z.TargetURL, &z.Event, &z.IsActive, &z.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, z)
	}
	return subs, rows.Err()
}
