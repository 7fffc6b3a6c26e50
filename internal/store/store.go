package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/models"
)

// EndpointStore returns sql.ErrNoRows when no endpoint matches.
type EndpointStore interface {
	GetEndpointByPath(ctx context.Context, projectID uuid.UUID, path string) (*models.Endpoint, error)
	GetAllowedDomainsByPath(ctx context.Context, projectID uuid.UUID, path string) ([]string, error)
}

type SubmissionStore interface {
	CreateSubmission(ctx context.Context, params models.SubmissionCreateParams) (*models.Submission, error)
	UpdateZapierStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateGoogleSheetsStatus(ctx context.Context, id uuid.UUID, status string) error
}

type FileUploadStore interface {
	CreateFileUpload(ctx context.Context, params models.FileUploadCreateParams) (*models.FileUpload, error)
}

type SubscriptionStore interface {
	ListActiveWebhookURLs(ctx context.Context, endpointID uuid.UUID) ([]models.WebhookURL, error)
	ListActiveEmailRecipients(ctx context.Context, endpointID uuid.UUID) ([]models.EmailRecipient, error)
	ListActiveZapierSubscriptions(ctx context.Context, endpointID uuid.UUID, event string) ([]models.ZapierSubscription, error)
}

type DeliveryLogStore interface {
	CreateWebhookLog(ctx context.Context, params models.WebhookLogCreateParams) error
	CreateEmailLog(ctx context.Context, params models.EmailLogCreateParams) (uuid.UUID, error)
}

type SheetsConnectionStore interface {
	GetSheetsConnection(ctx context.Context, endpointID uuid.UUID) (*models.SheetsConnection, error)
	UpdateSheetsTokens(ctx context.Context, endpointID uuid.UUID, accessToken, refreshToken string, expiry time.Time) error
}
