package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/znz-systems/formdrop/internal/models"
)

type EndpointStore struct {
	db *sql.DB
}

func NewEndpointStore(db *sql.DB) *EndpointStore {
	return &EndpointStore{db: db}
}

const endpointColumns = `e.id, e.project_id, p.name, p.api_key, e.name, e.path, e.method,
	e.allowed_domains, e.require_api_key,
	e.file_uploads_enabled, e.max_files_per_submission, e.max_file_size_mb, e.allowed_file_types,
	e.json_validation_enabled, e.json_schema,
	e.webhooks_enabled, e.webhook_provider_app_id, e.webhook_transformation_enabled, e.webhook_transformation_template,
	e.email_notifications_enabled,
	e.google_sheets_spreadsheet_id, e.google_sheets_sheet_name, e.google_sheets_column_mappings,
	e.autoresponder_enabled, e.autoresponder_email_field, e.autoresponder_from_name, e.autoresponder_from_email,
	e.autoresponder_reply_to, e.autoresponder_subject, e.autoresponder_body,
	e.success_message, e.error_message, e.redirect_url, e.created_at, e.updated_at`

// GetEndpointByPath loads an endpoint together with its project's name and
// API key. It returns sql.ErrNoRows when the path is unknown.
func (s *EndpointStore) GetEndpointByPath(ctx context.Context, projectID uuid.UUID, path string) (*models.Endpoint, error) {
	var (
		e              models.Endpoint
		schema         []byte
		template       []byte
		columnMappings []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+`
		 FROM endpoints e
		 JOIN projects p ON p.id = e.project_id
		 WHERE e.project_id = $1 AND e.path = $2`,
		projectID, path,
	).Scan(
		&e.ID, &e.ProjectID, &e.ProjectName, &e.ProjectAPIKey, &e.Name, &e.Path, &e.Method,
		pq.Array(&e.AllowedDomains), &e.RequireAPIKey,
		&e.FileUploadsEnabled, &e.MaxFilesPerSubmission, &e.MaxFileSizeMB, pq.Array(&e.AllowedFileTypes),
		&e.JSONValidationEnabled, &schema,
		&e.WebhooksEnabled, &e.WebhookProviderAppID, &e.WebhookTransformationEnabled, &template,
		&e.EmailNotificationsEnabled,
		&e.GoogleSheets.SpreadsheetID, &e.GoogleSheets.SheetName, &columnMappings,
		&e.Autoresponder.Enabled, &e.Autoresponder.EmailField, &e.Autoresponder.FromName, &e.Autoresponder.FromEmail,
		&e.Autoresponder.ReplyTo, &e.Autoresponder.Subject, &e.Autoresponder.Body,
		&e.SuccessMessage, &e.ErrorMessage, &e.RedirectURL, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.JSONSchema = schema
	e.WebhookTransformationTemplate = template
	if len(columnMappings) > 0 {
		if err := json.Unmarshal(columnMappings, &e.GoogleSheets.ColumnMappings); err != nil {
			return nil, fmt.Errorf("decode google sheets column mappings: %w", err)
		}
	}
	return &e, nil
}

// GetAllowedDomainsByPath is the narrow lookup used by CORS preflight.
func (s *EndpointStore) GetAllowedDomainsByPath(ctx context.Context, projectID uuid.UUID, path string) ([]string, error) {
	var domains []string
	err := s.db.QueryRowContext(ctx,
		`SELECT allowed_domains FROM endpoints WHERE project_id = $1 AND path = $2`,
		projectID, path,
	).Scan(pq.Array(&domains))
	if err != nil {
		return nil, err
	}
	return domains, nil
}
