package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel status values written onto a submission after fan-out.
const (
	ChannelStatusSuccess = "success"
	ChannelStatusFailure = "failure"
)

// Email log statuses.
const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// ZapierEventNewSubmission is the only Zapier trigger the pipeline fires.
const ZapierEventNewSubmission = "new_submission"

type Project struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	APIKey    string
	CreatedAt time.Time
}

// Endpoint is the dashboard-owned configuration of one submission path.
// It is read-only to the submission pipeline.
type Endpoint struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	ProjectName string
	// ProjectAPIKey is the owning project's key, plain or bcrypt-hashed.
	ProjectAPIKey string

	Name   string
	Path   string
	Method string

	// AllowedDomains nil or empty means every origin is allowed.
	AllowedDomains []string
	RequireAPIKey  bool

	FileUploadsEnabled    bool
	MaxFilesPerSubmission int
	MaxFileSizeMB         int
	AllowedFileTypes      []string

	JSONValidationEnabled bool
	JSONSchema            json.RawMessage

	WebhooksEnabled               bool
	WebhookProviderAppID          string
	WebhookTransformationEnabled  bool
	WebhookTransformationTemplate json.RawMessage

	EmailNotificationsEnabled bool

	GoogleSheets  GoogleSheetsConfig
	Autoresponder AutoresponderConfig

	SuccessMessage string
	ErrorMessage   string
	RedirectURL    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type GoogleSheetsConfig struct {
	SpreadsheetID  string
	SheetName      string
	ColumnMappings []ColumnMapping
}

// Configured reports whether every piece needed to append a row is present.
func (c GoogleSheetsConfig) Configured() bool {
	return c.SpreadsheetID != "" && c.SheetName != "" && len(c.ColumnMappings) > 0
}

// ColumnMapping maps a sheet column (A, B, ... AA) to a dotted field path in
// the submission data.
type ColumnMapping struct {
	Column string `json:"column"`
	Field  string `json:"field"`
}

type AutoresponderConfig struct {
	Enabled    bool
	EmailField string
	FromName   string
	FromEmail  string
	ReplyTo    string
	Subject    string
	Body       string
}

type Submission struct {
	ID                 uuid.UUID
	EndpointID         uuid.UUID
	Data               json.RawMessage
	IPAddress          string
	UserAgent          string
	ZapierStatus       *string
	GoogleSheetsStatus *string
	CreatedAt          time.Time
}

type SubmissionCreateParams struct {
	EndpointID uuid.UUID
	Data       json.RawMessage
	IPAddress  string
	UserAgent  string
}

type FileUpload struct {
	ID               uuid.UUID
	SubmissionID     uuid.UUID
	OriginalFilename string
	StoredFilename   string
	FilePath         string
	SizeBytes        int64
	MIMEType         string
	Bucket           string
	CreatedAt        time.Time
}

type FileUploadCreateParams struct {
	SubmissionID     uuid.UUID
	OriginalFilename string
	StoredFilename   string
	FilePath         string
	SizeBytes        int64
	MIMEType         string
	Bucket           string
}

type WebhookURL struct {
	ID         uuid.UUID
	EndpointID uuid.UUID
	URL        string
	IsActive   bool
	CreatedAt  time.Time
}

type EmailRecipient struct {
	ID         uuid.UUID
	EndpointID uuid.UUID
	Email      string
	IsActive   bool
	CreatedAt  time.Time
}

type ZapierSubscription struct {
	ID         uuid.UUID
	EndpointID uuid.UUID
	TargetURL  string
	Event      string
	IsActive   bool
	CreatedAt  time.Time
}

type WebhookLogCreateParams struct {
	WebhookURLID uuid.UUID
	SubmissionID uuid.UUID
	Success      bool
	StatusCode   int
	ResponseBody string
	ErrorMessage string
}

type EmailLogCreateParams struct {
	SubmissionID uuid.UUID
	Recipient    string
	Kind         string
	Status       string
	ErrorMessage string
}

// SheetsConnection holds the OAuth tokens used to write to an endpoint's
// spreadsheet.
type SheetsConnection struct {
	EndpointID   uuid.UUID
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}
