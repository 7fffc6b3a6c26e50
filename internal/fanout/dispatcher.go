// Package fanout delivers a persisted submission to every channel the
// endpoint has configured. Channels run one after another; targets within a
// channel run concurrently. No failure here reaches the submitter.
package fanout

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/znz-systems/formdrop/internal/jsonvalue"
	"github.com/znz-systems/formdrop/internal/mail"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/relay"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/store"
	"github.com/znz-systems/formdrop/internal/submission"
)

// RelayEventType is the event type published for every submission.
const RelayEventType = "submission.created"

// RelayPublisher publishes events to the webhook relay.
type RelayPublisher interface {
	Create(ctx context.Context, appID string, msg relay.Message) (*relay.MessageOut, error)
}

// Notifier sends the new-submission email.
type Notifier interface {
	SendSubmissionNotification(ctx context.Context, recipient string, data mail.NotificationData) error
}

// SheetsAppender writes a submission row to a spreadsheet.
type SheetsAppender interface {
	AppendRow(ctx context.Context, ep *models.Endpoint, data jsonvalue.Value) error
}

// Deps are the collaborators a Dispatcher uses. Relay, Notifier, Sender and
// Sheets may be nil, in which case the matching channel records a failure
// when an endpoint asks for it.
type Deps struct {
	Subscriptions store.SubscriptionStore
	Logs          store.DeliveryLogStore
	Submissions   store.SubmissionStore
	Relay         RelayPublisher
	Notifier      Notifier
	Sender        mail.Sender
	Sheets        SheetsAppender
	// HTTP performs direct webhook and Zapier deliveries.
	HTTP *http.Client
	// Concurrency caps in-flight deliveries per channel; 0 means unlimited.
	Concurrency int
	// DefaultFrom is the autoresponder sender when an endpoint sets none.
	DefaultFrom string
}

// Dispatcher runs the fan-out channels for one submission at a time.
type Dispatcher struct {
	deps     Deps
	validate *validator.Validate
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{
		deps:     deps,
		validate: validator.New(),
	}
}

// Outcome is the result of delivering to one target.
type Outcome struct {
	Target     string
	Success    bool
	StatusCode int
	Err        error
}

// Report summarises a Dispatch run. Fields for channels that did not run
// are left zero.
type Report struct {
	Relay         *Outcome
	Webhooks      []Outcome
	Emails        []Outcome
	Zapier        []Outcome
	ZapierStatus  string
	SheetsStatus  string
	Autoresponder *mail.AutoresponseResult
}

// Dispatch delivers res through every configured channel and waits for all
// of them.
func (d *Dispatcher) Dispatch(ctx context.Context, ep *models.Endpoint, res *submission.Result) Report {
	var report Report

	if ep.WebhooksEnabled && ep.WebhookProviderAppID != "" {
		out := d.sendRelay(ctx, ep, res)
		report.Relay = &out
	} else {
		report.Webhooks = d.sendWebhooks(ctx, ep, res)
	}

	if ep.EmailNotificationsEnabled {
		report.Emails = d.sendEmails(ctx, ep, res)
	}

	report.Zapier, report.ZapierStatus = d.sendZapier(ctx, ep, res)

	if ep.GoogleSheets.Configured() {
		report.SheetsStatus = d.appendSheet(ctx, ep, res)
	}

	if ep.Autoresponder.Enabled {
		ar := d.sendAutoresponse(ctx, ep, res)
		report.Autoresponder = &ar
	}

	reqlog.Logger(ctx).Info("fan-out complete",
		"submission_id", res.Submission.ID,
		"webhooks", len(report.Webhooks),
		"emails", len(report.Emails),
		"zapier_status", report.ZapierStatus,
		"sheets_status", report.SheetsStatus,
	)
	return report
}

func (d *Dispatcher) sendAutoresponse(ctx context.Context, ep *models.Endpoint, res *submission.Result) mail.AutoresponseResult {
	logger := reqlog.Logger(ctx)
	if d.deps.Sender == nil {
		logger.Warn("autoresponder enabled but no mail sender configured", "endpoint_id", ep.ID)
		return mail.AutoresponseResult{Err: errNotConfigured("mail sender")}
	}

	ar := mail.NewAutoresponder(d.deps.Sender, d.deps.Logs, ep.Autoresponder, d.deps.DefaultFrom)
	result := ar.Send(ctx, res.Submission.ID, res.Data)
	if result.Success {
		logger.Info("autoresponse sent", "submission_id", res.Submission.ID, "email_log_id", result.LogID)
	} else {
		logger.Warn("autoresponse failed", "submission_id", res.Submission.ID, "email_log_id", result.LogID, "error", result.Err)
	}
	return result
}
