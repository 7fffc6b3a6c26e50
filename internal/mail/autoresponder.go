package mail

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/jsonvalue"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/store"
)

// EmailKindAutoresponse marks autoresponder rows in the email log.
const EmailKindAutoresponse = "autoresponse"

const defaultEmailField = "email"

// AutoresponseResult reports one autoresponder run. LogID is the email log
// row written for the attempt, when one could be written.
type AutoresponseResult struct {
	Success bool
	LogID   uuid.UUID
	Err     error
}

// Autoresponder replies to the submitter using an endpoint's settings.
type Autoresponder struct {
	sender      Sender
	logs        store.DeliveryLogStore
	cfg         models.AutoresponderConfig
	defaultFrom string
}

// NewAutoresponder creates an Autoresponder for one endpoint configuration.
func NewAutoresponder(sender Sender, logs store.DeliveryLogStore, cfg models.AutoresponderConfig, defaultFrom string) *Autoresponder {
	return &Autoresponder{sender: sender, logs: logs, cfg: cfg, defaultFrom: defaultFrom}
}

// Send emails the address found in the submission's configured email field.
// Subject and body may reference submission fields as {{field}}.
func (a *Autoresponder) Send(ctx context.Context, submissionID uuid.UUID, data jsonvalue.Value) AutoresponseResult {
	if !a.cfg.Enabled {
		return AutoresponseResult{Err: errors.New("autoresponder is disabled")}
	}

	field := a.cfg.EmailField
	if field == "" {
		field = defaultEmailField
	}
	var to string
	if v, ok := jsonvalue.Lookup(data, field); ok {
		to = strings.TrimSpace(jsonvalue.Stringify(v))
	}
	if _, err := netmail.ParseAddress(to); err != nil {
		return AutoresponseResult{Err: fmt.Errorf("no valid recipient in field %q", field)}
	}

	msg, err := a.compose(to, data)
	if err == nil {
		err = a.sender.SendMessage(msg)
	}

	status := models.EmailStatusSent
	errMsg := ""
	if err != nil {
		status = models.EmailStatusFailed
		errMsg = err.Error()
	}
	logID, logErr := a.logs.CreateEmailLog(ctx, models.EmailLogCreateParams{
		SubmissionID: submissionID,
		Recipient:    to,
		Kind:         EmailKindAutoresponse,
		Status:       status,
		ErrorMessage: errMsg,
	})
	if logErr != nil {
		reqlog.Logger(ctx).Warn("failed to write autoresponse email log", "submission_id", submissionID, "error", logErr)
	}

	if err != nil {
		return AutoresponseResult{LogID: logID, Err: err}
	}
	return AutoresponseResult{Success: true, LogID: logID}
}

func (a *Autoresponder) compose(to string, data jsonvalue.Value) (Message, error) {
	envelope := a.cfg.FromEmail
	if envelope == "" {
		envelope = a.defaultFrom
	}
	headerFrom := envelope
	if a.cfg.FromName != "" && envelope != "" {
		headerFrom = (&netmail.Address{Name: a.cfg.FromName, Address: envelope}).String()
	}

	subject := a.cfg.Subject
	if subject == "" {
		subject = "Thanks for your submission"
	}
	html, err := renderAutoresponse(jsonvalue.Interpolate(a.cfg.Body, data))
	if err != nil {
		return Message{}, fmt.Errorf("render autoresponse: %w", err)
	}

	return Message{
		EnvelopeFrom: envelope,
		HeaderFrom:   headerFrom,
		ReplyTo:      a.cfg.ReplyTo,
		To:           to,
		Subject:      jsonvalue.Interpolate(subject, data),
		HTML:         html,
	}, nil
}
