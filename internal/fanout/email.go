package fanout

import (
	"context"
	"fmt"

	"github.com/znz-systems/formdrop/internal/mail"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/submission"
)

// EmailKindNotification marks owner notification rows in the email log.
const EmailKindNotification = "notification"

func (d *Dispatcher) sendEmails(ctx context.Context, ep *models.Endpoint, res *submission.Result) []Outcome {
	logger := reqlog.Logger(ctx)
	recipients, err := d.deps.Subscriptions.ListActiveEmailRecipients(ctx, ep.ID)
	if err != nil {
		logger.Error("failed to load email recipients", "endpoint_id", ep.ID, "error", err)
		return nil
	}
	if len(recipients) == 0 {
		return nil
	}

	data := notificationData(ep, res)
	outcomes := settleAll(ctx, d.deps.Concurrency, recipients, func(ctx context.Context, r models.EmailRecipient) Outcome {
		out := Outcome{Target: r.Email}
		switch {
		case d.deps.Notifier == nil:
			out.Err = errNotConfigured("mail")
		case d.validate.Var(r.Email, "required,email") != nil:
			out.Err = fmt.Errorf("invalid recipient address %q", r.Email)
		default:
			out.Err = d.deps.Notifier.SendSubmissionNotification(ctx, r.Email, data)
		}
		out.Success = out.Err == nil

		status := models.EmailStatusSent
		if !out.Success {
			status = models.EmailStatusFailed
			logger.Warn("notification email failed", "recipient", r.Email, "error", out.Err)
		}
		if _, logErr := d.deps.Logs.CreateEmailLog(ctx, models.EmailLogCreateParams{
			SubmissionID: res.Submission.ID,
			Recipient:    r.Email,
			Kind:         EmailKindNotification,
			Status:       status,
			ErrorMessage: errString(out.Err),
		}); logErr != nil {
			logger.Warn("failed to write email log", "recipient", r.Email, "error", logErr)
		}
		return out
	})

	sent := countSuccess(outcomes)
	logger.Info("notification emails processed", "sent", sent, "failed", len(outcomes)-sent)
	return outcomes
}

func notificationData(ep *models.Endpoint, res *submission.Result) mail.NotificationData {
	files := make([]mail.FileInfo, len(res.Files))
	for i, f := range res.Files {
		files[i] = mail.FileInfo{
			Name:      f.Record.OriginalFilename,
			SizeBytes: f.Record.SizeBytes,
			MIMEType:  f.Record.MIMEType,
			URL:       f.PublicURL,
		}
	}
	return mail.NotificationData{
		EndpointName: ep.Name,
		ProjectName:  ep.ProjectName,
		SubmissionID: res.Submission.ID.String(),
		SubmittedAt:  res.Submission.CreatedAt,
		IPAddress:    res.Submission.IPAddress,
		Data:         res.Data,
		Files:        files,
	}
}
