package fanout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/znz-systems/formdrop/internal/jsonvalue"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/relay"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/submission"
)

const maxLoggedResponse = 1 << 16

func (d *Dispatcher) sendRelay(ctx context.Context, ep *models.Endpoint, res *submission.Result) Outcome {
	logger := reqlog.Logger(ctx)
	out := Outcome{Target: ep.WebhookProviderAppID}
	if d.deps.Relay == nil {
		out.Err = errNotConfigured("webhook relay")
		logger.Warn("webhook relay requested but not configured", "endpoint_id", ep.ID)
		return out
	}

	payload := transform(ctx, ep, relayPayload(ep, res))
	msg, err := d.deps.Relay.Create(ctx, ep.WebhookProviderAppID, relay.Message{
		EventType: RelayEventType,
		EventID:   res.Submission.ID.String(),
		Payload:   jsonvalue.ToAny(payload),
	})
	if err != nil {
		out.Err = err
		logger.Error("webhook relay delivery failed", "app_id", ep.WebhookProviderAppID, "error", err)
		return out
	}
	out.Success = true
	logger.Info("webhook relay message created", "app_id", ep.WebhookProviderAppID, "message_id", msg.ID)
	return out
}

// sendWebhooks posts to every active webhook URL and records each attempt
// in the webhook log.
func (d *Dispatcher) sendWebhooks(ctx context.Context, ep *models.Endpoint, res *submission.Result) []Outcome {
	logger := reqlog.Logger(ctx)
	hooks, err := d.deps.Subscriptions.ListActiveWebhookURLs(ctx, ep.ID)
	if err != nil {
		logger.Error("failed to load webhook urls", "endpoint_id", ep.ID, "error", err)
		return nil
	}
	if len(hooks) == 0 {
		return nil
	}

	body, err := encode(transform(ctx, ep, webhookPayload(res)))
	if err != nil {
		logger.Error("failed to encode webhook payload", "error", err)
		return nil
	}

	outcomes := settleAll(ctx, d.deps.Concurrency, hooks, func(ctx context.Context, hook models.WebhookURL) Outcome {
		out, respBody := d.post(ctx, hook.URL, body, "webhook")
		logErr := d.deps.Logs.CreateWebhookLog(ctx, models.WebhookLogCreateParams{
			WebhookURLID: hook.ID,
			SubmissionID: res.Submission.ID,
			Success:      out.Success,
			StatusCode:   out.StatusCode,
			ResponseBody: respBody,
			ErrorMessage: errString(out.Err),
		})
		if logErr != nil {
			logger.Warn("failed to write webhook log", "webhook_url_id", hook.ID, "error", logErr)
		}
		return out
	})

	logger.Info("webhooks delivered", "total", len(outcomes), "succeeded", countSuccess(outcomes))
	return outcomes
}

// sendZapier posts to every new_submission subscription and records the
// aggregate status on the submission. With no subscriptions the status is
// left untouched.
func (d *Dispatcher) sendZapier(ctx context.Context, ep *models.Endpoint, res *submission.Result) ([]Outcome, string) {
	logger := reqlog.Logger(ctx)
	subs, err := d.deps.Subscriptions.ListActiveZapierSubscriptions(ctx, ep.ID, models.ZapierEventNewSubmission)
	if err != nil {
		logger.Error("failed to load zapier subscriptions", "endpoint_id", ep.ID, "error", err)
		return nil, ""
	}
	if len(subs) == 0 {
		return nil, ""
	}

	outcomes := make([]Outcome, 0, len(subs))
	body, err := encode(transform(ctx, ep, zapierPayload(ep, res)))
	if err != nil {
		for _, s := range subs {
			outcomes = append(outcomes, Outcome{Target: s.TargetURL, Err: err})
		}
	} else {
		outcomes = settleAll(ctx, d.deps.Concurrency, subs, func(ctx context.Context, s models.ZapierSubscription) Outcome {
			out, _ := d.post(ctx, s.TargetURL, body, "zapier")
			return out
		})
	}

	status := models.ChannelStatusSuccess
	if countSuccess(outcomes) != len(outcomes) {
		status = models.ChannelStatusFailure
	}
	if err := d.deps.Submissions.UpdateZapierStatus(ctx, res.Submission.ID, status); err != nil {
		logger.Error("failed to record zapier status", "submission_id", res.Submission.ID, "error", err)
	}
	logger.Info("zapier delivered", "total", len(outcomes), "succeeded", countSuccess(outcomes), "status", status)
	return outcomes, status
}

// post sends body to target and returns the outcome together with the
// (truncated) response body.
func (d *Dispatcher) post(ctx context.Context, target string, body []byte, channel string) (Outcome, string) {
	logger := reqlog.Logger(ctx)
	out := Outcome{Target: target}

	if err := d.validateURL(target); err != nil {
		out.Err = err
		logger.Warn("skipping invalid delivery url", "channel", channel, "url", target, "error", err)
		return out, ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		out.Err = err
		return out, ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "FormDrop-Webhooks/1.0")

	resp, err := d.deps.HTTP.Do(req)
	if err != nil {
		out.Err = err
		logger.Warn("delivery failed", "channel", channel, "url", target, "error", err)
		return out, ""
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedResponse))
	out.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Err = fmt.Errorf("HTTP %d", resp.StatusCode)
		logger.Warn("delivery rejected", "channel", channel, "url", target, "status", resp.StatusCode)
		return out, string(rb)
	}
	out.Success = true
	logger.Info("delivered", "channel", channel, "url", target, "status", resp.StatusCode)
	return out, string(rb)
}

func (d *Dispatcher) validateURL(target string) error {
	if err := d.validate.Var(target, "required,url"); err != nil {
		return fmt.Errorf("invalid url %q", target)
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return fmt.Errorf("unsupported url scheme in %q", target)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
