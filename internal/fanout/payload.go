package fanout

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/znz-systems/formdrop/internal/jsonvalue"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/submission"
)

func filesValue(files []submission.StoredFile) jsonvalue.Array {
	arr := make(jsonvalue.Array, len(files))
	for i, f := range files {
		arr[i] = jsonvalue.Object{
			"id":                jsonvalue.String(f.Record.ID.String()),
			"original_filename": jsonvalue.String(f.Record.OriginalFilename),
			"stored_filename":   jsonvalue.String(f.Record.StoredFilename),
			"file_size_bytes":   jsonvalue.Number(strconv.FormatInt(f.Record.SizeBytes, 10)),
			"mime_type":         jsonvalue.String(f.Record.MIMEType),
			"url":               jsonvalue.String(f.PublicURL),
		}
	}
	return arr
}

func submittedAt(res *submission.Result) jsonvalue.String {
	return jsonvalue.String(res.Submission.CreatedAt.UTC().Format(time.RFC3339))
}

func dataOrEmpty(v jsonvalue.Value) jsonvalue.Value {
	if v == nil {
		return jsonvalue.Object{}
	}
	return v
}

// relayPayload carries the endpoint's identity alongside the submission.
func relayPayload(ep *models.Endpoint, res *submission.Result) jsonvalue.Object {
	return jsonvalue.Object{
		"event":         jsonvalue.String(RelayEventType),
		"submission_id": jsonvalue.String(res.Submission.ID.String()),
		"submitted_at":  submittedAt(res),
		"endpoint": jsonvalue.Object{
			"id":         jsonvalue.String(ep.ID.String()),
			"name":       jsonvalue.String(ep.Name),
			"path":       jsonvalue.String(ep.Path),
			"project_id": jsonvalue.String(ep.ProjectID.String()),
		},
		"data":  dataOrEmpty(res.Data),
		"files": filesValue(res.Files),
	}
}

func webhookPayload(res *submission.Result) jsonvalue.Object {
	return jsonvalue.Object{
		"submission_id": jsonvalue.String(res.Submission.ID.String()),
		"submitted_at":  submittedAt(res),
		"data":          dataOrEmpty(res.Data),
		"files":         filesValue(res.Files),
	}
}

// zapierPayload adds every scalar form field at the top level, underscore
// joined, so Zapier can map nested fields without a code step. Flattened
// keys never replace the fixed keys.
func zapierPayload(ep *models.Endpoint, res *submission.Result) jsonvalue.Object {
	payload := jsonvalue.Object{
		"submission_id": jsonvalue.String(res.Submission.ID.String()),
		"submitted_at":  submittedAt(res),
		"endpoint_name": jsonvalue.String(ep.Name),
		"data":          dataOrEmpty(res.Data),
		"files":         filesValue(res.Files),
		"files_count":   jsonvalue.Number(strconv.Itoa(len(res.Files))),
	}
	for k, v := range jsonvalue.Flatten(res.Data, jsonvalue.UnderscoreJoin) {
		if _, taken := payload[k]; !taken {
			payload[k] = v
		}
	}
	return payload
}

// transform applies the endpoint's transformation template to payload. Any
// problem with the template leaves the payload as it was.
func transform(ctx context.Context, ep *models.Endpoint, payload jsonvalue.Value) jsonvalue.Value {
	if !ep.WebhookTransformationEnabled || len(ep.WebhookTransformationTemplate) == 0 || string(ep.WebhookTransformationTemplate) == "null" {
		return payload
	}
	out, err := jsonvalue.RenderTemplate(ep.WebhookTransformationTemplate, payload)
	if err != nil {
		reqlog.Logger(ctx).Warn("webhook transformation failed, sending original payload", "endpoint_id", ep.ID, "error", err)
		return payload
	}
	return out
}

func encode(v jsonvalue.Value) (json.RawMessage, error) {
	return jsonvalue.Marshal(v)
}
