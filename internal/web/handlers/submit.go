package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/apierr"
	"github.com/znz-systems/formdrop/internal/blob"
	"github.com/znz-systems/formdrop/internal/fanout"
	"github.com/znz-systems/formdrop/internal/intake"
	"github.com/znz-systems/formdrop/internal/jsonvalue"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/policy"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/store"
	"github.com/znz-systems/formdrop/internal/submission"
	"github.com/znz-systems/formdrop/internal/validation"
)

const (
	defaultSuccessMessage = "Form submitted successfully"
	internalErrorMessage  = "Internal server error"
	logUploadTimeout      = 10 * time.Second
)

// Persister stores a validated submission and its files.
type Persister interface {
	Persist(ctx context.Context, ep *models.Endpoint, data jsonvalue.Value, files []intake.File, ipAddress, userAgent string) (*submission.Result, error)
}

// Dispatcher fans a stored submission out to its notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, ep *models.Endpoint, res *submission.Result) fanout.Report
}

// SubmitHandler serves the public submission endpoints.
type SubmitHandler struct {
	endpoints  store.EndpointStore
	persister  Persister
	dispatcher Dispatcher
	logs       blob.Store
	limits     intake.Limits
}

// NewSubmitHandler creates a new SubmitHandler. logs receives one request
// log document per submission attempt.
func NewSubmitHandler(endpoints store.EndpointStore, persister Persister, dispatcher Dispatcher, logs blob.Store, limits intake.Limits) *SubmitHandler {
	return &SubmitHandler{
		endpoints:  endpoints,
		persister:  persister,
		dispatcher: dispatcher,
		logs:       logs,
		limits:     limits,
	}
}

// endpointAddress reads the project id and endpoint path from the route.
func endpointAddress(r *http.Request) (uuid.UUID, string, bool) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		return uuid.Nil, "", false
	}
	path := strings.Trim(chi.URLParam(r, "*"), "/")
	if path == "" {
		return uuid.Nil, "", false
	}
	return projectID, path, true
}

// HandleSubmit accepts a submission. POST, PUT and PATCH all route here;
// the endpoint's configured method decides which one is accepted.
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	reqLog := reqlog.New(h.logs, slog.Default().Handler())
	ctx := reqlog.NewContext(r.Context(), reqLog)
	logger := reqLog.Logger()

	req := intake.Classify(r)
	logger.Info("submission received",
		"method", req.Method,
		"content_type", req.ContentType,
		"origin", req.Origin,
		"ip", req.IPAddress,
	)

	projectID, path, ok := endpointAddress(r)
	if !ok {
		h.fail(ctx, w, reqLog, policy.EchoOrigin(nil, req), apierr.NotFound("Endpoint not found"), internalErrorMessage)
		return
	}

	ep, err := h.endpoints.GetEndpointByPath(ctx, projectID, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = apierr.NotFound("Endpoint not found")
		} else {
			err = apierr.Internal(internalErrorMessage, err)
		}
		h.fail(ctx, w, reqLog, policy.EchoOrigin(nil, req), err, internalErrorMessage)
		return
	}
	logger = logger.With("endpoint_id", ep.ID)

	origin, err := policy.Gate(ep, req)
	if err != nil {
		h.fail(ctx, w, reqLog, origin, err, internalErrorMessage)
		return
	}

	body, err := intake.Decode(r, ep.FileUploadsEnabled, h.limits)
	if err != nil {
		h.fail(ctx, w, reqLog, origin, err, internalErrorMessage)
		return
	}
	logger.Info("body decoded", "files", len(body.Files))

	if err := validation.ValidateFiles(ep, body.Files); err != nil {
		h.fail(ctx, w, reqLog, origin, err, internalErrorMessage)
		return
	}
	if ep.JSONValidationEnabled && hasSchema(ep.JSONSchema) {
		if err := validation.ValidateSchema(ep.JSONSchema, body.Data); err != nil {
			h.fail(ctx, w, reqLog, origin, err, internalErrorMessage)
			return
		}
	}

	res, err := h.persister.Persist(ctx, ep, body.Data, body.Files, req.IPAddress, req.UserAgent)
	if err != nil {
		h.fail(ctx, w, reqLog, origin, err, customOr(ep.ErrorMessage, internalErrorMessage))
		return
	}

	// Fan-out runs to completion even if the client has gone away.
	h.dispatcher.Dispatch(context.WithoutCancel(ctx), ep, res)

	message := customOr(ep.SuccessMessage, defaultSuccessMessage)
	submissionID := res.Submission.ID.String()

	if ep.RedirectURL != "" {
		h.flushLog(ctx, reqLog)
		setCORSHeaders(w, origin)
		if req.AJAX {
			writeJSON(w, http.StatusOK, redirectResponse{
				Success:      true,
				Message:      message,
				SubmissionID: submissionID,
				RedirectURL:  ep.RedirectURL,
			})
			return
		}
		w.Header().Set("Location", ep.RedirectURL)
		w.WriteHeader(http.StatusFound)
		return
	}

	files := make([]fileResponse, len(res.Files))
	for i, f := range res.Files {
		files[i] = fileResponse{
			ID:               f.Record.ID.String(),
			OriginalFilename: f.Record.OriginalFilename,
			FileSizeBytes:    f.Record.SizeBytes,
			MIMEType:         f.Record.MIMEType,
		}
	}

	h.flushLog(ctx, reqLog)
	setCORSHeaders(w, origin)
	writeJSON(w, http.StatusOK, submitResponse{
		Success:       true,
		Message:       message,
		SubmissionID:  submissionID,
		FilesUploaded: len(files),
		Files:         files,
	})
}

// HandlePreflight answers CORS preflight requests using only the
// endpoint's allowed domains. Unknown endpoints are answered permissively;
// the real request still fails with 404. A datastore failure refuses the
// preflight.
func (h *SubmitHandler) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	req := intake.Classify(r)

	var allowed []string
	if projectID, path, ok := endpointAddress(r); ok {
		domains, err := h.endpoints.GetAllowedDomainsByPath(r.Context(), projectID, path)
		switch {
		case err == nil:
			allowed = domains
		case !errors.Is(err, sql.ErrNoRows):
			slog.Error("failed to load allowed domains for preflight", "project_id", projectID, "path", path, "error", err)
			setCORSHeaders(w, policy.NullOrigin)
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	w.Header().Set("Access-Control-Max-Age", "86400")
	if !policy.OriginAllowed(allowed, req) {
		setCORSHeaders(w, policy.NullOrigin)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	setCORSHeaders(w, policy.EchoOrigin(allowed, req))
	w.WriteHeader(http.StatusOK)
}

// HandleMethodNotAllowed keeps CORS headers on requests with a method the
// submit routes do not serve.
func (h *SubmitHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, policy.EchoOrigin(nil, intake.Classify(r)))
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method " + r.Method + " not allowed"})
}

// fail logs err, flushes the request log and writes the error response.
// fallback is the message used for errors that carry none of their own.
func (h *SubmitHandler) fail(ctx context.Context, w http.ResponseWriter, reqLog *reqlog.Log, origin string, err error, fallback string) {
	status := apierr.StatusOf(err)
	logger := reqLog.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("submission failed", "status", status, "error", err)
	} else {
		logger.Warn("submission rejected", "status", status, "error", err)
	}

	h.flushLog(ctx, reqLog)
	setCORSHeaders(w, origin)
	writeJSON(w, status, errorResponse{Error: apierr.MessageOf(err, fallback)})
}

func (h *SubmitHandler) flushLog(ctx context.Context, reqLog *reqlog.Log) {
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logUploadTimeout)
	defer cancel()
	res := reqLog.UploadToStorage(uploadCtx)
	if !res.Success {
		slog.Warn("failed to upload submission log", "submission_id", reqLog.SubmissionID(), "error", res.Err)
	}
}

func hasSchema(schema []byte) bool {
	s := strings.TrimSpace(string(schema))
	return s != "" && s != "null" && s != "{}"
}

func customOr(custom, fallback string) string {
	if custom != "" {
		return custom
	}
	return fallback
}
