package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/jsonvalue"
	"github.com/znz-systems/formdrop/internal/mail"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/relay"
	"github.com/znz-systems/formdrop/internal/submission"
)

// --- Mock stores and collaborators ---

type mockSubscriptionStore struct {
	webhooks   []models.WebhookURL
	recipients []models.EmailRecipient
	zapier     []models.ZapierSubscription
	webhookErr error
}

func newMockSubscriptionStore() *mockSubscriptionStore { return &mockSubscriptionStore{} }

func (m *mockSubscriptionStore) ListActiveWebhookURLs(context.Context, uuid.UUID) ([]models.WebhookURL, error) {
	return m.webhooks, m.webhookErr
}

func (m *mockSubscriptionStore) ListActiveEmailRecipients(context.Context, uuid.UUID) ([]models.EmailRecipient, error) {
	return m.recipients, nil
}

func (m *mockSubscriptionStore) ListActiveZapierSubscriptions(_ context.Context, _ uuid.UUID, event string) ([]models.ZapierSubscription, error) {
	if event != models.ZapierEventNewSubmission {
		return nil, nil
	}
	return m.zapier, nil
}

type mockDeliveryLogStore struct {
	mu          sync.Mutex
	webhookLogs []models.WebhookLogCreateParams
	emailLogs   []models.EmailLogCreateParams
}

func newMockDeliveryLogStore() *mockDeliveryLogStore { return &mockDeliveryLogStore{} }

func (m *mockDeliveryLogStore) CreateWebhookLog(_ context.Context, p models.WebhookLogCreateParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhookLogs = append(m.webhookLogs, p)
	return nil
}

func (m *mockDeliveryLogStore) CreateEmailLog(_ context.Context, p models.EmailLogCreateParams) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailLogs = append(m.emailLogs, p)
	return uuid.New(), nil
}

type mockSubmissionStore struct {
	mu           sync.Mutex
	zapierStatus map[uuid.UUID]string
	sheetsStatus map[uuid.UUID]string
}

func newMockSubmissionStore() *mockSubmissionStore {
	return &mockSubmissionStore{zapierStatus: map[uuid.UUID]string{}, sheetsStatus: map[uuid.UUID]string{}}
}

func (m *mockSubmissionStore) CreateSubmission(context.Context, models.SubmissionCreateParams) (*models.Submission, error) {
	return nil, errors.New("not used")
}

func (m *mockSubmissionStore) UpdateZapierStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zapierStatus[id] = status
	return nil
}

func (m *mockSubmissionStore) UpdateGoogleSheetsStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheetsStatus[id] = status
	return nil
}

type fakeRelay struct {
	appID string
	msg   relay.Message
	err   error
}

func (f *fakeRelay) Create(_ context.Context, appID string, msg relay.Message) (*relay.MessageOut, error) {
	f.appID, f.msg = appID, msg
	if f.err != nil {
		return nil, f.err
	}
	return &relay.MessageOut{ID: "msg_1"}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (f *fakeNotifier) SendSubmissionNotification(_ context.Context, recipient string, _ mail.NotificationData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[recipient] {
		return errors.New("mailbox full")
	}
	f.sent = append(f.sent, recipient)
	return nil
}

type fakeSheets struct {
	err   error
	panic bool
	calls int
}

func (f *fakeSheets) AppendRow(context.Context, *models.Endpoint, jsonvalue.Value) error {
	f.calls++
	if f.panic {
		panic("token refresh exploded")
	}
	return f.err
}

type fakeSender struct{ sent []mail.Message }

func (f *fakeSender) SendMessage(msg mail.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

// --- Helpers ---

type env struct {
	subs   *mockSubscriptionStore
	logs   *mockDeliveryLogStore
	stored *mockSubmissionStore
	deps   Deps
}

func newEnv() *env {
	e := &env{subs: newMockSubscriptionStore(), logs: newMockDeliveryLogStore(), stored: newMockSubmissionStore()}
	e.deps = Deps{Subscriptions: e.subs, Logs: e.logs, Submissions: e.stored, Concurrency: 4}
	return e
}

func testResult(t *testing.T) *submission.Result {
	t.Helper()
	data, err := jsonvalue.Parse([]byte(`{"name":"Ada","contact":{"email":"ada@example.com"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sub := &models.Submission{ID: uuid.New(), CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), IPAddress: "203.0.113.5"}
	return &submission.Result{
		Submission: sub,
		Data:       data,
		Files: []submission.StoredFile{{
			Record:    &models.FileUpload{ID: uuid.New(), OriginalFilename: "cv.pdf", SizeBytes: 10, MIMEType: "application/pdf"},
			PublicURL: "https://cdn.test/cv.pdf",
		}},
	}
}

func testEndpoint() *models.Endpoint {
	return &models.Endpoint{ID: uuid.New(), ProjectID: uuid.New(), Name: "Contact", Path: "contact", Method: "POST"}
}

type capture struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (c *capture) server(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// --- Tests ---

func TestDispatch_LegacyWebhooksSettleAll(t *testing.T) {
	e := newEnv()
	var okCap, badCap capture
	ok := okCap.server(t, http.StatusOK)
	bad := badCap.server(t, http.StatusInternalServerError)
	e.subs.webhooks = []models.WebhookURL{
		{ID: uuid.New(), URL: ok.URL},
		{ID: uuid.New(), URL: bad.URL},
		{ID: uuid.New(), URL: "ftp://nope"},
	}

	res := testResult(t)
	report := NewDispatcher(e.deps).Dispatch(context.Background(), testEndpoint(), res)

	if len(report.Webhooks) != 3 {
		t.Fatalf("webhooks = %d, want 3", len(report.Webhooks))
	}
	if !report.Webhooks[0].Success || report.Webhooks[1].Success || report.Webhooks[2].Success {
		t.Fatalf("outcomes = %+v", report.Webhooks)
	}
	if report.Webhooks[1].StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", report.Webhooks[1].StatusCode)
	}
	if len(e.logs.webhookLogs) != 3 {
		t.Fatalf("webhook logs = %d, want 3", len(e.logs.webhookLogs))
	}
	for _, l := range e.logs.webhookLogs {
		if l.SubmissionID != res.Submission.ID {
			t.Fatalf("log submission = %v", l.SubmissionID)
		}
	}

	body := okCap.bodies[0]
	if body["submission_id"] != res.Submission.ID.String() {
		t.Fatalf("payload = %v", body)
	}
	if _, hasEndpoint := body["endpoint"]; hasEndpoint {
		t.Fatal("legacy payload should not carry endpoint identity")
	}
	files := body["files"].([]any)
	if files[0].(map[string]any)["url"] != "https://cdn.test/cv.pdf" {
		t.Fatalf("files = %v", files)
	}
}

func TestDispatch_RelayPreferredOverLegacy(t *testing.T) {
	e := newEnv()
	e.subs.webhookErr = errors.New("should not be called")
	rel := &fakeRelay{}
	e.deps.Relay = rel

	ep := testEndpoint()
	ep.WebhooksEnabled = true
	ep.WebhookProviderAppID = "app_9"

	report := NewDispatcher(e.deps).Dispatch(context.Background(), ep, testResult(t))
	if report.Relay == nil || !report.Relay.Success {
		t.Fatalf("relay = %+v", report.Relay)
	}
	if report.Webhooks != nil {
		t.Fatal("legacy webhooks should not run when the relay is used")
	}
	if rel.appID != "app_9" || rel.msg.EventType != RelayEventType {
		t.Fatalf("relay call = %q %+v", rel.appID, rel.msg)
	}
	payload := rel.msg.Payload.(map[string]any)
	if payload["endpoint"].(map[string]any)["path"] != "contact" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestDispatch_RelayFailureIsContained(t *testing.T) {
	e := newEnv()
	e.deps.Relay = &fakeRelay{err: errors.New("503")}
	e.deps.Sheets = &fakeSheets{}
	ep := testEndpoint()
	ep.WebhooksEnabled = true
	ep.WebhookProviderAppID = "app_9"
	ep.GoogleSheets = models.GoogleSheetsConfig{SpreadsheetID: "s", SheetName: "n", ColumnMappings: []models.ColumnMapping{{Column: "A", Field: "name"}}}

	report := NewDispatcher(e.deps).Dispatch(context.Background(), ep, testResult(t))
	if report.Relay.Success {
		t.Fatal("relay should have failed")
	}
	if report.SheetsStatus != models.ChannelStatusSuccess {
		t.Fatalf("later channels should still run, sheets = %q", report.SheetsStatus)
	}
}

func TestDispatch_TransformationTemplate(t *testing.T) {
	e := newEnv()
	var c capture
	srv := c.server(t, http.StatusOK)
	e.subs.webhooks = []models.WebhookURL{{ID: uuid.New(), URL: srv.URL}}

	ep := testEndpoint()
	ep.WebhookTransformationEnabled = true
	ep.WebhookTransformationTemplate = json.RawMessage(`{"text":"New lead: {{data.name}} ({{data.contact.email}})","files":"{{files}}","missing":"{{data.nope}}"}`)

	NewDispatcher(e.deps).Dispatch(context.Background(), ep, testResult(t))
	body := c.bodies[0]
	if body["text"] != "New lead: Ada (ada@example.com)" {
		t.Fatalf("text = %v", body["text"])
	}
	if _, ok := body["files"].([]any); !ok {
		t.Fatalf("files should keep its array type, got %T", body["files"])
	}
	if body["missing"] != "{{data.nope}}" {
		t.Fatalf("missing = %v", body["missing"])
	}
}

func TestDispatch_BrokenTemplateSendsOriginal(t *testing.T) {
	e := newEnv()
	var c capture
	srv := c.server(t, http.StatusOK)
	e.subs.webhooks = []models.WebhookURL{{ID: uuid.New(), URL: srv.URL}}

	ep := testEndpoint()
	ep.WebhookTransformationEnabled = true
	ep.WebhookTransformationTemplate = json.RawMessage(`{"text":`)

	res := testResult(t)
	NewDispatcher(e.deps).Dispatch(context.Background(), ep, res)
	if c.bodies[0]["submission_id"] != res.Submission.ID.String() {
		t.Fatalf("body = %v", c.bodies[0])
	}
}

func TestDispatch_ZapierStatus(t *testing.T) {
	t.Run("all succeed", func(t *testing.T) {
		e := newEnv()
		var c capture
		srv := c.server(t, http.StatusOK)
		e.subs.zapier = []models.ZapierSubscription{{TargetURL: srv.URL}, {TargetURL: srv.URL}}

		res := testResult(t)
		report := NewDispatcher(e.deps).Dispatch(context.Background(), testEndpoint(), res)
		if report.ZapierStatus != models.ChannelStatusSuccess || e.stored.zapierStatus[res.Submission.ID] != models.ChannelStatusSuccess {
			t.Fatalf("status = %q / %q", report.ZapierStatus, e.stored.zapierStatus[res.Submission.ID])
		}
		body := c.bodies[0]
		if body["contact_email"] != "ada@example.com" || body["name"] != "Ada" {
			t.Fatalf("flattened fields missing: %v", body)
		}
		if body["data"].(map[string]any)["contact"] == nil {
			t.Fatalf("nested data missing: %v", body)
		}
	})

	t.Run("one fails", func(t *testing.T) {
		e := newEnv()
		var okCap, badCap capture
		e.subs.zapier = []models.ZapierSubscription{
			{TargetURL: okCap.server(t, http.StatusOK).URL},
			{TargetURL: badCap.server(t, http.StatusGone).URL},
		}
		res := testResult(t)
		NewDispatcher(e.deps).Dispatch(context.Background(), testEndpoint(), res)
		if e.stored.zapierStatus[res.Submission.ID] != models.ChannelStatusFailure {
			t.Fatalf("status = %q", e.stored.zapierStatus[res.Submission.ID])
		}
	})

	t.Run("no subscriptions", func(t *testing.T) {
		e := newEnv()
		res := testResult(t)
		report := NewDispatcher(e.deps).Dispatch(context.Background(), testEndpoint(), res)
		if report.ZapierStatus != "" {
			t.Fatalf("status = %q", report.ZapierStatus)
		}
		if _, set := e.stored.zapierStatus[res.Submission.ID]; set {
			t.Fatal("zapier status must stay unset without subscriptions")
		}
	})
}

func TestDispatch_Emails(t *testing.T) {
	e := newEnv()
	notifier := &fakeNotifier{fail: map[string]bool{"full@example.com": true}}
	e.deps.Notifier = notifier
	e.subs.recipients = []models.EmailRecipient{
		{Email: "owner@example.com"},
		{Email: "full@example.com"},
		{Email: "not-an-address"},
	}

	ep := testEndpoint()
	report := NewDispatcher(e.deps).Dispatch(context.Background(), ep, testResult(t))
	if report.Emails != nil {
		t.Fatal("emails should not be sent when notifications are disabled")
	}

	ep.EmailNotificationsEnabled = true
	report = NewDispatcher(e.deps).Dispatch(context.Background(), ep, testResult(t))
	if len(report.Emails) != 3 || countSuccess(report.Emails) != 1 {
		t.Fatalf("emails = %+v", report.Emails)
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "owner@example.com" {
		t.Fatalf("sent = %v", notifier.sent)
	}
	statuses := map[string]string{}
	for _, l := range e.logs.emailLogs {
		statuses[l.Recipient] = l.Status
	}
	if statuses["owner@example.com"] != models.EmailStatusSent || statuses["full@example.com"] != models.EmailStatusFailed || statuses["not-an-address"] != models.EmailStatusFailed {
		t.Fatalf("email log statuses = %v", statuses)
	}
}

func TestDispatch_SheetsStatus(t *testing.T) {
	cfg := models.GoogleSheetsConfig{SpreadsheetID: "s", SheetName: "n", ColumnMappings: []models.ColumnMapping{{Column: "A", Field: "name"}}}
	tests := []struct {
		name   string
		sheets *fakeSheets
		want   string
	}{
		{"success", &fakeSheets{}, models.ChannelStatusSuccess},
		{"error", &fakeSheets{err: errors.New("403")}, models.ChannelStatusFailure},
		{"panic", &fakeSheets{panic: true}, models.ChannelStatusFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			e.deps.Sheets = tt.sheets
			ep := testEndpoint()
			ep.GoogleSheets = cfg
			res := testResult(t)

			report := NewDispatcher(e.deps).Dispatch(context.Background(), ep, res)
			if report.SheetsStatus != tt.want || e.stored.sheetsStatus[res.Submission.ID] != tt.want {
				t.Fatalf("status = %q / %q, want %q", report.SheetsStatus, e.stored.sheetsStatus[res.Submission.ID], tt.want)
			}
		})
	}

	e := newEnv()
	sheets := &fakeSheets{}
	e.deps.Sheets = sheets
	res := testResult(t)
	NewDispatcher(e.deps).Dispatch(context.Background(), testEndpoint(), res)
	if sheets.calls != 0 {
		t.Fatal("sheets should not run without configuration")
	}
	if _, set := e.stored.sheetsStatus[res.Submission.ID]; set {
		t.Fatal("sheets status must stay unset when not configured")
	}
}

func TestDispatch_Autoresponder(t *testing.T) {
	e := newEnv()
	sender := &fakeSender{}
	e.deps.Sender = sender
	e.deps.DefaultFrom = "no-reply@formdrop.test"

	ep := testEndpoint()
	ep.Autoresponder = models.AutoresponderConfig{Enabled: true, EmailField: "contact.email", Subject: "Thanks {{name}}", Body: "We received your message."}

	report := NewDispatcher(e.deps).Dispatch(context.Background(), ep, testResult(t))
	if report.Autoresponder == nil || !report.Autoresponder.Success {
		t.Fatalf("autoresponder = %+v", report.Autoresponder)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "ada@example.com" || sender.sent[0].Subject != "Thanks Ada" {
		t.Fatalf("sent = %+v", sender.sent)
	}
}

func TestSettleAll_IsolatesPanicsAndKeepsOrder(t *testing.T) {
	items := []string{"a", "boom", "c"}
	outcomes := settleAll(context.Background(), 2, items, func(_ context.Context, s string) Outcome {
		if s == "boom" {
			panic("kaboom")
		}
		return Outcome{Target: s, Success: true}
	})
	if len(outcomes) != 3 || outcomes[0].Target != "a" || outcomes[2].Target != "c" {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes[1].Success || outcomes[1].Err == nil || !strings.Contains(outcomes[1].Err.Error(), "kaboom") {
		t.Fatalf("panic outcome = %+v", outcomes[1])
	}
}
