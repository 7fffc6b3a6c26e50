package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/znz-systems/formdrop/internal/blob"
	"github.com/znz-systems/formdrop/internal/fanout"
	"github.com/znz-systems/formdrop/internal/intake"
	"github.com/znz-systems/formdrop/internal/jsonvalue"
	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/submission"
)

// --- Shared mock stores used by submit_test.go and files_test.go ---

type endpointKey struct {
	projectID uuid.UUID
	path      string
}

type mockEndpointStore struct {
	endpoints map[endpointKey]*models.Endpoint
	err       error
}

func newMockEndpointStore() *mockEndpointStore {
	return &mockEndpointStore{endpoints: make(map[endpointKey]*models.Endpoint)}
}

func (m *mockEndpointStore) addEndpoint(ep *models.Endpoint) {
	m.endpoints[endpointKey{ep.ProjectID, ep.Path}] = ep
}

func (m *mockEndpointStore) GetEndpointByPath(_ context.Context, projectID uuid.UUID, path string) (*models.Endpoint, error) {
	if m.err != nil {
		return nil, m.err
	}
	ep, ok := m.endpoints[endpointKey{projectID, path}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ep, nil
}

func (m *mockEndpointStore) GetAllowedDomainsByPath(_ context.Context, projectID uuid.UUID, path string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	ep, ok := m.endpoints[endpointKey{projectID, path}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ep.AllowedDomains, nil
}

type mockSubmissionStore struct {
	mu          sync.Mutex
	submissions []*models.Submission
	err         error
}

func newMockSubmissionStore() *mockSubmissionStore {
	return &mockSubmissionStore{}
}

func (m *mockSubmissionStore) CreateSubmission(_ context.Context, params models.SubmissionCreateParams) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	sub := &models.Submission{
		ID:         uuid.New(),
		EndpointID: params.EndpointID,
		Data:       params.Data,
		IPAddress:  params.IPAddress,
		UserAgent:  params.UserAgent,
		CreatedAt:  time.Now(),
	}
	m.submissions = append(m.submissions, sub)
	return sub, nil
}

func (m *mockSubmissionStore) UpdateZapierStatus(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func (m *mockSubmissionStore) UpdateGoogleSheetsStatus(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

type mockFileUploadStore struct {
	mu    sync.Mutex
	files []*models.FileUpload
}

func newMockFileUploadStore() *mockFileUploadStore {
	return &mockFileUploadStore{}
}

func (m *mockFileUploadStore) CreateFileUpload(_ context.Context, params models.FileUploadCreateParams) (*models.FileUpload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &models.FileUpload{
		ID:               uuid.New(),
		SubmissionID:     params.SubmissionID,
		OriginalFilename: params.OriginalFilename,
		StoredFilename:   params.StoredFilename,
		FilePath:         params.FilePath,
		SizeBytes:        params.SizeBytes,
		MIMEType:         params.MIMEType,
		Bucket:           params.Bucket,
		CreatedAt:        time.Now(),
	}
	m.files = append(m.files, f)
	return f, nil
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []*submission.Result
	// ctxErrs holds ctx.Err() as seen at the start of each Dispatch.
	ctxErrs []error
	// logged reports whether the request log travelled with the context.
	logged []bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, _ *models.Endpoint, res *submission.Result) fanout.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, res)
	d.ctxErrs = append(d.ctxErrs, ctx.Err())
	d.logged = append(d.logged, reqlog.FromContext(ctx) != nil)
	return fanout.Report{}
}

// cancelAfterPersist simulates a client that disconnects once the
// submission row has been written.
type cancelAfterPersist struct {
	inner  Persister
	cancel context.CancelFunc
}

func (p *cancelAfterPersist) Persist(ctx context.Context, ep *models.Endpoint, data jsonvalue.Value, files []intake.File, ipAddress, userAgent string) (*submission.Result, error) {
	res, err := p.inner.Persist(ctx, ep, data, files, ipAddress, userAgent)
	p.cancel()
	return res, err
}

// --- Test fixture ---

type submitFixture struct {
	endpoints   *mockEndpointStore
	submissions *mockSubmissionStore
	files       *mockFileUploadStore
	dispatcher  *recordingDispatcher
	blobs       *blob.FilesystemStore
	blobRoot    string
	handler     *SubmitHandler
	router      chi.Router
}

func newSubmitFixture(t *testing.T) *submitFixture {
	t.Helper()

	root := t.TempDir()
	blobs, err := blob.NewFilesystemStore(root, "local", "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}

	f := &submitFixture{
		endpoints:   newMockEndpointStore(),
		submissions: newMockSubmissionStore(),
		files:       newMockFileUploadStore(),
		dispatcher:  &recordingDispatcher{},
		blobs:       blobs,
		blobRoot:    root,
	}
	persister := submission.NewService(f.submissions, f.files, blobs)
	f.handler = NewSubmitHandler(f.endpoints, persister, f.dispatcher, blobs, intake.DefaultLimits())
	f.router = newTestRouter(f.handler)
	return f
}

func newTestRouter(h *SubmitHandler) chi.Router {
	r := chi.NewRouter()
	r.MethodNotAllowed(h.HandleMethodNotAllowed)
	r.Options("/api/submit/{projectID}/*", h.HandlePreflight)
	r.Post("/api/submit/{projectID}/*", h.HandleSubmit)
	r.Put("/api/submit/{projectID}/*", h.HandleSubmit)
	r.Patch("/api/submit/{projectID}/*", h.HandleSubmit)
	return r
}

func newTestEndpoint() *models.Endpoint {
	return &models.Endpoint{
		ID:          uuid.New(),
		ProjectID:   uuid.New(),
		ProjectName: "Acme",
		Name:        "Contact",
		Path:        "contact",
		Method:      http.MethodPost,
	}
}

func submitURL(ep *models.Endpoint) string {
	return "/api/submit/" + ep.ProjectID.String() + "/" + ep.Path
}

func decodeBody(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, body)
	}
	return out
}

// uploadedLogs returns the paths of every request log written so far.
func (f *submitFixture) uploadedLogs(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.blobRoot, "submission-logs", "*", "*", "*", "*.json"))
	if err != nil {
		t.Fatalf("glob logs: %v", err)
	}
	return matches
}

var errStoreDown = errors.New("connection refused")
