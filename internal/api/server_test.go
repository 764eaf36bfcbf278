package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mortgage-ledger-go/internal/counter"
	"mortgage-ledger-go/internal/ledger"
	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/pipeline"
	"mortgage-ledger-go/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRunner struct {
	err error
}

func (r stubRunner) Run(_ context.Context, job string) (*models.BatchResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &models.BatchResult{Job: job, Processed: 2, Approved: 1, Rejected: 1}, nil
}

type brokenApplications struct {
	Applications
}

func (brokenApplications) GetApplicationById(context.Context, int64) (*models.MortgageApplication, error) {
	return nil, errors.New("connection reset by peer")
}

func (brokenApplications) ListByState(context.Context, models.ApplicationState) ([]models.MortgageApplication, error) {
	return nil, errors.New("connection reset by peer")
}

func newTestServer(t *testing.T, runner pipeline.Runner) (*Server, *ledger.Repository) {
	t.Helper()
	table := store.NewMemoryStore()
	ids := counter.NewAllocator(table, counter.ApplicationCounter, counter.DefaultPolicy(), counter.StrategyAuto)
	repo := ledger.NewRepository(table, ids)
	require.NoError(t, repo.EnsureTables(context.Background()))
	return NewServer(":0", NewLedgerService(repo, runner)), repo
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func validRequest() map[string]any {
	return map[string]any{
		"applicantEmail":  "jane@example.com",
		"applicantName":   "Jane Doe",
		"yearlyIncome":    60000,
		"requestedAmount": 200000,
		"propertyId":      12,
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Message
}

func TestCreateAndGetApplication(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/mortgage-applications", validRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.MortgageApplication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.Id)
	assert.Equal(t, models.StateAwaitingReview, created.State)
	assert.Equal(t, "200000", created.RequestedAmount.String())

	rec = do(t, s, http.MethodGet, "/api/mortgage-applications/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched models.MortgageApplication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, "jane@example.com", fetched.ApplicantEmail)
}

func TestCreateApplicationValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{name: "bad email", mutate: func(m map[string]any) { m["applicantEmail"] = "jane" }},
		{name: "short name", mutate: func(m map[string]any) { m["applicantName"] = "J" }},
		{name: "missing property", mutate: func(m map[string]any) { delete(m, "propertyId") }},
		{name: "negative income", mutate: func(m map[string]any) { m["yearlyIncome"] = -1 }},
		{name: "negative amount", mutate: func(m map[string]any) { m["requestedAmount"] = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, nil)
			body := validRequest()
			tt.mutate(body)

			rec := do(t, s, http.MethodPost, "/api/mortgage-applications", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/mortgage-applications", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetApplicationNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/mortgage-applications/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeError(t, rec), "99")

	rec = do(t, s, http.MethodGet, "/api/mortgage-applications/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListApplications(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/mortgage-applications", validRequest()).Code)
	}

	rec := do(t, s, http.MethodGet, "/api/mortgage-applications/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending models.ApplicationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, models.StateAwaitingReview, pending.State)
	assert.Equal(t, 3, pending.Count)

	rec = do(t, s, http.MethodGet, "/api/mortgage-applications?state=accepted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var accepted models.ApplicationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, models.StateAccepted, accepted.State)
	assert.Equal(t, 0, accepted.Count)
	assert.NotNil(t, accepted.Applications)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/mortgage-applications?state=lost", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/mortgage-applications", nil).Code)
}

func TestUpdateStatus(t *testing.T) {
	s, _ := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/mortgage-applications", validRequest()).Code)

	rec := do(t, s, http.MethodPatch, "/api/mortgage-applications/1/status", map[string]string{"status": "UnderProcessing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var app models.MortgageApplication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	assert.Equal(t, models.StateUnderProcessing, app.State)

	rec = do(t, s, http.MethodPatch, "/api/mortgage-applications/1/status", map[string]string{"status": "OfferDelivered"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/mortgage-applications/1/status", map[string]string{"status": "Archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/mortgage-applications/1/status", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/mortgage-applications/42/status", map[string]string{"status": "Declined"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreFailureIsInternalError(t *testing.T) {
	s := NewServer(":0", NewLedgerService(brokenApplications{}, nil))

	rec := do(t, s, http.MethodGet, "/api/mortgage-applications/1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec))

	rec = do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type incomeFailingStore struct {
	*store.MemoryStore
}

func (f incomeFailingStore) UpsertEntity(ctx context.Context, table string, entity store.Entity) (store.Entity, error) {
	if table == ledger.IncomeTable {
		return store.Entity{}, errors.New("disk full")
	}
	return f.MemoryStore.UpsertEntity(ctx, table, entity)
}

func TestCreateApplicationIncomeFailureIsInternalError(t *testing.T) {
	table := incomeFailingStore{store.NewMemoryStore()}
	ids := counter.NewAllocator(table, counter.ApplicationCounter, counter.DefaultPolicy(), counter.StrategyAuto)
	repo := ledger.NewRepository(table, ids)
	require.NoError(t, repo.EnsureTables(context.Background()))
	s := NewServer(":0", NewLedgerService(repo, nil))

	rec := do(t, s, http.MethodPost, "/api/mortgage-applications", validRequest())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec))
}

func TestJobTriggers(t *testing.T) {
	s, _ := newTestServer(t, stubRunner{})

	rec := do(t, s, http.MethodPost, "/api/jobs/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, pipeline.JobProcessApplications, result.Job)
	assert.Equal(t, 2, result.Processed)

	rec = do(t, s, http.MethodPost, "/api/jobs/send-offers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestJobTriggerConflict(t *testing.T) {
	s, _ := newTestServer(t, stubRunner{err: pipeline.ErrJobRunning})

	rec := do(t, s, http.MethodPost, "/api/jobs/process", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJobRoutesAbsentWithoutRunner(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/jobs/process", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mortgage_http_requests_total")
}
