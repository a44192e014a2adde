package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/audit"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/operator/middleware"
	"github.com/bpofinanceiro/reconciliation-service/internal/operator/service"
)

// fakeService returns scripted results for each operation
type fakeService struct {
	ambiguous  []*bank.AmbiguousTransaction
	match      *reconciliation.Match
	confirmErr error
	jobs       []*syncjob.Job
	requeueErr error
	cancelErr  error
	events     []*audit.Event
}

func (f *fakeService) ListAmbiguous(ctx context.Context, tenantID uuid.UUID, page, perPage int) ([]*bank.AmbiguousTransaction, error) {
	return f.ambiguous, nil
}

func (f *fakeService) ConfirmMatch(ctx context.Context, tenantID, bankTransactionID uuid.UUID, entryIDs []uuid.UUID, reviewer string) (*reconciliation.Match, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.match, nil
}

func (f *fakeService) ListFailedJobs(ctx context.Context, page, perPage int) ([]*syncjob.Job, error) {
	return f.jobs, nil
}

func (f *fakeService) RequeueJob(ctx context.Context, jobID uuid.UUID) error {
	return f.requeueErr
}

func (f *fakeService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	return f.cancelErr
}

func (f *fakeService) ListAuditEvents(ctx context.Context, tenantID uuid.UUID, page, perPage int) ([]*audit.Event, error) {
	return f.events, nil
}

var _ service.OperatorService = (*fakeService)(nil)

func newTestRouter(svc service.OperatorService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewOperatorHandler(slog.Default(), svc)

	review := r.Group("/api/v1", middleware.TenantID())
	review.GET("/ambiguous", h.ListAmbiguous)
	review.POST("/matches/confirm", h.ConfirmMatch)
	review.GET("/audit", h.ListAuditEvents)

	jobs := r.Group("/api/v1/jobs")
	jobs.GET("/failed", h.ListFailedJobs)
	jobs.POST("/:id/requeue", h.RequeueJob)
	jobs.DELETE("/:id", h.CancelJob)

	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, tenantID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(middleware.TenantIDHeader, tenantID)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOperatorHandler_TenantHeader(t *testing.T) {
	r := newTestRouter(&fakeService{})

	t.Run("missing header is rejected", func(t *testing.T) {
		w := doRequest(t, r, http.MethodGet, "/api/v1/ambiguous", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "TENANT_REQUIRED")
	})

	t.Run("invalid header is rejected", func(t *testing.T) {
		w := doRequest(t, r, http.MethodGet, "/api/v1/ambiguous", "not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "TENANT_INVALID")
	})
}

func TestOperatorHandler_ListAmbiguous(t *testing.T) {
	txn := &bank.Transaction{
		ID:             uuid.New(),
		BankAccountRef: "12345-6",
		Amount:         decimal.RequireFromString("-1500.00"),
		Currency:       "BRL",
		ValueDate:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Description:    "PAGAMENTO ACME LTDA",
		ExternalID:     "bb-1",
		MatchStatus:    bank.MatchStatusAmbiguous,
	}
	candidates := []uuid.UUID{uuid.New(), uuid.New()}
	r := newTestRouter(&fakeService{
		ambiguous: []*bank.AmbiguousTransaction{{Transaction: txn, CandidateIDs: candidates}},
	})

	w := doRequest(t, r, http.MethodGet, "/api/v1/ambiguous", uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []AmbiguousTransactionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, txn.ID, resp.Data[0].ID)
	assert.Equal(t, "-1500.00", resp.Data[0].Amount)
	assert.Equal(t, candidates, resp.Data[0].CandidateIDs)
}

func TestOperatorHandler_ConfirmMatch(t *testing.T) {
	tenantID := uuid.NewString()
	request := ConfirmMatchRequest{
		BankTransactionID: uuid.New(),
		EntryIDs:          []uuid.UUID{uuid.New()},
		Reviewer:          "ana.silva",
	}

	t.Run("created on success", func(t *testing.T) {
		reviewer := "ana.silva"
		match := &reconciliation.Match{
			ID:                uuid.New(),
			BankTransactionID: request.BankTransactionID,
			EntryIDs:          request.EntryIDs,
			Confidence:        1.0,
			Rule:              reconciliation.RuleManual,
			Reviewer:          &reviewer,
			CreatedAt:         time.Now().UTC(),
		}
		r := newTestRouter(&fakeService{match: match})

		w := doRequest(t, r, http.MethodPost, "/api/v1/matches/confirm", tenantID, request)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp struct {
			Data MatchResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, match.ID, resp.Data.ID)
		assert.Equal(t, string(reconciliation.RuleManual), resp.Data.Rule)
		require.NotNil(t, resp.Data.Reviewer)
		assert.Equal(t, "ana.silva", *resp.Data.Reviewer)
	})

	t.Run("unknown transaction is 404", func(t *testing.T) {
		r := newTestRouter(&fakeService{confirmErr: bank.ErrTransactionNotFound{ID: request.BankTransactionID}})
		w := doRequest(t, r, http.MethodPost, "/api/v1/matches/confirm", tenantID, request)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("already matched transaction is 409", func(t *testing.T) {
		r := newTestRouter(&fakeService{confirmErr: service.ErrNotReviewable})
		w := doRequest(t, r, http.MethodPost, "/api/v1/matches/confirm", tenantID, request)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("claimed entry is 409", func(t *testing.T) {
		r := newTestRouter(&fakeService{confirmErr: service.ErrEntryNotMatchable})
		w := doRequest(t, r, http.MethodPost, "/api/v1/matches/confirm", tenantID, request)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing fields are 400 before the service runs", func(t *testing.T) {
		r := newTestRouter(&fakeService{})
		w := doRequest(t, r, http.MethodPost, "/api/v1/matches/confirm", tenantID,
			map[string]interface{}{"entry_ids": []string{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOperatorHandler_Jobs(t *testing.T) {
	t.Run("lists parked jobs", func(t *testing.T) {
		job, err := syncjob.NewJob(syncjob.LaneDominioSync, uuid.New(), "", map[string]string{})
		require.NoError(t, err)
		job.Status = syncjob.StatusFailedPermanent
		job.Attempts = 5
		job.LastError = "dominio sync conflict"

		r := newTestRouter(&fakeService{jobs: []*syncjob.Job{job}})
		w := doRequest(t, r, http.MethodGet, "/api/v1/jobs/failed", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data []JobResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, job.ID, resp.Data[0].ID)
		assert.Equal(t, string(syncjob.StatusFailedPermanent), resp.Data[0].Status)
		assert.Equal(t, 5, resp.Data[0].Attempts)
	})

	t.Run("requeue succeeds with no content", func(t *testing.T) {
		r := newTestRouter(&fakeService{})
		w := doRequest(t, r, http.MethodPost, "/api/v1/jobs/"+uuid.NewString()+"/requeue", "", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("requeue of unknown job is 404", func(t *testing.T) {
		r := newTestRouter(&fakeService{requeueErr: syncjob.ErrJobNotFound{ID: uuid.New()}})
		w := doRequest(t, r, http.MethodPost, "/api/v1/jobs/"+uuid.NewString()+"/requeue", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("cancel of a running job is 409", func(t *testing.T) {
		r := newTestRouter(&fakeService{cancelErr: syncjob.ErrNotCancellable{ID: uuid.New(), Status: syncjob.StatusRunning}})
		w := doRequest(t, r, http.MethodDelete, "/api/v1/jobs/"+uuid.NewString(), "", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("malformed job id is 400", func(t *testing.T) {
		r := newTestRouter(&fakeService{})
		w := doRequest(t, r, http.MethodDelete, "/api/v1/jobs/not-a-uuid", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
