package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"raffler/application"
	"raffler/domain/entities"
	"raffler/domain/services"
	"raffler/domain/testhelpers"
	"raffler/infrastructure"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) Ingest(ctx context.Context, claims []entities.ClaimEvent) (*application.IngestResult, error) {
	args := m.Called(ctx, claims)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.IngestResult), args.Error(1)
}

type apiFixture struct {
	status       *testhelpers.MockStatusService
	orchestrator *testhelpers.MockDrawOrchestrator
	claims       *mockIngester
	server       *Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		status:       &testhelpers.MockStatusService{},
		orchestrator: &testhelpers.MockDrawOrchestrator{},
		claims:       &mockIngester{},
	}
	f.server = NewServer(f.status, f.orchestrator, f.claims, Options{
		Addr:          ":0",
		AdminToken:    "admin-token",
		WebhookSecret: "hook-secret",
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.server.Shutdown(ctx)
	})
	return f
}

func (f *apiFixture) do(req *http.Request) (*httptest.ResponseRecorder, Response) {
	rec := httptest.NewRecorder()
	f.server.Routes().ServeHTTP(rec, req)
	var body Response
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	rec, _ := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("status", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.status.On("GetStatus", mock.Anything).Return(&entities.SystemStatus{Schedule: "event-driven", DrawCount: 4}, nil)

		rec, body := f.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, body.Success)
		assert.Equal(t, "event-driven", body.Data.(map[string]any)["schedule"])
	})

	t.Run("status failure", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.status.On("GetStatus", mock.Anything).Return(nil, errors.New("db down"))

		rec, body := f.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, body.Success)
	})

	t.Run("winners passes limit and returns empty array", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.status.On("GetRecentWinners", mock.Anything, 25).Return(nil, nil)

		rec, _ := f.do(httptest.NewRequest(http.MethodGet, "/api/winners?limit=25", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"data":[]`)
	})

	t.Run("bad limit", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		rec, _ := f.do(httptest.NewRequest(http.MethodGet, "/api/phases?limit=ten", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("phases default limit", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.status.On("GetPhaseStream", mock.Anything, 0).Return([]*entities.PhaseEvent{{Phase: entities.PhaseDrawing}}, nil)

		rec, _ := f.do(httptest.NewRequest(http.MethodGet, "/api/phases", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("odds requires wallet", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		rec, _ := f.do(httptest.NewRequest(http.MethodGet, "/api/odds", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("odds source down", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.status.On("GetOdds", mock.Anything, "wallet-a").Return(nil, errors.New("timeout"))
		rec, _ := f.do(httptest.NewRequest(http.MethodGet, "/api/odds?wallet=wallet-a", nil))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("claim summary", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.status.On("GetClaimSummaries", mock.Anything).Return([]*entities.ClaimSummary{{Window: "7d", Count: 2}}, nil)
		rec, _ := f.do(httptest.NewRequest(http.MethodGet, "/api/claims/summary", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"window":"7d"`)
	})

	t.Run("wrong method", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		rec, _ := f.do(httptest.NewRequest(http.MethodPost, "/api/status", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestClaimWebhook(t *testing.T) {
	t.Parallel()

	payload := `[{"signature":"sig-1","timestamp":1700000000,"amount":1000000000}]`

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/api/webhook/claims", strings.NewReader(payload))
		req.Header.Set("X-Signature", infrastructure.SignWebhookBody("wrong", []byte(payload)))

		rec, _ := f.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		f.claims.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
	})

	t.Run("new claim starts a draw", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		var draws atomic.Int32
		f.claims.On("Ingest", mock.Anything, mock.MatchedBy(func(c []entities.ClaimEvent) bool {
			return len(c) == 1 && c[0].Signature == "sig-1" && c[0].Source == "webhook"
		})).Return(&application.IngestResult{Received: 1, Admitted: 1}, nil)
		f.orchestrator.On("RunDraw", mock.Anything, entities.TriggerClaim).
			Run(func(mock.Arguments) { draws.Add(1) }).
			Return(&entities.DrawOutcome{Result: entities.DrawResultCompleted}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/webhook/claims", strings.NewReader(payload))
		req.Header.Set("X-Signature", infrastructure.SignWebhookBody("hook-secret", []byte(payload)))

		rec, body := f.do(req)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.True(t, body.Success)
		assert.Eventually(t, func() bool { return draws.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("redelivery does not draw", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		f.claims.On("Ingest", mock.Anything, mock.Anything).Return(&application.IngestResult{Received: 1}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/webhook/claims", strings.NewReader(payload))
		req.Header.Set("X-Signature", infrastructure.SignWebhookBody("hook-secret", []byte(payload)))

		rec, _ := f.do(req)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		f.orchestrator.AssertNotCalled(t, "RunDraw", mock.Anything, mock.Anything)
	})

	t.Run("disabled without secret", func(t *testing.T) {
		t.Parallel()
		s := NewServer(&testhelpers.MockStatusService{}, &testhelpers.MockDrawOrchestrator{}, &mockIngester{}, Options{})
		rec := httptest.NewRecorder()
		s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook/claims", strings.NewReader(payload)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestAdminEndpoints(t *testing.T) {
	t.Parallel()

	authed := func(req *http.Request) *http.Request {
		req.Header.Set("Authorization", "Bearer admin-token")
		return req
	}

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		rec, _ := f.do(httptest.NewRequest(http.MethodPost, "/api/admin/force-draw", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("force draw is async", func(t *testing.T) {
		t.Parallel()
		f := newAPIFixture(t)
		release := make(chan struct{})
		f.orchestrator.On("RunDraw", mock.Anything, entities.TriggerForced).
			Run(func(mock.Arguments) { <-release }).
			Return(&entities.DrawOutcome{Result: entities.DrawResultSkipped, Reason: "lock_held"}, nil)

		rec, _ := f.do(authed(httptest.NewRequest(http.MethodPost, "/api/admin/force-draw", nil)))
		assert.Equal(t, http.StatusAccepted, rec.Code)
		close(release)
	})

	drawID := uuid.New()
	retryCases := []struct {
		name     string
		query    string
		result   *entities.RetryResult
		err      error
		wantCode int
	}{
		{name: "retried", query: drawID.String(), result: &entities.RetryResult{DrawID: drawID, Attempted: 1, Paid: 1}, wantCode: http.StatusOK},
		{name: "not found", query: drawID.String(), err: services.ErrDrawNotFound, wantCode: http.StatusNotFound},
		{name: "pending", query: drawID.String(), err: services.ErrDrawNotRetriable, wantCode: http.StatusConflict},
		{name: "in progress", query: drawID.String(), err: services.ErrDrawInProgress, wantCode: http.StatusConflict},
		{name: "unexpected", query: drawID.String(), err: errors.New("boom"), wantCode: http.StatusInternalServerError},
		{name: "bad id", query: "nope", wantCode: http.StatusBadRequest},
	}
	for _, tt := range retryCases {
		t.Run("retry payout "+tt.name, func(t *testing.T) {
			t.Parallel()
			f := newAPIFixture(t)
			if tt.wantCode != http.StatusBadRequest {
				f.orchestrator.On("RetryPayout", mock.Anything, drawID).Return(tt.result, tt.err)
			}
			rec, _ := f.do(authed(httptest.NewRequest(http.MethodPost, "/api/admin/retry-payout?drawId="+tt.query, nil)))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestServer_ShutdownWaitsForBackgroundDraw(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	var finished atomic.Bool
	f.orchestrator.On("RunDraw", mock.Anything, entities.TriggerForced).
		Run(func(mock.Arguments) {
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
		}).
		Return(&entities.DrawOutcome{Result: entities.DrawResultCompleted}, nil)

	f.server.runDrawAsync(entities.TriggerForced)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))
	assert.True(t, finished.Load())
}
