package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var txTime = time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

// createTestServer wires the real pipeline over an in-memory store.
func createTestServer(t *testing.T) (*Server, *repository.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	detection := domain.DefaultDetectionConfig()

	require.NoError(t, store.SaveAccount(ctx, &domain.AccountSnapshot{
		AccountID: "acc-001", CustomerID: "cust-001",
		Status: domain.AccountActive, RiskLevel: domain.RiskUnknown,
		OpenedAt: time.Now().AddDate(-3, 0, 0),
	}))
	require.NoError(t, store.SaveCustomer(ctx, &domain.CustomerSnapshot{
		CustomerID: "cust-001", Status: domain.CustomerActive, RiskLevel: domain.RiskUnknown,
		CustomerSince: time.Now().AddDate(-3, 0, 0), LastLogin: time.Now().Add(-time.Hour),
	}))

	engine := rules.NewEngine(detection.Engine, nil)
	require.NoError(t, engine.Register(
		rules.NewVelocityRule(detection.Velocity, velocity.NewService(store)),
		rules.NewGeoAnomalyRule(detection.Geo, store),
	))

	svc := fraud.NewService(store, engine,
		scoring.NewService(detection.Scoring, store, nil),
		decision.NewEngine(detection.Decision, nil),
		nil,
	)

	handler := NewHandler(svc, engine, map[string]Pinger{"repository": store}, "test-v1", nil)
	return NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, handler, nil, nil), store
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func purchase(id string, amount int64, at time.Time) domain.TransactionRequest {
	return domain.TransactionRequest{
		ID:        id,
		AccountID: "acc-001",
		Type:      domain.TxPurchase,
		Amount:    decimal.NewFromInt(amount),
		Currency:  "USD",
		Timestamp: &at,
		Location:  "New York, NY, USA",
	}
}

func TestProcessTransactionEndpoint(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("ApprovesOrdinaryPurchase", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/v1/transactions", purchase("tx-ok", 100, txTime))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var report fraud.Report
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
		assert.Equal(t, domain.DecisionApproved, report.Result.Decision.Type)
		assert.Equal(t, "20.00", report.Result.RiskScore.StringFixed(2))
		assert.True(t, report.Result.ConfidenceScore.Equal(decimal.NewFromInt(95)))
		assert.Equal(t, 2, report.Metrics.TotalRules)
		assert.Empty(t, report.Result.AlertID)
		assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
	})

	t.Run("RejectsInvalidRequest", func(t *testing.T) {
		req := purchase("tx-bad", 100, txTime)
		req.Amount = decimal.Zero
		rr := do(t, server, http.MethodPost, "/v1/transactions", req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("RejectsMalformedJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/transactions", bytes.NewBufferString("{"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("GetTransaction", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/v1/transactions/tx-ok", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var tx domain.Transaction
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tx))
		assert.Equal(t, domain.TxStatusPending, tx.Status)

		rr = do(t, server, http.MethodGet, "/v1/transactions/missing", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	server, store := createTestServer(t)
	ctx := context.Background()

	// Twelve prior purchases in the last hour push the velocity rule to 100.
	for i := 0; i < 12; i++ {
		require.NoError(t, store.SaveTransaction(ctx, &domain.Transaction{
			ID: fmt.Sprintf("prior-%d", i), AccountID: "acc-001", Type: domain.TxPurchase,
			Amount: decimal.NewFromInt(1000), Currency: "USD", Location: "New York, NY, USA",
			Timestamp: txTime.Add(-time.Duration(50-i) * time.Minute),
		}))
	}

	rr := do(t, server, http.MethodPost, "/v1/transactions", purchase("tx-burst", 1000, txTime))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var report fraud.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Equal(t, domain.DecisionRejected, report.Result.Decision.Type)
	require.NotEmpty(t, report.Result.AlertID)
	alertID := report.Result.AlertID

	t.Run("HighRiskAlerts", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/v1/alerts/high-risk", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var body struct {
			Alerts []domain.FraudAlert `json:"alerts"`
			Count  int                 `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, 1, body.Count)
		assert.Equal(t, alertID, body.Alerts[0].ID)
	})

	t.Run("AccountAlerts", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/v1/accounts/acc-001/alerts", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), alertID)
	})

	t.Run("ResolveRequiresResolver", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/v1/alerts/"+alertID+"/resolve", ResolveRequest{Notes: "x"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Resolve", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/v1/alerts/"+alertID+"/resolve", ResolveRequest{ResolvedBy: "analyst", Notes: "confirmed fraud"})
		require.Equal(t, http.StatusOK, rr.Code)

		var alert domain.FraudAlert
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alert))
		assert.Equal(t, domain.AlertResolved, alert.Status)
		assert.Equal(t, "analyst", alert.ResolvedBy)

		rr = do(t, server, http.MethodPost, "/v1/alerts/"+alertID+"/resolve", ResolveRequest{ResolvedBy: "someone-else"})
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alert))
		assert.Equal(t, "analyst", alert.ResolvedBy, "re-resolving keeps the first resolution")

		rr = do(t, server, http.MethodGet, "/v1/accounts/acc-001/alerts", nil)
		assert.NotContains(t, rr.Body.String(), alertID)
	})

	t.Run("ResolveUnknown", func(t *testing.T) {
		rr := do(t, server, http.MethodPost, "/v1/alerts/nope/resolve", ResolveRequest{ResolvedBy: "analyst"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("ResolveClosed", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, store.SaveAlert(ctx, &domain.FraudAlert{
			ID: "closed-1", TransactionID: "tx-x", AccountID: "acc-001",
			Status: domain.AlertClosed, RiskScore: decimal.NewFromInt(75), CreatedAt: now, UpdatedAt: now,
		}))
		rr := do(t, server, http.MethodPost, "/v1/alerts/closed-1/resolve", ResolveRequest{ResolvedBy: "analyst"})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

type failingService struct {
	FraudService
}

func (failingService) Process(ctx context.Context, tx *domain.Transaction) (*fraud.Report, error) {
	return nil, &domain.ProcessingError{TransactionID: tx.ID, Stage: fraud.StageSaveTransaction, Err: errors.New("disk full")}
}

func TestProcessingFailureReportsStage(t *testing.T) {
	handler := NewHandler(failingService{}, nil, nil, "test", nil)
	server := NewServer(domain.ServerConfig{}, handler, nil, nil)

	rr := do(t, server, http.MethodPost, "/v1/transactions", purchase("tx-1", 10, txTime))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, fraud.StageSaveTransaction, body.Stage)
	assert.NotContains(t, rr.Body.String(), "disk full")
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthEndpoints(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		server, _ := createTestServer(t)

		rr := do(t, server, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"healthy"`)
		assert.Contains(t, rr.Body.String(), "test-v1")

		rr = do(t, server, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Degraded", func(t *testing.T) {
		handler := NewHandler(nil, nil, map[string]Pinger{"cache": downPinger{}}, "v", nil)
		server := NewServer(domain.ServerConfig{}, handler, nil, nil)

		rr := do(t, server, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"degraded"`)

		rr = do(t, server, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestListRules(t *testing.T) {
	server, _ := createTestServer(t)

	rr := do(t, server, http.MethodGet, "/v1/rules", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), domain.RuleVelocity)
	assert.Contains(t, rr.Body.String(), domain.RuleGeoLocation)
}

func TestCORSPreflight(t *testing.T) {
	server, _ := createTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/transactions", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://console.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagation(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("EchoesCallerID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-123", rr.Header().Get(TraceIDHeader), "no tracer provider installed")
	})

	t.Run("GeneratesID", func(t *testing.T) {
		rr := do(t, server, http.MethodGet, "/health", nil)
		assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
	})
}
