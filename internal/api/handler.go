package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/rules"
	"go.uber.org/zap"
)

// FraudService is the pipeline the handlers drive.
type FraudService interface {
	Process(ctx context.Context, tx *domain.Transaction) (*fraud.Report, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetActiveAlertsForAccount(ctx context.Context, accountID string) ([]*domain.FraudAlert, error)
	GetHighRiskAlerts(ctx context.Context) ([]*domain.FraudAlert, error)
	ResolveAlert(ctx context.Context, alertID, resolvedBy, notes string) (*domain.FraudAlert, error)
}

// RuleLister exposes the registered rules.
type RuleLister interface {
	Rules() []rules.Metadata
}

// Pinger is a health-checked dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for API handlers.
type Handler struct {
	fraud   FraudService
	rules   RuleLister
	checks  map[string]Pinger
	version string
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler creates a new API handler. checks are pinged by /health and
// /ready; nil entries are skipped.
func NewHandler(svc FraudService, ruleLister RuleLister, checks map[string]Pinger, version string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	active := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			active[name] = p
		}
	}
	return &Handler{
		fraud:   svc,
		rules:   ruleLister,
		checks:  active,
		version: version,
		logger:  logger.Named("api"),
		now:     time.Now,
	}
}

// ResolveRequest is the request body for POST /v1/alerts/{alertId}/resolve.
type ResolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
	Notes      string `json:"notes"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// ProcessTransaction handles POST /v1/transactions.
func (h *Handler) ProcessTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.fraud.Process(r.Context(), req.ToTransaction(h.now()))
	if err != nil {
		var perr *domain.ProcessingError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "fraud detection failed", Stage: perr.Stage})
			return
		}
		h.logger.Error("transaction processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "fraud detection failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetTransaction handles GET /v1/transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.fraud.GetTransaction(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get transaction", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get transaction")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListAccountAlerts handles GET /v1/accounts/{accountId}/alerts.
func (h *Handler) ListAccountAlerts(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	alerts, err := h.fraud.GetActiveAlertsForAccount(r.Context(), accountID)
	if err != nil {
		h.logger.Error("failed to list account alerts", zap.String("account_id", accountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ListHighRiskAlerts handles GET /v1/alerts/high-risk.
func (h *Handler) ListHighRiskAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.fraud.GetHighRiskAlerts(r.Context())
	if err != nil {
		h.logger.Error("failed to list high-risk alerts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ResolveAlert handles POST /v1/alerts/{alertId}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertId")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.ResolvedBy == "" {
		writeError(w, http.StatusBadRequest, "resolvedBy is required")
		return
	}

	alert, err := h.fraud.ResolveAlert(r.Context(), alertID, req.ResolvedBy, req.Notes)
	switch {
	case errors.Is(err, domain.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, "alert not found")
		return
	case errors.Is(err, domain.ErrAlertClosed):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to resolve alert", zap.String("alert_id", alertID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve alert")
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// ListRules handles GET /v1/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	var loaded []rules.Metadata
	if h.rules != nil {
		loaded = h.rules.Rules()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// Health returns server health status. It always answers 200; failing
// dependencies mark the status degraded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, components := h.runChecks(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready answers 503 while any dependency is failing.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status, components := h.runChecks(r.Context())
	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"ready":      code == http.StatusOK,
		"components": components,
	})
}

func (h *Handler) runChecks(ctx context.Context) (string, map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := "healthy"
	components := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}
	return status, components
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
