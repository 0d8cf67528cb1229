// Package fraud orchestrates transaction processing: persistence, rule
// evaluation, scoring, decisioning, alerting and audit.
package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Processing stages reported in ProcessingError.
const (
	StageSaveTransaction = "save_transaction"
	StageCreateAlert     = "create_alert"
	StageUpdateStatus    = "update_status"
	StagePipeline        = "pipeline"
)

// performedBySystem attributes audit entries written by the pipeline.
const performedBySystem = "FRAUD_DETECTION_SYSTEM"

var (
	alertCritical = decimal.NewFromInt(90)
	alertHigh     = decimal.NewFromInt(70)
	alertMedium   = decimal.NewFromInt(50)

	// highRiskAlertScore is the floor for GetHighRiskAlerts.
	highRiskAlertScore = decimal.NewFromInt(70)
)

var highRiskStatuses = []domain.AlertStatus{domain.AlertActive, domain.AlertEscalated}

// Store is the persistence the service needs.
type Store interface {
	domain.TransactionStore
	domain.AlertStore
	domain.AuditStore
}

// RuleEvaluator runs every registered rule against a transaction.
type RuleEvaluator interface {
	EvaluateAll(ctx context.Context, tx *domain.Transaction) []domain.RuleResult
}

// Scorer computes the risk score breakdown.
type Scorer interface {
	Breakdown(ctx context.Context, tx *domain.Transaction, results []domain.RuleResult) scoring.Breakdown
}

// Decider renders decisions.
type Decider interface {
	Decide(score decimal.Decimal, results []domain.RuleResult) domain.Decision
}

// Recorder observes pipeline outcomes.
type Recorder interface {
	RecordDecision(decision domain.DecisionType, score decimal.Decimal, elapsed time.Duration)
	RecordAlert(severity domain.Severity)
	RecordFailure(stage string)
}

// Report is the full outcome of processing a transaction.
type Report struct {
	Result    *domain.FraudDetectionResult `json:"result"`
	Breakdown scoring.Breakdown            `json:"breakdown"`
	Metrics   decision.Metrics             `json:"metrics"`
}

// DecisionEvent is published after every decision.
type DecisionEvent struct {
	TransactionID string              `json:"transactionId"`
	AccountID     string              `json:"accountId"`
	Decision      domain.DecisionType `json:"decision"`
	RiskScore     decimal.Decimal     `json:"riskScore"`
	Confidence    decimal.Decimal     `json:"confidence"`
	AlertID       string              `json:"alertId,omitempty"`
	DecidedAt     time.Time           `json:"decidedAt"`
}

// Service is the fraud detection orchestrator.
type Service struct {
	store   Store
	rules   RuleEvaluator
	scorer  Scorer
	decider Decider

	bus     domain.EventBus
	metrics Recorder
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBus publishes decision and alert events to bus.
func WithBus(bus domain.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithMetrics installs a metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// NewService creates the orchestrator.
func NewService(store Store, rules RuleEvaluator, scorer Scorer, decider Decider, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:   store,
		rules:   rules,
		scorer:  scorer,
		decider: decider,
		logger:  logger.Named("fraud"),
		tracer:  otel.Tracer("kestrel/fraud"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessTransaction runs the full pipeline and returns the detection result.
func (s *Service) ProcessTransaction(ctx context.Context, tx *domain.Transaction) (*domain.FraudDetectionResult, error) {
	report, err := s.Process(ctx, tx)
	if err != nil {
		return nil, err
	}
	return report.Result, nil
}

// Process runs the full pipeline and returns the result with its score
// breakdown and rule metrics. The caller's transaction is never modified.
// Every failure is returned as a *domain.ProcessingError.
func (s *Service) Process(ctx context.Context, in *domain.Transaction) (report *Report, err error) {
	if in == nil {
		return nil, &domain.ProcessingError{Stage: StagePipeline, Err: fmt.Errorf("%w: transaction is required", domain.ErrInvalidInput)}
	}

	start := s.now()
	tx := *in
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusPending
	}

	ctx, span := s.tracer.Start(ctx, "fraud.Process",
		trace.WithAttributes(
			attribute.String("transaction.id", tx.ID),
			attribute.String("account.id", tx.AccountID),
		),
	)
	defer span.End()

	log := s.logger.With(zap.String("transaction_id", tx.ID), zap.String("account_id", tx.AccountID))

	stage := StagePipeline
	defer func() {
		if p := recover(); p != nil {
			err = s.fail(ctx, log, &tx, stage, fmt.Errorf("panic: %v", p))
			report = nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	stage = StageSaveTransaction
	if err := s.store.SaveTransaction(ctx, &tx); err != nil {
		return nil, s.fail(ctx, log, &tx, stage, err)
	}
	s.audit(ctx, log, &domain.AuditLog{
		TransactionID: tx.ID,
		Action:        domain.AuditDetectionStarted,
		Details:       fmt.Sprintf("Fraud detection started for transaction %s", tx.ID),
		Severity:      domain.AuditInfo,
	})

	stage = StagePipeline
	results := s.rules.EvaluateAll(ctx, &tx)
	breakdown := s.scorer.Breakdown(ctx, &tx, results)
	d := s.decider.Decide(breakdown.TotalScore, results)

	result := &domain.FraudDetectionResult{
		TransactionID:   tx.ID,
		ProcessedAt:     s.now().UTC(),
		RuleResults:     results,
		RiskScore:       breakdown.TotalScore,
		ConfidenceScore: d.Confidence,
		Decision:        d,
	}

	if d.IsRejected() || d.RequiresReview() {
		stage = StageCreateAlert
		alert, err := s.createAlert(ctx, &tx, result)
		if err != nil {
			return nil, s.fail(ctx, log, &tx, stage, err)
		}
		result.AlertID = alert.ID
	}

	stage = StageUpdateStatus
	tx.Status = statusFor(d.Type)
	tx.UpdatedAt = s.now().UTC()
	if err := s.store.SaveTransaction(ctx, &tx); err != nil {
		return nil, s.fail(ctx, log, &tx, stage, err)
	}

	result.ProcessingTime = s.now().Sub(start)

	s.audit(ctx, log, &domain.AuditLog{
		TransactionID: tx.ID,
		AlertID:       result.AlertID,
		Action:        domain.AuditDetectionCompleted,
		Details:       fmt.Sprintf("Fraud detection completed. Decision: %s, Risk Score: %s", d.Type, result.RiskScore.StringFixed(2)),
		Severity:      domain.AuditInfo,
	})

	s.publish(ctx, log, domain.TopicDecisionMade, DecisionEvent{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Decision:      d.Type,
		RiskScore:     result.RiskScore,
		Confidence:    d.Confidence,
		AlertID:       result.AlertID,
		DecidedAt:     d.DecidedAt,
	})

	if s.metrics != nil {
		s.metrics.RecordDecision(d.Type, result.RiskScore, result.ProcessingTime)
	}

	span.SetAttributes(
		attribute.String("decision", string(d.Type)),
		attribute.String("risk.score", result.RiskScore.StringFixed(2)),
	)
	log.Info("transaction processed",
		zap.String("decision", string(d.Type)),
		zap.String("risk_score", result.RiskScore.StringFixed(2)),
		zap.Int("triggered_rules", len(result.TriggeredResults())),
		zap.Duration("elapsed", result.ProcessingTime),
	)

	return &Report{
		Result:    result,
		Breakdown: breakdown,
		Metrics:   decision.Summarize(results),
	}, nil
}

func (s *Service) createAlert(ctx context.Context, tx *domain.Transaction, result *domain.FraudDetectionResult) (*domain.FraudAlert, error) {
	now := s.now().UTC()
	alert := &domain.FraudAlert{
		ID:              uuid.New().String(),
		TransactionID:   tx.ID,
		AccountID:       tx.AccountID,
		RuleType:        strings.Join(result.TriggeredRuleNames(), ", "),
		RuleDescription: result.Summary(),
		Severity:        AlertSeverity(result.RiskScore),
		Status:          domain.AlertActive,
		RiskScore:       result.RiskScore,
		ConfidenceScore: result.ConfidenceScore,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}

	log := s.logger.With(zap.String("transaction_id", tx.ID), zap.String("alert_id", alert.ID))
	s.audit(ctx, log, &domain.AuditLog{
		TransactionID: tx.ID,
		AlertID:       alert.ID,
		Action:        domain.AuditAlertCreated,
		Details:       fmt.Sprintf("Fraud alert created with severity %s and risk score %s", alert.Severity, alert.RiskScore.StringFixed(2)),
		Severity:      domain.AuditWarning,
	})
	s.publish(ctx, log, domain.TopicAlertCreated, alert)
	if s.metrics != nil {
		s.metrics.RecordAlert(alert.Severity)
	}
	return alert, nil
}

// fail records the failure and wraps it in a ProcessingError.
func (s *Service) fail(ctx context.Context, log *zap.Logger, tx *domain.Transaction, stage string, cause error) error {
	log.Error("fraud detection failed", zap.String("stage", stage), zap.Error(cause))
	s.audit(ctx, log, &domain.AuditLog{
		TransactionID: tx.ID,
		Action:        domain.AuditDetectionError,
		Details:       fmt.Sprintf("Fraud detection failed at %s: %v", stage, cause),
		Severity:      domain.AuditError,
	})
	if s.metrics != nil {
		s.metrics.RecordFailure(stage)
	}
	return &domain.ProcessingError{TransactionID: tx.ID, Stage: stage, Err: cause}
}

// audit appends an entry. Audit failures are logged and never fail the
// pipeline.
func (s *Service) audit(ctx context.Context, log *zap.Logger, entry *domain.AuditLog) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = s.now().UTC()
	if entry.PerformedBy == "" {
		entry.PerformedBy = performedBySystem
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		log.Warn("failed to write audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}

// publish emits an event when a bus is configured. Delivery is best effort.
func (s *Service) publish(ctx context.Context, log *zap.Logger, topic string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Warn("failed to encode event", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		log.Warn("failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}

// GetTransaction returns a stored transaction.
func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// GetActiveAlertsForAccount returns the account's alerts that are still
// under investigation, newest first.
func (s *Service) GetActiveAlertsForAccount(ctx context.Context, accountID string) ([]*domain.FraudAlert, error) {
	alerts, err := s.store.ListAlertsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list alerts for account %s: %w", accountID, err)
	}
	active := make([]*domain.FraudAlert, 0, len(alerts))
	for _, a := range alerts {
		if !a.Status.IsTerminal() {
			active = append(active, a)
		}
	}
	return active, nil
}

// GetHighRiskAlerts returns active or escalated alerts scoring 70 or more,
// highest risk first.
func (s *Service) GetHighRiskAlerts(ctx context.Context) ([]*domain.FraudAlert, error) {
	alerts, err := s.store.ListAlertsByRisk(ctx, highRiskAlertScore, highRiskStatuses)
	if err != nil {
		return nil, fmt.Errorf("list high-risk alerts: %w", err)
	}
	return alerts, nil
}

// ResolveAlert marks an alert resolved. Resolving an already resolved alert
// returns it unchanged; dismissed and closed alerts cannot be resolved.
func (s *Service) ResolveAlert(ctx context.Context, alertID, resolvedBy, notes string) (*domain.FraudAlert, error) {
	alert, err := s.store.GetAlert(ctx, alertID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlertNotFound, alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", alertID, err)
	}

	switch alert.Status {
	case domain.AlertResolved:
		return alert, nil
	case domain.AlertDismissed, domain.AlertClosed:
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrAlertClosed, alertID, alert.Status)
	}

	now := s.now().UTC()
	alert.Status = domain.AlertResolved
	alert.ResolvedBy = resolvedBy
	alert.ResolutionNotes = notes
	alert.ResolvedAt = &now
	alert.UpdatedAt = now
	if err := s.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("save alert %s: %w", alertID, err)
	}

	log := s.logger.With(zap.String("alert_id", alertID), zap.String("transaction_id", alert.TransactionID))
	s.audit(ctx, log, &domain.AuditLog{
		TransactionID: alert.TransactionID,
		AlertID:       alert.ID,
		Action:        domain.AuditAlertResolved,
		Details:       fmt.Sprintf("Fraud alert resolved by %s: %s", resolvedBy, notes),
		Severity:      domain.AuditInfo,
		PerformedBy:   resolvedBy,
	})
	s.publish(ctx, log, domain.TopicAlertResolved, alert)
	log.Info("fraud alert resolved", zap.String("resolved_by", resolvedBy))

	return alert, nil
}

// AlertSeverity grades an alert by its risk score.
func AlertSeverity(score decimal.Decimal) domain.Severity {
	switch {
	case score.GreaterThanOrEqual(alertCritical):
		return domain.SeverityCritical
	case score.GreaterThanOrEqual(alertHigh):
		return domain.SeverityHigh
	case score.GreaterThanOrEqual(alertMedium):
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// statusFor maps a decision onto the stored transaction status. Approved and
// review-bound transactions stay pending; rejected ones fail.
func statusFor(d domain.DecisionType) domain.TransactionStatus {
	if d == domain.DecisionRejected {
		return domain.TxStatusFailed
	}
	return domain.TxStatusPending
}
