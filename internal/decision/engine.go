// Package decision turns a risk score and rule evidence into a verdict.
package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Fixed decision text.
const (
	ApproveReason    = "Risk score below threshold and no critical fraud indicators detected"
	EscalationReason = "High risk factors detected requiring senior review"
)

var (
	// approvedConfidence is reported for every approval.
	approvedConfidence = decimal.NewFromInt(95)

	confidenceStart = decimal.NewFromInt(50)
	confidenceCap   = decimal.NewFromInt(95)

	scoreBand80 = decimal.NewFromInt(80)
	scoreBand60 = decimal.NewFromInt(60)
	scoreBand40 = decimal.NewFromInt(40)

	// reviewIndicatorScore is the score at which two triggered rules force review.
	reviewIndicatorScore = decimal.NewFromInt(50)
)

// Engine renders decisions. It holds only read-only configuration and is
// safe for concurrent use.
type Engine struct {
	autoApprove     decimal.Decimal
	manualReview    decimal.Decimal
	autoReject      decimal.Decimal
	escalation      decimal.Decimal
	multiHighReject decimal.Decimal
	critical        map[string]bool

	now    func() time.Time
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the decision timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a decision engine.
func NewEngine(cfg domain.DecisionConfig, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	critical := make(map[string]bool, len(cfg.CriticalRules))
	for _, name := range cfg.CriticalRules {
		critical[name] = true
	}
	e := &Engine{
		autoApprove:     decimal.NewFromFloat(cfg.AutoApproveThreshold),
		manualReview:    decimal.NewFromFloat(cfg.ManualReviewThreshold),
		autoReject:      decimal.NewFromFloat(cfg.AutoRejectThreshold),
		escalation:      decimal.NewFromFloat(cfg.HighConfidenceThreshold),
		multiHighReject: decimal.NewFromFloat(cfg.MultiHighSeverityReject),
		critical:        critical,
		now:             time.Now,
		logger:          logger.Named("decision"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// signals are the booleans every branch of the decision reads.
type signals struct {
	triggered         []domain.RuleResult
	criticalViolation bool
	multiHighSeverity bool
	anyHighSeverity   bool
}

func (e *Engine) signalsFor(results []domain.RuleResult) signals {
	var s signals
	high := 0
	for _, r := range results {
		if !r.Triggered {
			continue
		}
		s.triggered = append(s.triggered, r)
		if e.critical[r.RuleName] {
			s.criticalViolation = true
		}
		if r.IsHighSeverity() {
			high++
		}
	}
	s.anyHighSeverity = high > 0
	s.multiHighSeverity = high >= 2
	return s
}

// Decide renders the decision. The first matching branch wins: reject,
// then review, then approve.
func (e *Engine) Decide(score decimal.Decimal, results []domain.RuleResult) domain.Decision {
	s := e.signalsFor(results)
	factors := e.contributingFactors(score, s)

	d := domain.Decision{
		DecidedAt:           e.now().UTC(),
		DecidedBy:           domain.DeciderSystem,
		ContributingFactors: factors,
	}

	switch {
	case e.shouldReject(score, s):
		d.Type = domain.DecisionRejected
		d.Reason = e.rejectReason(score, s)
		d.RecommendedAction = domain.ActionBlockTransaction
		d.Confidence = e.confidence(score, s)

	case e.shouldReview(score, s):
		d.Type = domain.DecisionRequiresReview
		d.Reason = e.reviewReason(score, s)
		d.RecommendedAction = domain.ActionManualReview
		d.Confidence = e.confidence(score, s)
		if e.shouldEscalate(score, s) {
			d.RequiresEscalation = true
			d.EscalationReason = EscalationReason
		}

	default:
		d.Type = domain.DecisionApproved
		d.Reason = ApproveReason
		d.RecommendedAction = domain.ActionProcessTransaction
		d.Confidence = approvedConfidence
	}

	e.logger.Debug("decision rendered",
		zap.String("decision", string(d.Type)),
		zap.String("score", score.StringFixed(2)),
		zap.Int("triggered", len(s.triggered)),
		zap.Bool("critical", s.criticalViolation),
	)
	return d
}

// Confidence is the engine's confidence in a reject or review verdict.
// It never decreases as the score or the number of triggered rules grows,
// and never exceeds 95.
func (e *Engine) Confidence(score decimal.Decimal, results []domain.RuleResult) decimal.Decimal {
	return e.confidence(score, e.signalsFor(results))
}

func (e *Engine) confidence(score decimal.Decimal, s signals) decimal.Decimal {
	c := confidenceStart

	switch {
	case score.GreaterThanOrEqual(scoreBand80):
		c = c.Add(decimal.NewFromInt(30))
	case score.GreaterThanOrEqual(scoreBand60):
		c = c.Add(decimal.NewFromInt(20))
	case score.GreaterThanOrEqual(scoreBand40):
		c = c.Add(decimal.NewFromInt(10))
	}

	switch n := len(s.triggered); {
	case n >= 3:
		c = c.Add(decimal.NewFromInt(15))
	case n == 2:
		c = c.Add(decimal.NewFromInt(10))
	case n == 1:
		c = c.Add(decimal.NewFromInt(5))
	}

	if s.criticalViolation {
		c = c.Add(decimal.NewFromInt(10))
	}

	return decimal.Min(c, confidenceCap)
}

func (e *Engine) shouldReject(score decimal.Decimal, s signals) bool {
	return score.GreaterThanOrEqual(e.autoReject) ||
		(s.criticalViolation && score.GreaterThanOrEqual(e.manualReview)) ||
		(s.multiHighSeverity && score.GreaterThanOrEqual(e.multiHighReject))
}

func (e *Engine) shouldReview(score decimal.Decimal, s signals) bool {
	return score.GreaterThanOrEqual(e.manualReview) ||
		s.criticalViolation ||
		(score.GreaterThanOrEqual(reviewIndicatorScore) && len(s.triggered) >= 2) ||
		s.anyHighSeverity
}

func (e *Engine) shouldEscalate(score decimal.Decimal, s signals) bool {
	return score.GreaterThanOrEqual(e.escalation) || s.criticalViolation || s.multiHighSeverity
}

func (e *Engine) rejectReason(score decimal.Decimal, s signals) string {
	var b strings.Builder
	b.WriteString("Transaction rejected due to: ")
	if score.GreaterThanOrEqual(e.autoReject) {
		fmt.Fprintf(&b, "Very high risk score (%s); ", score.StringFixed(2))
	}
	if s.criticalViolation {
		b.WriteString("Critical fraud rule violation; ")
	}
	if s.multiHighSeverity {
		b.WriteString("Multiple high-severity fraud indicators; ")
	}
	return strings.TrimSpace(b.String())
}

func (e *Engine) reviewReason(score decimal.Decimal, s signals) string {
	var b strings.Builder
	b.WriteString("Manual review required due to: ")
	if score.GreaterThanOrEqual(e.manualReview) {
		fmt.Fprintf(&b, "High risk score (%s); ", score.StringFixed(2))
	}
	if s.criticalViolation {
		b.WriteString("Critical fraud rule triggered; ")
	}
	if len(s.triggered) >= 2 {
		fmt.Fprintf(&b, "Multiple fraud indicators (%d); ", len(s.triggered))
	}
	if s.anyHighSeverity {
		b.WriteString("High-severity fraud indicator; ")
	}
	return strings.TrimSpace(b.String())
}

func (e *Engine) contributingFactors(score decimal.Decimal, s signals) []string {
	factors := []string{"Risk Score: " + score.StringFixed(2)}
	if s.criticalViolation {
		factors = append(factors, "Critical Rule Violation")
	}
	if s.multiHighSeverity {
		factors = append(factors, "Multiple High-Severity Rules")
	}
	for _, r := range s.triggered {
		factors = append(factors, fmt.Sprintf("%s (Score: %s, Severity: %s)", r.RuleName, r.Score.StringFixed(2), r.Severity))
	}
	return factors
}

// AutoApproveThreshold is the score under which approvals need no further signal.
func (e *Engine) AutoApproveThreshold() decimal.Decimal {
	return e.autoApprove
}
