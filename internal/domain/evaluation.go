package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FraudDetectionResult is the complete outcome of processing one transaction.
// RuleResults keeps rule registration order.
type FraudDetectionResult struct {
	TransactionID   string          `json:"transactionId"`
	ProcessedAt     time.Time       `json:"processedAt"`
	RuleResults     []RuleResult    `json:"ruleResults"`
	RiskScore       decimal.Decimal `json:"riskScore"`
	ConfidenceScore decimal.Decimal `json:"confidenceScore"`
	Decision        Decision        `json:"decision"`
	AlertID         string          `json:"alertId,omitempty"`
	ProcessingTime  time.Duration   `json:"processingTimeNs"`
}

// TriggeredResults returns the triggered rule results in evaluation order.
func (r *FraudDetectionResult) TriggeredResults() []RuleResult {
	var out []RuleResult
	for _, rr := range r.RuleResults {
		if rr.Triggered {
			out = append(out, rr)
		}
	}
	return out
}

// TriggeredRuleNames returns the names of the triggered rules.
func (r *FraudDetectionResult) TriggeredRuleNames() []string {
	var names []string
	for _, rr := range r.RuleResults {
		if rr.Triggered {
			names = append(names, rr.RuleName)
		}
	}
	return names
}

// HighestScore returns the largest rule score, zero when there are no results.
func (r *FraudDetectionResult) HighestScore() decimal.Decimal {
	highest := decimal.Zero
	for _, rr := range r.RuleResults {
		if rr.Score.GreaterThan(highest) {
			highest = rr.Score
		}
	}
	return highest
}

// Summary describes the triggered indicators in one line.
func (r *FraudDetectionResult) Summary() string {
	triggered := r.TriggeredResults()
	reasons := make([]string, 0, len(triggered))
	for _, rr := range triggered {
		reasons = append(reasons, rr.Reason)
	}
	return fmt.Sprintf("Detected %d fraud indicators: %s", len(triggered), strings.Join(reasons, "; "))
}

// IsRejected reports whether the final decision rejected the transaction.
func (r *FraudDetectionResult) IsRejected() bool {
	return r.Decision.IsRejected()
}

// RequiresReview reports whether the final decision routed to manual review.
func (r *FraudDetectionResult) RequiresReview() bool {
	return r.Decision.RequiresReview()
}
