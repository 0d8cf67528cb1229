package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Severity grades a rule outcome.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
)

// RuleResult is the output of a single rule evaluation.
// Results are values; a rule produces exactly one per transaction.
type RuleResult struct {
	RuleName       string          `json:"ruleName"`
	RuleVersion    string          `json:"ruleVersion"`
	Triggered      bool            `json:"triggered"`
	Score          decimal.Decimal `json:"score"`
	Severity       Severity        `json:"severity"`
	Reason         string          `json:"reason"`
	Evidence       map[string]any  `json:"evidence,omitempty"`
	Recommendation string          `json:"recommendation,omitempty"`
	Duration       time.Duration   `json:"durationNs"`
	EvaluatedAt    time.Time       `json:"evaluatedAt"`
}

// IsHighSeverity reports whether the result is HIGH or CRITICAL.
func (r RuleResult) IsHighSeverity() bool {
	return r.Severity == SeverityHigh || r.Severity == SeverityCritical
}

// Failed reports whether the rule errored during evaluation.
func (r RuleResult) Failed() bool {
	return r.Severity == SeverityError
}
