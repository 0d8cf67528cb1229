package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecisionType is the verdict rendered for a transaction.
type DecisionType string

const (
	DecisionApproved       DecisionType = "APPROVED"
	DecisionRejected       DecisionType = "REJECTED"
	DecisionRequiresReview DecisionType = "REQUIRES_REVIEW"
)

// Recommended actions attached to decisions.
const (
	ActionProcessTransaction = "PROCESS_TRANSACTION"
	ActionBlockTransaction   = "BLOCK_TRANSACTION"
	ActionManualReview       = "MANUAL_REVIEW"
)

// DeciderSystem identifies automated decisions.
const DeciderSystem = "SYSTEM"

// Decision is the outcome of the decision engine.
type Decision struct {
	Type                DecisionType    `json:"type"`
	Reason              string          `json:"reason"`
	Confidence          decimal.Decimal `json:"confidence"`
	DecidedAt           time.Time       `json:"decidedAt"`
	DecidedBy           string          `json:"decidedBy"`
	ContributingFactors []string        `json:"contributingFactors,omitempty"`
	RecommendedAction   string          `json:"recommendedAction"`
	RequiresEscalation  bool            `json:"requiresEscalation"`
	EscalationReason    string          `json:"escalationReason,omitempty"`
}

// IsApproved reports whether the transaction may proceed.
func (d Decision) IsApproved() bool { return d.Type == DecisionApproved }

// IsRejected reports whether the transaction must be blocked.
func (d Decision) IsRejected() bool { return d.Type == DecisionRejected }

// RequiresReview reports whether the transaction goes to manual review.
func (d Decision) RequiresReview() bool { return d.Type == DecisionRequiresReview }
