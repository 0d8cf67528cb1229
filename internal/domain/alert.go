package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertStatus is the investigation state of a fraud alert.
type AlertStatus string

const (
	AlertActive             AlertStatus = "ACTIVE"
	AlertUnderInvestigation AlertStatus = "UNDER_INVESTIGATION"
	AlertAssigned           AlertStatus = "ASSIGNED"
	AlertEscalated          AlertStatus = "ESCALATED"
	AlertOnHold             AlertStatus = "ON_HOLD"
	AlertResolved           AlertStatus = "RESOLVED"
	AlertDismissed          AlertStatus = "DISMISSED"
	AlertClosed             AlertStatus = "CLOSED"
)

// IsTerminal reports whether no further investigation happens in this state.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertResolved || s == AlertDismissed || s == AlertClosed
}

// FraudAlert is raised for rejected or review-bound transactions.
type FraudAlert struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transactionId"`
	AccountID       string          `json:"accountId"`
	RuleType        string          `json:"ruleType"`
	RuleDescription string          `json:"ruleDescription"`
	Severity        Severity        `json:"severity"`
	Status          AlertStatus     `json:"status"`
	RiskScore       decimal.Decimal `json:"riskScore"`
	ConfidenceScore decimal.Decimal `json:"confidenceScore"`
	AssignedTo      string          `json:"assignedTo,omitempty"`
	ResolvedBy      string          `json:"resolvedBy,omitempty"`
	ResolutionNotes string          `json:"resolutionNotes,omitempty"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// AlertResolution is the command payload for resolving an alert.
type AlertResolution struct {
	AlertID    string `json:"alertId"`
	ResolvedBy string `json:"resolvedBy"`
	Notes      string `json:"notes"`
}
