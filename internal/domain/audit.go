package domain

import "time"

// Audit actions written by the fraud pipeline.
const (
	AuditDetectionStarted   = "FRAUD_DETECTION_STARTED"
	AuditDetectionCompleted = "FRAUD_DETECTION_COMPLETED"
	AuditDetectionError     = "FRAUD_DETECTION_ERROR"
	AuditAlertCreated       = "FRAUD_ALERT_CREATED"
	AuditAlertResolved      = "FRAUD_ALERT_RESOLVED"
)

// AuditSeverity grades an audit entry.
type AuditSeverity string

const (
	AuditInfo     AuditSeverity = "INFO"
	AuditWarning  AuditSeverity = "WARNING"
	AuditError    AuditSeverity = "ERROR"
	AuditCritical AuditSeverity = "CRITICAL"
	AuditDebug    AuditSeverity = "DEBUG"
)

// AuditLog is an append-only trail entry.
type AuditLog struct {
	ID            string        `json:"id"`
	TransactionID string        `json:"transactionId,omitempty"`
	AlertID       string        `json:"alertId,omitempty"`
	Action        string        `json:"action"`
	Details       string        `json:"details"`
	Severity      AuditSeverity `json:"severity"`
	PerformedBy   string        `json:"performedBy"`
	CreatedAt     time.Time     `json:"createdAt"`
}
