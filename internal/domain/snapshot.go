package domain

import "time"

// RiskLevel is the externally assigned risk rating of an account or customer.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
	RiskUnknown  RiskLevel = "UNKNOWN"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive          AccountStatus = "ACTIVE"
	AccountInactive        AccountStatus = "INACTIVE"
	AccountSuspended       AccountStatus = "SUSPENDED"
	AccountClosed          AccountStatus = "CLOSED"
	AccountFrozen          AccountStatus = "FROZEN"
	AccountBlocked         AccountStatus = "BLOCKED"
	AccountUnderReview     AccountStatus = "UNDER_REVIEW"
	AccountPendingApproval AccountStatus = "PENDING_APPROVAL"
	AccountDormant         AccountStatus = "DORMANT"
	AccountRestricted      AccountStatus = "RESTRICTED"
)

// CustomerStatus is the lifecycle state of a customer.
type CustomerStatus string

const (
	CustomerActive              CustomerStatus = "ACTIVE"
	CustomerInactive            CustomerStatus = "INACTIVE"
	CustomerSuspended           CustomerStatus = "SUSPENDED"
	CustomerClosed              CustomerStatus = "CLOSED"
	CustomerPendingVerification CustomerStatus = "PENDING_VERIFICATION"
	CustomerBlocked             CustomerStatus = "BLOCKED"
	CustomerUnderReview         CustomerStatus = "UNDER_REVIEW"
	CustomerFrozen              CustomerStatus = "FROZEN"
)

// AccountSnapshot is the read-only risk view of an account.
type AccountSnapshot struct {
	AccountID            string        `json:"accountId"`
	CustomerID           string        `json:"customerId"`
	Status               AccountStatus `json:"status"`
	RiskLevel            RiskLevel     `json:"riskLevel"`
	FlaggedForMonitoring bool          `json:"flaggedForMonitoring"`
	OpenedAt             time.Time     `json:"openedAt"`
}

// CustomerSnapshot is the read-only risk view of a customer.
// A zero LastLogin means no login was ever recorded.
type CustomerSnapshot struct {
	CustomerID    string         `json:"customerId"`
	Status        CustomerStatus `json:"status"`
	RiskLevel     RiskLevel      `json:"riskLevel"`
	CustomerSince time.Time      `json:"customerSince"`
	LastLogin     time.Time      `json:"lastLogin"`
}
