package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a transaction.
type TransactionType string

const (
	TxPurchase               TransactionType = "PURCHASE"
	TxWithdrawal             TransactionType = "WITHDRAWAL"
	TxDeposit                TransactionType = "DEPOSIT"
	TxTransfer               TransactionType = "TRANSFER"
	TxPayment                TransactionType = "PAYMENT"
	TxRefund                 TransactionType = "REFUND"
	TxAuthorization          TransactionType = "AUTHORIZATION"
	TxCashback               TransactionType = "CASHBACK"
	TxBillPayment            TransactionType = "BILL_PAYMENT"
	TxSubscription           TransactionType = "SUBSCRIPTION"
	TxRecurringPayment       TransactionType = "RECURRING_PAYMENT"
	TxInternationalTransfer  TransactionType = "INTERNATIONAL_TRANSFER"
	TxWireTransfer           TransactionType = "WIRE_TRANSFER"
	TxCheckDeposit           TransactionType = "CHECK_DEPOSIT"
	TxMobilePayment          TransactionType = "MOBILE_PAYMENT"
	TxOnlinePayment          TransactionType = "ONLINE_PAYMENT"
	TxATMWithdrawal          TransactionType = "ATM_WITHDRAWAL"
	TxPOSPurchase            TransactionType = "POS_PURCHASE"
	TxContactlessPayment     TransactionType = "CONTACTLESS_PAYMENT"
	TxCryptocurrencyExchange TransactionType = "CRYPTOCURRENCY_EXCHANGE"
	TxLoanPayment            TransactionType = "LOAN_PAYMENT"
	TxInterestPayment        TransactionType = "INTEREST_PAYMENT"
	TxFee                    TransactionType = "FEE"
	TxChargeback             TransactionType = "CHARGEBACK"
	TxAdjustment             TransactionType = "ADJUSTMENT"
)

// TransactionStatus is the processing state of a transaction.
type TransactionStatus string

const (
	TxStatusPending     TransactionStatus = "PENDING"
	TxStatusProcessing  TransactionStatus = "PROCESSING"
	TxStatusApproved    TransactionStatus = "APPROVED"
	TxStatusDeclined    TransactionStatus = "DECLINED"
	TxStatusBlocked     TransactionStatus = "BLOCKED"
	TxStatusUnderReview TransactionStatus = "UNDER_REVIEW"
	TxStatusFlagged     TransactionStatus = "FLAGGED"
	TxStatusCompleted   TransactionStatus = "COMPLETED"
	TxStatusCancelled   TransactionStatus = "CANCELLED"
	TxStatusFailed      TransactionStatus = "FAILED"
	TxStatusReversed    TransactionStatus = "REVERSED"
)

// Transaction represents an incoming transaction to be evaluated.
// The pipeline never mutates a Transaction it was handed; status updates
// are applied to a copy.
type Transaction struct {
	// Core identifiers
	ID        string `json:"id"`
	AccountID string `json:"accountId"`

	Type   TransactionType   `json:"type"`
	Status TransactionStatus `json:"status"`

	// Financial details
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	Timestamp time.Time `json:"timestamp"`

	// Free-text location, e.g. "New York, NY, USA"
	Location string `json:"location,omitempty"`

	// Channel identifiers
	IPAddress string `json:"ipAddress,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`

	// Merchant
	MerchantID       string `json:"merchantId,omitempty"`
	MerchantName     string `json:"merchantName,omitempty"`
	MerchantCategory string `json:"merchantCategory,omitempty"`

	Description string `json:"description,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TransactionRequest is the API request payload for transaction evaluation.
type TransactionRequest struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"accountId"`
	Type             TransactionType `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Timestamp        *time.Time      `json:"timestamp,omitempty"`
	Location         string          `json:"location,omitempty"`
	IPAddress        string          `json:"ipAddress,omitempty"`
	DeviceID         string          `json:"deviceId,omitempty"`
	UserAgent        string          `json:"userAgent,omitempty"`
	MerchantID       string          `json:"merchantId,omitempty"`
	MerchantName     string          `json:"merchantName,omitempty"`
	MerchantCategory string          `json:"merchantCategory,omitempty"`
	Description      string          `json:"description,omitempty"`
}

// Validate checks the fields the pipeline depends on.
func (r *TransactionRequest) Validate() error {
	switch {
	case r.AccountID == "":
		return invalid("accountId is required")
	case r.Currency == "":
		return invalid("currency is required")
	case r.Type == "":
		return invalid("type is required")
	case !r.Amount.IsPositive():
		return invalid("amount must be positive")
	}
	return nil
}

// ToTransaction converts a request to a Transaction domain object.
// A missing timestamp defaults to now.
func (r *TransactionRequest) ToTransaction(now time.Time) *Transaction {
	ts := now
	if r.Timestamp != nil {
		ts = *r.Timestamp
	}
	return &Transaction{
		ID:               r.ID,
		AccountID:        r.AccountID,
		Type:             r.Type,
		Status:           TxStatusPending,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Timestamp:        ts.UTC(),
		Location:         r.Location,
		IPAddress:        r.IPAddress,
		DeviceID:         r.DeviceID,
		UserAgent:        r.UserAgent,
		MerchantID:       r.MerchantID,
		MerchantName:     r.MerchantName,
		MerchantCategory: r.MerchantCategory,
		Description:      r.Description,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
}
