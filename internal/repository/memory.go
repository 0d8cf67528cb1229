package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrClosed is returned by a closed MemoryStore.
var ErrClosed = errors.New("store is closed")

// MemoryStore implements domain.Repository in process memory.
// Values are copied on the way in and out so callers never share state
// with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction
	accounts     map[string]*domain.AccountSnapshot
	customers    map[string]*domain.CustomerSnapshot
	alerts       map[string]*domain.FraudAlert
	audit        []*domain.AuditLog
	closed       bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*domain.Transaction),
		accounts:     make(map[string]*domain.AccountSnapshot),
		customers:    make(map[string]*domain.CustomerSnapshot),
		alerts:       make(map[string]*domain.FraudAlert),
	}
}

// SaveTransaction inserts or replaces a transaction.
func (m *MemoryStore) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" || tx.AccountID == "" {
		return fmt.Errorf("%w: transaction id and account id are required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	c := *tx
	m.transactions[tx.ID] = &c
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (m *MemoryStore) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *tx
	return &c, nil
}

// LastTransactionBefore returns the account's latest transaction strictly
// before the given time.
func (m *MemoryStore) LastTransactionBefore(ctx context.Context, accountID string, before time.Time) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *domain.Transaction
	for _, tx := range m.transactions {
		if tx.AccountID != accountID || !tx.Timestamp.Before(before) {
			continue
		}
		if latest == nil || tx.Timestamp.After(latest.Timestamp) {
			latest = tx
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	c := *latest
	return &c, nil
}

// ListTransactions returns the account's transactions in [from, to], oldest first.
func (m *MemoryStore) ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Transaction
	for _, tx := range m.transactions {
		if tx.AccountID == accountID && inWindow(tx.Timestamp, from, to) {
			c := *tx
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ListLocations returns the distinct locations of the account in [from, to].
func (m *MemoryStore) ListLocations(ctx context.Context, accountID string, from, to time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, tx := range m.transactions {
		if tx.AccountID != accountID || tx.Location == "" || seen[tx.Location] || !inWindow(tx.Timestamp, from, to) {
			continue
		}
		seen[tx.Location] = true
		out = append(out, tx.Location)
	}
	sort.Strings(out)
	return out, nil
}

// SaveAccount inserts or replaces an account snapshot.
func (m *MemoryStore) SaveAccount(ctx context.Context, a *domain.AccountSnapshot) error {
	if a == nil || a.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.accounts[a.AccountID] = &c
	return nil
}

// GetAccount retrieves an account snapshot.
func (m *MemoryStore) GetAccount(ctx context.Context, accountID string) (*domain.AccountSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

// SaveCustomer inserts or replaces a customer snapshot.
func (m *MemoryStore) SaveCustomer(ctx context.Context, cust *domain.CustomerSnapshot) error {
	if cust == nil || cust.CustomerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cust
	m.customers[cust.CustomerID] = &c
	return nil
}

// GetCustomerByAccount retrieves the customer owning an account.
func (m *MemoryStore) GetCustomerByAccount(ctx context.Context, accountID string) (*domain.CustomerSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cust, ok := m.customers[a.CustomerID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *cust
	return &c, nil
}

// SaveAlert inserts or replaces a fraud alert.
func (m *MemoryStore) SaveAlert(ctx context.Context, alert *domain.FraudAlert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.alerts[alert.ID] = copyAlert(alert)
	return nil
}

// GetAlert retrieves a fraud alert by ID.
func (m *MemoryStore) GetAlert(ctx context.Context, alertID string) (*domain.FraudAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAlert(a), nil
}

// ListAlertsByAccount returns the account's alerts, newest first.
func (m *MemoryStore) ListAlertsByAccount(ctx context.Context, accountID string) ([]*domain.FraudAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.FraudAlert
	for _, a := range m.alerts {
		if a.AccountID == accountID {
			out = append(out, copyAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListAlertsByRisk returns alerts at or above minRisk in one of the given
// statuses, highest risk first.
func (m *MemoryStore) ListAlertsByRisk(ctx context.Context, minRisk decimal.Decimal, statuses []domain.AlertStatus) ([]*domain.FraudAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[domain.AlertStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []*domain.FraudAlert
	for _, a := range m.alerts {
		if wanted[a.Status] && a.RiskScore.GreaterThanOrEqual(minRisk) {
			out = append(out, copyAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RiskScore.Equal(out[j].RiskScore) {
			return out[i].RiskScore.GreaterThan(out[j].RiskScore)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// AppendAudit appends an audit entry.
func (m *MemoryStore) AppendAudit(ctx context.Context, entry *domain.AuditLog) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: audit id is required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	c := *entry
	m.audit = append(m.audit, &c)
	return nil
}

// ListAudit returns the audit trail of a transaction in append order.
func (m *MemoryStore) ListAudit(ctx context.Context, transactionID string) ([]*domain.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.AuditLog
	for _, e := range m.audit {
		if e.TransactionID == transactionID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// AuditActions returns the actions recorded for a transaction, in order.
func (m *MemoryStore) AuditActions(transactionID string) []string {
	entries, _ := m.ListAudit(context.Background(), transactionID)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

// Ping reports whether the store is open.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkOpen()
}

// Close marks the store closed; subsequent writes fail.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) checkOpen() error {
	if m.closed {
		return ErrClosed
	}
	return nil
}

func inWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}

func copyAlert(a *domain.FraudAlert) *domain.FraudAlert {
	c := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
