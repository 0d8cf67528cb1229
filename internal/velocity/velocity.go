// Package velocity provides rolling-window transaction aggregation.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Window is the aggregate of an account's transactions over [From, To].
type Window struct {
	From  time.Time       `json:"from"`
	To    time.Time       `json:"to"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// Service calculates transaction velocity for accounts.
type Service struct {
	store domain.TransactionStore
}

// NewService creates a new velocity service.
func NewService(store domain.TransactionStore) *Service {
	return &Service{store: store}
}

// Window aggregates the account's transactions in the span ending at end.
// Transactions stamped after end are never counted.
func (s *Service) Window(ctx context.Context, accountID string, end time.Time, span time.Duration) (Window, error) {
	if accountID == "" {
		return Window{}, fmt.Errorf("accountID is required")
	}
	if span <= 0 {
		return Window{}, fmt.Errorf("span must be positive")
	}

	from := end.Add(-span)
	txs, err := s.store.ListTransactions(ctx, accountID, from, end)
	if err != nil {
		return Window{}, fmt.Errorf("failed to list transactions: %w", err)
	}

	w := Window{From: from, To: end, Total: decimal.Zero}
	for _, tx := range txs {
		if tx.Timestamp.After(end) || tx.Timestamp.Before(from) {
			continue
		}
		w.Count++
		w.Total = w.Total.Add(tx.Amount)
	}
	return w, nil
}
