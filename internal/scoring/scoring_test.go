package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

type snapshots struct {
	account  *domain.AccountSnapshot
	customer *domain.CustomerSnapshot
	err      error
	calls    int
}

func (s *snapshots) GetAccount(ctx context.Context, accountID string) (*domain.AccountSnapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.account == nil {
		return nil, domain.ErrNotFound
	}
	return s.account, nil
}

func (s *snapshots) GetCustomerByAccount(ctx context.Context, accountID string) (*domain.CustomerSnapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.customer == nil {
		return nil, domain.ErrNotFound
	}
	return s.customer, nil
}

func quietSnapshots() *snapshots {
	return &snapshots{
		account: &domain.AccountSnapshot{
			AccountID: "acc-001", Status: domain.AccountActive, RiskLevel: domain.RiskUnknown,
			OpenedAt: now.AddDate(-3, 0, 0),
		},
		customer: &domain.CustomerSnapshot{
			CustomerID: "cust-001", Status: domain.CustomerActive, RiskLevel: domain.RiskUnknown,
			CustomerSince: now.AddDate(-3, 0, 0), LastLogin: now.Add(-time.Hour),
		},
	}
}

func purchase() *domain.Transaction {
	return &domain.Transaction{
		ID: "tx-1", AccountID: "acc-001", Type: domain.TxPurchase,
		Amount: decimal.NewFromInt(100), Currency: "USD", Timestamp: now,
	}
}

func newTestService(reader domain.SnapshotReader) *Service {
	return NewService(domain.DefaultDetectionConfig().Scoring, reader, nil, WithClock(func() time.Time { return now }))
}

func triggered(score float64) domain.RuleResult {
	return domain.RuleResult{Triggered: true, Score: decimal.NewFromFloat(score)}
}

func TestRuleScore(t *testing.T) {
	tests := []struct {
		name    string
		results []domain.RuleResult
		want    string
	}{
		{"NoResults", nil, "0"},
		{"NothingTriggered", []domain.RuleResult{{Score: decimal.NewFromInt(90)}}, "0"},
		{"Single", []domain.RuleResult{triggered(60)}, "60"},
		{"TwoRules", []domain.RuleResult{triggered(85), triggered(60)}, "93.5"},
		{"BonusHalves", []domain.RuleResult{triggered(50), triggered(10), triggered(10)}, "57.5"},
		{"BonusStopsAfterFourExtras", []domain.RuleResult{
			triggered(40), triggered(1), triggered(1), triggered(1), triggered(1), triggered(1),
		}, "47.5"},
		{"Clamped", []domain.RuleResult{triggered(100), triggered(100)}, "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RuleScore(tt.results).String())
		})
	}
}

func TestTransactionScore(t *testing.T) {
	t.Run("OrdinaryPurchase", func(t *testing.T) {
		assert.True(t, TransactionScore(purchase()).IsZero())
	})

	t.Run("LargeAmountScalesToCeiling", func(t *testing.T) {
		tx := purchase()
		tx.Amount = decimal.NewFromInt(25000)
		assert.Equal(t, "15", TransactionScore(tx).String())

		tx.Amount = decimal.NewFromInt(80000)
		assert.Equal(t, "30", TransactionScore(tx).String())
	})

	t.Run("ExactlyTenThousandIsNotLarge", func(t *testing.T) {
		tx := purchase()
		tx.Amount = decimal.NewFromInt(10000)
		assert.True(t, TransactionScore(tx).IsZero())
	})

	t.Run("OffHours", func(t *testing.T) {
		for _, hour := range []int{23, 0, 5} {
			tx := purchase()
			tx.Timestamp = time.Date(2024, 1, 15, hour, 30, 0, 0, time.UTC)
			assert.Equal(t, "15", TransactionScore(tx).String(), "hour %d", hour)
		}
		tx := purchase()
		tx.Timestamp = time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)
		assert.True(t, TransactionScore(tx).IsZero())
	})

	t.Run("TypeAndCurrency", func(t *testing.T) {
		tx := purchase()
		tx.Type = domain.TxCryptocurrencyExchange
		tx.Currency = "EUR"
		assert.Equal(t, "35", TransactionScore(tx).String())
	})
}

func TestBreakdown(t *testing.T) {
	ctx := context.Background()

	t.Run("QuietTransactionScoresBase", func(t *testing.T) {
		b := newTestService(quietSnapshots()).Breakdown(ctx, purchase(), nil)
		assert.Equal(t, "20.00", b.TotalScore.StringFixed(2))
		assert.True(t, b.AccountScore.IsZero())
		assert.True(t, b.CustomerScore.IsZero())
	})

	t.Run("WeightedTotal", func(t *testing.T) {
		b := newTestService(quietSnapshots()).Breakdown(ctx, purchase(), []domain.RuleResult{triggered(85), triggered(60)})
		// 20 + 0.6 * 93.5
		assert.Equal(t, "93.5", b.RuleScore.String())
		assert.Equal(t, "76.10", b.TotalScore.StringFixed(2))
	})

	t.Run("MissingSnapshotsUseDefaults", func(t *testing.T) {
		b := newTestService(&snapshots{}).Breakdown(ctx, purchase(), nil)
		assert.Equal(t, "50", b.AccountScore.String())
		assert.Equal(t, "25", b.CustomerScore.String())
		// 20 + 5 + 2.5
		assert.Equal(t, "27.50", b.TotalScore.StringFixed(2))
	})

	t.Run("LookupFailureUsesFallback", func(t *testing.T) {
		b := newTestService(&snapshots{err: errors.New("timeout")}).Breakdown(ctx, purchase(), nil)
		assert.Equal(t, "25", b.AccountScore.String())
		assert.Equal(t, "25", b.CustomerScore.String())
	})

	t.Run("RiskyAccountAndCustomer", func(t *testing.T) {
		reader := &snapshots{
			account: &domain.AccountSnapshot{
				Status: domain.AccountSuspended, RiskLevel: domain.RiskVeryHigh,
				FlaggedForMonitoring: true, OpenedAt: now.AddDate(0, 0, -3),
			},
			customer: &domain.CustomerSnapshot{
				Status: domain.CustomerBlocked, RiskLevel: domain.RiskHigh,
				CustomerSince: now.AddDate(0, 0, -10), LastLogin: now.AddDate(-1, 0, 0),
			},
		}
		b := newTestService(reader).Breakdown(ctx, purchase(), nil)
		// 40 + 50 + 20 + 15 clamped
		assert.Equal(t, "100", b.AccountScore.String())
		// 25 + 35 + 10 + 15
		assert.Equal(t, "85", b.CustomerScore.String())
		assert.Equal(t, "38.50", b.TotalScore.StringFixed(2))
	})

	t.Run("ZeroLastLoginNotPenalized", func(t *testing.T) {
		reader := quietSnapshots()
		reader.customer.LastLogin = time.Time{}
		b := newTestService(reader).Breakdown(ctx, purchase(), nil)
		assert.True(t, b.CustomerScore.IsZero())
	})

	t.Run("TotalClampedAndRounded", func(t *testing.T) {
		tx := purchase()
		tx.Amount = decimal.NewFromInt(60000)
		tx.Type = domain.TxWireTransfer
		tx.Currency = "EUR"
		svc := NewService(domain.ScoringConfig{BaseScore: 90, RuleWeight: 1, TransactionWeight: 1}, quietSnapshots(), nil)
		b := svc.Breakdown(ctx, tx, []domain.RuleResult{triggered(50)})
		assert.Equal(t, "100", b.TotalScore.String())

		assert.True(t, svc.Calculate(ctx, tx, nil).Equal(decimal.NewFromInt(100)))
	})

	t.Run("NilReader", func(t *testing.T) {
		b := newTestService(nil).Breakdown(ctx, purchase(), nil)
		assert.Equal(t, "27.50", b.TotalScore.StringFixed(2))
	})
}

func TestGuardSnapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("NotFoundDoesNotTrip", func(t *testing.T) {
		reader := &snapshots{}
		guarded := GuardSnapshots(reader, time.Minute, nil)
		for i := 0; i < breakerTrips*2; i++ {
			_, err := guarded.GetAccount(ctx, "acc")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		}
		accounts, _ := guarded.State()
		assert.Equal(t, gobreaker.StateClosed, accounts)
	})

	t.Run("TripsAfterConsecutiveFailures", func(t *testing.T) {
		reader := &snapshots{err: errors.New("connection refused")}
		guarded := GuardSnapshots(reader, time.Minute, nil)
		for i := 0; i < breakerTrips; i++ {
			_, _ = guarded.GetAccount(ctx, "acc")
		}
		accounts, customers := guarded.State()
		assert.Equal(t, gobreaker.StateOpen, accounts)
		assert.Equal(t, gobreaker.StateClosed, customers, "breakers are independent")

		calls := reader.calls
		_, err := guarded.GetAccount(ctx, "acc")
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Equal(t, calls, reader.calls, "open breaker fails fast")
	})

	t.Run("ScoringFallsBackWhileOpen", func(t *testing.T) {
		reader := &snapshots{err: errors.New("connection refused")}
		guarded := GuardSnapshots(reader, time.Minute, nil)
		svc := newTestService(guarded)
		for i := 0; i < breakerTrips+1; i++ {
			b := svc.Breakdown(ctx, purchase(), nil)
			require.Equal(t, "25", b.AccountScore.String())
		}
	})

	t.Run("PassesValuesThrough", func(t *testing.T) {
		guarded := GuardSnapshots(quietSnapshots(), time.Minute, nil)
		a, err := guarded.GetAccount(ctx, "acc-001")
		require.NoError(t, err)
		assert.Equal(t, "acc-001", a.AccountID)
		c, err := guarded.GetCustomerByAccount(ctx, "acc-001")
		require.NoError(t, err)
		assert.Equal(t, "cust-001", c.CustomerID)
	})
}
