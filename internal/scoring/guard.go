package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// breakerTrips is the number of consecutive lookup failures that opens a
// breaker.
const breakerTrips = 5

// GuardedSnapshots wraps a SnapshotReader with one circuit breaker per
// lookup kind. While a breaker is open lookups fail fast and the scoring
// service falls back to its default sub-score.
type GuardedSnapshots struct {
	next      domain.SnapshotReader
	accounts  *gobreaker.CircuitBreaker
	customers *gobreaker.CircuitBreaker
}

// GuardSnapshots creates a guarded reader. openFor is how long a tripped
// breaker stays open before probing again.
func GuardSnapshots(next domain.SnapshotReader, openFor time.Duration, logger *zap.Logger) *GuardedSnapshots {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("snapshots")

	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     openFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= breakerTrips
			},
			// A missing record is an answer, not an outage.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("snapshot breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}
	}

	return &GuardedSnapshots{
		next:      next,
		accounts:  gobreaker.NewCircuitBreaker(settings("account-snapshots")),
		customers: gobreaker.NewCircuitBreaker(settings("customer-snapshots")),
	}
}

// GetAccount implements domain.SnapshotReader.
func (g *GuardedSnapshots) GetAccount(ctx context.Context, accountID string) (*domain.AccountSnapshot, error) {
	v, err := g.accounts.Execute(func() (interface{}, error) {
		return g.next.GetAccount(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.AccountSnapshot), nil
}

// GetCustomerByAccount implements domain.SnapshotReader.
func (g *GuardedSnapshots) GetCustomerByAccount(ctx context.Context, accountID string) (*domain.CustomerSnapshot, error) {
	v, err := g.customers.Execute(func() (interface{}, error) {
		return g.next.GetCustomerByAccount(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CustomerSnapshot), nil
}

// State reports the account and customer breaker states.
func (g *GuardedSnapshots) State() (accounts, customers gobreaker.State) {
	return g.accounts.State(), g.customers.State()
}
