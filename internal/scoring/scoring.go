// Package scoring combines rule evidence with transaction, account and
// customer signals into a single risk score.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	hundred = decimal.NewFromInt(100)

	// fallbackScore replaces a sub-score whose computation failed.
	fallbackScore = decimal.NewFromInt(25)

	missingAccountScore  = decimal.NewFromInt(50)
	missingCustomerScore = decimal.NewFromInt(25)

	largeAmountThreshold = decimal.NewFromInt(10000)
	largeAmountCeiling   = decimal.NewFromInt(50000)
	largeAmountWeight    = decimal.NewFromInt(30)
	offHoursScore        = decimal.NewFromInt(15)
	foreignCurrencyScore = decimal.NewFromInt(10)

	bonusRate  = decimal.NewFromFloat(0.1)
	bonusDecay = decimal.NewFromFloat(0.5)
)

// maxBonusRules caps how many extra triggered rules earn a bonus.
const maxBonusRules = 4

const (
	newAccountAge      = 30 * 24 * time.Hour
	newCustomerTenure  = 90 * 24 * time.Hour
	staleLoginInterval = 180 * 24 * time.Hour
)

var typeScores = map[domain.TransactionType]int64{
	domain.TxCryptocurrencyExchange: 25,
	domain.TxInternationalTransfer:  20,
	domain.TxWireTransfer:           20,
	domain.TxOnlinePayment:          10,
	domain.TxMobilePayment:          10,
	domain.TxATMWithdrawal:          5,
}

var accountRiskScores = map[domain.RiskLevel]int64{
	domain.RiskVeryHigh: 40,
	domain.RiskHigh:     30,
	domain.RiskMedium:   15,
	domain.RiskLow:      5,
}

var accountStatusScores = map[domain.AccountStatus]int64{
	domain.AccountSuspended:  50,
	domain.AccountRestricted: 25,
}

var customerRiskScores = map[domain.RiskLevel]int64{
	domain.RiskVeryHigh: 35,
	domain.RiskHigh:     25,
	domain.RiskMedium:   10,
	domain.RiskLow:      3,
}

var customerStatusScores = map[domain.CustomerStatus]int64{
	domain.CustomerSuspended: 40,
	domain.CustomerBlocked:   35,
	domain.CustomerFrozen:    20,
}

// Breakdown holds every component of a risk score.
type Breakdown struct {
	RuleScore        decimal.Decimal `json:"ruleScore"`
	TransactionScore decimal.Decimal `json:"transactionScore"`
	AccountScore     decimal.Decimal `json:"accountScore"`
	CustomerScore    decimal.Decimal `json:"customerScore"`
	BaseScore        decimal.Decimal `json:"baseScore"`
	TotalScore       decimal.Decimal `json:"totalScore"`
}

// Service computes risk scores.
type Service struct {
	snapshots domain.SnapshotReader
	logger    *zap.Logger
	now       func() time.Time

	base              decimal.Decimal
	max               decimal.Decimal
	ruleWeight        decimal.Decimal
	transactionWeight decimal.Decimal
	accountWeight     decimal.Decimal
	customerWeight    decimal.Decimal
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for account age and customer tenure.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a scoring service.
func NewService(cfg domain.ScoringConfig, snapshots domain.SnapshotReader, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		snapshots:         snapshots,
		logger:            logger.Named("scoring"),
		now:               time.Now,
		base:              decimal.NewFromFloat(cfg.BaseScore),
		max:               decimal.NewFromFloat(cfg.MaxScore),
		ruleWeight:        decimal.NewFromFloat(cfg.RuleWeight),
		transactionWeight: decimal.NewFromFloat(cfg.TransactionWeight),
		accountWeight:     decimal.NewFromFloat(cfg.AccountWeight),
		customerWeight:    decimal.NewFromFloat(cfg.CustomerWeight),
	}
	if !s.max.IsPositive() {
		s.max = hundred
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calculate returns the total risk score, rounded to two decimals.
func (s *Service) Calculate(ctx context.Context, tx *domain.Transaction, results []domain.RuleResult) decimal.Decimal {
	return s.Breakdown(ctx, tx, results).TotalScore
}

// Breakdown computes the total risk score along with its components.
// A failure outside the sub-scores yields the base score.
func (s *Service) Breakdown(ctx context.Context, tx *domain.Transaction, results []domain.RuleResult) (b Breakdown) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("risk score calculation failed, using base score", zap.Any("panic", p))
			base := s.clampTotal(s.base)
			b = Breakdown{BaseScore: base, TotalScore: base}
		}
	}()

	b.BaseScore = s.base
	b.RuleScore = s.guard("rule", func() (decimal.Decimal, error) { return RuleScore(results), nil })
	b.TransactionScore = s.guard("transaction", func() (decimal.Decimal, error) { return TransactionScore(tx), nil })
	b.AccountScore = s.guard("account", func() (decimal.Decimal, error) { return s.accountScore(ctx, tx.AccountID) })
	b.CustomerScore = s.guard("customer", func() (decimal.Decimal, error) { return s.customerScore(ctx, tx.AccountID) })

	total := s.base.
		Add(b.RuleScore.Mul(s.ruleWeight)).
		Add(b.TransactionScore.Mul(s.transactionWeight)).
		Add(b.AccountScore.Mul(s.accountWeight)).
		Add(b.CustomerScore.Mul(s.customerWeight))

	b.TotalScore = s.clampTotal(total)
	return b
}

func (s *Service) clampTotal(total decimal.Decimal) decimal.Decimal {
	if total.GreaterThan(s.max) {
		total = s.max
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	// Scores are non-negative, so Round is half-up here.
	return total.Round(2)
}

// guard runs a sub-score and substitutes the fallback on error or panic.
func (s *Service) guard(name string, fn func() (decimal.Decimal, error)) (score decimal.Decimal) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Warn("sub-score panicked, using fallback",
				zap.String("component", name),
				zap.Any("panic", p),
			)
			score = fallbackScore
		}
	}()

	v, err := fn()
	if err != nil {
		s.logger.Warn("sub-score failed, using fallback",
			zap.String("component", name),
			zap.Error(err),
		)
		return fallbackScore
	}
	return clamp(v)
}

// RuleScore is the highest triggered score plus a halving bonus for each of
// up to four further triggered rules.
func RuleScore(results []domain.RuleResult) decimal.Decimal {
	triggered := 0
	highest := decimal.Zero
	for _, r := range results {
		if !r.Triggered {
			continue
		}
		triggered++
		if r.Score.GreaterThan(highest) {
			highest = r.Score
		}
	}
	if triggered == 0 {
		return decimal.Zero
	}

	score := highest
	extra := triggered - 1
	if extra > maxBonusRules {
		extra = maxBonusRules
	}
	bonus := highest.Mul(bonusRate)
	for i := 0; i < extra; i++ {
		score = score.Add(bonus)
		bonus = bonus.Mul(bonusDecay)
	}
	return clamp(score)
}

// TransactionScore scores the transaction's own attributes.
func TransactionScore(tx *domain.Transaction) decimal.Decimal {
	score := decimal.Zero

	if tx.Amount.GreaterThan(largeAmountThreshold) {
		ratio := tx.Amount.Div(largeAmountCeiling)
		if ratio.GreaterThan(decimal.NewFromInt(1)) {
			ratio = decimal.NewFromInt(1)
		}
		score = score.Add(largeAmountWeight.Mul(ratio))
	}

	if hour := tx.Timestamp.Hour(); hour >= 23 || hour <= 5 {
		score = score.Add(offHoursScore)
	}

	if v, ok := typeScores[tx.Type]; ok {
		score = score.Add(decimal.NewFromInt(v))
	}

	if tx.Currency != "USD" {
		score = score.Add(foreignCurrencyScore)
	}

	return clamp(score)
}

func (s *Service) accountScore(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if s.snapshots == nil {
		return missingAccountScore, nil
	}
	account, err := s.snapshots.GetAccount(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return missingAccountScore, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("account lookup: %w", err)
	}

	score := decimal.NewFromInt(accountRiskScores[account.RiskLevel])
	score = score.Add(decimal.NewFromInt(accountStatusScores[account.Status]))
	if account.FlaggedForMonitoring {
		score = score.Add(decimal.NewFromInt(20))
	}
	if !account.OpenedAt.IsZero() && s.now().Sub(account.OpenedAt) < newAccountAge {
		score = score.Add(decimal.NewFromInt(15))
	}
	return score, nil
}

func (s *Service) customerScore(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if s.snapshots == nil {
		return missingCustomerScore, nil
	}
	customer, err := s.snapshots.GetCustomerByAccount(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return missingCustomerScore, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("customer lookup: %w", err)
	}

	now := s.now()
	score := decimal.NewFromInt(customerRiskScores[customer.RiskLevel])
	score = score.Add(decimal.NewFromInt(customerStatusScores[customer.Status]))
	if !customer.CustomerSince.IsZero() && now.Sub(customer.CustomerSince) < newCustomerTenure {
		score = score.Add(decimal.NewFromInt(10))
	}
	if !customer.LastLogin.IsZero() && now.Sub(customer.LastLogin) > staleLoginInterval {
		score = score.Add(decimal.NewFromInt(15))
	}
	return score, nil
}

func clamp(score decimal.Decimal) decimal.Decimal {
	if score.IsNegative() {
		return decimal.Zero
	}
	if score.GreaterThan(hundred) {
		return hundred
	}
	return score
}
