package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/shopspring/decimal"
)

// Velocity recommendations.
const (
	RecImmediateReview    = "IMMEDIATE_REVIEW_REQUIRED"
	RecEnhancedMonitoring = "ENHANCED_MONITORING"
	RecStandardMonitoring = "STANDARD_MONITORING"
)

var (
	hourlyCountWeight  = decimal.NewFromInt(50)
	hourlyAmountWeight = decimal.NewFromInt(40)
	dailyCountWeight   = decimal.NewFromInt(30)
	dailyAmountWeight  = decimal.NewFromInt(25)

	eighty = decimal.NewFromInt(80)
	sixty  = decimal.NewFromInt(60)
)

// WindowSource aggregates account activity over a trailing window.
type WindowSource interface {
	Window(ctx context.Context, accountID string, end time.Time, span time.Duration) (velocity.Window, error)
}

// VelocityRule flags abnormal transaction count or amount over the trailing
// hour and day.
type VelocityRule struct {
	source WindowSource

	enabled          bool
	maxPerHour       int
	maxPerDay        int
	maxAmountPerHour decimal.Decimal
	maxAmountPerDay  decimal.Decimal
}

// NewVelocityRule creates the velocity rule. Non-positive limits fall back to
// the defaults.
func NewVelocityRule(cfg domain.VelocityConfig, source WindowSource) *VelocityRule {
	def := domain.DefaultDetectionConfig().Velocity
	if cfg.MaxTransactionsPerHour <= 0 {
		cfg.MaxTransactionsPerHour = def.MaxTransactionsPerHour
	}
	if cfg.MaxTransactionsPerDay <= 0 {
		cfg.MaxTransactionsPerDay = def.MaxTransactionsPerDay
	}
	if cfg.MaxAmountPerHour <= 0 {
		cfg.MaxAmountPerHour = def.MaxAmountPerHour
	}
	if cfg.MaxAmountPerDay <= 0 {
		cfg.MaxAmountPerDay = def.MaxAmountPerDay
	}
	return &VelocityRule{
		source:           source,
		enabled:          cfg.Enabled,
		maxPerHour:       cfg.MaxTransactionsPerHour,
		maxPerDay:        cfg.MaxTransactionsPerDay,
		maxAmountPerHour: decimal.NewFromFloat(cfg.MaxAmountPerHour),
		maxAmountPerDay:  decimal.NewFromFloat(cfg.MaxAmountPerDay),
	}
}

// Metadata implements Rule.
func (r *VelocityRule) Metadata() Metadata {
	return Metadata{
		Name:        domain.RuleVelocity,
		Version:     "1.0",
		Description: "Detects unusual transaction frequency or amount over rolling hourly and daily windows",
		Enabled:     r.enabled,
		Priority:    80,
	}
}

// Execute implements Rule.
func (r *VelocityRule) Execute(ctx context.Context, tx *domain.Transaction) (domain.RuleResult, error) {
	hourly, err := r.source.Window(ctx, tx.AccountID, tx.Timestamp, time.Hour)
	if err != nil {
		return domain.RuleResult{}, fmt.Errorf("hourly window: %w", err)
	}
	daily, err := r.source.Window(ctx, tx.AccountID, tx.Timestamp, 24*time.Hour)
	if err != nil {
		return domain.RuleResult{}, fmt.Errorf("daily window: %w", err)
	}

	score := decimal.Zero
	var clauses []string
	var countViolated, amountViolated bool

	if hourly.Count > r.maxPerHour {
		countViolated = true
		score = score.Add(weighted(hourlyCountWeight, decimal.NewFromInt(int64(hourly.Count)), decimal.NewFromInt(int64(r.maxPerHour))))
		clauses = append(clauses, fmt.Sprintf("Hourly transaction count %d exceeds limit %d", hourly.Count, r.maxPerHour))
	}
	if hourly.Total.GreaterThan(r.maxAmountPerHour) {
		amountViolated = true
		score = score.Add(weighted(hourlyAmountWeight, hourly.Total, r.maxAmountPerHour))
		clauses = append(clauses, fmt.Sprintf("Hourly amount %s exceeds limit %s", hourly.Total.StringFixed(2), r.maxAmountPerHour.StringFixed(2)))
	}
	if daily.Count > r.maxPerDay {
		countViolated = true
		score = score.Add(weighted(dailyCountWeight, decimal.NewFromInt(int64(daily.Count)), decimal.NewFromInt(int64(r.maxPerDay))))
		clauses = append(clauses, fmt.Sprintf("Daily transaction count %d exceeds limit %d", daily.Count, r.maxPerDay))
	}
	if daily.Total.GreaterThan(r.maxAmountPerDay) {
		amountViolated = true
		score = score.Add(weighted(dailyAmountWeight, daily.Total, r.maxAmountPerDay))
		clauses = append(clauses, fmt.Sprintf("Daily amount %s exceeds limit %s", daily.Total.StringFixed(2), r.maxAmountPerDay.StringFixed(2)))
	}

	evidence := map[string]any{
		"hourlyCount":    hourly.Count,
		"hourlyAmount":   hourly.Total,
		"dailyCount":     daily.Count,
		"dailyAmount":    daily.Total,
		"countViolated":  countViolated,
		"amountViolated": amountViolated,
		"accountId":      tx.AccountID,
	}

	if !countViolated && !amountViolated {
		return domain.RuleResult{
			Score:    decimal.Zero,
			Reason:   "Transaction velocity within normal limits",
			Evidence: evidence,
		}, nil
	}

	score = ClampScore(score).Round(2)
	return domain.RuleResult{
		Triggered:      true,
		Score:          score,
		Reason:         "Velocity violation detected: " + strings.Join(clauses, "; "),
		Evidence:       evidence,
		Recommendation: velocityRecommendation(score),
	}, nil
}

// weighted returns weight * observed / limit.
func weighted(weight, observed, limit decimal.Decimal) decimal.Decimal {
	return weight.Mul(observed).Div(limit)
}

func velocityRecommendation(score decimal.Decimal) string {
	switch {
	case score.GreaterThanOrEqual(eighty):
		return RecImmediateReview
	case score.GreaterThanOrEqual(sixty):
		return RecEnhancedMonitoring
	default:
		return RecStandardMonitoring
	}
}
