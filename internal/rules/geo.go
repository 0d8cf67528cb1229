package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Geo recommendations.
const (
	RecImmediateBlock         = "IMMEDIATE_BLOCK_REQUIRED"
	RecEnhancedAuthentication = "ENHANCED_AUTHENTICATION_REQUIRED"
	RecAdditionalVerification = "ADDITIONAL_VERIFICATION"
)

var (
	impossibleTravelScore = decimal.NewFromInt(80)
	rapidTravelBonus      = decimal.NewFromInt(15)
	highRiskCountryScore  = decimal.NewFromInt(60)
	multiCountryBase      = decimal.NewFromInt(40)
	multiCountryStep      = decimal.NewFromInt(10)
)

// rapidTravelMinutes is the elapsed time under which impossible travel
// earns the extra contribution.
const rapidTravelMinutes = 30

// LocationHistory is the slice of the transaction store the geo rule reads.
type LocationHistory interface {
	LastTransactionBefore(ctx context.Context, accountID string, before time.Time) (*domain.Transaction, error)
	ListLocations(ctx context.Context, accountID string, from, to time.Time) ([]string, error)
}

// GeoAnomalyRule flags impossible travel, high-risk countries and bursts of
// distinct countries.
type GeoAnomalyRule struct {
	history LocationHistory

	enabled        bool
	minTimeMinutes int
	maxSpeedKmh    float64
	countryWindow  time.Duration
	maxCountries   int
	highRisk       map[string]bool
}

// NewGeoAnomalyRule creates the geo rule. Zero values fall back to the defaults.
func NewGeoAnomalyRule(cfg domain.GeoConfig, history LocationHistory) *GeoAnomalyRule {
	def := domain.DefaultDetectionConfig().Geo
	if cfg.MinTimeMinutes <= 0 {
		cfg.MinTimeMinutes = def.MinTimeMinutes
	}
	if cfg.MaxSpeedKmh <= 0 {
		cfg.MaxSpeedKmh = def.MaxSpeedKmh
	}
	if cfg.CountryWindow <= 0 {
		cfg.CountryWindow = def.CountryWindow
	}
	if cfg.MaxDistinctCountries <= 0 {
		cfg.MaxDistinctCountries = def.MaxDistinctCountries
	}

	highRisk := make(map[string]bool, len(cfg.HighRiskCountries))
	for _, c := range cfg.HighRiskCountries {
		highRisk[strings.ToUpper(strings.TrimSpace(c))] = true
	}

	return &GeoAnomalyRule{
		history:        history,
		enabled:        cfg.Enabled,
		minTimeMinutes: cfg.MinTimeMinutes,
		maxSpeedKmh:    cfg.MaxSpeedKmh,
		countryWindow:  cfg.CountryWindow,
		maxCountries:   cfg.MaxDistinctCountries,
		highRisk:       highRisk,
	}
}

// Metadata implements Rule.
func (r *GeoAnomalyRule) Metadata() Metadata {
	return Metadata{
		Name:        domain.RuleGeoLocation,
		Version:     "1.0",
		Description: "Detects impossible travel, high-risk countries and rapid multi-country activity",
		Enabled:     r.enabled,
		Priority:    90,
	}
}

// travel is the outcome of the impossible travel check.
type travel struct {
	impossible bool
	distanceKm float64
	minutes    int
}

// Execute implements Rule.
func (r *GeoAnomalyRule) Execute(ctx context.Context, tx *domain.Transaction) (domain.RuleResult, error) {
	country := CountryOf(tx.Location)

	trip, err := r.checkTravel(ctx, tx)
	if err != nil {
		return domain.RuleResult{}, err
	}

	highRisk := r.highRisk[country]

	countries, err := r.countCountries(ctx, tx)
	if err != nil {
		return domain.RuleResult{}, err
	}
	burst := countries > r.maxCountries

	score := decimal.Zero
	var clauses []string
	if trip.impossible {
		score = score.Add(impossibleTravelScore)
		if trip.minutes < rapidTravelMinutes {
			score = score.Add(rapidTravelBonus)
		}
		clauses = append(clauses, fmt.Sprintf("impossible travel of %.2f km in %d minutes", trip.distanceKm, trip.minutes))
	}
	if highRisk {
		score = score.Add(highRiskCountryScore)
		clauses = append(clauses, fmt.Sprintf("transaction from high-risk country %s", country))
	}
	if burst {
		extra := decimal.NewFromInt(int64(countries - r.maxCountries))
		score = score.Add(multiCountryBase.Add(multiCountryStep.Mul(extra)))
		clauses = append(clauses, fmt.Sprintf("multiple countries (%d) accessed in short period", countries))
	}

	evidence := map[string]any{
		"currentLocation":       tx.Location,
		"currentCountry":        country,
		"impossibleTravel":      trip.impossible,
		"distanceKm":            trip.distanceKm,
		"timeDifferenceMinutes": trip.minutes,
		"isHighRiskCountry":     highRisk,
		"countryCount":          countries,
		"accountId":             tx.AccountID,
	}

	if len(clauses) == 0 {
		return domain.RuleResult{
			Score:    decimal.Zero,
			Reason:   "No geographical anomalies detected",
			Evidence: evidence,
		}, nil
	}

	score = ClampScore(score)
	return domain.RuleResult{
		Triggered:      true,
		Score:          score,
		Reason:         "Geographical anomaly detected: " + strings.Join(clauses, "; "),
		Evidence:       evidence,
		Recommendation: geoRecommendation(score, highRisk),
	}, nil
}

func (r *GeoAnomalyRule) checkTravel(ctx context.Context, tx *domain.Transaction) (travel, error) {
	prev, err := r.history.LastTransactionBefore(ctx, tx.AccountID, tx.Timestamp)
	if errors.Is(err, domain.ErrNotFound) {
		return travel{}, nil
	}
	if err != nil {
		return travel{}, fmt.Errorf("previous transaction lookup: %w", err)
	}

	t := travel{
		distanceKm: EstimateDistanceKm(prev.Location, tx.Location),
		minutes:    int(tx.Timestamp.Sub(prev.Timestamp) / time.Minute),
	}
	reachable := float64(t.minutes) / 60 * r.maxSpeedKmh
	t.impossible = t.distanceKm > reachable && t.minutes < r.minTimeMinutes
	return t, nil
}

// countCountries counts the distinct countries seen for the account in the
// trailing window, the current transaction included.
func (r *GeoAnomalyRule) countCountries(ctx context.Context, tx *domain.Transaction) (int, error) {
	locations, err := r.history.ListLocations(ctx, tx.AccountID, tx.Timestamp.Add(-r.countryWindow), tx.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("location history lookup: %w", err)
	}

	seen := make(map[string]struct{}, len(locations)+1)
	for _, loc := range locations {
		if strings.TrimSpace(loc) == "" {
			continue
		}
		seen[CountryOf(loc)] = struct{}{}
	}
	if strings.TrimSpace(tx.Location) != "" {
		seen[CountryOf(tx.Location)] = struct{}{}
	}
	return len(seen), nil
}

func geoRecommendation(score decimal.Decimal, highRisk bool) string {
	switch {
	case score.GreaterThanOrEqual(eighty):
		return RecImmediateBlock
	case highRisk || score.GreaterThanOrEqual(sixty):
		return RecEnhancedAuthentication
	default:
		return RecAdditionalVerification
	}
}
