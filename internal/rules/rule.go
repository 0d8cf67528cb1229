// Package rules provides the fraud rule contract, the execution harness and
// the built-in detection rules.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Reasons produced by the harness.
const (
	ReasonDisabled   = "rule is disabled"
	reasonFailedFmt  = "Rule execution failed: %v"
	NoActionRequired = "NO_ACTION_REQUIRED"
)

var (
	hundred = decimal.NewFromInt(100)

	criticalBand = decimal.NewFromInt(90)
	highBand     = decimal.NewFromInt(70)
	mediumBand   = decimal.NewFromInt(50)
)

// Metadata describes a rule.
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Priority    int    `json:"priority"`
}

// Rule is a single fraud check.
//
// Execute only reports the rule-specific outcome: Triggered, Score, Reason,
// Evidence and Recommendation. Naming, severity, timing and failure handling
// are applied by Evaluate.
type Rule interface {
	Metadata() Metadata
	Execute(ctx context.Context, tx *domain.Transaction) (domain.RuleResult, error)
}

// Evaluate runs a rule inside the harness. It never panics and never returns
// an error: failures become non-triggered, zero-score ERROR results.
func Evaluate(ctx context.Context, rule Rule, tx *domain.Transaction) (result domain.RuleResult) {
	meta := rule.Metadata()
	if !meta.Enabled {
		return domain.RuleResult{
			RuleName:       meta.Name,
			RuleVersion:    meta.Version,
			Score:          decimal.Zero,
			Severity:       domain.SeverityInfo,
			Reason:         ReasonDisabled,
			Recommendation: NoActionRequired,
			EvaluatedAt:    time.Now().UTC(),
		}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result = failedResult(meta, fmt.Errorf("panic: %v", p))
		}
		result.Duration = time.Since(start)
	}()

	res, err := rule.Execute(ctx, tx)
	if err != nil {
		return failedResult(meta, err)
	}

	res.RuleName = meta.Name
	res.RuleVersion = meta.Version
	res.Score = ClampScore(res.Score)
	res.EvaluatedAt = time.Now().UTC()
	if res.Triggered {
		res.Severity = SeverityFor(res.Score)
	} else {
		res.Severity = domain.SeverityLow
	}
	if res.Recommendation == "" {
		res.Recommendation = NoActionRequired
	}
	return res
}

func failedResult(meta Metadata, err error) domain.RuleResult {
	return domain.RuleResult{
		RuleName:       meta.Name,
		RuleVersion:    meta.Version,
		Triggered:      false,
		Score:          decimal.Zero,
		Severity:       domain.SeverityError,
		Reason:         fmt.Sprintf(reasonFailedFmt, err),
		Recommendation: NoActionRequired,
		EvaluatedAt:    time.Now().UTC(),
	}
}

// SeverityFor maps a score to its severity band.
func SeverityFor(score decimal.Decimal) domain.Severity {
	switch {
	case score.GreaterThanOrEqual(criticalBand):
		return domain.SeverityCritical
	case score.GreaterThanOrEqual(highBand):
		return domain.SeverityHigh
	case score.GreaterThanOrEqual(mediumBand):
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// ClampScore bounds a score to [0, 100].
func ClampScore(score decimal.Decimal) decimal.Decimal {
	if score.IsNegative() {
		return decimal.Zero
	}
	if score.GreaterThan(hundred) {
		return hundred
	}
	return score
}
