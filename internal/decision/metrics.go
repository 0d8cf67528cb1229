package decision

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Metrics summarizes a set of rule results for reporting.
type Metrics struct {
	TotalRules             int             `json:"totalRules"`
	TriggeredRules         int             `json:"triggeredRules"`
	HighSeverityRules      int             `json:"highSeverityRules"`
	CriticalRuleViolations int             `json:"criticalRuleViolations"`
	AverageScore           decimal.Decimal `json:"averageScore"`
	MaxScore               decimal.Decimal `json:"maxScore"`
}

// Summarize computes Metrics over all results. Averages cover every result,
// triggered or not.
func Summarize(results []domain.RuleResult) Metrics {
	m := Metrics{
		TotalRules:   len(results),
		AverageScore: decimal.Zero,
		MaxScore:     decimal.Zero,
	}
	if len(results) == 0 {
		return m
	}

	sum := decimal.Zero
	for _, r := range results {
		sum = sum.Add(r.Score)
		if r.Score.GreaterThan(m.MaxScore) {
			m.MaxScore = r.Score
		}
		if !r.Triggered {
			continue
		}
		m.TriggeredRules++
		if r.IsHighSeverity() {
			m.HighSeverityRules++
		}
		if r.Severity == domain.SeverityCritical {
			m.CriticalRuleViolations++
		}
	}
	m.AverageScore = sum.Div(decimal.NewFromInt(int64(len(results)))).Round(2)
	return m
}
