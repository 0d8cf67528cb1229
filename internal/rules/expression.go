package rules

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// RecReviewRecommended is the recommendation of a matched expression rule.
const RecReviewRecommended = "REVIEW_RECOMMENDED"

// ExpressionRule is an operator-defined rule written in CEL.
type ExpressionRule struct {
	meta       Metadata
	expression string
	program    cel.Program
	boolScore  decimal.Decimal
}

func newExpressionEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("account_id", cel.StringType),
		cel.Variable("device_id", cel.StringType),
		cel.Variable("ip_address", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
	)
}

// NewExpressionRule compiles a CEL rule. The expression must return bool,
// int or double.
func NewExpressionRule(cfg domain.ExpressionRuleConfig) (*ExpressionRule, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("expression rule name is required")
	}

	env, err := newExpressionEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.Name, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.Name, outputType)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.Name, err)
	}

	version := cfg.Version
	if version == "" {
		version = "1.0"
	}

	return &ExpressionRule{
		meta: Metadata{
			Name:        cfg.Name,
			Version:     version,
			Description: cfg.Description,
			Enabled:     cfg.Enabled,
			Priority:    cfg.Priority,
		},
		expression: cfg.Expression,
		program:    program,
		boolScore:  decimal.NewFromFloat(cfg.Score),
	}, nil
}

// NewExpressionRules compiles every configured expression rule, in order.
func NewExpressionRules(cfgs []domain.ExpressionRuleConfig) ([]Rule, error) {
	out := make([]Rule, 0, len(cfgs))
	for _, cfg := range cfgs {
		r, err := NewExpressionRule(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Metadata implements Rule.
func (r *ExpressionRule) Metadata() Metadata {
	return r.meta
}

// Execute implements Rule.
func (r *ExpressionRule) Execute(ctx context.Context, tx *domain.Transaction) (domain.RuleResult, error) {
	activation := map[string]any{
		"amount":            tx.Amount.InexactFloat64(),
		"currency":          tx.Currency,
		"type":              string(tx.Type),
		"location":          tx.Location,
		"country":           CountryOf(tx.Location),
		"hour":              int64(tx.Timestamp.Hour()),
		"account_id":        tx.AccountID,
		"device_id":         tx.DeviceID,
		"ip_address":        tx.IPAddress,
		"merchant_category": tx.MerchantCategory,
	}

	out, _, err := r.program.ContextEval(ctx, activation)
	if err != nil {
		return domain.RuleResult{}, fmt.Errorf("evaluation error: %w", err)
	}

	score := ClampScore(r.toScore(out))
	evidence := map[string]any{
		"expression": r.expression,
		"accountId":  tx.AccountID,
	}

	if !score.IsPositive() {
		return domain.RuleResult{
			Score:    decimal.Zero,
			Reason:   fmt.Sprintf("Expression rule %s not matched", r.meta.Name),
			Evidence: evidence,
		}, nil
	}

	reason := r.meta.Description
	if reason == "" {
		reason = r.expression
	}
	return domain.RuleResult{
		Triggered:      true,
		Score:          score,
		Reason:         fmt.Sprintf("Expression rule %s matched: %s", r.meta.Name, reason),
		Evidence:       evidence,
		Recommendation: RecReviewRecommended,
	}, nil
}

// toScore converts a CEL value to a score.
func (r *ExpressionRule) toScore(val ref.Val) decimal.Decimal {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return r.boolScore
		}
		return decimal.Zero
	case types.Double:
		return decimal.NewFromFloat(float64(v))
	case types.Int:
		return decimal.NewFromInt(int64(v))
	default:
		return decimal.Zero
	}
}
