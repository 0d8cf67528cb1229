package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRule returns a fixed outcome after an optional delay.
type stubRule struct {
	name    string
	enabled bool
	delay   time.Duration
	result  domain.RuleResult
	err     error
	panics  bool
}

func (r *stubRule) Metadata() Metadata {
	return Metadata{Name: r.name, Version: "1.0", Enabled: r.enabled}
}

func (r *stubRule) Execute(ctx context.Context, tx *domain.Transaction) (domain.RuleResult, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.panics {
		panic("boom")
	}
	return r.result, r.err
}

func triggered(score int64) domain.RuleResult {
	return domain.RuleResult{Triggered: true, Score: decimal.NewFromInt(score), Reason: "stub"}
}

func testTx() *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx-1",
		AccountID: "acc-1",
		Type:      domain.TxPurchase,
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
		Timestamp: time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
		Location:  "New York, NY, USA",
	}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("TriggeredGetsSeverityFromScore", func(t *testing.T) {
		res := Evaluate(ctx, &stubRule{name: "R", enabled: true, result: triggered(75)}, testTx())
		assert.Equal(t, "R", res.RuleName)
		assert.Equal(t, "1.0", res.RuleVersion)
		assert.True(t, res.Triggered)
		assert.Equal(t, domain.SeverityHigh, res.Severity)
		assert.Equal(t, NoActionRequired, res.Recommendation)
		assert.False(t, res.EvaluatedAt.IsZero())
	})

	t.Run("NotTriggeredIsLow", func(t *testing.T) {
		res := Evaluate(ctx, &stubRule{name: "R", enabled: true, result: domain.RuleResult{Reason: "fine"}}, testTx())
		assert.False(t, res.Triggered)
		assert.Equal(t, domain.SeverityLow, res.Severity)
		assert.True(t, res.Score.IsZero())
	})

	t.Run("ScoreIsClamped", func(t *testing.T) {
		res := Evaluate(ctx, &stubRule{name: "R", enabled: true, result: triggered(140)}, testTx())
		assert.True(t, res.Score.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, domain.SeverityCritical, res.Severity)
	})

	t.Run("Disabled", func(t *testing.T) {
		res := Evaluate(ctx, &stubRule{name: "R", enabled: false, result: triggered(90)}, testTx())
		assert.False(t, res.Triggered)
		assert.Equal(t, domain.SeverityInfo, res.Severity)
		assert.Equal(t, ReasonDisabled, res.Reason)
	})

	t.Run("ErrorBecomesErrorResult", func(t *testing.T) {
		res := Evaluate(ctx, &stubRule{name: "R", enabled: true, err: errors.New("store down")}, testTx())
		assert.False(t, res.Triggered)
		assert.True(t, res.Score.IsZero())
		assert.Equal(t, domain.SeverityError, res.Severity)
		assert.Equal(t, "Rule execution failed: store down", res.Reason)
		assert.True(t, res.Failed())
	})

	t.Run("PanicBecomesErrorResult", func(t *testing.T) {
		res := Evaluate(ctx, &stubRule{name: "R", enabled: true, panics: true}, testTx())
		assert.Equal(t, domain.SeverityError, res.Severity)
		assert.Contains(t, res.Reason, "boom")
	})
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		score int64
		want  domain.Severity
	}{
		{100, domain.SeverityCritical},
		{90, domain.SeverityCritical},
		{89, domain.SeverityHigh},
		{70, domain.SeverityHigh},
		{69, domain.SeverityMedium},
		{50, domain.SeverityMedium},
		{49, domain.SeverityLow},
		{0, domain.SeverityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFor(decimal.NewFromInt(tt.score)), "score %d", tt.score)
	}
}

type recordingRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingRecorder) RecordRule(res domain.RuleResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, res.RuleName)
}

func TestEngine(t *testing.T) {
	ctx := context.Background()

	rulesFor := func() []Rule {
		return []Rule{
			&stubRule{name: "SLOW", enabled: true, delay: 30 * time.Millisecond, result: triggered(60)},
			&stubRule{name: "BROKEN", enabled: true, err: errors.New("nope")},
			&stubRule{name: "FAST", enabled: true, result: triggered(20)},
		}
	}

	for _, workers := range []int{1, 4} {
		e := NewEngine(domain.EngineConfig{Workers: workers}, nil)
		require.NoError(t, e.Register(rulesFor()...))

		rec := &recordingRecorder{}
		e.SetRecorder(rec)

		results := e.EvaluateAll(ctx, testTx())
		require.Len(t, results, 3, "workers=%d", workers)
		assert.Equal(t, "SLOW", results[0].RuleName)
		assert.Equal(t, "BROKEN", results[1].RuleName)
		assert.Equal(t, "FAST", results[2].RuleName)
		assert.Equal(t, domain.SeverityError, results[1].Severity)
		assert.Equal(t, []string{"SLOW", "BROKEN", "FAST"}, rec.names)
	}
}

func TestEngineRegister(t *testing.T) {
	e := NewEngine(domain.EngineConfig{}, nil)

	require.NoError(t, e.Register(&stubRule{name: "A", enabled: true}))
	assert.Error(t, e.Register(&stubRule{name: "A", enabled: true}), "duplicate names are rejected")
	assert.Error(t, e.Register(&stubRule{name: ""}))
	assert.Equal(t, 1, e.RulesCount())

	meta := e.Rules()
	require.Len(t, meta, 1)
	assert.Equal(t, "A", meta[0].Name)
}

func TestEngineEmpty(t *testing.T) {
	e := NewEngine(domain.EngineConfig{Workers: 8}, nil)
	assert.Empty(t, e.EvaluateAll(context.Background(), testTx()))
}
