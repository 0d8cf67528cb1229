package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Recorder observes every rule result produced by the engine.
type Recorder interface {
	RecordRule(result domain.RuleResult)
}

// Engine runs the registered rules against a transaction.
// Results are always returned in registration order, one per rule.
type Engine struct {
	mu       sync.RWMutex
	rules    []Rule
	workers  int
	logger   *zap.Logger
	recorder Recorder
}

// NewEngine creates a rule engine. Workers <= 1 evaluates sequentially.
func NewEngine(cfg domain.EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		workers: workers,
		logger:  logger.Named("rules"),
	}
}

// Register appends rules to the evaluation order.
func (e *Engine) Register(rules ...Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool, len(e.rules))
	for _, r := range e.rules {
		seen[r.Metadata().Name] = true
	}
	for _, r := range rules {
		name := r.Metadata().Name
		if name == "" {
			return fmt.Errorf("rule name is required")
		}
		if seen[name] {
			return fmt.Errorf("rule %s already registered", name)
		}
		seen[name] = true
		e.rules = append(e.rules, r)
	}
	return nil
}

// SetRecorder installs a result observer.
func (e *Engine) SetRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

// EvaluateAll evaluates every registered rule.
func (e *Engine) EvaluateAll(ctx context.Context, tx *domain.Transaction) []domain.RuleResult {
	e.mu.RLock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	recorder := e.recorder
	e.mu.RUnlock()

	results := make([]domain.RuleResult, len(rules))

	if e.workers == 1 || len(rules) < 2 {
		for i, r := range rules {
			results[i] = Evaluate(ctx, r, tx)
		}
	} else {
		// Each goroutine owns one slot, so registration order survives.
		var g errgroup.Group
		g.SetLimit(e.workers)
		for i, r := range rules {
			g.Go(func() error {
				results[i] = Evaluate(ctx, r, tx)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, res := range results {
		if res.Failed() {
			e.logger.Warn("rule execution failed",
				zap.String("rule", res.RuleName),
				zap.String("transaction_id", tx.ID),
				zap.String("reason", res.Reason),
			)
		} else {
			e.logger.Debug("rule evaluated",
				zap.String("rule", res.RuleName),
				zap.Bool("triggered", res.Triggered),
				zap.String("score", res.Score.String()),
				zap.Duration("duration", res.Duration),
			)
		}
		if recorder != nil {
			recorder.RecordRule(res)
		}
	}

	return results
}

// Rules returns the metadata of the registered rules in evaluation order.
func (e *Engine) Rules() []Metadata {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Metadata, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.Metadata())
	}
	return out
}

// RulesCount returns the number of registered rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}
