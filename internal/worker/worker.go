// Package worker consumes alert resolution commands from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.uber.org/zap"
)

// Resolver resolves fraud alerts.
type Resolver interface {
	ResolveAlert(ctx context.Context, alertID, resolvedBy, notes string) (*domain.FraudAlert, error)
}

// Worker applies AlertResolution commands published on TopicAlertResolve.
type Worker struct {
	bus      domain.EventBus
	resolver Resolver
	logger   *zap.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	resolved atomic.Int64
	rejected atomic.Int64
}

// NewWorker creates a new resolution worker.
func NewWorker(bus domain.EventBus, resolver Resolver, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		resolver: resolver,
		logger:   logger.Named("worker"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the resolution topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAlertResolve, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicAlertResolve, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	w.logger.Info("worker started", zap.String("topic", domain.TopicAlertResolve))
	return nil
}

// handleMessage decodes and applies one resolution command. Commands for
// unknown or closed alerts are counted as rejected.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var cmd domain.AlertResolution
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		w.rejected.Add(1)
		return fmt.Errorf("decode alert resolution %s: %w", msg.ID, err)
	}
	if cmd.AlertID == "" || cmd.ResolvedBy == "" {
		w.rejected.Add(1)
		return fmt.Errorf("%w: alert resolution %s needs alertId and resolvedBy", domain.ErrInvalidInput, msg.ID)
	}

	alert, err := w.resolver.ResolveAlert(ctx, cmd.AlertID, cmd.ResolvedBy, cmd.Notes)
	if err != nil {
		w.rejected.Add(1)
		if errors.Is(err, domain.ErrAlertNotFound) || errors.Is(err, domain.ErrAlertClosed) {
			w.logger.Warn("alert resolution rejected",
				zap.String("alert_id", cmd.AlertID),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	w.resolved.Add(1)
	w.logger.Debug("alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("resolved_by", cmd.ResolvedBy),
	)
	return nil
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe", zap.String("topic", sub.Topic()), zap.Error(err))
		}
	}
	w.subscriptions = nil

	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Resolved          int64    `json:"resolved"`
	Rejected          int64    `json:"rejected"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Resolved:          w.resolved.Load(),
		Rejected:          w.rejected.Load(),
	}
}
