package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	mu     sync.Mutex
	alerts map[string]domain.AlertStatus
	calls  []domain.AlertResolution
}

func (f *fakeResolver) ResolveAlert(ctx context.Context, alertID, resolvedBy, notes string) (*domain.FraudAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain.AlertResolution{AlertID: alertID, ResolvedBy: resolvedBy, Notes: notes})

	status, ok := f.alerts[alertID]
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: %s", domain.ErrAlertNotFound, alertID)
	case status == domain.AlertClosed:
		return nil, domain.ErrAlertClosed
	}
	f.alerts[alertID] = domain.AlertResolved
	return &domain.FraudAlert{ID: alertID, Status: domain.AlertResolved, ResolvedBy: resolvedBy}, nil
}

func (f *fakeResolver) status(id string) domain.AlertStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts[id]
}

func publish(t *testing.T, b domain.EventBus, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), domain.TopicAlertResolve, data))
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100, nil)
	defer eventBus.Close()

	resolver := &fakeResolver{alerts: map[string]domain.AlertStatus{
		"alert-1": domain.AlertActive,
		"alert-2": domain.AlertClosed,
	}}
	w := NewWorker(eventBus, resolver, nil)

	require.NoError(t, w.Start())
	defer w.Stop()

	stats := w.GetStats()
	assert.Equal(t, 1, stats.SubscriptionCount)
	assert.Equal(t, []string{domain.TopicAlertResolve}, stats.Topics)

	t.Run("ResolvesAlert", func(t *testing.T) {
		publish(t, eventBus, domain.AlertResolution{AlertID: "alert-1", ResolvedBy: "analyst", Notes: "false positive"})

		assert.Eventually(t, func() bool {
			return resolver.status("alert-1") == domain.AlertResolved
		}, time.Second, 10*time.Millisecond)
		assert.Eventually(t, func() bool { return w.GetStats().Resolved == 1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("RejectsClosedAndUnknown", func(t *testing.T) {
		publish(t, eventBus, domain.AlertResolution{AlertID: "alert-2", ResolvedBy: "analyst"})
		publish(t, eventBus, domain.AlertResolution{AlertID: "missing", ResolvedBy: "analyst"})

		assert.Eventually(t, func() bool { return w.GetStats().Rejected == 2 }, time.Second, 10*time.Millisecond)
		assert.Equal(t, domain.AlertClosed, resolver.status("alert-2"))
	})

	t.Run("RejectsMalformedCommands", func(t *testing.T) {
		before := w.GetStats().Rejected
		require.NoError(t, eventBus.Publish(context.Background(), domain.TopicAlertResolve, []byte("{not json")))
		publish(t, eventBus, domain.AlertResolution{AlertID: "alert-1"})

		assert.Eventually(t, func() bool { return w.GetStats().Rejected == before+2 }, time.Second, 10*time.Millisecond)
	})
}

func TestWorkerStop(t *testing.T) {
	eventBus := bus.NewChannelBus(10, nil)
	defer eventBus.Close()

	resolver := &fakeResolver{alerts: map[string]domain.AlertStatus{"a": domain.AlertActive}}
	w := NewWorker(eventBus, resolver, nil)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())

	assert.Zero(t, w.GetStats().SubscriptionCount)

	publish(t, eventBus, domain.AlertResolution{AlertID: "a", ResolvedBy: "x"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, domain.AlertActive, resolver.status("a"))
}
