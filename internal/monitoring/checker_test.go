package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/morpho-cli/internal/config"
	"github.com/sells-group/morpho-cli/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	collector := NewCollector(&mockSource{}, nil)
	alerter := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.10})
	checker := NewChecker(collector, alerter, config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	collector := NewCollector(&mockSource{}, nil)
	alerter := NewAlerter(config.MonitoringConfig{})

	checker := NewChecker(collector, alerter, config.MonitoringConfig{CheckIntervalSecs: 0})
	require.NotNil(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		FailureRateThreshold: 0.10,
		LookbackWindowHours:  24,
	}
	src := &mockSource{
		tables: map[string]*model.MetricTable{"Lyon": minimalTable("Lyon", model.GroupSpatial)},
	}
	checker := NewChecker(NewCollector(src, nil), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertMissingGroups, alerts[0].Type)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	src := &mockSource{listErr: assert.AnError}
	checker := NewChecker(NewCollector(src, nil), NewAlerter(cfg), cfg)
	assert.Nil(t, checker.Check(context.Background()))
}

func TestChecker_DeliversOnceUntilCleared(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, LookbackWindowHours: 24}
	src := &mockSource{
		tables: map[string]*model.MetricTable{"Lyon": minimalTable("Lyon", model.GroupSpatial)},
	}
	checker := NewChecker(NewCollector(src, nil), NewAlerter(cfg), cfg)
	ctx := context.Background()

	require.Len(t, checker.Check(ctx), 1)
	require.Len(t, checker.Check(ctx), 1, "still active")
	assert.Equal(t, int32(1), received.Load())

	src.tables = map[string]*model.MetricTable{"Lyon": minimalTable("Lyon", "")}
	assert.Empty(t, checker.Check(ctx))

	src.tables = map[string]*model.MetricTable{"Lyon": minimalTable("Lyon", model.GroupSpatial)}
	require.Len(t, checker.Check(ctx), 1)
	assert.Equal(t, int32(2), received.Load(), "fires again after clearing")
}
