package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/morpho-cli/internal/config"
	"github.com/sells-group/morpho-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertMissingGroups  AlertType = "missing_groups"
)

// Severity ranks alerts for the receiving webhook.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// minFinishedRuns is the sample below which the failure rate is noise.
const minFinishedRuns = 5

// Alert is one breached threshold.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Subjects  []string       `json:"subjects,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Fingerprint identifies an alert across checks: same type, same cities.
func (a Alert) Fingerprint() string {
	return string(a.Type) + ":" + strings.Join(a.Subjects, ",")
}

// rule inspects a snapshot and reports an alert when its threshold is
// breached.
type rule func(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool)

var rules = []rule{failureRateRule, missingGroupsRule}

func failureRateRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	finished := snap.RunsComplete + snap.RunsFailed
	if finished < minFinishedRuns || snap.FailRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertRunFailureRate,
		Severity: SeverityHigh,
		Message: fmt.Sprintf("%.1f%% of cities failed in the last %dh (%d of %d, threshold %.1f%%)",
			snap.FailRate*100, snap.LookbackHours, snap.RunsFailed, finished, cfg.FailureRateThreshold*100),
		Subjects: snap.FailedCities,
		Details: map[string]any{
			"failure_rate": snap.FailRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       snap.RunsFailed,
			"finished":     finished,
		},
	}, true
}

func missingGroupsRule(_ config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	if len(snap.MissingGroups) == 0 {
		return Alert{}, false
	}
	cities := make([]string, 0, len(snap.MissingGroups))
	for city := range snap.MissingGroups {
		cities = append(cities, city)
	}
	sort.Strings(cities)
	return Alert{
		Type:     AlertMissingGroups,
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("%d of %d stored cities have a metric group with no values", len(cities), snap.CitiesStored),
		Subjects: cities,
		Details:  map[string]any{"groups": snap.MissingGroups},
	}, true
}

// Alerter evaluates snapshots and posts alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	policy resilience.Policy
}

// AlerterOption configures an Alerter.
type AlerterOption func(*Alerter)

// WithHTTPClient replaces the webhook client.
func WithHTTPClient(c *http.Client) AlerterOption {
	return func(a *Alerter) { a.client = c }
}

// WithRetryPolicy sets how webhook deliveries are retried.
func WithRetryPolicy(p resilience.Policy) AlerterOption {
	return func(a *Alerter) { a.policy = p }
}

// NewAlerter creates an Alerter. Deliveries retry twice on a busy webhook.
func NewAlerter(cfg config.MonitoringConfig, opts ...AlerterOption) *Alerter {
	a := &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		policy: resilience.Policy{Attempts: 3, Backoff: time.Second, MaxBackoff: 10 * time.Second, Jitter: 0.2},
	}
	for _, o := range opts {
		o(a)
	}
	if a.policy.OnRetry == nil {
		a.policy.OnRetry = resilience.LogRetries("alert-webhook")
	}
	return a
}

// Evaluate returns the alerts snap triggers, in rule order.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	var alerts []Alert
	for _, r := range rules {
		if alert, ok := r(a.cfg, snap); ok {
			alert.Timestamp = now
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// SendAlerts posts each alert to the webhook and returns how many were
// delivered. Without a webhook nothing is sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}
	log := zap.L().With(zap.String("component", "monitoring.alerter"))

	var sent int
	for _, alert := range alerts {
		_, err := resilience.Retry(ctx, a.policy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.post(ctx, alert)
		})
		if err != nil {
			log.Error("monitoring: send alert", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		log.Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", string(alert.Severity)),
		)
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.TransientStatus(resp.StatusCode) {
			return resilience.Transient(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
