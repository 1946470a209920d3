package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/morpho-cli/internal/config"
)

// Checker evaluates batch health on an interval. An alert is delivered
// when it first fires and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	mu     sync.Mutex
	active map[string]Alert
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lookback := cfg.LookbackWindowHours
	if lookback <= 0 {
		lookback = 24
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  lookback,
		active:    make(map[string]Alert),
	}
}

// Run checks once, then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.Check(ctx)
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot, delivers alerts that were not already
// active and returns every alert the snapshot triggered.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	if ctx.Err() != nil {
		return nil
	}
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: collect", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.transition(alerts)
	if len(fresh) == 0 {
		log.Debug("monitoring: nothing new", zap.Int("active", len(alerts)))
		return alerts
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: check complete",
		zap.Int("alerts_active", len(alerts)),
		zap.Int("alerts_new", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}

// transition replaces the active set with alerts and returns those that
// were not active before. Cleared alerts are logged.
func (c *Checker) transition(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]Alert, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		fp := a.Fingerprint()
		next[fp] = a
		if _, ok := c.active[fp]; !ok {
			fresh = append(fresh, a)
		}
	}
	for fp, a := range c.active {
		if _, ok := next[fp]; !ok {
			zap.L().Info("monitoring: alert cleared", zap.String("type", string(a.Type)), zap.Strings("subjects", a.Subjects))
		}
	}
	c.active = next
	return fresh
}
