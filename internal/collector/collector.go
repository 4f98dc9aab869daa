// Package collector orchestrates one scrape cycle against Aria Operations:
// ensure a session, list resources per configured type, fetch stats for the
// detailed types, fetch alerts, and publish the result as an immutable
// snapshot. Failures are isolated per subsystem and never escape the cycle.
package collector

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ariaops/aria-exporter/internal/aria"
	"github.com/ariaops/aria-exporter/internal/config"
	"github.com/ariaops/aria-exporter/internal/models"
)

// API is the slice of the Aria client the collector uses. Narrowed to an
// interface so cycle tests can run against a fake upstream.
type API interface {
	ListResources(ctx context.Context, resourceType string) ([]models.ResourceDescriptor, error)
	ResourceStats(ctx context.Context, res models.ResourceDescriptor, window time.Duration, maxStats int) ([]models.StatSample, error)
	ActiveAlerts(ctx context.Context) ([]models.Alert, error)
	SuperMetricCount(ctx context.Context) (int, error)
}

// TokenSource is the slice of the session manager the collector uses to
// verify authentication before touching any data endpoint.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Collector runs scrape cycles and publishes snapshots to a Store.
type Collector struct {
	api      API
	tokens   TokenSource
	store    *Store
	cfg      config.MetricsConfig
	detailed map[string]bool
	logger   *zap.Logger
}

// New creates a collector. The store is shared with the renderer.
func New(api API, tokens TokenSource, store *Store, cfg config.MetricsConfig, logger *zap.Logger) *Collector {
	detailed := make(map[string]bool, len(cfg.DetailedResourceTypes))
	for _, t := range cfg.DetailedResourceTypes {
		detailed[t] = true
	}
	return &Collector{
		api:      api,
		tokens:   tokens,
		store:    store,
		cfg:      cfg,
		detailed: detailed,
		logger:   logger,
	}
}

// Run executes exactly one scrape cycle and publishes the resulting
// snapshot. It never returns an error: every failure is recorded in the
// snapshot's error counts or, for authentication, in Up=false.
func (c *Collector) Run(ctx context.Context) *models.MetricSnapshot {
	start := time.Now()
	snap := &models.MetricSnapshot{
		Timestamp:    start,
		ScrapeErrors: make(map[string]int),
	}

	// A failed login aborts the whole cycle before any data call.
	if _, err := c.tokens.Token(ctx); err != nil {
		c.logger.Error("Scrape cycle aborted: authentication failed", zap.Error(err))
		snap.Up = false
		snap.ScrapeDuration = time.Since(start)
		c.store.Publish(snap)
		return snap
	}

	listedAny := false
	for _, resourceType := range c.cfg.ResourceTypes {
		resources, ok := c.collectResources(ctx, resourceType, snap)
		if !ok {
			continue
		}
		listedAny = true
		snap.Resources = append(snap.Resources, resources...)

		if c.detailed[resourceType] {
			c.collectStats(ctx, resources, snap)
		}
	}

	c.collectAlerts(ctx, snap)

	if c.cfg.CollectSupermetrics {
		count, err := c.api.SuperMetricCount(ctx)
		if err != nil {
			c.logger.Warn("Fetching supermetrics failed", zap.Error(err))
			snap.ScrapeErrors[models.SubsystemSupermetrics]++
		} else {
			snap.SuperMetricCount = count
		}
	}

	snap.Up = listedAny
	snap.ScrapeDuration = time.Since(start)
	c.store.Publish(snap)

	c.logger.Info("Scrape cycle completed",
		zap.Bool("up", snap.Up),
		zap.Int("resources", len(snap.Resources)),
		zap.Int("stats", len(snap.Stats)),
		zap.Int("alerts", len(snap.Alerts)),
		zap.Duration("duration", snap.ScrapeDuration))

	return snap
}

// collectResources lists one resource type. A partial listing keeps its
// data and counts an error; a total failure counts an error and skips the
// type for this cycle. The second return value reports whether any data
// was obtained.
func (c *Collector) collectResources(ctx context.Context, resourceType string, snap *models.MetricSnapshot) ([]models.ResourceDescriptor, bool) {
	resources, err := c.api.ListResources(ctx, resourceType)
	if err != nil {
		snap.ScrapeErrors[models.SubsystemResources]++

		var partial *aria.PartialDataError
		if errors.As(err, &partial) && len(resources) > 0 {
			c.logger.Warn("Partial resource listing",
				zap.String("resource_type", resourceType),
				zap.Int("kept", len(resources)),
				zap.Error(err))
			return resources, true
		}

		c.logger.Warn("Resource listing failed",
			zap.String("resource_type", resourceType),
			zap.Error(err))
		return nil, false
	}
	return resources, true
}

// collectStats fetches stats per resource. One resource failing past its
// retry budget is counted and skipped; the rest of the cycle continues.
func (c *Collector) collectStats(ctx context.Context, resources []models.ResourceDescriptor, snap *models.MetricSnapshot) {
	window := c.cfg.StatsTimeRange.Duration
	for _, res := range resources {
		samples, err := c.api.ResourceStats(ctx, res, window, c.cfg.MaxStatsPerResource)
		if err != nil {
			snap.ScrapeErrors[models.SubsystemStats]++
			c.logger.Debug("Stats fetch failed",
				zap.String("resource", res.Name),
				zap.Error(err))
			continue
		}
		snap.Stats = append(snap.Stats, samples...)
	}
}

// collectAlerts fetches the global alert listing and resolves resource
// names from the descriptors gathered this cycle.
func (c *Collector) collectAlerts(ctx context.Context, snap *models.MetricSnapshot) {
	alerts, err := c.api.ActiveAlerts(ctx)
	if err != nil {
		snap.ScrapeErrors[models.SubsystemAlerts]++
		var partial *aria.PartialDataError
		if !errors.As(err, &partial) || len(alerts) == 0 {
			c.logger.Warn("Alert listing failed", zap.Error(err))
			return
		}
		c.logger.Warn("Partial alert listing", zap.Int("kept", len(alerts)), zap.Error(err))
	}

	names := make(map[string]string, len(snap.Resources))
	for _, r := range snap.Resources {
		names[r.ID] = r.Name
	}
	for i := range alerts {
		if name, ok := names[alerts[i].ResourceID]; ok {
			alerts[i].ResourceName = name
		}
	}
	snap.Alerts = alerts
}
