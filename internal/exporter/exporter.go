// Package exporter translates the latest snapshot into Prometheus metric
// families. The metric names, types, and label schemas are fixed here;
// values are filled from the current snapshot on every scrape of /metrics.
// Rendering is pure: it reads the snapshot and the store's cumulative error
// totals, mutates nothing, and tolerates concurrent renders.
package exporter

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ariaops/aria-exporter/internal/collector"
	"github.com/ariaops/aria-exporter/internal/models"
)

// Exporter implements prometheus.Collector over the snapshot store.
type Exporter struct {
	store         *collector.Store
	resourceTypes []string

	up             *prometheus.Desc
	scrapeDuration *prometheus.Desc
	scrapeErrors   *prometheus.Desc
	resourcesTotal *prometheus.Desc
	resourceHealth *prometheus.Desc
	resourceStats  *prometheus.Desc
	alertsTotal    *prometheus.Desc
	alertInfo      *prometheus.Desc
	superTotal     *prometheus.Desc
}

// New creates the exporter. staticLabels are attached to every family as
// constant labels; resourceTypes pins the resources_total rows so a type
// with an empty listing still reports 0.
func New(store *collector.Store, resourceTypes []string, staticLabels map[string]string) *Exporter {
	constLabels := prometheus.Labels(staticLabels)

	types := make([]string, len(resourceTypes))
	copy(types, resourceTypes)
	sort.Strings(types)

	return &Exporter{
		store:         store,
		resourceTypes: types,

		up: prometheus.NewDesc(
			"vmware_aria_up",
			"1 if the last cycle's resource listing succeeded for at least one type, else 0.",
			nil, constLabels),
		scrapeDuration: prometheus.NewDesc(
			"vmware_aria_scrape_duration_seconds",
			"Wall-clock duration of the last scrape cycle.",
			nil, constLabels),
		scrapeErrors: prometheus.NewDesc(
			"vmware_aria_scrape_errors_total",
			"Cumulative scrape error count per subsystem.",
			[]string{"subsystem"}, constLabels),
		resourcesTotal: prometheus.NewDesc(
			"vmware_aria_resources_total",
			"Number of resources of each type in the last snapshot.",
			[]string{"resource_type"}, constLabels),
		resourceHealth: prometheus.NewDesc(
			"vmware_aria_resource_health",
			"Current health state of a resource; always 1 for the reported state.",
			[]string{"resource_type", "resource_name", "health_state"}, constLabels),
		resourceStats: prometheus.NewDesc(
			"vmware_aria_resource_stats",
			"Latest performance stat sample per resource and stat key.",
			[]string{"resource_type", "resource_name", "stat_name"}, constLabels),
		alertsTotal: prometheus.NewDesc(
			"vmware_aria_alerts_total",
			"Number of active alerts by severity.",
			[]string{"severity"}, constLabels),
		alertInfo: prometheus.NewDesc(
			"vmware_aria_alert_info",
			"One row per active alert.",
			[]string{"resource_name", "severity", "message"}, constLabels),
		superTotal: prometheus.NewDesc(
			"vmware_aria_supermetrics_total",
			"Number of supermetric definitions on the upstream.",
			nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.up
	ch <- e.scrapeDuration
	ch <- e.scrapeErrors
	ch <- e.resourcesTotal
	ch <- e.resourceHealth
	ch <- e.resourceStats
	ch <- e.alertsTotal
	ch <- e.alertInfo
	ch <- e.superTotal
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	totals := e.store.ErrorTotals()
	subsystems := make([]string, 0, len(totals))
	for s := range totals {
		subsystems = append(subsystems, s)
	}
	sort.Strings(subsystems)
	for _, s := range subsystems {
		ch <- prometheus.MustNewConstMetric(
			e.scrapeErrors, prometheus.CounterValue, float64(totals[s]), s)
	}

	snap := e.store.Latest()
	if snap == nil {
		// No cycle has completed yet; only the error counters exist.
		return
	}

	upValue := 0.0
	if snap.Up {
		upValue = 1.0
	}
	ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, upValue)
	ch <- prometheus.MustNewConstMetric(
		e.scrapeDuration, prometheus.GaugeValue, snap.ScrapeDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(
		e.superTotal, prometheus.GaugeValue, float64(snap.SuperMetricCount))

	counts := snap.ResourceCounts(e.resourceTypes)
	for _, t := range e.resourceTypes {
		ch <- prometheus.MustNewConstMetric(
			e.resourcesTotal, prometheus.GaugeValue, float64(counts[t]), sanitizeLabel(t))
	}

	e.collectHealth(ch, snap)
	e.collectStats(ch, snap)
	e.collectAlerts(ch, snap)
}

// collectHealth emits one row per resource with its current health state.
func (e *Exporter) collectHealth(ch chan<- prometheus.Metric, snap *models.MetricSnapshot) {
	seen := make(map[[3]string]bool, len(snap.Resources))
	for _, r := range snap.Resources {
		key := [3]string{
			sanitizeLabel(r.ResourceType),
			sanitizeLabel(r.Name),
			sanitizeLabel(r.HealthState),
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		ch <- prometheus.MustNewConstMetric(
			e.resourceHealth, prometheus.GaugeValue, 1, key[0], key[1], key[2])
	}
}

// collectStats emits the latest sample per label tuple. The snapshot may
// hold duplicate (resource, stat key) pairs when names collide after
// sanitization; only the newest sample survives, since the registry rejects
// duplicate label sets.
func (e *Exporter) collectStats(ch chan<- prometheus.Metric, snap *models.MetricSnapshot) {
	type row struct {
		value float64
		ts    int64
	}
	latest := make(map[[3]string]row, len(snap.Stats))
	for _, s := range snap.Stats {
		key := [3]string{
			sanitizeLabel(s.ResourceType),
			sanitizeLabel(s.ResourceName),
			sanitizeLabel(s.StatKey),
		}
		if prev, ok := latest[key]; ok && prev.ts >= s.TimestampMs {
			continue
		}
		latest[key] = row{value: s.Value, ts: s.TimestampMs}
	}
	for key, r := range latest {
		ch <- prometheus.MustNewConstMetric(
			e.resourceStats, prometheus.GaugeValue, r.value, key[0], key[1], key[2])
	}
}

// collectAlerts emits per-severity counts plus one info row per active alert.
func (e *Exporter) collectAlerts(ch chan<- prometheus.Metric, snap *models.MetricSnapshot) {
	counts := snap.ActiveAlertCounts()
	severities := make([]string, 0, len(counts))
	for s := range counts {
		severities = append(severities, s)
	}
	sort.Strings(severities)
	for _, s := range severities {
		ch <- prometheus.MustNewConstMetric(
			e.alertsTotal, prometheus.GaugeValue, float64(counts[s]), sanitizeLabel(s))
	}

	seen := make(map[[3]string]bool)
	for _, a := range snap.ActiveAlerts() {
		key := [3]string{
			sanitizeLabel(a.ResourceName),
			sanitizeLabel(a.Severity),
			sanitizeLabel(a.Message),
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		ch <- prometheus.MustNewConstMetric(
			e.alertInfo, prometheus.GaugeValue, 1, key[0], key[1], key[2])
	}
}

// sanitizeLabel makes an upstream string safe as an exposition-format label
// value: invalid UTF-8 and control characters (including newlines) are
// replaced with underscores. Stat keys like "cpu|usage_average" pass
// through unchanged.
func sanitizeLabel(v string) string {
	if utf8.ValidString(v) && !strings.ContainsFunc(v, unicode.IsControl) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		if r == utf8.RuneError || unicode.IsControl(r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
