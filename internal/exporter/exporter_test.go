package exporter

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/require"

	"github.com/ariaops/aria-exporter/internal/collector"
	"github.com/ariaops/aria-exporter/internal/models"
)

var testTypes = []string{"VirtualMachine", "HostSystem"}

func newTestRegistry(store *collector.Store, static map[string]string) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(New(store, testTypes, static))
	return reg
}

// render produces the text exposition of the registry, the same format
// served on /metrics.
func render(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		require.NoError(t, enc.Encode(mf))
	}
	return buf.String()
}

func sampleSnapshot() *models.MetricSnapshot {
	return &models.MetricSnapshot{
		Timestamp: time.Now(),
		Up:        true,
		Resources: []models.ResourceDescriptor{
			{ID: "vm-1", Name: "web-01", ResourceType: "VirtualMachine", HealthState: "GREEN"},
			{ID: "vm-2", Name: "web-02", ResourceType: "VirtualMachine", HealthState: "RED"},
			{ID: "vm-3", Name: "db-01", ResourceType: "VirtualMachine", HealthState: "GREEN"},
		},
		Stats: []models.StatSample{
			{ResourceID: "vm-1", ResourceName: "web-01", ResourceType: "VirtualMachine", StatKey: "cpu|usage_average", Value: 42.5, TimestampMs: 1000},
		},
		Alerts: []models.Alert{
			{ResourceID: "vm-2", ResourceName: "web-02", Severity: models.SeverityCritical, Status: models.AlertStatusActive, Message: "CPU contention"},
			{ResourceID: "vm-1", ResourceName: "web-01", Severity: models.SeverityWarning, Status: models.AlertStatusCanceled, Message: "Stale"},
		},
		SuperMetricCount: 2,
		ScrapeDuration:   1500 * time.Millisecond,
	}
}

func TestRender_ScenarioCounts(t *testing.T) {
	store := collector.NewStore()
	store.Publish(sampleSnapshot())

	out := render(t, newTestRegistry(store, nil))

	require.Contains(t, out, `vmware_aria_up 1`)
	require.Contains(t, out, `vmware_aria_resources_total{resource_type="VirtualMachine"} 3`)
	require.Contains(t, out, `vmware_aria_resources_total{resource_type="HostSystem"} 0`,
		"configured type with empty listing still reports zero")
	require.Contains(t, out, `vmware_aria_scrape_duration_seconds 1.5`)
	require.Contains(t, out, `vmware_aria_supermetrics_total 2`)
}

func TestRender_HealthAndStats(t *testing.T) {
	store := collector.NewStore()
	store.Publish(sampleSnapshot())

	out := render(t, newTestRegistry(store, nil))

	require.Contains(t, out, `vmware_aria_resource_health{health_state="RED",resource_name="web-02",resource_type="VirtualMachine"} 1`)
	require.Contains(t, out, `vmware_aria_resource_stats{resource_name="web-01",resource_type="VirtualMachine",stat_name="cpu|usage_average"} 42.5`)
}

func TestRender_Alerts(t *testing.T) {
	store := collector.NewStore()
	store.Publish(sampleSnapshot())

	out := render(t, newTestRegistry(store, nil))

	require.Contains(t, out, `vmware_aria_alerts_total{severity="CRITICAL"} 1`)
	require.Contains(t, out, `vmware_aria_alerts_total{severity="WARNING"} 0`,
		"canceled alerts are not counted")
	require.Contains(t, out, `vmware_aria_alert_info{message="CPU contention",resource_name="web-02",severity="CRITICAL"} 1`)
	require.NotContains(t, out, `message="Stale"`, "canceled alerts get no info row")
}

func TestRender_ScrapeErrorTotals(t *testing.T) {
	store := collector.NewStore()
	snap := sampleSnapshot()
	snap.ScrapeErrors = map[string]int{models.SubsystemStats: 2}
	store.Publish(snap)

	out := render(t, newTestRegistry(store, nil))

	require.Contains(t, out, `vmware_aria_scrape_errors_total{subsystem="stats"} 2`)
	require.Contains(t, out, `vmware_aria_scrape_errors_total{subsystem="resources"} 0`)
	require.Contains(t, out, `vmware_aria_scrape_errors_total{subsystem="alerts"} 0`)
	require.Contains(t, out, `vmware_aria_scrape_errors_total{subsystem="supermetrics"} 0`)
}

func TestRender_NoSnapshotYet(t *testing.T) {
	store := collector.NewStore()

	out := render(t, newTestRegistry(store, nil))

	require.Contains(t, out, "vmware_aria_scrape_errors_total")
	require.NotContains(t, out, "vmware_aria_up",
		"snapshot families are absent before the first cycle")
}

func TestRender_StaticLabels(t *testing.T) {
	store := collector.NewStore()
	store.Publish(sampleSnapshot())

	out := render(t, newTestRegistry(store, map[string]string{"datacenter": "dc1"}))

	require.Contains(t, out, `vmware_aria_up{datacenter="dc1"} 1`)
	require.Contains(t, out, `vmware_aria_resources_total{datacenter="dc1",resource_type="VirtualMachine"} 3`)
}

func TestRender_DeterministicUnderConcurrency(t *testing.T) {
	store := collector.NewStore()
	store.Publish(sampleSnapshot())
	reg := newTestRegistry(store, nil)

	const renders = 8
	outputs := make([]string, renders)
	var wg sync.WaitGroup
	for i := 0; i < renders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outputs[i] = render(t, reg)
		}(i)
	}
	wg.Wait()

	for i := 1; i < renders; i++ {
		require.Equal(t, outputs[0], outputs[i],
			"concurrent renders of one snapshot must be byte-identical")
	}
}

func TestRender_DuplicateStatsKeepLatest(t *testing.T) {
	store := collector.NewStore()
	snap := sampleSnapshot()
	snap.Stats = []models.StatSample{
		{ResourceName: "web-01", ResourceType: "VirtualMachine", StatKey: "cpu|usage_average", Value: 1, TimestampMs: 1000},
		{ResourceName: "web-01", ResourceType: "VirtualMachine", StatKey: "cpu|usage_average", Value: 2, TimestampMs: 2000},
	}
	store.Publish(snap)

	out := render(t, newTestRegistry(store, nil))

	require.Equal(t, 1, strings.Count(out, `stat_name="cpu|usage_average"`))
	require.Contains(t, out, `stat_name="cpu|usage_average"} 2`)
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"cpu|usage_average", "cpu|usage_average"},
		{"with space", "with space"},
		{"line\nbreak", "line_break"},
		{"tab\there", "tab_here"},
		{"bad\xffutf8", "bad_utf8"},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, sanitizeLabel(tt.in), "input %q", tt.in)
	}
}
