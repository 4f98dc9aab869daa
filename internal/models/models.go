// Package models defines the data structures shared between the Aria API
// client, the collector, and the Prometheus renderer. Everything here is a
// plain value type: once a MetricSnapshot is published it is never mutated.
package models

import "time"

// Alert severities as reported by Aria Operations.
const (
	SeverityCritical  = "CRITICAL"
	SeverityImmediate = "IMMEDIATE"
	SeverityWarning   = "WARNING"
	SeverityInfo      = "INFO"
)

// Alert statuses as reported by Aria Operations.
const (
	AlertStatusActive   = "ACTIVE"
	AlertStatusCanceled = "CANCELED"
)

// Subsystem names used as keys in ScrapeErrors and as label values on the
// scrape error counter.
const (
	SubsystemResources    = "resources"
	SubsystemStats        = "stats"
	SubsystemAlerts       = "alerts"
	SubsystemSupermetrics = "supermetrics"
)

// ResourceDescriptor is one inventory object (VM, host, datastore, ...)
// as returned by a resource listing. Immutable once fetched.
type ResourceDescriptor struct {
	ID           string
	ResourceType string
	Name         string
	AdapterKind  string
	HealthState  string
	ParentPath   string
}

// StatSample is the most recent value of one performance counter on one
// resource within the configured time window.
type StatSample struct {
	ResourceID   string
	ResourceName string
	ResourceType string
	StatKey      string
	Unit         string
	Value        float64
	TimestampMs  int64
}

// Alert is a single alert row from the upstream alert listing.
type Alert struct {
	ResourceID   string
	ResourceName string
	Severity     string
	Status       string
	Message      string
}

// MetricSnapshot is the aggregate result of one scrape cycle. The collector
// builds it privately, then publishes it with an atomic pointer swap; readers
// must treat it as read-only.
type MetricSnapshot struct {
	Timestamp        time.Time
	Resources        []ResourceDescriptor
	Stats            []StatSample
	Alerts           []Alert
	SuperMetricCount int
	ScrapeDuration   time.Duration
	ScrapeErrors     map[string]int
	Up               bool
}

// ResourceCounts returns the number of resources per resource type.
// Configured types with an empty listing must still appear with count 0;
// the collector guarantees that by pre-seeding the Resources slice per type,
// so callers pass the configured type list here.
func (s *MetricSnapshot) ResourceCounts(configuredTypes []string) map[string]int {
	counts := make(map[string]int, len(configuredTypes))
	for _, t := range configuredTypes {
		counts[t] = 0
	}
	for _, r := range s.Resources {
		counts[r.ResourceType]++
	}
	return counts
}

// ActiveAlertCounts returns the number of ACTIVE alerts per severity.
// All four severities are always present so the metric rows are stable.
func (s *MetricSnapshot) ActiveAlertCounts() map[string]int {
	counts := map[string]int{
		SeverityCritical:  0,
		SeverityImmediate: 0,
		SeverityWarning:   0,
		SeverityInfo:      0,
	}
	for _, a := range s.Alerts {
		if a.Status != AlertStatusActive {
			continue
		}
		counts[a.Severity]++
	}
	return counts
}

// ActiveAlerts returns only the alerts with status ACTIVE.
func (s *MetricSnapshot) ActiveAlerts() []Alert {
	out := make([]Alert, 0, len(s.Alerts))
	for _, a := range s.Alerts {
		if a.Status == AlertStatusActive {
			out = append(out, a)
		}
	}
	return out
}
