package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the registry module.
// Tracks registration outcomes, quorum skips, voiding, notifications and
// read-path latency.
type Metrics struct {
	Registrations        *prometheus.CounterVec
	RegistrationDuration prometheus.Histogram
	AttestationsSkipped  *prometheus.CounterVec
	AddressesVoided      prometheus.Counter
	Notifications        *prometheus.CounterVec
	SettingsUpdates      *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec
	CacheLookups         *prometheus.CounterVec
}

// New registers the registry metrics with the default Prometheus registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the registry metrics with reg. Tests pass a
// fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idregistry_registrations_total",
			Help: "Registration calls by outcome (accepted or the failure reason)",
		}, []string{"outcome"}),
		RegistrationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "idregistry_registration_duration_seconds",
			Help:    "Duration of registration calls including quorum validation and persistence",
			Buckets: durationBuckets,
		}),
		AttestationsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idregistry_attestations_skipped_total",
			Help: "Attestations that did not count toward quorum, by cause",
		}, []string{"cause"}),
		AddressesVoided: factory.NewCounter(prometheus.CounterOpts{
			Name: "idregistry_addresses_voided_total",
			Help: "Addresses permanently voided by address rotation",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idregistry_notifications_total",
			Help: "External receiver notifications by result",
		}, []string{"result"}),
		SettingsUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idregistry_settings_updates_total",
			Help: "Verifier configuration changes by setting",
		}, []string{"setting"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idregistry_query_duration_seconds",
			Help:    "Duration of read queries",
			Buckets: durationBuckets,
		}, []string{"query"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idregistry_cache_lookups_total",
			Help: "Registration cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
	}
}

// RecordRegistration counts a registration outcome. Use "accepted" on success
// and the failure reason otherwise.
func (m *Metrics) RecordRegistration(outcome string) {
	m.Registrations.WithLabelValues(outcome).Inc()
}

// ObserveRegistration records the duration of a registration call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegistration(start time.Time) {
	m.RegistrationDuration.Observe(time.Since(start).Seconds())
}

// RecordSkippedAttestation counts an attestation ignored by the quorum check.
func (m *Metrics) RecordSkippedAttestation(cause string) {
	m.AttestationsSkipped.WithLabelValues(cause).Inc()
}

// AddVoided counts newly voided addresses.
func (m *Metrics) AddVoided(n int) {
	m.AddressesVoided.Add(float64(n))
}

// RecordNotification counts a receiver notification attempt.
func (m *Metrics) RecordNotification(result string) {
	m.Notifications.WithLabelValues(result).Inc()
}

// RecordSettingsUpdate counts a configuration change.
func (m *Metrics) RecordSettingsUpdate(setting string) {
	m.SettingsUpdates.WithLabelValues(setting).Inc()
}

// ObserveQuery records the duration of a read query.
func (m *Metrics) ObserveQuery(query string, start time.Time) {
	m.QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

// RecordCacheLookup counts a cache hit, miss or error.
func (m *Metrics) RecordCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}
