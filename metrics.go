package vpathfs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for path and enumeration activity.
// A nil *Metrics records nothing.
type Metrics struct {
	sessionsOpened      prometheus.Counter
	sessionsReused      prometheus.Counter
	sessionsExpired     prometheus.Counter
	sessionsActive      prometheus.Gauge
	entriesEnumerated   prometheus.Counter
	enumerationErrors   *prometheus.CounterVec
	enumerationDuration prometheus.Histogram
	attributeCalls      *prometheus.CounterVec
	workgroupProbes     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		sessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "vpathfs_enum_sessions_opened_total",
			Help: "Directory enumeration sessions started",
		}),
		sessionsReused: f.NewCounter(prometheus.CounterOpts{
			Name: "vpathfs_enum_sessions_reused_total",
			Help: "Open requests served by a live cached session",
		}),
		sessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "vpathfs_enum_sessions_expired_total",
			Help: "Cached sessions replaced because they were stale",
		}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "vpathfs_enum_sessions_loading",
			Help: "Sessions whose background enumeration is still running",
		}),
		entriesEnumerated: f.NewCounter(prometheus.CounterOpts{
			Name: "vpathfs_enum_entries_total",
			Help: "Directory entries delivered to sessions",
		}),
		enumerationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vpathfs_enum_errors_total",
			Help: "Enumerations terminated by a provider error, by error code",
		}, []string{"code"}),
		enumerationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vpathfs_enum_duration_seconds",
			Help:    "Time from session start to completion",
			Buckets: prometheus.DefBuckets,
		}),
		attributeCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vpathfs_provider_attribute_calls_total",
			Help: "Attribute round trips made to a provider",
		}, []string{"provider"}),
		workgroupProbes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vpathfs_workgroup_probes_total",
			Help: "Workgroup existence probes, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) sessionReused() {
	if m == nil {
		return
	}
	m.sessionsReused.Inc()
}

func (m *Metrics) sessionExpired() {
	if m == nil {
		return
	}
	m.sessionsExpired.Inc()
}

func (m *Metrics) sessionFinished(d time.Duration, code uint32) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.enumerationDuration.Observe(d.Seconds())
	if code != CodeSuccess {
		m.enumerationErrors.WithLabelValues(codeLabel(code)).Inc()
	}
}

func (m *Metrics) entryEnumerated() {
	if m == nil {
		return
	}
	m.entriesEnumerated.Inc()
}

func (m *Metrics) attributeCall(provider string) {
	if m == nil {
		return
	}
	m.attributeCalls.WithLabelValues(provider).Inc()
}

func (m *Metrics) workgroupProbe(result string) {
	if m == nil {
		return
	}
	m.workgroupProbes.WithLabelValues(result).Inc()
}

func codeLabel(code uint32) string {
	switch code {
	case CodeFileNotFound:
		return "file_not_found"
	case CodePathNotFound:
		return "path_not_found"
	case CodeAccessDenied:
		return "access_denied"
	case CodeInvalidHandle:
		return "invalid_handle"
	case CodeNotSupported:
		return "not_supported"
	case CodeBadNetPath:
		return "bad_net_path"
	case CodeInvalidParameter:
		return "invalid_parameter"
	default:
		return "failure"
	}
}
