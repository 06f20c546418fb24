package vapor

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID uint16

const (
	// MetricLoginSuccess counts interactive logins that established a session.
	MetricLoginSuccess MetricID = iota
	// MetricSilentLoginSuccess counts OAuth-token re-logins.
	MetricSilentLoginSuccess
	// MetricLoginFailure counts platform-rejected credential logins.
	MetricLoginFailure
	// MetricLoginOldSession counts stored tokens rejected by the platform.
	MetricLoginOldSession
	// MetricLoginMissingDetails counts attempts rejected by local validation.
	MetricLoginMissingDetails
	// MetricLoginRateLimited counts attempts stopped by the login throttle.
	MetricLoginRateLimited
	// MetricCaptchaChallenged counts rejections that carried a captcha.
	MetricCaptchaChallenged
	// MetricEmailGuardChallenged counts rejections that carried an email hint.
	MetricEmailGuardChallenged
	// MetricEnrollSuccess counts successful authenticator enrollments.
	MetricEnrollSuccess
	// MetricEnrollFailure counts rejected authenticator enrollments.
	MetricEnrollFailure
	// MetricFinalizeSuccess counts successful activations.
	MetricFinalizeSuccess
	// MetricFinalizeFailure counts rejected activations.
	MetricFinalizeFailure
	// MetricRevokeSuccess counts successful revocations.
	MetricRevokeSuccess
	// MetricRevokeFailure counts rejected revocations.
	MetricRevokeFailure
	// MetricGuardCodeGenerated counts codes derived from stored secrets.
	MetricGuardCodeGenerated
	// MetricLoginLatency is the login round-trip histogram.
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and an optional login-latency histogram.
// When disabled, all operations are no-ops.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by the given
// [MetricsConfig].
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a login round-trip duration.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricLoginLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a deep copy of all counters and histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
