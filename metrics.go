package auth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSessionIssued counts sessions minted at login.
	MetricSessionIssued MetricID = iota
	// MetricReissueSuccess counts successful rotations.
	MetricReissueSuccess
	// MetricReissueDuplicate counts replays absorbed by the grace window.
	MetricReissueDuplicate
	// MetricReuseDetected counts replays that revoked their family.
	MetricReuseDetected
	// MetricTokenMismatch counts presented tokens that differ from the stored value.
	MetricTokenMismatch
	// MetricReissueInvalid counts malformed, expired or unknown refresh tokens.
	MetricReissueInvalid
	// MetricReissueRateLimited counts throttled reissue attempts.
	MetricReissueRateLimited
	// MetricLogoutDevice counts logout-by-device calls.
	MetricLogoutDevice
	// MetricLogoutAll counts logout-all calls.
	MetricLogoutAll
	// MetricFamilyRevoked counts explicit family revocations.
	MetricFamilyRevoked
	// MetricSessionsRevoked counts refresh records moved to REVOKED by any path.
	MetricSessionsRevoked
	// MetricOAuthAuthorizeStarted counts issued authorization URLs.
	MetricOAuthAuthorizeStarted
	// MetricOAuthCallbackSuccess counts callbacks that stored a pending login.
	MetricOAuthCallbackSuccess
	// MetricOAuthCallbackCanceled counts callbacks carrying a provider error.
	MetricOAuthCallbackCanceled
	// MetricOAuthCallbackInvalid counts callbacks with unknown or mismatched state.
	MetricOAuthCallbackInvalid
	// MetricOAuthCallbackError counts failed provider exchanges.
	MetricOAuthCallbackError
	// MetricSocialLoginSuccess counts completed social logins.
	MetricSocialLoginSuccess
	// MetricSocialLoginNewUser counts social logins that created a member.
	MetricSocialLoginNewUser
	// MetricSocialLoginFailure counts failed social logins.
	MetricSocialLoginFailure
	// MetricPollPending counts polls answered with "not yet".
	MetricPollPending
	// MetricPollRateLimited counts throttled poll attempts.
	MetricPollRateLimited
	// MetricSignupInProgress counts signups rejected because another holds the key.
	MetricSignupInProgress
	// MetricRetentionExpired counts records moved to EXPIRED by retention.
	MetricRetentionExpired
	// MetricRetentionDeleted counts records hard-deleted by retention.
	MetricRetentionDeleted
	// MetricRetentionFailure counts failed retention jobs.
	MetricRetentionFailure
	// MetricRateLimitHit counts every throttled request.
	MetricRateLimitHit
	// MetricValidateLatency is the access-token validation latency histogram.
	MetricValidateLatency
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

// Metrics is a lock-free counter table. A nil or disabled Metrics ignores
// every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a counter table configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to the counter. Non-positive n is ignored.
func (m *Metrics) Add(id MetricID, n int64) {
	if m == nil || !m.enabled || id >= metricIDCount || n <= 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, uint64(n))
}

// Observe records d into the latency histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies the current values. Disabled metrics yield empty maps.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
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
