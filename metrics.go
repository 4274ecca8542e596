package tokengate

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that produced a token pair.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected credential checks.
	MetricLoginFailure
	// MetricRegisterSuccess counts completed registrations.
	MetricRegisterSuccess
	// MetricRefreshSuccess counts access tokens minted via refresh.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricValidateAccepted counts tokens that passed the full pipeline.
	MetricValidateAccepted
	// MetricValidateRejected counts tokens rejected by any step.
	MetricValidateRejected
	// MetricRejectDecode through MetricRejectBackend break the rejections
	// down by pipeline step.
	MetricRejectDecode
	MetricRejectBlacklisted
	MetricRejectNotRegistered
	MetricRejectExpired
	MetricRejectPrincipal
	MetricRejectBackend
	// MetricRevokeSuccess counts blacklist markers written.
	MetricRevokeSuccess
	// MetricRevokeNoop counts revocations that had nothing to do
	// (undecodable or already expired token).
	MetricRevokeNoop
	// MetricSubjectCleared counts administrative ClearSubject calls.
	MetricSubjectCleared

	metricCount
)

// Metrics is a fixed-size table of atomic counters. Incrementing is
// lock-free; Snapshot copies the table for export.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}

func rejectionMetric(reason Reason) MetricID {
	switch reason {
	case ReasonDecodeFailed:
		return MetricRejectDecode
	case ReasonBlacklisted:
		return MetricRejectBlacklisted
	case ReasonNotRegistered:
		return MetricRejectNotRegistered
	case ReasonExpired:
		return MetricRejectExpired
	case ReasonPrincipalInactive:
		return MetricRejectPrincipal
	default:
		return MetricRejectBackend
	}
}
