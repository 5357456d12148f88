package server

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/xzl01/dlm/rpc/common"
)

// --------------------------------------------------------------------------
// Server metrics (exposed at GET /metrics)
// --------------------------------------------------------------------------

// shardMetrics holds the VictoriaMetrics series of one shard
type shardMetrics struct {
	shardID     uint64
	grantTime   *metrics.Histogram
	basts       *metrics.Counter
	lateBasts   *metrics.Counter
	sessionsNew *metrics.Counter
}

func newShardMetrics(shardID uint64) *shardMetrics {
	return &shardMetrics{
		shardID:     shardID,
		grantTime:   metrics.GetOrCreateHistogram(fmt.Sprintf(`dlm_lock_grant_seconds{shard="%d"}`, shardID)),
		basts:       metrics.GetOrCreateCounter(fmt.Sprintf(`dlm_basts_total{shard="%d"}`, shardID)),
		lateBasts:   metrics.GetOrCreateCounter(fmt.Sprintf(`dlm_basts_dropped_total{shard="%d"}`, shardID)),
		sessionsNew: metrics.GetOrCreateCounter(fmt.Sprintf(`dlm_sessions_total{shard="%d"}`, shardID)),
	}
}

// request counts one handled request of type t
func (m *shardMetrics) request(t common.MessageType) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dlm_requests_total{shard="%d",type=%q}`, m.shardID, t.String())).Inc()
}

// failure counts one request of type t that returned a negative rc
func (m *shardMetrics) failure(t common.MessageType, rc int) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dlm_request_errors_total{shard="%d",type=%q,rc="%d"}`, m.shardID, t.String(), rc)).Inc()
}

// sessions registers a gauge reporting the number of open sessions
func (m *shardMetrics) sessions(count func() int) {
	metrics.GetOrCreateGauge(fmt.Sprintf(`dlm_sessions_active{shard="%d"}`, m.shardID), func() float64 {
		return float64(count())
	})
}
