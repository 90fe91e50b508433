package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector(t *testing.T) {
	mc := NewMetricsCollector()

	mc.IncrementRequests("vote_comment")
	mc.IncrementRequests("vote_comment")
	mc.IncrementErrors("vote_comment")
	mc.IncrementRollbacks("vote_comment")
	mc.IncrementDiscarded()
	mc.AddOperationLatency("vote_comment", 5*time.Millisecond)

	snap := mc.Snapshot()
	assert.Equal(t, uint64(2), snap.Requests)
	assert.Equal(t, uint64(1), snap.Errors)
	assert.Equal(t, uint64(1), snap.Rollbacks)
	assert.Equal(t, uint64(1), snap.Discarded)
	assert.Equal(t, 1, snap.Operations["vote_comment"])

	assert.Equal(t, 2.0, testutil.ToFloat64(mc.requests.WithLabelValues("vote_comment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.rollbacks.WithLabelValues("vote_comment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.discarded))

	var out bytes.Buffer
	require.NoError(t, mc.WriteText(&out))
	assert.Contains(t, out.String(), `promptpal_api_requests_total{operation="vote_comment"} 2`)
	assert.Contains(t, out.String(), `promptpal_stale_responses_discarded_total 1`)
	assert.Contains(t, out.String(), `promptpal_operation_duration_seconds_count{operation="vote_comment"} 1`)
}

func TestMetricsCollectorsAreIndependent(t *testing.T) {
	// Each collector has its own registry, so a second one must not panic on
	// duplicate registration.
	first := NewMetricsCollector()
	second := NewMetricsCollector()
	first.IncrementRequests("load_comments")
	assert.Equal(t, uint64(0), second.Snapshot().Requests)
}
