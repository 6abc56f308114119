package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.IncRun("success")
	m.IncRun("success")
	m.SetCandidates("ranked", 12)
	m.AddRejected("pre_filter", 3)
	m.IncSetup("ORB_BREAKOUT")
	m.SetPicks(5)
	m.IncCache(true)
	m.IncCache(false)
	m.ObserveStage("indicators", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.CandidateCount.WithLabelValues("ranked")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RejectedTotal.WithLabelValues("pre_filter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SetupsTotal.WithLabelValues("ORB_BREAKOUT")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.PicksLast))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncRun("error")
		m.SetCandidates("ranked", 1)
		m.AddRejected("post_filter", 1)
		m.IncSetup("FALLBACK")
		m.SetPicks(0)
		m.IncProviderError()
		m.IncCache(true)
		m.ObserveStage("ranker", time.Now())
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SetPicks(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "momentum_scan_picks 3"))
}
