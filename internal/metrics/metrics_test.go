package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Aggregated(20*time.Millisecond, 120)
	m.AggregateFailed("empty_event")
	m.FakeDataRun("ok")
	m.FakeDataRun("ok")
	m.Ingested("invalid")
	m.SetSessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.aggregateErrors.WithLabelValues("empty_event")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.fakeDataRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestMessages.WithLabelValues("invalid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Aggregated(time.Second, 1)
		m.AggregateFailed("x")
		m.FakeDataRun("ok")
		m.Ingested("ok")
		m.SetSessions(1)
		m.SessionReaped()
		m.Published("topic", nil)
		m.WatchCache(fakeCache{})
	})
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/events", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/events", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "beacons_http_requests_total"))
}

type fakeCache struct{}

func (fakeCache) HitRatio() float64  { return 0.75 }
func (fakeCache) Hits() uint64       { return 3 }
func (fakeCache) Misses() uint64     { return 1 }
func (fakeCache) Evictions() uint64  { return 4 }
func (fakeCache) Rejections() uint64 { return 2 }

func TestMetrics_PublishesAndReaps(t *testing.T) {
	m := New()

	m.Published("com.liferay.beacons.selectedEvent", nil)
	m.Published("com.liferay.beacons.selectedEvent", nil)
	m.Published("com.liferay.beacons.selectedBucket", errors.New("redis down"))
	m.SessionReaped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.busPublishes.WithLabelValues("com.liferay.beacons.selectedEvent", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busPublishes.WithLabelValues("com.liferay.beacons.selectedBucket", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsReaped))
}

func TestMetrics_WatchCache(t *testing.T) {
	m := New()
	m.WatchCache(fakeCache{})

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	got := make(map[string]float64)
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "beacons_session_cache_") {
			continue
		}
		metric := f.GetMetric()[0]
		if metric.GetGauge() != nil {
			got[f.GetName()] = metric.GetGauge().GetValue()
		} else {
			got[f.GetName()] = metric.GetCounter().GetValue()
		}
	}

	assert.Equal(t, map[string]float64{
		"beacons_session_cache_hit_ratio":        0.75,
		"beacons_session_cache_hits_total":       3,
		"beacons_session_cache_misses_total":     1,
		"beacons_session_cache_evictions_total":  4,
		"beacons_session_cache_rejections_total": 2,
	}, got)
}
