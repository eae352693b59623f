package api

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/beacons-backend-go/internal/analysis"
	"github.com/jengzang/beacons-backend-go/internal/bus"
	"github.com/jengzang/beacons-backend-go/internal/config"
	"github.com/jengzang/beacons-backend-go/internal/database"
	"github.com/jengzang/beacons-backend-go/internal/generator"
	"github.com/jengzang/beacons-backend-go/internal/metrics"
	"github.com/jengzang/beacons-backend-go/internal/panel"
	"github.com/jengzang/beacons-backend-go/internal/repository"
	"github.com/jengzang/beacons-backend-go/internal/service"
	"github.com/jengzang/beacons-backend-go/internal/session"
)

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    T      `json:"data"`
}

type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env.Data
}

func newTestRouter(t *testing.T, tweaks ...func(*config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "beacons.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	repo := repository.NewExpandoRepository(conn)

	cache, err := session.NewCache(config.CacheConfig{MaxSizeMB: 64, CounterSize: 1000, TTLMinutes: 10})
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	start := time.Date(2014, 11, 4, 8, 0, 0, 0, time.UTC)
	gen := generator.New(repo,
		generator.WithRand(rand.New(rand.NewSource(7))),
		generator.WithClock(func() time.Time { return start }),
		generator.WithMaxPeople(4),
	)

	m := metrics.New()
	svc := service.NewDashboardService(service.Options{
		Repo:         repo,
		Bus:          bus.NewMemoryBus(),
		Cache:        cache,
		Generator:    gen,
		Aggregation:  analysis.Options{},
		Metrics:      m,
		PollInterval: time.Second,
	})
	t.Cleanup(svc.Close)

	cfg := &config.Config{
		Auth:      config.AuthConfig{JWTSecret: "test-secret", TokenTTLMinutes: 60},
		Tenant:    config.TenantConfig{DefaultCompanyID: 10157},
		RateLimit: config.RateLimitConfig{FakeDataPerMinute: 1, Burst: 1},
	}
	for _, tweak := range tweaks {
		tweak(cfg)
	}
	return SetupRouter(cfg, svc, m)
}

func TestRouter_SessionCreationIsRateLimited(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t, func(cfg *config.Config) {
		cfg.RateLimit.SessionsPerMinute = 1
		cfg.RateLimit.SessionBurst = 2
	})}

	assert.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/session", nil).Code)
	assert.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/session", nil).Code)

	assert.Equal(t, http.StatusTooManyRequests, c.do(http.MethodPost, "/api/v1/session", nil).Code)
}

func TestRouter_Health(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t)}

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/v1/events", nil).Code)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/nope", nil).Code)
}

func TestRouter_DashboardFlow(t *testing.T) {
	c := &client{t: t, router: newTestRouter(t)}

	w := c.do(http.MethodPost, "/api/v1/session", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	sess := decode[struct {
		Token     string `json:"token"`
		SessionID string `json:"session_id"`
	}](t, w)
	require.NotEmpty(t, sess.Token)
	c.token = sess.Token

	type events struct {
		Events []string `json:"events"`
		Total  int      `json:"total"`
	}
	w = c.do(http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[events](t, w).Total)

	// demo data
	w = c.do(http.MethodPost, "/api/v1/panels/region/fake-data", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int64(1000), decode[panel.RegionView](t, w).PollIntervalMs)
	assert.Equal(t, http.StatusTooManyRequests, c.do(http.MethodPost, "/api/v1/panels/region/fake-data", nil).Code)

	var notes []panel.Notification
	require.Eventually(t, func() bool {
		v := decode[panel.RegionView](t, c.do(http.MethodGet, "/api/v1/panels/region", nil))
		notes = append(notes, v.Notifications...)
		return v.Progress == "" && len(v.Events) == len(generator.Events)
	}, 30*time.Second, 50*time.Millisecond)
	require.NotEmpty(t, notes)
	assert.Equal(t, "Created fake data", notes[len(notes)-1].Caption)

	w = c.do(http.MethodGet, "/api/v1/events", nil)
	assert.ElementsMatch(t, generator.Events, decode[events](t, w).Events)

	// region panel
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/v1/panels/region/event", map[string]string{}).Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		c.do(http.MethodPost, "/api/v1/panels/region/event", map[string]string{"event": "Nope"}).Code)

	w = c.do(http.MethodPost, "/api/v1/panels/region/event", map[string]string{"event": "DevCon Frankfurt"})
	require.Equal(t, http.StatusOK, w.Code)
	region := decode[panel.RegionView](t, w)
	require.NotNil(t, region.Chart)
	assert.Equal(t, panel.StateEventLoaded, region.State)

	// proximity panel
	prox := decode[panel.ProximityView](t, c.do(http.MethodGet, "/api/v1/panels/proximity", nil))
	require.True(t, prox.Enabled)
	require.NotEmpty(t, prox.Beacons)
	w = c.do(http.MethodPost, "/api/v1/panels/proximity/beacon", map[string]string{"beacon": prox.Beacons[0]})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DevCon Frankfurt: Individual Beacon Proximity Pings for "+prox.Beacons[0],
		decode[panel.ProximityView](t, w).Chart.Title)

	// table panel
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/v1/panels/table/row", map[string]string{"bucket": "1"}).Code)
	w = c.do(http.MethodPost, "/api/v1/panels/region/point", map[string]string{"series": "Grand Ballroom"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Pings for Region: Grand Ballroom", decode[panel.TableView](t, w).Caption)

	w = c.do(http.MethodPost, "/api/v1/panels/table/row", map[string]string{"bucket": "2"})
	require.Equal(t, http.StatusOK, w.Code)
	region = decode[panel.RegionView](t, c.do(http.MethodGet, "/api/v1/panels/region", nil))
	assert.Equal(t, panel.StateBucketZoomed, region.State)
	assert.Equal(t, 6*5*time.Minute, region.Chart.Extremes.Max.Sub(region.Chart.Extremes.Min))

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/v1/panels/table/row", map[string]string{"bucket": "abc"}).Code)

	w = c.do(http.MethodPost, "/api/v1/panels/table/row", map[string]string{"bucket": ""})
	require.Equal(t, http.StatusOK, w.Code)
	region = decode[panel.RegionView](t, c.do(http.MethodGet, "/api/v1/panels/region", nil))
	assert.Equal(t, panel.StateRegionFocused, region.State)

	// cleanup
	w = c.do(http.MethodDelete, "/api/v1/panels/region/fake-data", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[map[string]bool](t, w)["cancelled"])

	w = c.do(http.MethodDelete, "/api/v1/panels/region/data", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[panel.RegionView](t, w).Events)

	assert.Equal(t, http.StatusOK, c.do(http.MethodDelete, "/api/v1/session", nil).Code)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodDelete, "/api/v1/session", nil).Code)
}

func TestRouter_SessionsDoNotShareState(t *testing.T) {
	router := newTestRouter(t)
	a := &client{t: t, router: router}
	b := &client{t: t, router: router}

	for _, c := range []*client{a, b} {
		w := c.do(http.MethodPost, "/api/v1/session", nil)
		require.Equal(t, http.StatusCreated, w.Code)
		c.token = decode[map[string]string](t, w)["token"]
	}

	assert.Equal(t, http.StatusConflict,
		b.do(http.MethodPost, "/api/v1/panels/region/point", map[string]string{"series": "Bar"}).Code)
	prox := decode[panel.ProximityView](t, a.do(http.MethodGet, "/api/v1/panels/proximity", nil))
	assert.False(t, prox.Enabled)
}
