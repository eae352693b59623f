package service

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/beacons-backend-go/internal/analysis"
	"github.com/jengzang/beacons-backend-go/internal/bus"
	"github.com/jengzang/beacons-backend-go/internal/config"
	"github.com/jengzang/beacons-backend-go/internal/database"
	"github.com/jengzang/beacons-backend-go/internal/generator"
	"github.com/jengzang/beacons-backend-go/internal/metrics"
	"github.com/jengzang/beacons-backend-go/internal/models"
	"github.com/jengzang/beacons-backend-go/internal/panel"
	"github.com/jengzang/beacons-backend-go/internal/repository"
	"github.com/jengzang/beacons-backend-go/internal/session"
)

const company = int64(10157)

type harness struct {
	svc     *DashboardService
	gen     *generator.Generator
	metrics *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "beacons.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	repo := repository.NewExpandoRepository(conn)

	cache, err := session.NewCache(config.CacheConfig{MaxSizeMB: 64, CounterSize: 1000, TTLMinutes: 10})
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	start := time.Date(2014, 11, 4, 8, 0, 0, 0, time.UTC)
	gen := generator.New(repo,
		generator.WithRand(rand.New(rand.NewSource(42))),
		generator.WithClock(func() time.Time { return start }),
		generator.WithMaxPeople(4),
	)

	m := metrics.New()
	svc := NewDashboardService(Options{
		Repo:         repo,
		Bus:          bus.NewMemoryBus(),
		Cache:        cache,
		Generator:    gen,
		Aggregation:  analysis.Options{},
		Metrics:      m,
		PollInterval: time.Second,
	})
	t.Cleanup(svc.Close)

	return &harness{svc: svc, gen: gen, metrics: m}
}

func TestDashboardService_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.gen.MakeFakeData(ctx, company))

	events, err := h.svc.ListEvents(ctx, company)
	require.NoError(t, err)
	assert.ElementsMatch(t, generator.Events, events)

	d, err := h.svc.Session(ctx, "s1", company)
	require.NoError(t, err)

	rv, err := d.Region.View(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, generator.Events, rv.Events)

	require.NoError(t, d.Region.SelectEvent(ctx, "DevCon Frankfurt"))
	rv, err = d.Region.View(ctx)
	require.NoError(t, err)
	require.NotNil(t, rv.Chart)
	assert.Equal(t, panel.StateEventLoaded, rv.State)
	require.NotEmpty(t, rv.Chart.Series)
	length := len(rv.Chart.Series[0].Points)
	assert.Positive(t, length)
	assert.LessOrEqual(t, length, generator.Steps-1)
	for _, s := range rv.Chart.Series {
		assert.Contains(t, generator.Regions, s.Name)
		assert.Len(t, s.Points, length)
	}

	pv, err := d.Proximity.View(ctx)
	require.NoError(t, err)
	assert.True(t, pv.Enabled)
	assert.NotEmpty(t, pv.Beacons)

	require.NoError(t, d.Region.ClickPoint(ctx, "Grand Ballroom"))
	tv, err := d.Table.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pings for Region: Grand Ballroom", tv.Caption)

	require.NoError(t, d.Table.SelectRow(ctx, "10"))
	rv, err = d.Region.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, panel.StateBucketZoomed, rv.State)
	assert.Equal(t, 6*models.BucketWidth, rv.Chart.Extremes.Max.Sub(rv.Chart.Extremes.Min))

	count, err := testutil.GatherAndCount(h.metrics.Registry(), "beacons_aggregate_rows")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, h.svc.EndSession("s1"))
	assert.ErrorIs(t, h.svc.EndSession("s1"), models.ErrSessionNotFound)
}

func TestDashboardService_EmptyEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	events, err := h.svc.ListEvents(ctx, company)
	require.NoError(t, err)
	assert.Empty(t, events)

	d, err := h.svc.Session(ctx, "s1", company)
	require.NoError(t, err)

	err = d.Region.SelectEvent(ctx, "France Symposium")
	assert.ErrorIs(t, err, models.ErrEmptyEvent)

	count, err := testutil.GatherAndCount(h.metrics.Registry(), "beacons_aggregate_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDashboardService_ClearAllData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.gen.MakeFakeData(ctx, company))

	d, err := h.svc.Session(ctx, "s1", company)
	require.NoError(t, err)
	require.NoError(t, d.Region.ClearAllData(ctx))

	events, err := h.svc.ListEvents(ctx, company)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFailureReason(t *testing.T) {
	cases := map[string]error{
		"empty_event":   fmt.Errorf("x: %w", models.ErrEmptyEvent),
		"malformed_row": fmt.Errorf("x: %w", models.ErrMalformedRow),
		"not_found":     models.NewStoreError("read", models.ErrNotFound),
		"cancelled":     context.Canceled,
		"store":         fmt.Errorf("disk full"),
	}
	for want, err := range cases {
		assert.Equal(t, want, failureReason(err))
	}
}
