package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/jengzang/beacons-backend-go/internal/analysis"
	"github.com/jengzang/beacons-backend-go/internal/bus"
	"github.com/jengzang/beacons-backend-go/internal/catalog"
	"github.com/jengzang/beacons-backend-go/internal/generator"
	"github.com/jengzang/beacons-backend-go/internal/logger"
	"github.com/jengzang/beacons-backend-go/internal/metrics"
	"github.com/jengzang/beacons-backend-go/internal/models"
	"github.com/jengzang/beacons-backend-go/internal/panel"
	"github.com/jengzang/beacons-backend-go/internal/repository"
	"github.com/jengzang/beacons-backend-go/internal/session"
)

// Options wires the dashboard service
type Options struct {
	Repo         *repository.ExpandoRepository
	Bus          bus.Bus
	Cache        *session.Cache
	Generator    *generator.Generator
	Aggregation  analysis.Options
	Metrics      *metrics.Metrics
	PollInterval time.Duration
	Limits       panel.Limits
}

// DashboardService handles the business logic behind the dashboard API
type DashboardService struct {
	manager *panel.Manager
	catalog *catalog.Catalog
	log     zerolog.Logger
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(opts Options) *DashboardService {
	log := logger.Component("dashboard")
	cat := catalog.New(opts.Repo)

	gen := opts.Generator
	if gen == nil {
		gen = generator.New(opts.Repo)
	}

	manager := panel.NewManager(panel.Deps{
		Bus:   opts.Bus,
		Cache: opts.Cache,
		Loader: &eventLoader{
			agg:     analysis.NewAggregator(opts.Repo, opts.Aggregation),
			metrics: opts.Metrics,
			log:     log,
		},
		Events:       cat,
		Data:         &fakeData{gen: gen, metrics: opts.Metrics},
		Metrics:      opts.Metrics,
		PollInterval: opts.PollInterval,
	}, opts.Limits)

	if opts.Cache != nil {
		opts.Metrics.WatchCache(opts.Cache)
	}

	return &DashboardService{manager: manager, catalog: cat, log: log}
}

// Session returns the dashboard of a session, opening it on first use
func (s *DashboardService) Session(ctx context.Context, sessionID string, companyID int64) (*panel.Dashboard, error) {
	return s.manager.Open(ctx, sessionID, companyID)
}

// EndSession closes a session and drops its cached data
func (s *DashboardService) EndSession(sessionID string) error {
	if err := s.manager.Remove(sessionID); err != nil {
		return err
	}
	s.log.Info().Str("session", sessionID).Msg("session closed")
	return nil
}

// ListEvents returns the tenant's beacon events
func (s *DashboardService) ListEvents(ctx context.Context, companyID int64) ([]string, error) {
	events, err := s.catalog.ListTenantEvents(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []string{}
	}
	return events, nil
}

// Close closes every session
func (s *DashboardService) Close() {
	s.manager.Close()
}

// eventLoader times aggregations and records their outcome
type eventLoader struct {
	agg     *analysis.Aggregator
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func (l *eventLoader) EventData(ctx context.Context, companyID int64, event string) (*models.EventData, error) {
	start := time.Now()
	data, agg, err := l.agg.EventData(ctx, companyID, event)
	if err != nil {
		l.metrics.AggregateFailed(failureReason(err))
		l.log.Warn().Err(err).Str("event", event).Msg("aggregation failed")
		return nil, err
	}

	elapsed := time.Since(start)
	l.metrics.Aggregated(elapsed, agg.Rows)
	l.log.Debug().Str("event", event).Int("rows", agg.Rows).Int64("last_bucket", agg.LastBucket).
		Dur("took", elapsed).Msg("aggregated event")
	return data, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptyEvent):
		return "empty_event"
	case errors.Is(err, models.ErrMalformedRow):
		return "malformed_row"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "store"
	}
}

// fakeData records generator outcomes
type fakeData struct {
	gen     *generator.Generator
	metrics *metrics.Metrics
}

func (f *fakeData) MakeFakeData(ctx context.Context, companyID int64) error {
	err := f.gen.MakeFakeData(ctx, companyID)
	switch {
	case err == nil:
		f.metrics.FakeDataRun("ok")
	case errors.Is(err, context.Canceled):
		f.metrics.FakeDataRun("cancelled")
	default:
		f.metrics.FakeDataRun("error")
	}
	return err
}

func (f *fakeData) ClearFakeData(ctx context.Context, companyID int64) error {
	return f.gen.ClearFakeData(ctx, companyID)
}
