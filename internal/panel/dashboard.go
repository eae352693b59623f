package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jengzang/beacons-backend-go/internal/bus"
	"github.com/jengzang/beacons-backend-go/internal/logger"
	"github.com/jengzang/beacons-backend-go/internal/metrics"
	"github.com/jengzang/beacons-backend-go/internal/models"
	"github.com/jengzang/beacons-backend-go/internal/session"
)

var (
	// ErrBusy is returned when fake data generation is already running for a session
	ErrBusy = errors.New("fake data generation already running")
	// ErrNotReady is returned when a panel action needs data that has not been selected yet
	ErrNotReady = errors.New("panel has no data selected")
)

const (
	publishTimeout = 5 * time.Second
	refillTimeout  = 30 * time.Second
)

// State is the position of a session in the dashboard flow
type State string

const (
	StateIdle          State = "IDLE"
	StateEventLoaded   State = "EVENT_LOADED"
	StateRegionFocused State = "REGION_FOCUSED"
	StateBucketZoomed  State = "BUCKET_ZOOMED"
)

// EventLoader aggregates one event into chart series
type EventLoader interface {
	EventData(ctx context.Context, companyID int64, event string) (*models.EventData, error)
}

// EventLister lists the events a tenant can select
type EventLister interface {
	ListTenantEvents(ctx context.Context, companyID int64) ([]string, error)
}

// DataMaker creates and removes demo data
type DataMaker interface {
	MakeFakeData(ctx context.Context, companyID int64) error
	ClearFakeData(ctx context.Context, companyID int64) error
}

// Deps are the collaborators shared by every dashboard
type Deps struct {
	Bus          bus.Bus
	Cache        *session.Cache
	Loader       EventLoader
	Events       EventLister
	Data         DataMaker
	Metrics      *metrics.Metrics
	PollInterval time.Duration
}

// Dashboard is one user session: a dispatch lane and the three panels that
// coordinate over the bus. Panel state is only touched on the lane.
type Dashboard struct {
	id        string
	companyID int64
	deps      Deps
	lane      *session.Lane
	log       zerolog.Logger

	state State

	Region    *RegionPanel
	Proximity *ProximityPanel
	Table     *TablePanel

	unsubscribe []func()

	// guarded by the owning Manager's mutex
	lastSeen time.Time
}

func newDashboard(id string, companyID int64, deps Deps) (*Dashboard, error) {
	if deps.PollInterval <= 0 {
		deps.PollInterval = time.Second
	}

	d := &Dashboard{
		id:        id,
		companyID: companyID,
		deps:      deps,
		lane:      session.NewLane(),
		log:       logger.Component("panel").With().Str("session", id).Logger(),
		state:     StateIdle,
	}
	d.Region = &RegionPanel{d: d}
	d.Proximity = &ProximityPanel{d: d}
	d.Table = &TablePanel{d: d}

	routes := []struct {
		topic   bus.Topic
		handler func(bus.Event)
	}{
		{bus.SelectedEvent, d.Proximity.onSelectedEvent},
		{bus.SelectedRegion, d.Table.onSelectedRegion},
		{bus.SelectedBucket, d.Region.onSelectedBucket},
	}
	for _, r := range routes {
		cancel, err := deps.Bus.Subscribe(id, r.topic, d.deliver(r.handler))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to subscribe %s: %w", r.topic, err)
		}
		d.unsubscribe = append(d.unsubscribe, cancel)
	}

	return d, nil
}

// ID returns the session id
func (d *Dashboard) ID() string {
	return d.id
}

// CompanyID returns the tenant the session belongs to
func (d *Dashboard) CompanyID() int64 {
	return d.companyID
}

// State returns the current flow state
func (d *Dashboard) State(ctx context.Context) (State, error) {
	var st State
	if err := d.lane.Do(ctx, func() { st = d.state }); err != nil {
		return "", err
	}
	return st, nil
}

// deliver queues bus events on the lane so handlers never run concurrently with panel actions
func (d *Dashboard) deliver(h func(bus.Event)) bus.Handler {
	return func(evt bus.Event) {
		if err := d.lane.Post(func() { h(evt) }); err != nil {
			d.log.Debug().Str("topic", string(evt.Topic)).Err(err).Msg("dropping bus event")
		}
	}
}

// publish must run on the lane
func (d *Dashboard) publish(topic bus.Topic, payload string) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := d.deps.Bus.Publish(ctx, d.id, topic, payload)
	d.deps.Metrics.Published(string(topic), err)
	if err != nil {
		return err
	}
	d.log.Debug().Str("topic", string(topic)).Str("payload", payload).Msg("published")
	return nil
}

// refill re-aggregates event after its session cache entries were evicted,
// stores them again and hands the result to bind on the lane. A selection that
// changed in the meantime drops the result. Must run on the lane.
func (d *Dashboard) refill(event string, bind func(*models.EventData, error)) {
	if event == "" {
		bind(nil, fmt.Errorf("%w: no event selected", ErrNotReady))
		return
	}
	d.log.Warn().Str("event", event).Msg("session cache miss, reloading event")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refillTimeout)
		defer cancel()
		data, err := d.deps.Loader.EventData(ctx, d.companyID, event)

		postErr := d.lane.Post(func() {
			if d.Region.selected != event {
				return
			}
			if err == nil {
				if putErr := d.deps.Cache.PutAll(d.id, cacheEntries(data)); putErr != nil {
					d.log.Warn().Err(putErr).Str("event", event).Msg("reloaded event not cached")
				}
			}
			bind(data, err)
		})
		if postErr != nil {
			d.log.Debug().Err(postErr).Msg("session closed during reload")
		}
	}()
}

// loadEvents fills the region panel's event selector
func (d *Dashboard) loadEvents(ctx context.Context) error {
	events, err := d.deps.Events.ListTenantEvents(ctx, d.companyID)
	return d.lane.Do(ctx, func() {
		if err != nil {
			d.Region.warn(err)
			return
		}
		d.Region.events = events
	})
}

// Close cancels background work, drops subscriptions and clears the session cache
func (d *Dashboard) Close() {
	for _, cancel := range d.unsubscribe {
		cancel()
	}
	d.unsubscribe = nil

	_ = d.lane.Do(context.Background(), func() {
		if d.Region.cancelFake != nil {
			d.Region.cancelFake()
		}
	})
	d.lane.Close()

	if d.deps.Cache != nil {
		d.deps.Cache.Clear(d.id)
	}
}
