package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jengzang/beacons-backend-go/internal/bus"
	"github.com/jengzang/beacons-backend-go/internal/models"
	"github.com/jengzang/beacons-backend-go/internal/session"
)

const progressCaption = "Creating some test data, this might take a while..."

// RegionPanel selects an event, charts its region series and drives the
// demo data actions.
type RegionPanel struct {
	d *Dashboard
	inbox

	events    []string
	selected  string
	chart     *Chart
	firstDate time.Time
	lastDate  time.Time

	progress     string
	pollInterval time.Duration
	cancelFake   context.CancelFunc
	fakeDone     chan struct{}
}

// RegionView is what the region panel currently shows
type RegionView struct {
	Events         []string       `json:"events"`
	SelectedEvent  string         `json:"selected_event,omitempty"`
	Chart          *Chart         `json:"chart,omitempty"`
	Progress       string         `json:"progress,omitempty"`
	PollIntervalMs int64          `json:"poll_interval_ms"`
	State          State          `json:"state"`
	Notifications  []Notification `json:"notifications"`
}

// View snapshots the panel and drains its notifications
func (p *RegionPanel) View(ctx context.Context) (RegionView, error) {
	var v RegionView
	err := p.d.lane.Do(ctx, func() {
		v = RegionView{
			Events:         append([]string{}, p.events...),
			SelectedEvent:  p.selected,
			Chart:          p.chart.snapshot(),
			Progress:       p.progress,
			PollIntervalMs: p.pollInterval.Milliseconds(),
			State:          p.d.state,
			Notifications:  p.drain(),
		}
	})
	if err != nil {
		return RegionView{}, err
	}
	return v, nil
}

// SelectEvent aggregates event, stores the result in the session cache,
// announces it on the bus and draws the region chart.
func (p *RegionPanel) SelectEvent(ctx context.Context, event string) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return nil
	}

	data, loadErr := p.d.deps.Loader.EventData(ctx, p.d.companyID, event)

	var result error
	err := p.d.lane.Do(ctx, func() {
		if loadErr != nil {
			p.warn(loadErr)
			result = loadErr
			return
		}
		result = p.apply(data)
	})
	if err != nil {
		return err
	}
	return result
}

func (p *RegionPanel) apply(data *models.EventData) error {
	d := p.d

	// the cache must hold the new event before SELECTED_EVENT goes out
	err := d.deps.Cache.PutAll(d.id, cacheEntries(data))
	if err != nil {
		p.warn(err)
		return err
	}
	if err := d.publish(bus.SelectedEvent, data.Event); err != nil {
		p.warn(err)
		return err
	}

	p.selected = data.Event
	p.firstDate = data.FirstDate
	p.lastDate = data.LastDate
	p.chart = newChart(regionChartTitle, ChartLine, data.RegionSeries, data.FirstDate, data.LastDate)
	d.state = StateEventLoaded
	return nil
}

func cacheEntries(data *models.EventData) map[session.Key]any {
	return map[session.Key]any{
		session.RegionChartData: data.RegionSeries,
		session.BeaconChartData: data.BeaconSeries,
		session.RegionFirstDate: data.FirstDate,
	}
}

// ClickPoint announces the region of the clicked chart series
func (p *RegionPanel) ClickPoint(ctx context.Context, series string) error {
	var result error
	err := p.d.lane.Do(ctx, func() {
		if p.chart == nil {
			result = fmt.Errorf("%w: no event selected", ErrNotReady)
			return
		}
		if !p.chart.hasSeries(series) {
			result = fmt.Errorf("%w: region %q", models.ErrNotFound, series)
			return
		}
		if err := p.d.publish(bus.SelectedRegion, series); err != nil {
			p.warn(err)
			result = err
		}
	})
	if err != nil {
		return err
	}
	return result
}

func (p *RegionPanel) onSelectedBucket(evt bus.Event) {
	if p.chart == nil {
		return
	}

	bucket, reset, err := bus.ParseBucket(evt.Payload)
	if err != nil {
		p.d.log.Warn().Err(err).Msg("ignoring bucket selection")
		return
	}

	if reset {
		p.chart.Extremes = Extremes{Min: p.firstDate, Max: p.lastDate}
		if p.d.state == StateBucketZoomed {
			p.d.state = StateRegionFocused
		}
		return
	}
	p.chart.zoom(p.firstDate, bucket)
	p.d.state = StateBucketZoomed
}

// MakeFakeData starts the demo data generator in the background. The view
// reports progress and a poll interval until it completes.
func (p *RegionPanel) MakeFakeData(ctx context.Context) error {
	var result error
	err := p.d.lane.Do(ctx, func() {
		if p.cancelFake != nil {
			result = ErrBusy
			return
		}
		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		p.cancelFake = cancel
		p.fakeDone = done
		p.progress = progressCaption
		p.pollInterval = p.d.deps.PollInterval
		go p.runFakeData(runCtx, cancel, done)
	})
	if err != nil {
		return err
	}
	return result
}

func (p *RegionPanel) runFakeData(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer cancel()
	d := p.d

	start := time.Now()
	err := d.deps.Data.MakeFakeData(ctx, d.companyID)
	var events []string
	if err == nil {
		events, err = d.deps.Events.ListTenantEvents(ctx, d.companyID)
	}
	d.log.Info().Dur("elapsed", time.Since(start)).Err(err).Msg("fake data run finished")

	if postErr := d.lane.Post(func() {
		p.finishFakeData(events, err)
		close(done)
	}); postErr != nil {
		close(done)
	}
}

func (p *RegionPanel) finishFakeData(events []string, err error) {
	p.cancelFake = nil
	p.progress = ""
	p.pollInterval = 0

	switch {
	case errors.Is(err, context.Canceled):
		p.info("Fake data generation cancelled")
	case err != nil:
		p.warn(err)
	default:
		p.events = events
		p.info("Created fake data")
	}
}

// CancelFakeData asks a running generator to stop; it reports whether one was running
func (p *RegionPanel) CancelFakeData(ctx context.Context) (bool, error) {
	var running bool
	err := p.d.lane.Do(ctx, func() {
		if p.cancelFake != nil {
			p.cancelFake()
			running = true
		}
	})
	if err != nil {
		return false, err
	}
	return running, nil
}

// ClearAllData removes every demo event of the tenant and empties the selector
func (p *RegionPanel) ClearAllData(ctx context.Context) error {
	clearErr := p.d.deps.Data.ClearFakeData(ctx, p.d.companyID)

	err := p.d.lane.Do(ctx, func() {
		if clearErr != nil {
			p.warn(clearErr)
			return
		}
		p.events = nil
		p.info("Cleared all data")
	})
	if err != nil {
		return err
	}
	return clearErr
}
