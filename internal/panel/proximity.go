package panel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jengzang/beacons-backend-go/internal/bus"
	"github.com/jengzang/beacons-backend-go/internal/models"
)

// ProximityPanel charts the proximity series of one beacon of the selected event
type ProximityPanel struct {
	d *Dashboard
	inbox

	event     string
	data      map[string]map[string]*models.Series
	firstDate time.Time
	beacons   []string
	enabled   bool
	selected  string
	chart     *Chart
}

// ProximityView is what the proximity panel currently shows
type ProximityView struct {
	Event          string         `json:"event,omitempty"`
	Beacons        []string       `json:"beacons"`
	Enabled        bool           `json:"enabled"`
	SelectedBeacon string         `json:"selected_beacon,omitempty"`
	Chart          *Chart         `json:"chart,omitempty"`
	Notifications  []Notification `json:"notifications"`
}

// View snapshots the panel and drains its notifications
func (p *ProximityPanel) View(ctx context.Context) (ProximityView, error) {
	var v ProximityView
	err := p.d.lane.Do(ctx, func() {
		v = ProximityView{
			Event:          p.event,
			Beacons:        append([]string{}, p.beacons...),
			Enabled:        p.enabled,
			SelectedBeacon: p.selected,
			Chart:          p.chart.snapshot(),
			Notifications:  p.drain(),
		}
	})
	if err != nil {
		return ProximityView{}, err
	}
	return v, nil
}

func (p *ProximityPanel) onSelectedEvent(evt bus.Event) {
	if strings.TrimSpace(evt.Payload) == "" {
		return
	}

	p.event = evt.Payload
	p.chart = nil
	p.selected = ""
	p.enabled = false
	p.beacons = nil
	p.data = nil

	cache := p.d.deps.Cache
	data, okData := cache.BeaconSeries(p.d.id)
	first, okFirst := cache.FirstDate(p.d.id)
	if okData && okFirst {
		p.bind(data, first)
		return
	}

	// evicted before delivery: say so, then rebuild from the store
	p.warn(fmt.Errorf("%w: beacon chart data for this session, reloading", models.ErrNotFound))
	event := evt.Payload
	p.d.refill(event, func(ed *models.EventData, err error) {
		if p.event != event {
			return
		}
		if err != nil {
			p.warn(err)
			return
		}
		p.bind(ed.BeaconSeries, ed.FirstDate)
	})
}

func (p *ProximityPanel) bind(data map[string]map[string]*models.Series, first time.Time) {
	p.data = data
	p.firstDate = first
	p.beacons = make([]string, 0, len(data))
	for name := range data {
		p.beacons = append(p.beacons, name)
	}
	sort.Strings(p.beacons)
	p.enabled = true
}

// SelectBeacon draws the proximity chart of beacon
func (p *ProximityPanel) SelectBeacon(ctx context.Context, beacon string) error {
	var result error
	err := p.d.lane.Do(ctx, func() {
		if !p.enabled {
			result = fmt.Errorf("%w: no event selected", ErrNotReady)
			return
		}
		proximities, ok := p.data[beacon]
		if !ok {
			result = fmt.Errorf("%w: beacon %q", models.ErrNotFound, beacon)
			p.warn(result)
			return
		}

		title := fmt.Sprintf("%s: Individual Beacon Proximity Pings for %s", p.event, beacon)
		p.selected = beacon
		p.chart = newChart(title, ChartArea, proximities, p.firstDate, seriesEnd(proximities, p.firstDate))
	})
	if err != nil {
		return err
	}
	return result
}
