package panel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jengzang/beacons-backend-go/internal/bus"
	"github.com/jengzang/beacons-backend-go/internal/models"
	"github.com/jengzang/beacons-backend-go/internal/stats"
)

// TablePanel lists the buckets of the focused region; selecting a row zooms the region chart
type TablePanel struct {
	d *Dashboard
	inbox

	region   string
	caption  string
	rows     []models.SeriesPoint
	summary  *stats.Summary
	selected *int64

	// region waiting for a reload of evicted cache data
	pending string
}

// TableView is what the table panel currently shows
type TableView struct {
	Region        string               `json:"region,omitempty"`
	Caption       string               `json:"caption,omitempty"`
	Rows          []models.SeriesPoint `json:"rows"`
	Summary       *stats.Summary       `json:"summary,omitempty"`
	SelectedRow   *int64               `json:"selected_row,omitempty"`
	Notifications []Notification       `json:"notifications"`
}

// View snapshots the panel and drains its notifications
func (p *TablePanel) View(ctx context.Context) (TableView, error) {
	var v TableView
	err := p.d.lane.Do(ctx, func() {
		v = TableView{
			Region:        p.region,
			Caption:       p.caption,
			Rows:          append([]models.SeriesPoint{}, p.rows...),
			Summary:       p.summary,
			Notifications: p.drain(),
		}
		if p.selected != nil {
			b := *p.selected
			v.SelectedRow = &b
		}
	})
	if err != nil {
		return TableView{}, err
	}
	return v, nil
}

func (p *TablePanel) onSelectedRegion(evt bus.Event) {
	region := evt.Payload
	p.pending = ""

	data, ok := p.d.deps.Cache.RegionSeries(p.d.id)
	if ok {
		p.bind(region, data)
		return
	}

	p.warn(fmt.Errorf("%w: region chart data for this session, reloading", models.ErrNotFound))
	p.pending = region
	p.d.refill(p.d.Region.selected, func(ed *models.EventData, err error) {
		if p.pending != region {
			return
		}
		p.pending = ""
		if err != nil {
			p.warn(err)
			return
		}
		p.bind(region, ed.RegionSeries)
	})
}

// bind shows the rows of region; unknown regions leave the current binding alone
func (p *TablePanel) bind(region string, data map[string]*models.Series) {
	series, ok := data[region]
	if !ok || series == nil {
		return
	}

	p.region = region
	p.caption = "Pings for Region: " + region
	p.rows = series.Points
	summary := stats.Summarize(series.Points)
	p.summary = &summary
	p.selected = nil
	p.d.state = StateRegionFocused
}

// SelectRow announces the selected bucket; an empty row clears the selection
func (p *TablePanel) SelectRow(ctx context.Context, row string) error {
	row = strings.TrimSpace(row)

	var result error
	err := p.d.lane.Do(ctx, func() {
		if p.region == "" {
			result = fmt.Errorf("%w: no region selected", ErrNotReady)
			return
		}

		if row == "" {
			p.selected = nil
		} else {
			bucket, _, err := bus.ParseBucket(row)
			if err != nil {
				result = err
				return
			}
			if bucket >= int64(len(p.rows)) {
				result = fmt.Errorf("%w: bucket %d", models.ErrNotFound, bucket)
				return
			}
			p.selected = &bucket
			row = strconv.FormatInt(bucket, 10)
		}

		if err := p.d.publish(bus.SelectedBucket, row); err != nil {
			p.warn(err)
			result = err
		}
	})
	if err != nil {
		return err
	}
	return result
}
