package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// PingSource is the slice of the store gateway the aggregator reads from
type PingSource interface {
	GetColumnValues(ctx context.Context, companyID int64, className, tableName, column string) ([]models.ExpandoValue, error)
}

// Options tunes series materialization
type Options struct {
	// IncludeLastBucket extends every series to lastBucket+1 points so the
	// bucket holding the final ping is materialized.
	IncludeLastBucket bool
}

// Aggregate is the pivoted form of one event's pings
type Aggregate struct {
	Event      string
	FirstDate  time.Time
	LastDate   time.Time
	LastBucket int64
	Rows       int
	Regions    *Pivot
	Beacons    *Pivot
}

// Aggregator turns raw ping rows into time-bucketed pivots and series
type Aggregator struct {
	store PingSource
	opts  Options
}

// NewAggregator creates a new aggregator
func NewAggregator(store PingSource, opts Options) *Aggregator {
	return &Aggregator{store: store, opts: opts}
}

type pingRow struct {
	classPK int64
	date    time.Time
	id      string
	hasID   bool
	regions string
	beacons string
}

// Aggregate reads every ping of an event and pivots it by region and by beacon/proximity
func (a *Aggregator) Aggregate(ctx context.Context, companyID int64, event string) (*Aggregate, error) {
	columns := []string{models.ColumnDate, models.ColumnID, models.ColumnRegions, models.ColumnBeacons}
	values := make([][]models.ExpandoValue, len(columns))

	g, gctx := errgroup.WithContext(ctx)
	for i, column := range columns {
		g.Go(func() error {
			vs, err := a.store.GetColumnValues(gctx, companyID, models.BeaconDataClass, event, column)
			if err != nil {
				return err
			}
			values[i] = vs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read pings for %q: %w", event, err)
	}

	rows, err := zipRows(values[0], values[1], values[2], values[3])
	if err != nil {
		return nil, fmt.Errorf("failed to read pings for %q: %w", event, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %q", models.ErrEmptyEvent, event)
	}

	agg := &Aggregate{
		Event:     event,
		FirstDate: rows[0].date,
		LastDate:  rows[len(rows)-1].date,
		Rows:      len(rows),
		Regions:   NewPivot(),
		Beacons:   NewPivot(),
	}
	agg.LastBucket = BucketOf(agg.FirstDate, agg.LastDate)

	for _, row := range rows {
		bucket := BucketOf(agg.FirstDate, row.date)

		regions, err := parseRegions(row.regions)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d regions: %v", models.ErrMalformedRow, row.classPK, err)
		}
		for _, region := range regions {
			region = strings.TrimSpace(region)
			if region == "" {
				continue
			}
			agg.Regions.Add(region, "", bucket, row.id)
		}

		sightings, err := parseBeacons(row.beacons)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d beacons: %v", models.ErrMalformedRow, row.classPK, err)
		}
		for _, s := range sightings {
			name := strings.TrimSpace(s.BeaconName)
			proximity := strings.TrimSpace(s.Proximity)
			if name == "" || proximity == "" {
				continue
			}
			agg.Beacons.Add(name, proximity, bucket, row.id)
		}
	}

	return agg, nil
}

// SeriesLength is the number of points every series of this aggregate carries
func (a *Aggregator) SeriesLength(agg *Aggregate) int64 {
	if a.opts.IncludeLastBucket {
		return agg.LastBucket + 1
	}
	return agg.LastBucket
}

// EventData aggregates an event and materializes its region and beacon series
func (a *Aggregator) EventData(ctx context.Context, companyID int64, event string) (*models.EventData, *Aggregate, error) {
	agg, err := a.Aggregate(ctx, companyID, event)
	if err != nil {
		return nil, nil, err
	}

	n := a.SeriesLength(agg)
	return &models.EventData{
		Event:        event,
		FirstDate:    agg.FirstDate,
		LastDate:     agg.LastDate,
		LastBucket:   agg.LastBucket,
		RegionSeries: BuildRegionSeries(agg.Regions, agg.FirstDate, n),
		BeaconSeries: BuildBeaconSeries(agg.Beacons, agg.FirstDate, n),
	}, agg, nil
}

// zipRows joins the four columns by row handle and sorts rows by date
func zipRows(dates, ids, regions, beacons []models.ExpandoValue) ([]pingRow, error) {
	byPK := make(map[int64]*pingRow, len(dates))
	for _, v := range dates {
		d, err := v.Date()
		if err != nil {
			return nil, err
		}
		byPK[v.ClassPK] = &pingRow{classPK: v.ClassPK, date: d}
	}

	for _, v := range ids {
		if row, ok := byPK[v.ClassPK]; ok {
			row.id = v.Data
			row.hasID = true
		}
	}
	for _, v := range regions {
		if row, ok := byPK[v.ClassPK]; ok {
			row.regions = v.Data
		}
	}
	for _, v := range beacons {
		if row, ok := byPK[v.ClassPK]; ok {
			row.beacons = v.Data
		}
	}

	rows := make([]pingRow, 0, len(byPK))
	for _, row := range byPK {
		if !row.hasID {
			return nil, fmt.Errorf("%w: row %d has no id", models.ErrMalformedRow, row.classPK)
		}
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].date.Equal(rows[j].date) {
			return rows[i].date.Before(rows[j].date)
		}
		return rows[i].classPK < rows[j].classPK
	})

	return rows, nil
}

func parseRegions(data string) ([]string, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var regions []string
	if err := json.Unmarshal([]byte(data), &regions); err != nil {
		return nil, err
	}
	return regions, nil
}

func parseBeacons(data string) ([]models.BeaconSighting, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var sightings []models.BeaconSighting
	if err := json.Unmarshal([]byte(data), &sightings); err != nil {
		return nil, err
	}
	return sightings, nil
}
