package panel

import (
	"sort"
	"time"

	"github.com/jengzang/beacons-backend-go/internal/analysis"
	"github.com/jengzang/beacons-backend-go/internal/models"
)

// ChartType selects how a chart renders its series
type ChartType string

const (
	ChartLine ChartType = "line"
	ChartArea ChartType = "area"
)

const (
	regionChartTitle = "iBeacon Region Pings"
	chartSubtitle    = "Click and drag in the plot area to zoom in"
	xAxisTitle       = "Time of Day"
	yAxisTitle       = "Number of Pings"

	// zoomRadius is how many buckets a bucket selection shows on each side
	zoomRadius = 3
)

// Extremes is the visible x-axis range of a chart
type Extremes struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// ChartSeries is one named line or area of a chart
type ChartSeries struct {
	Name   string               `json:"name"`
	Points []models.SeriesPoint `json:"points"`
}

// Chart is the render model of a time-series chart. Points carry their own
// timestamps; there is no implicit point start or interval.
type Chart struct {
	Title      string        `json:"title"`
	Subtitle   string        `json:"subtitle"`
	Type       ChartType     `json:"type"`
	XAxisTitle string        `json:"x_axis_title"`
	YAxisTitle string        `json:"y_axis_title"`
	MinRangeMs int64         `json:"min_range_ms"`
	Extremes   Extremes      `json:"extremes"`
	Series     []ChartSeries `json:"series"`
}

func newChart(title string, typ ChartType, series map[string]*models.Series, first, last time.Time) *Chart {
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	c := &Chart{
		Title:      title,
		Subtitle:   chartSubtitle,
		Type:       typ,
		XAxisTitle: xAxisTitle,
		YAxisTitle: yAxisTitle,
		MinRangeMs: models.BucketWidthMillis,
		Extremes:   Extremes{Min: first, Max: last},
		Series:     make([]ChartSeries, 0, len(names)),
	}
	for _, name := range names {
		var points []models.SeriesPoint
		if s := series[name]; s != nil {
			points = s.Points
		}
		c.Series = append(c.Series, ChartSeries{Name: name, Points: points})
	}
	return c
}

func (c *Chart) hasSeries(name string) bool {
	for _, s := range c.Series {
		if s.Name == name {
			return true
		}
	}
	return false
}

// zoom shows zoomRadius buckets on each side of bucket, clamped at the first bucket
func (c *Chart) zoom(first time.Time, bucket int64) {
	before := max(bucket-zoomRadius, 0)
	after := before + 2*zoomRadius
	c.Extremes = Extremes{
		Min: analysis.BucketStart(first, before),
		Max: analysis.BucketStart(first, after),
	}
}

func (c *Chart) snapshot() *Chart {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// seriesEnd is the timestamp of the latest point across series, or first when there are none
func seriesEnd(series map[string]*models.Series, first time.Time) time.Time {
	end := first
	for _, s := range series {
		if n := s.Len(); n > 0 {
			if ts := s.Points[n-1].Timestamp; ts.After(end) {
				end = ts
			}
		}
	}
	return end
}
