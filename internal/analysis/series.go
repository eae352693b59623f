package analysis

import (
	"time"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// BuildSeries materializes a dense series of length n; buckets without data count 0
func BuildSeries(first time.Time, n int64, count func(bucket int64) int) *models.Series {
	if n < 0 {
		n = 0
	}
	s := &models.Series{Points: make([]models.SeriesPoint, n)}
	for i := int64(0); i < n; i++ {
		s.Points[i] = models.SeriesPoint{
			Bucket:    i,
			Count:     count(i),
			Timestamp: BucketStart(first, i),
		}
	}
	return s
}

// BuildRegionSeries builds one series per region of the pivot
func BuildRegionSeries(p *Pivot, first time.Time, n int64) map[string]*models.Series {
	out := make(map[string]*models.Series)
	for key, buckets := range p.Series() {
		out[key.Name] = BuildSeries(first, n, func(b int64) int { return buckets[b] })
	}
	return out
}

// BuildBeaconSeries builds one series per (beacon, proximity) of the pivot
func BuildBeaconSeries(p *Pivot, first time.Time, n int64) map[string]map[string]*models.Series {
	out := make(map[string]map[string]*models.Series)
	for key, buckets := range p.Series() {
		prox, ok := out[key.Name]
		if !ok {
			prox = make(map[string]*models.Series)
			out[key.Name] = prox
		}
		prox[key.Proximity] = BuildSeries(first, n, func(b int64) int { return buckets[b] })
	}
	return out
}
