package stats

import (
	"math"
	"sort"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// Summary describes the bucket counts of one series
type Summary struct {
	Buckets    int     `json:"buckets"`
	Total      int     `json:"total"`
	Peak       int     `json:"peak"`
	PeakBucket int64   `json:"peak_bucket"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	P95        float64 `json:"p95"`
	StdDev     float64 `json:"std_dev"`
}

// Summarize computes the summary of a series; ties for the peak go to the earliest bucket
func Summarize(points []models.SeriesPoint) Summary {
	s := Summary{Buckets: len(points)}
	if len(points) == 0 {
		return s
	}

	counts := make([]float64, len(points))
	s.PeakBucket = points[0].Bucket
	s.Peak = points[0].Count
	for i, p := range points {
		counts[i] = float64(p.Count)
		s.Total += p.Count
		if p.Count > s.Peak {
			s.Peak = p.Count
			s.PeakBucket = p.Bucket
		}
	}

	n := float64(len(counts))
	s.Mean = float64(s.Total) / n

	var sq float64
	for _, c := range counts {
		d := c - s.Mean
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / n)

	sort.Float64s(counts)
	s.Median = Quantile(counts, 0.5)
	s.P95 = Quantile(counts, 0.95)
	return s
}

// Quantile returns the q-th quantile (0-1) of sorted values using linear
// interpolation between closest ranks
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	q = math.Max(0, math.Min(1, q))

	index := q * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
