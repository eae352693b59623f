package models

import "time"

// BucketWidth is the width of one time bucket
const BucketWidth = 5 * time.Minute

// BucketWidthMillis is BucketWidth in milliseconds
const BucketWidthMillis = int64(BucketWidth / time.Millisecond)

// SeriesPoint is one row of a series container
type SeriesPoint struct {
	Bucket    int64     `json:"bucket"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Series is a dense, bucket-indexed container consumed by charts and the detail table.
// Points[i].Bucket == i always holds.
type Series struct {
	Points []SeriesPoint `json:"points"`
}

// Len returns the number of buckets in the series
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Total sums the counts of every bucket
func (s *Series) Total() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, p := range s.Points {
		total += p.Count
	}
	return total
}

// EventData is the complete aggregate of one event
type EventData struct {
	Event        string                        `json:"event"`
	FirstDate    time.Time                     `json:"first_date"`
	LastDate     time.Time                     `json:"last_date"`
	LastBucket   int64                         `json:"last_bucket"`
	RegionSeries map[string]*Series            `json:"region_series"`
	BeaconSeries map[string]map[string]*Series `json:"beacon_series"`
}
