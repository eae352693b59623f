package analysis

import (
	"sort"
	"time"

	"github.com/jengzang/beacons-backend-go/internal/models"
)

// BucketOf returns the index of the bucket t falls in, counted from first
func BucketOf(first, t time.Time) int64 {
	return t.Sub(first).Milliseconds() / models.BucketWidthMillis
}

// BucketStart returns the timestamp of bucket i
func BucketStart(first time.Time, i int64) time.Time {
	return first.Add(time.Duration(i) * models.BucketWidth)
}

// SeriesKey identifies one pivoted series. Proximity is empty for region series.
type SeriesKey struct {
	Name      string
	Proximity string
}

type pivotKey struct {
	SeriesKey
	Bucket int64
}

// Pivot maps (series, proximity, bucket) to the set of ping ids seen there
type Pivot struct {
	sets map[pivotKey]map[string]struct{}
}

// NewPivot creates an empty pivot
func NewPivot() *Pivot {
	return &Pivot{sets: make(map[pivotKey]map[string]struct{})}
}

// Add records id under (name, proximity, bucket); repeated ids are counted once
func (p *Pivot) Add(name, proximity string, bucket int64, id string) {
	k := pivotKey{SeriesKey{name, proximity}, bucket}
	set, ok := p.sets[k]
	if !ok {
		set = make(map[string]struct{})
		p.sets[k] = set
	}
	set[id] = struct{}{}
}

// Count returns the number of distinct ids under (name, proximity, bucket)
func (p *Pivot) Count(name, proximity string, bucket int64) int {
	return len(p.sets[pivotKey{SeriesKey{name, proximity}, bucket}])
}

// Keys returns the distinct series keys, sorted by name then proximity
func (p *Pivot) Keys() []SeriesKey {
	seen := make(map[SeriesKey]struct{})
	for k := range p.sets {
		seen[k.SeriesKey] = struct{}{}
	}

	keys := make([]SeriesKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Proximity < keys[j].Proximity
	})
	return keys
}

// Series groups the pivot cells by series key in one pass: key -> bucket -> distinct id count
func (p *Pivot) Series() map[SeriesKey]map[int64]int {
	out := make(map[SeriesKey]map[int64]int)
	for k, set := range p.sets {
		buckets, ok := out[k.SeriesKey]
		if !ok {
			buckets = make(map[int64]int)
			out[k.SeriesKey] = buckets
		}
		buckets[k.Bucket] = len(set)
	}
	return out
}

// Regions returns the nested region -> bucket -> count view
func (p *Pivot) Regions() map[string]map[int64]int {
	out := make(map[string]map[int64]int)
	for k, set := range p.sets {
		buckets, ok := out[k.Name]
		if !ok {
			buckets = make(map[int64]int)
			out[k.Name] = buckets
		}
		buckets[k.Bucket] = len(set)
	}
	return out
}

// Beacons returns the nested beacon -> proximity -> bucket -> count view
func (p *Pivot) Beacons() map[string]map[string]map[int64]int {
	out := make(map[string]map[string]map[int64]int)
	for k, set := range p.sets {
		prox, ok := out[k.Name]
		if !ok {
			prox = make(map[string]map[int64]int)
			out[k.Name] = prox
		}
		buckets, ok := prox[k.Proximity]
		if !ok {
			buckets = make(map[int64]int)
			prox[k.Proximity] = buckets
		}
		buckets[k.Bucket] = len(set)
	}
	return out
}

// Len returns the number of filled (series, bucket) cells
func (p *Pivot) Len() int {
	return len(p.sets)
}
