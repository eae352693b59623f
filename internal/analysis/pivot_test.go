package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPivot_SetSemantics(t *testing.T) {
	p := NewPivot()
	p.Add("GFI", "near", 3, "id-1")
	p.Add("GFI", "near", 3, "id-1")
	p.Add("GFI", "near", 3, "id-2")
	p.Add("GFI", "far", 3, "id-1")
	p.Add("Smile", "near", 0, "id-1")

	assert.Equal(t, 2, p.Count("GFI", "near", 3))
	assert.Equal(t, 1, p.Count("GFI", "far", 3))
	assert.Equal(t, 0, p.Count("GFI", "immediate", 3))
	assert.Equal(t, 3, p.Len())

	assert.Equal(t, []SeriesKey{
		{Name: "GFI", Proximity: "far"},
		{Name: "GFI", Proximity: "near"},
		{Name: "Smile", Proximity: "near"},
	}, p.Keys())

	assert.Equal(t, map[string]map[string]map[int64]int{
		"GFI":   {"near": {3: 2}, "far": {3: 1}},
		"Smile": {"near": {0: 1}},
	}, p.Beacons())
}

func TestBuildSeries_Dense(t *testing.T) {
	s := BuildSeries(t0, 4, func(b int64) int {
		if b == 2 {
			return 5
		}
		return 0
	})

	assert.Equal(t, 4, s.Len())
	assert.Equal(t, []int{0, 0, 5, 0}, []int{s.Points[0].Count, s.Points[1].Count, s.Points[2].Count, s.Points[3].Count})
	assert.True(t, s.Points[3].Timestamp.Equal(t0.Add(3*w)))
	assert.Equal(t, 0, BuildSeries(t0, -1, func(int64) int { return 1 }).Len())
}

func TestBucketOf(t *testing.T) {
	assert.Equal(t, int64(0), BucketOf(t0, t0))
	assert.Equal(t, int64(0), BucketOf(t0, t0.Add(w-1)))
	assert.Equal(t, int64(1), BucketOf(t0, t0.Add(w)))
	assert.Equal(t, int64(12), BucketOf(t0, t0.Add(time.Hour)))
}

func TestPivot_SeriesGroupsCellsByKey(t *testing.T) {
	p := NewPivot()
	p.Add("GFI", "near", 0, "a")
	p.Add("GFI", "near", 2, "a")
	p.Add("GFI", "near", 2, "b")
	p.Add("GFI", "far", 1, "a")
	p.Add("Smile", "near", 3, "c")

	assert.Equal(t, map[SeriesKey]map[int64]int{
		{Name: "GFI", Proximity: "near"}:   {0: 1, 2: 2},
		{Name: "GFI", Proximity: "far"}:    {1: 1},
		{Name: "Smile", Proximity: "near"}: {3: 1},
	}, p.Series())

	beacons := BuildBeaconSeries(p, t0, 4)
	require.Len(t, beacons, 2)
	near := beacons["GFI"]["near"]
	require.Equal(t, 4, near.Len())
	assert.Equal(t, []int{1, 0, 2, 0}, []int{near.Points[0].Count, near.Points[1].Count, near.Points[2].Count, near.Points[3].Count})
	assert.Equal(t, 1, beacons["GFI"]["far"].Total())
	assert.Equal(t, 1, beacons["Smile"]["near"].Points[3].Count)

	regions := NewPivot()
	regions.Add("Bar", "", 1, "a")
	regions.Add("Bar", "", 1, "b")
	bar := BuildRegionSeries(regions, t0, 3)["Bar"]
	require.NotNil(t, bar)
	assert.Equal(t, 2, bar.Points[1].Count)
	assert.Equal(t, 2, bar.Total())
}
