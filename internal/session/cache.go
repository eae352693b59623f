package session

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"

	"github.com/jengzang/beacons-backend-go/internal/config"
	"github.com/jengzang/beacons-backend-go/internal/models"
)

// Key names a session cache entry
type Key string

// Session cache keys shared by the panels
const (
	RegionChartData Key = "com.liferay.beacons.regionChartData"
	BeaconChartData Key = "com.liferay.beacons.beaconChartData"
	RegionFirstDate Key = "com.liferay.beacons.regionFirstDate"
)

// approximate in-memory size of one series point
const pointCost = 48

// Cache is the per-session scratchpad the region panel fills and the other panels read
type Cache struct {
	client *ristretto.Cache
	ttl    time.Duration
}

// NewCache creates a ristretto-backed session cache
func NewCache(cfg config.CacheConfig) (*Cache, error) {
	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cfg.CounterSize),
		MaxCost:     int64(cfg.MaxSizeMB) * 1024 * 1024,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	log.Info().
		Int("max_size_mb", cfg.MaxSizeMB).
		Int("ttl_minutes", cfg.TTLMinutes).
		Msg("Session cache initialized")

	return &Cache{
		client: client,
		ttl:    time.Duration(cfg.TTLMinutes) * time.Minute,
	}, nil
}

func entryKey(session string, key Key) string {
	return session + "|" + string(key)
}

// PutAll stores every entry for the session and returns once all are readable
func (c *Cache) PutAll(session string, entries map[Key]any) error {
	for key, value := range entries {
		c.client.SetWithTTL(entryKey(session, key), value, costOf(value), c.ttl)
	}
	c.client.Wait()

	for key := range entries {
		if _, ok := c.client.Get(entryKey(session, key)); !ok {
			return fmt.Errorf("session cache rejected %s", key)
		}
	}
	return nil
}

// Get reads an entry
func (c *Cache) Get(session string, key Key) (any, bool) {
	return c.client.Get(entryKey(session, key))
}

// RegionSeries returns the cached region -> series map
func (c *Cache) RegionSeries(session string) (map[string]*models.Series, bool) {
	v, ok := c.Get(session, RegionChartData)
	if !ok {
		return nil, false
	}
	data, ok := v.(map[string]*models.Series)
	return data, ok
}

// BeaconSeries returns the cached beacon -> proximity -> series map
func (c *Cache) BeaconSeries(session string) (map[string]map[string]*models.Series, bool) {
	v, ok := c.Get(session, BeaconChartData)
	if !ok {
		return nil, false
	}
	data, ok := v.(map[string]map[string]*models.Series)
	return data, ok
}

// FirstDate returns the cached first ping date of the selected event
func (c *Cache) FirstDate(session string) (time.Time, bool) {
	v, ok := c.Get(session, RegionFirstDate)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// Clear drops every entry of a session
func (c *Cache) Clear(session string) {
	for _, key := range []Key{RegionChartData, BeaconChartData, RegionFirstDate} {
		c.client.Del(entryKey(session, key))
	}
	c.client.Wait()
}

// HitRatio reports the cache hit ratio since start
func (c *Cache) HitRatio() float64 {
	return c.client.Metrics.Ratio()
}

// Hits counts reads that found their entry
func (c *Cache) Hits() uint64 {
	return c.client.Metrics.Hits()
}

// Misses counts reads that did not; after a PutAll these are evictions or expiries
func (c *Cache) Misses() uint64 {
	return c.client.Metrics.Misses()
}

// Evictions counts entries dropped to stay within the cost budget
func (c *Cache) Evictions() uint64 {
	return c.client.Metrics.KeysEvicted()
}

// Rejections counts writes the admission policy refused
func (c *Cache) Rejections() uint64 {
	return c.client.Metrics.SetsRejected()
}

// Close shuts the cache down
func (c *Cache) Close() {
	c.client.Close()
}

func costOf(value any) int64 {
	switch v := value.(type) {
	case map[string]*models.Series:
		var cost int64 = 1
		for _, s := range v {
			cost += int64(s.Len()) * pointCost
		}
		return cost
	case map[string]map[string]*models.Series:
		var cost int64 = 1
		for _, prox := range v {
			for _, s := range prox {
				cost += int64(s.Len()) * pointCost
			}
		}
		return cost
	default:
		return 1
	}
}
