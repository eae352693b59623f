package models

import (
	"hash/fnv"
	"math"
	"strconv"
	"time"
)

// BeaconSighting is one element of a ping's beacons array
type BeaconSighting struct {
	BeaconName string `json:"beacon_name"`
	Proximity  string `json:"proximity"`
}

// Ping is one recorded observation as persisted in an event table
type Ping struct {
	Event   string           `json:"event"`
	ID      string           `json:"id"`
	Date    time.Time        `json:"date"`
	Beacons []BeaconSighting `json:"beacons"`
	Regions []string         `json:"regions"`
}

// RowHandle derives the non-negative row handle of a ping from its event, id and timestamp
func (p Ping) RowHandle() int64 {
	h := fnv.New64a()
	h.Write([]byte(p.Event))
	h.Write([]byte(p.ID))
	h.Write([]byte(strconv.FormatInt(p.Date.UnixMilli(), 10)))
	return int64(h.Sum64() & math.MaxInt64)
}
