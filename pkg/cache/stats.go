package cache

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of the session cache counters.
type Stats struct {
	Hits        uint64    `json:"hits"`
	Misses      uint64    `json:"misses"`
	Evictions   uint64    `json:"evictions"`
	Expirations uint64    `json:"expirations"`
	Size        int64     `json:"size"`
	HitRate     float64   `json:"hit_rate"`
	LastUpdated time.Time `json:"last_updated"`
}

// StatsCollector counts cache events. Safe for concurrent use.
type StatsCollector struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
	size        atomic.Int64
	lastUpdated atomic.Int64
}

func NewStatsCollector() *StatsCollector {
	c := &StatsCollector{}
	c.touch()
	return c
}

func (c *StatsCollector) touch() {
	c.lastUpdated.Store(time.Now().UnixNano())
}

// RecordHit counts a lookup of a live session.
func (c *StatsCollector) RecordHit() {
	c.hits.Add(1)
	c.touch()
}

// RecordMiss counts a lookup that had to create a session.
func (c *StatsCollector) RecordMiss() {
	c.misses.Add(1)
	c.touch()
}

// RecordEviction counts a session dropped to make room.
func (c *StatsCollector) RecordEviction() {
	c.evictions.Add(1)
	c.touch()
}

// RecordExpiration counts a session dropped for being idle past its TTL.
func (c *StatsCollector) RecordExpiration() {
	c.expirations.Add(1)
	c.touch()
}

func (c *StatsCollector) UpdateSize(size int64) {
	c.size.Store(size)
	c.touch()
}

// GetStats snapshots the counters.
func (c *StatsCollector) GetStats() Stats {
	s := Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Size:        c.size.Load(),
		LastUpdated: time.Unix(0, c.lastUpdated.Load()),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
