package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsCollector_Counts(t *testing.T) {
	tests := []struct {
		name   string
		record func(c *StatsCollector)
		want   Stats
	}{
		{
			name:   "empty",
			record: func(c *StatsCollector) {},
			want:   Stats{},
		},
		{
			name: "hits only",
			record: func(c *StatsCollector) {
				c.RecordHit()
				c.RecordHit()
			},
			want: Stats{Hits: 2, HitRate: 1},
		},
		{
			name: "hits and misses",
			record: func(c *StatsCollector) {
				c.RecordMiss()
				c.RecordHit()
				c.RecordHit()
				c.RecordMiss()
			},
			want: Stats{Hits: 2, Misses: 2, HitRate: 0.5},
		},
		{
			name: "evictions and expirations are separate",
			record: func(c *StatsCollector) {
				c.RecordEviction()
				c.RecordExpiration()
				c.RecordExpiration()
				c.UpdateSize(3)
				c.UpdateSize(1)
			},
			want: Stats{Evictions: 1, Expirations: 2, Size: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewStatsCollector()
			tt.record(c)

			got := c.GetStats()
			got.LastUpdated = time.Time{}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatsCollector_Concurrent(t *testing.T) {
	c := NewStatsCollector()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordHit()
			c.RecordMiss()
			c.RecordEviction()
		}()
	}
	wg.Wait()

	stats := c.GetStats()
	assert.Equal(t, uint64(16), stats.Hits)
	assert.Equal(t, uint64(16), stats.Misses)
	assert.Equal(t, uint64(16), stats.Evictions)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestStatsCollector_LastUpdated(t *testing.T) {
	c := NewStatsCollector()
	before := c.GetStats().LastUpdated

	time.Sleep(5 * time.Millisecond)
	c.RecordMiss()

	assert.True(t, c.GetStats().LastUpdated.After(before))
}
