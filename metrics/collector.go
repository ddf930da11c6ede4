// Package metrics exposes per-shard statistics of shardmap maps and sets
// as Prometheus metrics.
package metrics

import (
	"slices"
	"strconv"
	"sync"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/llxisdsh/shardmap"
)

// StatsProvider is implemented by shardmap.Map and shardmap.Set.
type StatsProvider interface {
	ShardStats() []shardmap.ShardStat
}

// Source is one named map reported by a Collector.
type Source struct {
	Name  string
	Stats func() []shardmap.ShardStat
}

// FromMap adapts a map or set into a Source.
func FromMap(name string, m StatsProvider) Source {
	return Source{Name: name, Stats: m.ShardStats}
}

// Collector implements prometheus.Collector over a set of sources.
// Metrics are built on each scrape from the sources' current ShardStats;
// nothing is cached between scrapes.
//
// Exposed metrics, per source:
//   - <ns>_shardmap_entries{map,shard}
//   - <ns>_shardmap_capacity{map,shard}
//   - <ns>_shardmap_poisoned{map,shard}
//   - <ns>_shardmap_shards{map}
type Collector struct {
	mu      sync.RWMutex
	sources []Source
	log     *log.Logger

	entries  *prometheus.Desc
	capacity *prometheus.Desc
	poisoned *prometheus.Desc
	shards   *prometheus.Desc
}

// NewCollector creates a collector for the given sources. An empty
// namespace omits the prefix.
func NewCollector(namespace string, sources ...Source) *Collector {
	shardLabels := []string{"map", "shard"}
	c := &Collector{
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "shardmap", "entries"),
			"Number of entries stored in the shard",
			shardLabels, nil,
		),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "shardmap", "capacity"),
			"Number of entries the shard can hold without growing",
			shardLabels, nil,
		),
		poisoned: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "shardmap", "poisoned"),
			"1 if a panic under the shard's write lock poisoned it",
			shardLabels, nil,
		),
		shards: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "shardmap", "shards"),
			"Number of shards in the map",
			[]string{"map"}, nil,
		),
	}
	for _, s := range sources {
		c.Add(s)
	}
	return c
}

// WithLogger sets the logger used to report sources that fail during a
// scrape, and returns the collector.
func (c *Collector) WithLogger(l *log.Logger) *Collector {
	c.mu.Lock()
	c.log = l
	c.mu.Unlock()
	return c
}

// Add registers src, replacing any source with the same name.
func (c *Collector) Add(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.IndexFunc(c.sources, func(s Source) bool { return s.Name == src.Name }); i >= 0 {
		c.sources[i] = src
		return
	}
	c.sources = append(c.sources, src)
}

// Remove unregisters the source called name and reports whether it existed.
func (c *Collector) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.sources)
	c.sources = slices.DeleteFunc(c.sources, func(s Source) bool { return s.Name == name })
	return len(c.sources) != n
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.capacity
	ch <- c.poisoned
	ch <- c.shards
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	sources := slices.Clone(c.sources)
	logger := c.log
	c.mu.RUnlock()

	for _, src := range sources {
		stats, ok := c.stats(src, logger)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.shards, prometheus.GaugeValue, float64(len(stats)), src.Name)
		for _, s := range stats {
			idx := strconv.Itoa(s.Index)
			poisoned := 0.0
			if s.Poisoned {
				poisoned = 1
			}
			ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Len), src.Name, idx)
			ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), src.Name, idx)
			ch <- prometheus.MustNewConstMetric(c.poisoned, prometheus.GaugeValue, poisoned, src.Name, idx)
		}
	}
}

// stats reads one source, isolating the scrape from a source that panics
// (a map moved into a read-only view, for instance).
func (c *Collector) stats(src Source, logger *log.Logger) (stats []shardmap.ShardStat, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error().Str("map", src.Name).Interface("panic", r).Msg("metrics: failed to read shard stats")
			}
			stats, ok = nil, false
		}
	}()
	return src.Stats(), true
}
