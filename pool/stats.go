/*
Copyright 2025 The Apache Software Foundation.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Stats is a point-in-time snapshot of a pool's occupancy, mirroring the
// teacher's pkg/metrics gauge set but scoped to one pool instance
// (spec.md §4.5).
type Stats struct {
	Size            int
	CheckedOutCount int
	WaitQueueSize   int
	MinSize         int
	MaxSize         int
}

// StatsProvider is read on demand by an ObserverRegistry's collector, or
// polled directly by a caller that doesn't want Prometheus involved at all.
type StatsProvider interface {
	Snapshot() Stats
}

// managerStats adapts a *Manager to StatsProvider.
type managerStats struct {
	m *Manager
}

func (s *managerStats) Snapshot() Stats {
	size, available := s.m.pool.snapshot()
	return Stats{
		Size:            size,
		CheckedOutCount: size - available,
		WaitQueueSize:   int(s.m.waitQueueSize.Load()),
		MinSize:         s.m.settings.MinSize,
		MaxSize:         s.m.settings.MaxSize,
	}
}

// ObserverRegistry registers and unregisters a named pool's StatsProvider
// with whatever backs the process's metrics surface. Generalizes the
// teacher's pkg/metrics package (a fixed set of package-level prometheus
// gauges set by controllers) into a registry keyed by pool name, since a
// process embedding this module may run more than one pool.
type ObserverRegistry interface {
	Register(name string, stats StatsProvider)
	Unregister(name string)
}

// PrometheusObserverRegistry is the default ObserverRegistry: one
// prometheus.Collector per registered pool, registered into the supplied
// prometheus.Registerer — typically controller-runtime's metrics.Registry,
// the same registerer the teacher's pkg/metrics.go uses via
// ctrlmetrics.Registry.MustRegister.
type PrometheusObserverRegistry struct {
	Registerer prometheus.Registerer

	mu         sync.Mutex
	collectors map[string]*poolCollector
}

// NewPrometheusObserverRegistry builds a registry backed by
// controller-runtime's global metrics.Registry, matching the teacher's
// pkg/metrics.go registration pattern.
func NewPrometheusObserverRegistry() *PrometheusObserverRegistry {
	return &PrometheusObserverRegistry{Registerer: ctrlmetrics.Registry}
}

func (r *PrometheusObserverRegistry) Register(name string, stats StatsProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.collectors == nil {
		r.collectors = make(map[string]*poolCollector)
	}
	if _, exists := r.collectors[name]; exists {
		return
	}
	c := newPoolCollector(name, stats)
	r.collectors[name] = c
	r.Registerer.MustRegister(c)
}

func (r *PrometheusObserverRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, exists := r.collectors[name]
	if !exists {
		return
	}
	delete(r.collectors, name)
	r.Registerer.Unregister(c)
}

// poolCollector is a prometheus.Collector that reads a StatsProvider on
// every scrape instead of maintaining its own gauges, avoiding the
// read-modify-write races a plain prometheus.Gauge set would need manual
// locking for.
type poolCollector struct {
	name  string
	stats StatsProvider

	size, checkedOut, waitQueue, minSize, maxSize *prometheus.Desc
}

func newPoolCollector(name string, stats StatsProvider) *poolCollector {
	labels := prometheus.Labels{"pool": name}
	mkDesc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc("dbpool_"+metric, help, nil, labels)
	}
	return &poolCollector{
		name:       name,
		stats:      stats,
		size:       mkDesc("size", "Current number of live connections in the pool."),
		checkedOut: mkDesc("checked_out", "Number of connections currently leased to a channel."),
		waitQueue:  mkDesc("wait_queue_size", "Number of goroutines currently waiting to acquire a connection."),
		minSize:    mkDesc("min_size", "Configured minimum pool size."),
		maxSize:    mkDesc("max_size", "Configured maximum pool size."),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.checkedOut
	ch <- c.waitQueue
	ch <- c.minSize
	ch <- c.maxSize
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.checkedOut, prometheus.GaugeValue, float64(s.CheckedOutCount))
	ch <- prometheus.MustNewConstMetric(c.waitQueue, prometheus.GaugeValue, float64(s.WaitQueueSize))
	ch <- prometheus.MustNewConstMetric(c.minSize, prometheus.GaugeValue, float64(s.MinSize))
	ch <- prometheus.MustNewConstMetric(c.maxSize, prometheus.GaugeValue, float64(s.MaxSize))
}
