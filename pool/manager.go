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
	"context"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"
)

const maintenanceSingleFlightKey = "maintenance"

// Manager is the pooled-channel provider: bounded acquisition with
// admission control, periodic maintenance, and the generation counter that
// retires entire cohorts of connections on transport failure (spec.md §4.2).
//
// It generalizes the teacher's ConnectionPool.Get/maintainPool with a
// generation counter the teacher doesn't have, plus an explicit wait-queue
// cap the teacher enforces only implicitly via channel capacity.
type Manager struct {
	settings Settings
	clock    Clock
	log      logr.Logger

	pool       *concurrentPool
	generation atomic.Uint64

	waitQueueSize atomic.Int64
	closed        atomic.Bool

	scheduler *maintenanceScheduler
	sf        singleflight.Group

	observerRegistry ObserverRegistry
	observerName     string
}

// NewManager constructs a Manager. transportFactory and name are required;
// registry may be nil to skip statistics registration entirely.
func NewManager(settings Settings, transportFactory InternalConnectionFactory, name string, registry ObserverRegistry, opts ...ManagerOption) (*Manager, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		settings:         settings,
		clock:            SystemClock,
		log:              defaultLogger(),
		observerRegistry: registry,
		observerName:     name,
	}
	for _, opt := range opts {
		opt(m)
	}

	factory := &itemFactory{
		transportFactory: transportFactory,
		serverAddress:    settings.ServerAddress,
		generation:       &m.generation,
		settings:         settings,
		clock:            m.clock,
		log:              m.log,
	}
	m.pool = newConcurrentPool(settings.MaxSize, factory)

	if settings.maintenanceEnabled() {
		m.scheduler = newMaintenanceScheduler(func() { m.doMaintenance(context.Background()) })
		m.scheduler.start(settings.MaintenanceFrequency, settings.MaintenanceInitialDelay)
	}

	if m.observerRegistry != nil {
		m.observerRegistry.Register(m.observerName, m.Statistics())
	}

	return m, nil
}

// ManagerOption customizes a Manager at construction.
type ManagerOption func(*Manager)

// WithClock overrides the monotonic time source (for tests).
func WithClock(c Clock) ManagerOption { return func(m *Manager) { m.clock = c } }

// WithLogger overrides the logr.Logger used for create/destroy/generation events.
func WithLogger(l logr.Logger) ManagerOption { return func(m *Manager) { m.log = l } }

// Get acquires a Channel, using the manager's configured MaxWaitTime.
func (m *Manager) Get(ctx context.Context) (*Channel, error) {
	return m.GetWithTimeout(ctx, m.settings.MaxWaitTime)
}

// GetWithTimeout acquires a Channel within timeout, admitting against the
// wait-queue cap first (spec.md §4.2).
//
// While the returned item is stale, it is released with prune=true and
// another is fetched, re-consuming the original deadline's remaining
// budget — computed once at entry so a staleness retry storm cannot
// livelock past the caller's timeout (spec.md §5, §9 open question #3).
func (m *Manager) GetWithTimeout(ctx context.Context, timeout time.Duration) (*Channel, error) {
	if m.closed.Load() {
		return nil, ErrPoolClosed
	}

	if n := m.waitQueueSize.Add(1); int(n) > m.settings.MaxWaitQueueSize {
		m.waitQueueSize.Add(-1)
		return nil, ErrWaitQueueFull
	}
	defer m.waitQueueSize.Add(-1)

	hasDeadline := timeout >= 0
	var deadlineMillis int64
	if hasDeadline {
		deadlineMillis = m.clock.NowMillis() + timeout.Milliseconds()
	}

	for {
		if m.closed.Load() {
			return nil, ErrPoolClosed
		}

		remaining := timeout
		if hasDeadline {
			remaining = time.Duration(deadlineMillis-m.clock.NowMillis()) * time.Millisecond
			if remaining < 0 {
				return nil, ErrTimeout
			}
		}

		item, err := m.pool.get(ctx, remaining)
		if err != nil {
			return nil, err
		}

		factory := m.pool.factory
		if reason := factory.classify(item, m.closed.Load()); reason != "" {
			m.pool.release(item, true, reason)
			continue
		}

		return newChannel(item, m), nil
	}
}

// bumpGeneration retires the current cohort: every item whose generation is
// strictly less is destroyed the next time it is released or acquired
// (spec.md §4.4). It is called by a Channel on a non-interrupted transport
// fault.
func (m *Manager) bumpGeneration() {
	m.generation.Add(1)
	m.log.V(0).Info("transport fault: bumped pool generation", "generation", m.generation.Load())
}

func (m *Manager) currentGeneration() uint64 {
	return m.generation.Load()
}

// releaseItem returns item to the underlying pool, destroying it if prune is
// true or the item is stale.
func (m *Manager) releaseItem(item *UsageTrackingConnection, prune bool) {
	reason := m.pool.factory.classify(item, m.closed.Load())
	if reason != "" {
		prune = true
	}
	m.pool.release(item, prune, reason)
}

// doMaintenance runs the maintenance task synchronously: prune (if idle or
// lifetime pruning is enabled) then ensureMinSize (if MinSize > 0). It is
// mutually excluded with itself via singleflight so a scheduler tick
// overlapping a manual call collapses into one execution (spec.md §5).
func (m *Manager) doMaintenance(ctx context.Context) {
	m.sf.Do(maintenanceSingleFlightKey, func() (interface{}, error) {
		if m.closed.Load() {
			return nil, nil
		}
		if m.settings.pruningEnabled() {
			m.pool.prune()
			m.log.V(fineLevel).Info("maintenance: pruned pool")
		}
		if m.settings.MinSize > 0 {
			m.pool.ensureMinSize(ctx, m.settings.MinSize)
			m.log.V(fineLevel).Info("maintenance: ensured min size", "minSize", m.settings.MinSize)
		}
		return nil, nil
	})
}

// Close closes the pool, cancels the maintenance scheduler, and unregisters
// the statistics observer. Idempotent (spec.md §4.2).
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	if m.scheduler != nil {
		m.scheduler.stop()
	}
	m.pool.close()
	if m.observerRegistry != nil {
		m.observerRegistry.Unregister(m.observerName)
	}
}

// IsClosed reports whether Close has been called.
func (m *Manager) IsClosed() bool { return m.closed.Load() }

// Statistics returns a live snapshot-backed StatsProvider for this manager,
// exposing size, checkedOutCount, waitQueueSize, minSize, maxSize
// (spec.md §4.5).
func (m *Manager) Statistics() StatsProvider {
	return &managerStats{m: m}
}
