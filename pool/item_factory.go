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

	"github.com/go-logr/logr"
)

// itemFactory creates and vets the pool's UsageTrackingConnection items. It
// is the generalization of the teacher's DefaultConnectionFactory plus
// PooledConnection.isValidLocked, driven by the manager's generation counter
// instead of a per-connection idle check alone.
type itemFactory struct {
	transportFactory InternalConnectionFactory
	serverAddress    string
	generation       *atomic.Uint64
	settings         Settings
	clock            Clock
	log              logr.Logger
}

// create obtains a raw transport, wraps it, and stamps it with the
// manager's current generation (spec.md §4.3).
func (f *itemFactory) create(ctx context.Context) (*UsageTrackingConnection, error) {
	transport, err := f.transportFactory.Create(ctx, f.serverAddress)
	if err != nil {
		return nil, err
	}
	gen := f.generation.Load()
	item := newUsageTrackingConnection(transport, gen, f.clock)
	f.log.Info("created pooled connection", "id", item.ID(), "generation", gen)
	return item, nil
}

// destroyReason classifies why an item is being destroyed, in the priority
// order spec.md §4.3 specifies: generation mismatch, then lifetime, then
// idle, then pool-closed.
type destroyReason string

const (
	reasonSiblingFault destroyReason = "transport fault on sibling"
	reasonLifetime     destroyReason = "past max lifetime"
	reasonIdle         destroyReason = "past max idle time"
	reasonPoolClosed   destroyReason = "pool closed"
	reasonExplicit     destroyReason = "explicit prune"
)

// classify returns why item is stale, in priority order, or "" if it is not.
func (f *itemFactory) classify(item *UsageTrackingConnection, poolClosed bool) destroyReason {
	gen := f.generation.Load()
	now := f.clock.NowMillis()

	if item.Generation() < gen {
		return reasonSiblingFault
	}
	if expired(f.settings.MaxConnectionLifeTime.Milliseconds(), now, item.OpenedAt()) {
		return reasonLifetime
	}
	if expired(f.settings.MaxConnectionIdleTime.Milliseconds(), now, item.LastUsedAt()) {
		return reasonIdle
	}
	if poolClosed {
		return reasonPoolClosed
	}
	return ""
}

// close closes the underlying transport and logs the destruction reason.
func (f *itemFactory) close(item *UsageTrackingConnection, reason destroyReason) error {
	item.markClosed()
	err := item.Transport().Close()
	if reason == "" {
		reason = reasonExplicit
	}
	f.log.Info("destroyed pooled connection", "id", item.ID(), "reason", string(reason))
	return err
}

// shouldPrune reports whether item is stale per generation, lifetime, or
// idle criteria (spec.md §4.3) — the same three conditions applied at
// acquisition time.
func (f *itemFactory) shouldPrune(item *UsageTrackingConnection) bool {
	return f.classify(item, false) != ""
}

// expired implements spec.md §4.2's expiry test: "maxTime != 0 AND now -
// startTime > maxTime". A maxTime of zero disables the check.
func expired(maxTime, now, startTime int64) bool {
	return maxTime != 0 && now-startTime > maxTime
}
