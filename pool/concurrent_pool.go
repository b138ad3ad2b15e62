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
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// concurrentPool is a bounded, semaphore-guarded set of items with blocking
// acquire, release, prune, and ensureMinSize — the generalization of the
// teacher's ConnectionPool (pool.go), with the free list and the capacity
// limiter split apart (see DESIGN.md, "Open questions resolved").
//
// permits is acquired as the prerequisite to owning an item (spec.md §3):
// a free item popped from available, or a freshly created one, both consume
// one permit. size never exceeds maxSize.
type concurrentPool struct {
	maxSize int
	permits *semaphore.Weighted
	factory *itemFactory

	mu        sync.Mutex
	available []*UsageTrackingConnection // LIFO: push/pop at the tail, keeps hot items hot
	size      int
	closed    bool
}

func newConcurrentPool(maxSize int, factory *itemFactory) *concurrentPool {
	return &concurrentPool{
		maxSize: maxSize,
		permits: semaphore.NewWeighted(int64(maxSize)),
		factory: factory,
	}
}

// get acquires a permit within timeout and returns an item — either a free
// one popped from available, or a freshly created one. A negative timeout
// waits indefinitely; zero is non-blocking (spec.md §4.1).
func (p *concurrentPool) get(ctx context.Context, timeout time.Duration) (*UsageTrackingConnection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	if err := p.acquirePermit(ctx, timeout); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.permits.Release(1)
		return nil, ErrPoolClosed
	}
	if n := len(p.available); n > 0 {
		item := p.available[n-1]
		p.available = p.available[:n-1]
		p.mu.Unlock()
		return item, nil
	}
	p.mu.Unlock()

	item, err := p.factory.create(ctx)
	if err != nil {
		// Creation failed: the just-acquired permit must be released
		// before the error propagates (spec.md §4.1).
		p.permits.Release(1)
		return nil, err
	}

	p.mu.Lock()
	p.size++
	p.mu.Unlock()

	return item, nil
}

// acquirePermit implements the timeout semantics of spec.md §4.1 on top of
// semaphore.Weighted: negative waits indefinitely, zero is a non-blocking
// TryAcquire, positive is a context-bounded Acquire.
func (p *concurrentPool) acquirePermit(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		if p.permits.TryAcquire(1) {
			return nil
		}
		return ErrTimeout
	}
	if timeout < 0 {
		if err := p.permits.Acquire(ctx, 1); err != nil {
			return err
		}
		return nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.permits.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() == nil {
			return ErrTimeout
		}
		return ctx.Err()
	}
	return nil
}

// release returns item's permit. If prune is true, or the pool is closed,
// the item is destroyed via the factory; otherwise it is pushed back onto
// available (spec.md §4.1).
func (p *concurrentPool) release(item *UsageTrackingConnection, prune bool, reason destroyReason) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if prune || closed {
		if closed && reason == "" {
			reason = reasonPoolClosed
		}
		p.factory.close(item, reason)
		p.mu.Lock()
		p.size--
		p.mu.Unlock()
		p.permits.Release(1)
		return
	}

	item.touch(p.factory.clock)
	p.mu.Lock()
	p.available = append(p.available, item)
	p.mu.Unlock()
	p.permits.Release(1)
}

// prune scans available and destroys every item the factory considers
// stale. Free items hold no permit (release returned it), so none is
// released here.
func (p *concurrentPool) prune() {
	p.mu.Lock()
	var kept []*UsageTrackingConnection
	var destroyed []*UsageTrackingConnection
	for _, item := range p.available {
		if p.factory.shouldPrune(item) {
			destroyed = append(destroyed, item)
		} else {
			kept = append(kept, item)
		}
	}
	p.available = kept
	p.size -= len(destroyed)
	p.mu.Unlock()

	for _, item := range destroyed {
		p.factory.close(item, p.factory.classify(item, false))
	}
}

// ensureMinSize creates items until size >= n, stopping early if the pool
// is closed, a non-blocking permit cannot be acquired, or creation fails
// (spec.md §4.1).
func (p *concurrentPool) ensureMinSize(ctx context.Context, n int) {
	for {
		p.mu.Lock()
		if p.closed || p.size >= n {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		if !p.permits.TryAcquire(1) {
			return
		}

		item, err := p.factory.create(ctx)
		if err != nil {
			p.permits.Release(1)
			return
		}

		p.mu.Lock()
		p.size++
		p.available = append(p.available, item)
		p.mu.Unlock()
		p.permits.Release(1)
	}
}

// close marks the pool closed and destroys every free item. Permits already
// held by live PooledChannels are honored: their later release destroys the
// item instead of pooling it (spec.md §4.1).
func (p *concurrentPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	free := p.available
	p.available = nil
	p.size -= len(free)
	p.mu.Unlock()

	for _, item := range free {
		p.factory.close(item, p.factory.classify(item, true))
	}
}

// snapshot returns (size, availableCount) for the statistics observer.
func (p *concurrentPool) snapshot() (size, available int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size, len(p.available)
}
