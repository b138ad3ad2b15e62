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

	"github.com/google/uuid"
)

// ReplyHeader carries the correlation and size-bounds fields ResponseBuffers
// exposes per spec.md §6.
type ReplyHeader struct {
	ResponseTo    int64
	MessageLength int32
}

// ResponseBuffers is the already-framed reply payload handed back by
// InternalConnection.ReceiveMessage.
type ResponseBuffers struct {
	Header  ReplyHeader
	Buffers [][]byte
}

// ReceiveArgs carries the request id a reply must match, and an optional
// size cap (spec.md §6, §9 open question #1).
type ReceiveArgs struct {
	RequestID      int64
	MaxMessageSize int32
}

// InternalConnection is the external collaborator that can send/receive
// already-framed message byte lists over one raw transport. Concrete socket
// I/O and framing live below this interface (spec.md §1); a default,
// runnable implementation is provided in thrift_transport.go.
type InternalConnection interface {
	SendMessage(ctx context.Context, buffers [][]byte) error
	ReceiveMessage(ctx context.Context, args ReceiveArgs) (ResponseBuffers, error)

	// SendMessageAsync/ReceiveMessageAsync mirror the sync variants but
	// invoke the supplied callback on completion instead of blocking.
	SendMessageAsync(ctx context.Context, buffers [][]byte, callback func(error))
	ReceiveMessageAsync(ctx context.Context, args ReceiveArgs, callback func(ResponseBuffers, error))

	Close() error
	IsClosed() bool
	ID() string
	ServerAddress() string
}

// InternalConnectionFactory opens a fresh InternalConnection to addr.
// Authentication happens here; failures propagate as acquisition errors
// (spec.md §6).
type InternalConnectionFactory interface {
	Create(ctx context.Context, addr string) (InternalConnection, error)
}

// UsageTrackingConnection decorates a borrowed InternalConnection with the
// bookkeeping the pool and manager need: when it was opened, when it was
// last returned to the pool, and which generation cohort it belongs to.
//
// Invariants (spec.md §3): openedAt <= lastUsedAt; generation is set once at
// construction and never mutated; the transport is exclusively owned by
// whichever of {the pool's free list, a single PooledChannel} currently
// holds this value.
type UsageTrackingConnection struct {
	id         string
	openedAt   int64
	lastUsedAt int64
	generation uint64
	transport  InternalConnection
	closed     bool
}

func newUsageTrackingConnection(transport InternalConnection, generation uint64, clock Clock) *UsageTrackingConnection {
	now := clock.NowMillis()
	return &UsageTrackingConnection{
		id:         uuid.NewString(),
		openedAt:   now,
		lastUsedAt: now,
		generation: generation,
		transport:  transport,
	}
}

// ID returns the stable identifier assigned at creation.
func (c *UsageTrackingConnection) ID() string { return c.id }

// Generation returns the manager generation this item was created under.
func (c *UsageTrackingConnection) Generation() uint64 { return c.generation }

// OpenedAt returns the monotonic-ms creation time.
func (c *UsageTrackingConnection) OpenedAt() int64 { return c.openedAt }

// LastUsedAt returns the monotonic-ms time of the last release-to-pool.
func (c *UsageTrackingConnection) LastUsedAt() int64 { return c.lastUsedAt }

// touch stamps lastUsedAt. Spec.md §5: "written only at release time under
// exclusive ownership" — callers must hold exclusive ownership of the item.
func (c *UsageTrackingConnection) touch(clock Clock) {
	c.lastUsedAt = clock.NowMillis()
}

// IsClosed reports the terminal flag.
func (c *UsageTrackingConnection) IsClosed() bool { return c.closed }

// Transport returns the owned raw connection.
func (c *UsageTrackingConnection) Transport() InternalConnection { return c.transport }

// markClosed flips the terminal flag. Never transitions back (spec.md §3).
func (c *UsageTrackingConnection) markClosed() { c.closed = true }

// ServerAddress reads through to the wrapped transport.
func (c *UsageTrackingConnection) ServerAddress() string { return c.transport.ServerAddress() }
