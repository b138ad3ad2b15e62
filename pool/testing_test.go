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
	"fmt"
	"sync"
	"sync/atomic"
)

// fakeClock is a manually-advanced Clock, replacing the teacher's
// pool_test.go reliance on real sleeps with an injectable one (DESIGN.md,
// "Open questions resolved").
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
}

// fakeConnection is an in-memory InternalConnection that never touches a
// socket, generalizing the teacher's pool_test.go mockTransport to this
// package's InternalConnection shape.
type fakeConnection struct {
	id      string
	addr    string
	mu      sync.Mutex
	closed  bool
	onSend  func([][]byte) error
	onRecv  func(ReceiveArgs) (ResponseBuffers, error)
	sendCnt atomic.Int32
	recvCnt atomic.Int32
}

func (c *fakeConnection) ID() string            { return c.id }
func (c *fakeConnection) ServerAddress() string { return c.addr }

func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConnection) SendMessage(ctx context.Context, buffers [][]byte) error {
	c.sendCnt.Add(1)
	if c.onSend != nil {
		return c.onSend(buffers)
	}
	return nil
}

func (c *fakeConnection) SendMessageAsync(ctx context.Context, buffers [][]byte, callback func(error)) {
	callback(c.SendMessage(ctx, buffers))
}

func (c *fakeConnection) ReceiveMessage(ctx context.Context, args ReceiveArgs) (ResponseBuffers, error) {
	c.recvCnt.Add(1)
	if c.onRecv != nil {
		return c.onRecv(args)
	}
	return ResponseBuffers{Header: ReplyHeader{ResponseTo: args.RequestID}}, nil
}

func (c *fakeConnection) ReceiveMessageAsync(ctx context.Context, args ReceiveArgs, callback func(ResponseBuffers, error)) {
	resp, err := c.ReceiveMessage(ctx, args)
	callback(resp, err)
}

// fakeConnectionFactory hands out fakeConnections and lets tests fail the
// Nth Create call, or every call, to exercise acquisition-failure paths.
type fakeConnectionFactory struct {
	mu        sync.Mutex
	created   int
	failEvery bool
	failAfter int // fail calls with index >= failAfter (0 = never)
}

func (f *fakeConnectionFactory) Create(ctx context.Context, addr string) (InternalConnection, error) {
	f.mu.Lock()
	idx := f.created
	f.created++
	f.mu.Unlock()

	if f.failEvery || (f.failAfter > 0 && idx >= f.failAfter) {
		return nil, fmt.Errorf("fakeConnectionFactory: forced failure on call %d", idx)
	}
	return &fakeConnection{id: fmt.Sprintf("conn-%d", idx), addr: addr}, nil
}

func (f *fakeConnectionFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// newTestManager builds a Manager from settings over a fakeConnectionFactory
// with a fakeClock, and closes it when the test ends.
func newTestManager(t interface {
	Cleanup(func())
}, settings Settings, factory *fakeConnectionFactory, clock *fakeClock) *Manager {
	m, err := NewManager(settings, factory, "test-pool", nil, WithClock(clock))
	if err != nil {
		panic(err)
	}
	t.Cleanup(m.Close)
	return m
}
