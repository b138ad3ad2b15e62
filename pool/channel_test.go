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
	"errors"
	"testing"
)

func TestChannelSendReceiveRoundTrip(t *testing.T) {
	clock := &fakeClock{}
	factory := &fakeConnectionFactory{}
	m := newTestManager(t, DefaultSettings(WithMaxSize(1), WithServerAddress("db.internal:9090")), factory, clock)

	ch, err := m.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer ch.Close()

	if err := ch.SendMessage(context.Background(), [][]byte{[]byte("ping")}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	resp, err := ch.ReceiveMessage(context.Background(), ReceiveArgs{RequestID: 0})
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if resp.Header.ResponseTo != 0 {
		t.Fatalf("ResponseTo = %d, want 0", resp.Header.ResponseTo)
	}
}

func TestChannelSocketFaultBumpsGeneration(t *testing.T) {
	clock := &fakeClock{}
	factory := &fakeConnectionFactory{}
	m := newTestManager(t, DefaultSettings(WithMaxSize(2), WithServerAddress("db.internal:9090")), factory, clock)

	ch, err := m.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	conn := ch.item.Transport().(*fakeConnection)
	conn.onSend = func([][]byte) error {
		return &TransportError{Op: "send", Err: errors.New("connection reset by peer")}
	}

	genBefore := m.currentGeneration()
	if err := ch.SendMessage(context.Background(), [][]byte{[]byte("x")}); err == nil {
		t.Fatal("expected SendMessage to return the transport error")
	}
	if m.currentGeneration() == genBefore {
		t.Fatal("a non-interrupted transport fault must bump the generation")
	}
	ch.Close()
}

func TestChannelInterruptedReadPreservesCohort(t *testing.T) {
	clock := &fakeClock{}
	factory := &fakeConnectionFactory{}
	m := newTestManager(t, DefaultSettings(WithMaxSize(2), WithServerAddress("db.internal:9090")), factory, clock)

	ch, err := m.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	conn := ch.item.Transport().(*fakeConnection)
	conn.onRecv = func(ReceiveArgs) (ResponseBuffers, error) {
		return ResponseBuffers{}, &TransportError{Op: "receive", Interrupted: true, Err: context.Canceled}
	}

	genBefore := m.currentGeneration()
	if _, err := ch.ReceiveMessage(context.Background(), ReceiveArgs{RequestID: 0}); err == nil {
		t.Fatal("expected ReceiveMessage to return the interrupted error")
	}
	if m.currentGeneration() != genBefore {
		t.Fatal("an interrupted read must not bump the generation")
	}
	ch.Close()
}

func TestChannelResponseCorrelationMismatch(t *testing.T) {
	clock := &fakeClock{}
	factory := &fakeConnectionFactory{}
	m := newTestManager(t, DefaultSettings(WithMaxSize(1), WithServerAddress("db.internal:9090")), factory, clock)

	ch, err := m.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer ch.Close()

	conn := ch.item.Transport().(*fakeConnection)
	conn.onRecv = func(args ReceiveArgs) (ResponseBuffers, error) {
		return ResponseBuffers{Header: ReplyHeader{ResponseTo: args.RequestID + 1}}, nil
	}

	genBefore := m.currentGeneration()
	_, err = ch.ReceiveMessage(context.Background(), ReceiveArgs{RequestID: 42})
	var protoErr *InternalProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected an InternalProtocolError, got %v (%T)", err, err)
	}
	if protoErr.Expected != 42 || protoErr.Actual != 43 {
		t.Fatalf("unexpected InternalProtocolError fields: %+v", protoErr)
	}
	if m.currentGeneration() != genBefore {
		t.Fatal("a correlation mismatch must not bump the generation")
	}
}

func TestChannelCloseIsIdempotentAndGuardsOperations(t *testing.T) {
	clock := &fakeClock{}
	factory := &fakeConnectionFactory{}
	m := newTestManager(t, DefaultSettings(WithMaxSize(1), WithServerAddress("db.internal:9090")), factory, clock)

	ch, err := m.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	ch.Close()
	ch.Close() // must not panic or double-release the permit

	if !ch.IsClosed() {
		t.Fatal("expected IsClosed() to report true after Close")
	}
	if err := ch.SendMessage(context.Background(), nil); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed after Close, got %v", err)
	}

	// The permit must have been returned: a fresh Get should succeed.
	ch2, err := m.Get(context.Background())
	if err != nil {
		t.Fatalf("expected Get to succeed after the prior channel closed, got %v", err)
	}
	ch2.Close()
}
