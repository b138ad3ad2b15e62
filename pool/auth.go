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

import "context"

// Authenticator is the capability interface design note §9 calls for in
// place of inheriting from a SASL base class: one interface, one variant per
// mechanism, each owning its own credentials and producing its mechanism
// name. It is invoked by an InternalConnectionFactory when a raw connection
// is first opened; a failure surfaces as a SecurityError and aborts
// acquisition.
//
// The concrete SASL/GSSAPI handshake is out of scope (spec.md §1) — this
// package only carries the shape plus a no-op default so a factory can be
// constructed without credentials in tests and examples.
type Authenticator interface {
	Mechanism() string
	Authenticate(ctx context.Context, conn InternalConnection) error
}

// NoAuthenticator performs no handshake. It is the default for a factory
// built without credentials.
type NoAuthenticator struct{}

// Mechanism returns the mechanism name, "NONE".
func (NoAuthenticator) Mechanism() string { return "NONE" }

// Authenticate is a no-op.
func (NoAuthenticator) Authenticate(context.Context, InternalConnection) error { return nil }

// PlainAuthenticator implements a SASL PLAIN-shaped handshake: it hands the
// already-negotiated username/password to the transport's SendMessage as a
// single authentication frame and expects a correlated reply. The actual
// wire encoding of that frame is a message-construction concern (out of
// scope, spec.md §1); this type exists so InternalConnectionFactory
// implementations have a concrete non-trivial Authenticator to compose with.
type PlainAuthenticator struct {
	Username string
	Password string
}

// Mechanism returns "PLAIN".
func (PlainAuthenticator) Mechanism() string { return "PLAIN" }

// Authenticate sends a single correlated authentication frame and confirms
// the reply matches, reusing the same request/response correlation rule
// PooledChannel enforces for ordinary traffic.
func (a PlainAuthenticator) Authenticate(ctx context.Context, conn InternalConnection) error {
	const authRequestID = -1 // reserved id for the handshake frame
	payload := []byte("\x00" + a.Username + "\x00" + a.Password)
	if err := conn.SendMessage(ctx, [][]byte{payload}); err != nil {
		return &SecurityError{Mechanism: a.Mechanism(), Err: err}
	}
	reply, err := conn.ReceiveMessage(ctx, ReceiveArgs{RequestID: authRequestID})
	if err != nil {
		return &SecurityError{Mechanism: a.Mechanism(), Err: err}
	}
	if reply.Header.ResponseTo != authRequestID {
		return &SecurityError{Mechanism: a.Mechanism(), Err: &InternalProtocolError{
			Expected: authRequestID,
			Actual:   reply.Header.ResponseTo,
		}}
	}
	return nil
}
