// Copyright 2024-2026 Aiku AI

package chat

import "errors"

// Errors returned by SessionController commands. A dropped command never
// reaches the transport and never produces an event.
var (
	// ErrNotConnected means the session has no transport.
	ErrNotConnected = errors.New("chat: not connected")
	// ErrCapabilityUnavailable means the transport does not offer the
	// sub-interface the command needs.
	ErrCapabilityUnavailable = errors.New("chat: capability unavailable")
	// ErrInvalidState means the command is not allowed in the current
	// session state.
	ErrInvalidState = errors.New("chat: invalid session state")
	// ErrAlreadyConnecting is returned by Login while a login is in flight.
	ErrAlreadyConnecting = errors.New("chat: already connecting")
	// ErrTransportUnavailable means no transport could be created. Unlike
	// the others this is an environment problem the caller must handle.
	ErrTransportUnavailable = errors.New("chat: transport unavailable")
)
