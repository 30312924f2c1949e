// Copyright 2024-2026 Aiku AI

// Package chat implements a client-side session controller for an XMPP-style
// presence, chat, multi-user chat and pubsub protocol.
//
// The wire protocol is not implemented here. It is supplied by a [Transport],
// created per login by an injected [TransportFactory]. The xmppconn
// sub-package provides one on top of mellium.im/xmpp.
//
// # Core Types
//
// [SessionController] owns one Transport at a time and drives the session
// state machine (Uninitialized, Connecting, LoggedIn, LoggingOut, Done). It
// attaches exactly one listener per transport stream and detaches each by its
// own handle on teardown. Outbound commands are methods on the controller;
// they return immediately and their outcome is observed through events.
//
// [RoomRegistry] keeps the membership roster of every room the session has
// seen membership for and resolves room message senders to nicknames.
//
// [EventSink] fans normalized session events out to subscribers in
// subscription order, isolating panicking handlers.
//
// # Event Ordering
//
// Every transport callback is funneled through a single serial queue, so
// state transitions and roster updates never race each other. Handlers may
// issue commands; any events those commands produce synchronously are queued
// behind the event being handled.
package chat
