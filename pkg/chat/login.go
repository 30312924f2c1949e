// Copyright 2024-2026 Aiku AI

package chat

import (
	"context"
	"fmt"
)

// Login connects as userID. The call returns once the transport has the
// request; the outcome arrives as a LoginCompleteEvent.
func (c *SessionController) Login(ctx context.Context, userID, credential, serverAddr, domain, clientResource string) error {
	return c.LoginWithServer(ctx, userID, credential, ServerConfig{
		Addr:           serverAddr,
		Domain:         domain,
		ClientResource: clientResource,
	})
}

// LoginWithServer is Login with the server settings grouped.
//
// Login is allowed from Uninitialized and Done. Any previous transport is
// released first and a fresh one is requested from the factory. Failing to
// create a transport returns ErrTransportUnavailable; a transport that
// rejects the request synchronously produces a failed LoginCompleteEvent.
func (c *SessionController) LoginWithServer(ctx context.Context, userID, credential string, server ServerConfig) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		c.mu.Unlock()
		return ErrAlreadyConnecting
	case StateLoggedIn, StateLoggingOut:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: login while %s", ErrInvalidState, state)
	}
	prevState := c.state
	c.state = StateConnecting
	c.finishPending = false
	old := c.transport
	c.mu.Unlock()

	if old != nil {
		c.releaseTransport(old)
	}

	identity := identityForLogin(userID, server)
	log := c.log.With().Str("user_id", identity.String()).Logger()

	t, err := c.factory.NewTransport(identity)
	if err == nil && t == nil {
		err = fmt.Errorf("factory returned no transport")
	}
	if err != nil {
		c.mu.Lock()
		c.state = prevState
		c.mu.Unlock()
		log.Error().Err(err).Msg("Failed to create transport")
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	c.mu.Lock()
	c.transport = t
	c.identity = identity
	c.mu.Unlock()
	c.registry.Reset()
	c.Init()

	log.Info().Str("server_addr", server.Addr).Str("domain", server.Domain).Msg("Logging in")
	creds := Credentials{User: identity, Password: credential, Server: server}
	if err := t.Login(ctx, creds); err != nil {
		log.Warn().Err(err).Msg("Transport rejected login")
		c.queue.Do(func() {
			c.handleLoginComplete(t, LoginResult{User: identity, Success: false, Error: err.Error()})
		})
	}
	return nil
}

// releaseTransport detaches and closes a transport that is being replaced.
// The state machine is left alone.
func (c *SessionController) releaseTransport(old Transport) {
	c.mu.Lock()
	if c.transport != old {
		c.mu.Unlock()
		return
	}
	handles := c.handles
	inited := c.inited
	c.transport = nil
	c.handles = listenerHandles{}
	c.inited = false
	c.mu.Unlock()

	if inited {
		handles.detach(old.Events())
	}
	if err := old.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close previous transport")
	}
}

// Logout starts logging out. It does nothing unless the session is LoggedIn.
// The outcome arrives as a LogoutCompleteEvent.
func (c *SessionController) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateLoggedIn || c.transport == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateLoggingOut
	t := c.transport
	identity := c.identity
	c.mu.Unlock()

	c.log.Info().Msg("Logging out")
	c.startLogout(ctx, t, identity)
	return nil
}

func (c *SessionController) startLogout(ctx context.Context, t Transport, identity UserIdentity) {
	if err := t.Logout(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Transport rejected logout")
		c.queue.Do(func() {
			c.handleLogoutComplete(t, LoginResult{User: identity, Success: false, Error: err.Error()})
		})
	}
}

// Finish ends the session. A logged in session is logged out first and torn
// down when the logout completes. While a login or logout is in flight the
// teardown waits for its completion. Otherwise the transport is released
// immediately.
func (c *SessionController) Finish(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateLoggedIn:
		c.finishPending = true
		c.mu.Unlock()
		c.log.Debug().Msg("Finishing after logout")
		return c.Logout(ctx)
	case StateConnecting, StateLoggingOut:
		c.finishPending = true
		state := c.state
		c.mu.Unlock()
		c.log.Debug().Stringer("state", state).Msg("Deferring finish until completion")
		return nil
	}
	c.mu.Unlock()
	c.teardown()
	return nil
}

// teardown releases everything and marks the session Done.
func (c *SessionController) teardown() {
	c.DeInit()
	c.mu.Lock()
	c.state = StateDone
	c.mu.Unlock()
	c.log.Info().Msg("Session finished")
}
