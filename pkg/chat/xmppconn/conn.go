// Copyright 2024-2026 Aiku AI

// Package xmppconn implements chat.Transport on top of mellium.im/xmpp.
package xmppconn

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/aiku/xmppchat/pkg/chat"
	"github.com/rs/zerolog"
	"mellium.im/sasl"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/dial"
	"mellium.im/xmpp/stanza"
)

var errAlreadyStarted = errors.New("login already started")

// stanzaWriter is the outbound half of a session. *xmpp.Session satisfies it.
type stanzaWriter interface {
	Send(ctx context.Context, r xml.TokenReader) error
	Encode(ctx context.Context, v interface{}) error
}

// Options controls how a Conn reaches the server.
type Options struct {
	DialTimeout        time.Duration
	DirectTLS          bool
	InsecureSkipVerify bool
	// PubSubService is the pubsub component address. Empty means
	// "pubsub." followed by the user's domain.
	PubSubService string
}

// OptionsFromConfig extracts the connection options from a processed config.
func OptionsFromConfig(cfg *chat.Config) Options {
	return Options{
		DialTimeout:        cfg.DialTimeoutDuration(),
		DirectTLS:          cfg.DirectTLS,
		InsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		PubSubService:      cfg.PubSubService,
	}
}

// NewFactory returns a factory that creates one Conn per session.
func NewFactory(opts Options, log zerolog.Logger) chat.TransportFactory {
	return chat.TransportFactoryFunc(func(user chat.UserIdentity) (chat.Transport, error) {
		if user.Domain == "" {
			return nil, fmt.Errorf("user %q has no domain", user)
		}
		return New(user, opts, log), nil
	})
}

// Conn is one client connection. All exported methods are safe for
// concurrent use; events are raised from the connection's read goroutine.
type Conn struct {
	user   chat.UserIdentity
	opts   Options
	log    zerolog.Logger
	events chat.TransportEvents

	mu         sync.Mutex
	status     chat.LoginStatus
	starting   bool
	loggingOut bool
	closed     bool
	cancel     context.CancelFunc
	session    *xmpp.Session
	out        stanzaWriter
	self       chat.UserIdentity
	presence   chat.UserPresence
	roster     map[string]chat.UserIdentity
	rooms      map[chat.RoomID]*roomState
	pending    map[string]string
}

var _ chat.Transport = (*Conn)(nil)

// New creates a disconnected Conn for user.
func New(user chat.UserIdentity, opts Options, log zerolog.Logger) *Conn {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 30 * time.Second
	}
	return &Conn{
		user: user,
		opts: opts,
		log: log.With().
			Str("component", "xmppconn").
			Str("user", user.String()).
			Logger(),
		presence: chat.UserPresence{Available: true, Status: chat.PresenceOnline},
		roster:   make(map[string]chat.UserIdentity),
		rooms:    make(map[chat.RoomID]*roomState),
		pending:  make(map[string]string),
	}
}

func (c *Conn) Events() *chat.TransportEvents {
	return &c.events
}

func (c *Conn) LoginStatus() chat.LoginStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Login starts connecting in the background. The result is raised on the
// login-complete stream.
func (c *Conn) Login(ctx context.Context, creds chat.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	if c.starting || c.status == chat.LoginStatusLoggedIn {
		return errAlreadyStarted
	}
	if creds.User.IsZero() {
		creds.User = c.user
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.starting = true
	c.loggingOut = false
	c.cancel = cancel
	go c.run(runCtx, creds)
	return nil
}

func (c *Conn) run(ctx context.Context, creds chat.Credentials) {
	log := c.log.With().Str("action", "login").Logger()
	session, err := c.connect(ctx, creds)
	if err != nil {
		log.Err(err).Msg("Failed to connect")
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		c.events.LoginComplete.Emit(chat.LoginResult{User: creds.User, Error: err.Error()})
		return
	}

	c.mu.Lock()
	c.starting = false
	if c.closed {
		c.mu.Unlock()
		closeSession(session)
		return
	}
	c.session = session
	c.out = session
	c.status = chat.LoginStatusLoggedIn
	c.self = fromJID(session.LocalAddr())
	presence := c.presence
	c.mu.Unlock()

	log.Info().Str("bound_address", c.self.String()).Msg("Logged in")
	c.announce(ctx, log, creds.User, presence)

	err = session.Serve(xmpp.HandlerFunc(func(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
		d := xml.NewTokenDecoder(xmlstream.MultiReader(xmlstream.Token(*start), t))
		if _, err := d.Token(); err != nil {
			return err
		}
		return c.dispatch(d, start)
	}))
	c.finish(creds.User, session, err)
}

// announce sends the initial presence and roster request, then reports the
// login. Anything a login handler sends, such as room joins, follows the
// initial presence on the wire.
func (c *Conn) announce(ctx context.Context, log zerolog.Logger, user chat.UserIdentity, presence chat.UserPresence) {
	if err := c.sendOwnPresence(ctx, presence); err != nil {
		log.Warn().Err(err).Msg("Failed to send initial presence")
	}
	if err := c.requestRoster(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to request roster")
	}
	c.events.LoginComplete.Emit(chat.LoginResult{User: user, Success: true})
	c.events.LoginChanged.Emit(chat.LoginStatusChange{User: user, Status: chat.LoginStatusLoggedIn})
}

func (c *Conn) connect(ctx context.Context, creds chat.Credentials) (*xmpp.Session, error) {
	addr, err := toJID(creds.User)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	tlsConfig := &tls.Config{
		ServerName:         addr.Domain().String(),
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.opts.InsecureSkipVerify,
	}
	conn, err := c.dialConn(dialCtx, creds.Server.Addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	features := []xmpp.StreamFeature{xmpp.BindResource()}
	if !c.opts.DirectTLS {
		features = append(features, xmpp.StartTLS(tlsConfig))
	}
	features = append(features, xmpp.SASL("", creds.Password,
		sasl.ScramSha256Plus, sasl.ScramSha1Plus, sasl.ScramSha256, sasl.ScramSha1, sasl.Plain))
	session, err := xmpp.NewClientSession(dialCtx, addr, conn, features...)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to negotiate session: %w", err)
	}
	return session, nil
}

// dialConn connects to serverAddr when set, and otherwise resolves the
// server from the address's domain.
func (c *Conn) dialConn(ctx context.Context, serverAddr string, tlsConfig *tls.Config) (net.Conn, error) {
	if serverAddr == "" {
		addr, err := toJID(c.user)
		if err != nil {
			return nil, err
		}
		d := dial.Dialer{NoTLS: !c.opts.DirectTLS, TLSConfig: tlsConfig}
		return d.Dial(ctx, "tcp", addr)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", serverAddr)
	if err != nil || !c.opts.DirectTLS {
		return conn, err
	}
	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// finish runs once the read loop has stopped.
func (c *Conn) finish(user chat.UserIdentity, session *xmpp.Session, serveErr error) {
	c.mu.Lock()
	requested := c.loggingOut
	c.resetLocked()
	c.mu.Unlock()
	if err := session.Conn().Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.log.Debug().Err(err).Msg("Failed to close connection")
	}

	c.events.LoginChanged.Emit(chat.LoginStatusChange{User: user, Status: chat.LoginStatusLoggedOut})
	result := chat.LoginResult{User: user, Success: requested}
	if !requested {
		if serveErr != nil {
			result.Error = serveErr.Error()
		} else {
			result.Error = "connection closed by server"
		}
		c.log.Warn().Err(serveErr).Msg("Connection lost")
	} else {
		c.log.Info().Msg("Logged out")
	}
	c.events.LogoutComplete.Emit(result)
}

func (c *Conn) resetLocked() {
	c.status = chat.LoginStatusLoggedOut
	c.loggingOut = false
	c.session = nil
	c.out = nil
	clear(c.rooms)
	clear(c.pending)
}

// Logout announces unavailability and closes the stream. Completion is
// raised once the server has closed its side.
func (c *Conn) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.status != chat.LoginStatusLoggedIn || c.session == nil {
		c.mu.Unlock()
		return chat.ErrNotConnected
	}
	c.loggingOut = true
	session := c.session
	out := c.out
	c.mu.Unlock()

	err := out.Send(ctx, stanza.Presence{Type: stanza.UnavailablePresence}.Wrap(nil))
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to send unavailable presence")
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// Close tears the connection down without waiting for the server.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	session := c.session
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	return closeSession(session)
}

func closeSession(session *xmpp.Session) error {
	err := session.Close()
	if connErr := session.Conn().Close(); connErr != nil && !errors.Is(connErr, net.ErrClosed) {
		err = errors.Join(err, connErr)
	}
	return err
}

// writer returns the outbound stream, or ErrNotConnected before login.
func (c *Conn) writer() (stanzaWriter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil || c.status != chat.LoginStatusLoggedIn {
		return nil, chat.ErrNotConnected
	}
	return c.out, nil
}

func (c *Conn) Presence() (chat.PresenceService, bool) {
	return presenceService{c}, true
}

func (c *Conn) Messages() (chat.MessageService, bool) {
	return messageService{c}, true
}

func (c *Conn) PrivateChat() (chat.PrivateChatService, bool) {
	return privateChatService{c}, true
}

func (c *Conn) MultiUserChat() (chat.MultiUserChatService, bool) {
	return mucService{c}, true
}

func (c *Conn) PubSub() (chat.PubSubService, bool) {
	return pubSubService{c}, true
}
