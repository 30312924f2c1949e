// Copyright 2024-2026 Aiku AI

package chat

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionController owns one logical chat session: a single Transport, the
// listeners attached to it, the room rosters built from its events and the
// sink observers subscribe to.
//
// Transport callbacks never touch controller state directly. They enqueue
// onto a serial queue, so state transitions and roster updates are applied
// one event at a time in the order the transport raised them.
type SessionController struct {
	factory  TransportFactory
	registry *RoomRegistry
	sink     *EventSink
	queue    serialQueue

	mu            sync.Mutex
	state         SessionState
	transport     Transport
	identity      UserIdentity
	inited        bool
	handles       listenerHandles
	finishPending bool

	sessionID string
	log       zerolog.Logger
}

// NewSessionController creates a controller in the Uninitialized state.
// Transports are requested from factory on every Login.
func NewSessionController(factory TransportFactory, log zerolog.Logger) *SessionController {
	sessionID := uuid.NewString()
	log = log.With().Str("session_id", sessionID).Logger()
	return &SessionController{
		factory:   factory,
		registry:  NewRoomRegistry(),
		sink:      NewEventSink(log),
		queue:     serialQueue{log: log.With().Str("component", "event_queue").Logger()},
		sessionID: sessionID,
		log:       log.With().Str("component", "session").Logger(),
	}
}

// State returns the current session state.
func (c *SessionController) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the identity of the last Login.
func (c *SessionController) Identity() UserIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Sink returns the sink session events are delivered through.
func (c *SessionController) Sink() *EventSink {
	return c.sink
}

// Rooms returns the room membership registry.
func (c *SessionController) Rooms() *RoomRegistry {
	return c.registry
}

// SessionID is a random id attached to every log line of this session.
func (c *SessionController) SessionID() string {
	return c.sessionID
}

// Init attaches the controller's listeners to the current transport. It is a
// no-op when already attached or when there is no transport.
func (c *SessionController) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inited || c.transport == nil {
		return
	}
	c.handles = c.attach(c.transport)
	c.inited = true
	c.log.Debug().Msg("Attached transport listeners")
}

// DeInit detaches every listener and releases the transport. It is safe to
// call repeatedly and without a prior Init.
func (c *SessionController) DeInit() {
	c.mu.Lock()
	t := c.transport
	handles := c.handles
	inited := c.inited
	c.transport = nil
	c.handles = listenerHandles{}
	c.inited = false
	c.finishPending = false
	if t != nil {
		c.state = StateDone
	}
	c.mu.Unlock()

	if t == nil {
		return
	}
	if inited {
		handles.detach(t.Events())
	}
	if err := t.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close transport")
	}
	c.log.Debug().Msg("Released transport")
}

// Close implements io.Closer.
func (c *SessionController) Close() error {
	c.DeInit()
	return nil
}

// isCurrent reports whether t is still the controller's transport. Events
// from a replaced or released transport are dropped.
func (c *SessionController) isCurrent(t Transport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport == t
}

// listenerHandles holds one handle per transport stream.
type listenerHandles struct {
	loginComplete   ListenerHandle
	logoutComplete  ListenerHandle
	loginChanged    ListenerHandle
	message         ListenerHandle
	privateChat     ListenerHandle
	roomChat        ListenerHandle
	roomJoinPublic  ListenerHandle
	roomJoinPrivate ListenerHandle
	memberJoined    ListenerHandle
	memberExited    ListenerHandle
	memberChanged   ListenerHandle
}

// queued wraps a handler so that the transport callback only enqueues it.
func queued[T any](c *SessionController, t Transport, fn func(Transport, T)) func(T) {
	return func(evt T) {
		c.queue.Do(func() { fn(t, evt) })
	}
}

func (c *SessionController) attach(t Transport) listenerHandles {
	ev := t.Events()
	return listenerHandles{
		loginComplete:   ev.LoginComplete.Add(queued(c, t, c.handleLoginComplete)),
		logoutComplete:  ev.LogoutComplete.Add(queued(c, t, c.handleLogoutComplete)),
		loginChanged:    ev.LoginChanged.Add(queued(c, t, c.handleLoginChanged)),
		message:         ev.MessageReceived.Add(queued(c, t, c.handleMessage)),
		privateChat:     ev.PrivateChatReceived.Add(queued(c, t, c.handlePrivateChat)),
		roomChat:        ev.RoomChatReceived.Add(queued(c, t, c.handleRoomChat)),
		roomJoinPublic:  ev.RoomJoinPublic.Add(queued(c, t, c.handleRoomJoinPublic)),
		roomJoinPrivate: ev.RoomJoinPrivate.Add(queued(c, t, c.handleRoomJoinPrivate)),
		memberJoined:    ev.RoomMemberJoined.Add(queued(c, t, c.handleMemberJoined)),
		memberExited:    ev.RoomMemberExited.Add(queued(c, t, c.handleMemberExited)),
		memberChanged:   ev.RoomMemberChanged.Add(queued(c, t, c.handleMemberChanged)),
	}
}

func (h listenerHandles) detach(ev *TransportEvents) {
	ev.LoginComplete.Remove(h.loginComplete)
	ev.LogoutComplete.Remove(h.logoutComplete)
	ev.LoginChanged.Remove(h.loginChanged)
	ev.MessageReceived.Remove(h.message)
	ev.PrivateChatReceived.Remove(h.privateChat)
	ev.RoomChatReceived.Remove(h.roomChat)
	ev.RoomJoinPublic.Remove(h.roomJoinPublic)
	ev.RoomJoinPrivate.Remove(h.roomJoinPrivate)
	ev.RoomMemberJoined.Remove(h.memberJoined)
	ev.RoomMemberExited.Remove(h.memberExited)
	ev.RoomMemberChanged.Remove(h.memberChanged)
}
