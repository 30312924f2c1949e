// Copyright 2024-2026 Aiku AI

package xmppconn

import (
	"context"
	"encoding/xml"
	"fmt"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/roster"
	"mellium.im/xmpp/stanza"
)

// IQ purposes, used when logging replies.
const (
	opRosterFetch       = "roster fetch"
	opRoomInfo          = "room info"
	opRoomConfig        = "room configuration"
	opPubSubCreate      = "pubsub create"
	opPubSubDelete      = "pubsub delete"
	opPubSubSubscribe   = "pubsub subscribe"
	opPubSubUnsubscribe = "pubsub unsubscribe"
	opPubSubPublish     = "pubsub publish"
)

type iqBody struct {
	stanza.IQ
	Roster *struct {
		Item []roster.Item `xml:"item"`
	} `xml:"jabber:iq:roster query"`
	Error *stanzaError `xml:"error"`
}

// dispatch handles one top-level stanza. d is positioned just after start.
// Returning an error ends the session, so only undecodable input does.
func (c *Conn) dispatch(d *xml.Decoder, start *xml.StartElement) error {
	switch start.Name.Local {
	case "message":
		return c.handleMessage(d, start)
	case "presence":
		return c.handlePresence(d, start)
	case "iq":
		return c.handleIQ(d, start)
	default:
		c.log.Debug().Str("element", start.Name.Local).Msg("Ignoring unknown top-level element")
		return d.Skip()
	}
}

func (c *Conn) handleIQ(d *xml.Decoder, start *xml.StartElement) error {
	var iq iqBody
	if err := d.DecodeElement(&iq, start); err != nil {
		return fmt.Errorf("failed to decode iq: %w", err)
	}
	switch iq.Type {
	case stanza.ResultIQ, stanza.ErrorIQ:
		c.mu.Lock()
		op, ok := c.pending[iq.ID]
		delete(c.pending, iq.ID)
		c.mu.Unlock()
		if !ok {
			return nil
		}
		if iq.Type == stanza.ErrorIQ {
			c.log.Warn().
				Str("operation", op).
				Str("from", iq.From.String()).
				Str("error", iq.Error.String()).
				Msg("Request failed")
			return nil
		}
		if op == opRosterFetch && iq.Roster != nil {
			c.applyRoster(iq.Roster.Item, true)
			c.log.Debug().Int("items", len(iq.Roster.Item)).Msg("Roster received")
		}
		return nil
	}

	ctx := c.log.WithContext(context.Background())
	if iq.Type == stanza.SetIQ && iq.Roster != nil {
		if c.fromOwnAccount(iq.From) {
			c.applyRoster(iq.Roster.Item, false)
			return c.reply(ctx, iq.IQ.Result(nil))
		}
		c.log.Warn().Str("from", iq.From.String()).Msg("Ignoring roster push from another entity")
	}
	return c.reply(ctx, iq.IQ.Error(stanza.Error{
		Type:      stanza.Cancel,
		Condition: stanza.ServiceUnavailable,
	}))
}

// fromOwnAccount reports whether from is empty or the session's own bare
// address. Only the server may push roster changes, and it does so either
// without a from or on behalf of the account.
func (c *Conn) fromOwnAccount(from jid.JID) bool {
	if from.String() == "" {
		return true
	}
	c.mu.Lock()
	own := c.self
	if own.IsZero() {
		own = c.user
	}
	c.mu.Unlock()
	addr, err := toJID(own)
	if err != nil {
		return false
	}
	return from.Bare().Equal(addr.Bare())
}

func (c *Conn) reply(ctx context.Context, r xml.TokenReader) error {
	out, err := c.writer()
	if err != nil {
		return nil
	}
	if err := out.Send(ctx, r); err != nil {
		c.log.Warn().Err(err).Msg("Failed to reply to iq")
	}
	return nil
}
