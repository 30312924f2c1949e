// Copyright 2024-2026 Aiku AI

package xmppconn

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/aiku/xmppchat/pkg/chat"
	"mellium.im/xmpp/stanza"
)

// messageBody is a message stanza with an optional body and error.
type messageBody struct {
	stanza.Message
	Subject string       `xml:"subject,omitempty"`
	Body    string       `xml:"body,omitempty"`
	Error   *stanzaError `xml:"error,omitempty"`
}

type stanzaError struct {
	Type      string `xml:"type,attr"`
	Condition struct {
		XMLName xml.Name
	} `xml:",any"`
	Text string `xml:"text"`
}

func (e *stanzaError) String() string {
	if e == nil {
		return "unknown error"
	}
	if e.Text != "" {
		return e.Text
	}
	if e.Condition.XMLName.Local != "" {
		return e.Condition.XMLName.Local
	}
	return "unknown error"
}

type messageService struct {
	c *Conn
}

func (s messageService) SendMessage(ctx context.Context, to chat.UserIdentity, msg chat.Message) error {
	out, err := s.c.writer()
	if err != nil {
		return err
	}
	addr, err := toJID(to)
	if err != nil {
		return err
	}
	typ := stanza.NormalMessage
	if msg.Type != "" {
		typ = stanza.MessageType(msg.Type)
	}
	return out.Encode(ctx, messageBody{
		Message: stanza.Message{To: addr, Type: typ},
		Body:    msg.Payload,
	})
}

type privateChatService struct {
	c *Conn
}

func (s privateChatService) SendChat(ctx context.Context, to chat.UserIdentity, body string) error {
	out, err := s.c.writer()
	if err != nil {
		return err
	}
	addr, err := toJID(to)
	if err != nil {
		return err
	}
	return out.Encode(ctx, messageBody{
		Message: stanza.Message{To: addr, Type: stanza.ChatMessage},
		Body:    body,
	})
}

func (c *Conn) handleMessage(d *xml.Decoder, start *xml.StartElement) error {
	var msg messageBody
	if err := d.DecodeElement(&msg, start); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	from := fromJID(msg.From)
	switch msg.Type {
	case stanza.ErrorMessage:
		c.log.Warn().
			Str("from", from.String()).
			Str("error", msg.Error.String()).
			Msg("Message bounced")
		return nil
	case stanza.GroupChatMessage:
		if msg.Body == "" {
			// Subject changes and history markers.
			return nil
		}
		c.events.RoomChatReceived.Emit(chat.InboundRoomChat{
			Room: roomOf(msg.From),
			From: from,
			Body: msg.Body,
		})
	case stanza.ChatMessage:
		if msg.Body == "" {
			return nil
		}
		c.events.PrivateChatReceived.Emit(chat.InboundChat{From: from, Body: msg.Body})
	default:
		if msg.Body == "" {
			return nil
		}
		typ := string(msg.Type)
		if typ == "" {
			typ = string(stanza.NormalMessage)
		}
		c.events.MessageReceived.Emit(chat.InboundMessage{
			From: from,
			Message: chat.Message{
				From:    from,
				To:      fromJID(msg.To),
				Type:    typ,
				Payload: msg.Body,
			},
		})
	}
	return nil
}
