// Copyright 2024-2026 Aiku AI

package xmppconn

import (
	"context"
	"encoding/xml"

	"github.com/aiku/xmppchat/pkg/chat"
	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/pubsub"
	"mellium.im/xmpp/stanza"
)

// payloadNS wraps published payloads.
const payloadNS = "urn:aiku:xmppchat:payload:0"

type pubSubService struct {
	c *Conn
}

func (c *Conn) pubSubAddr() (jid.JID, error) {
	service := c.opts.PubSubService
	if service == "" {
		service = "pubsub." + c.user.Domain
	}
	return jid.Parse(service)
}

func nodeElement(local, node string, attr ...xml.Attr) xml.StartElement {
	return xml.StartElement{
		Name: xml.Name{Local: local},
		Attr: append([]xml.Attr{{Name: xml.Name{Local: "node"}, Value: node}}, attr...),
	}
}

// send wraps payload in a pubsub element of namespace ns and sends it as a
// set IQ to the pubsub service.
func (s pubSubService) send(ctx context.Context, op, ns string, payload xml.TokenReader) error {
	service, err := s.c.pubSubAddr()
	if err != nil {
		return err
	}
	return s.c.sendIQ(ctx, op, func(iq stanza.IQ) xml.TokenReader {
		iq.Type = stanza.SetIQ
		iq.To = service
		return iq.Wrap(xmlstream.Wrap(
			payload,
			xml.StartElement{Name: xml.Name{Space: ns, Local: "pubsub"}},
		))
	})
}

func (s pubSubService) CreateNode(ctx context.Context, node string) error {
	return s.send(ctx, opPubSubCreate, pubsub.NS, xmlstream.Wrap(nil, nodeElement("create", node)))
}

func (s pubSubService) DestroyNode(ctx context.Context, node string) error {
	return s.send(ctx, opPubSubDelete, pubsub.NSOwner, xmlstream.Wrap(nil, nodeElement("delete", node)))
}

func (s pubSubService) Subscribe(ctx context.Context, node string) error {
	return s.send(ctx, opPubSubSubscribe, pubsub.NS, xmlstream.Wrap(nil, nodeElement("subscribe", node, s.subscriber())))
}

func (s pubSubService) Unsubscribe(ctx context.Context, node string) error {
	return s.send(ctx, opPubSubUnsubscribe, pubsub.NS, xmlstream.Wrap(nil, nodeElement("unsubscribe", node, s.subscriber())))
}

func (s pubSubService) PublishMessage(ctx context.Context, node string, msg chat.PubSubMessage) error {
	entry := xmlstream.Wrap(
		xmlstream.Token(xml.CharData(msg.Payload)),
		xml.StartElement{Name: xml.Name{Space: payloadNS, Local: "entry"}},
	)
	item := xmlstream.Wrap(entry, xml.StartElement{Name: xml.Name{Local: "item"}})
	return s.send(ctx, opPubSubPublish, pubsub.NS, xmlstream.Wrap(item, nodeElement("publish", node)))
}

func (s pubSubService) subscriber() xml.Attr {
	return xml.Attr{Name: xml.Name{Local: "jid"}, Value: s.c.user.Bare().String()}
}
