// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/absmach/amqclient/codec"
)

// Delivery is the inbound envelope assembled by the codec on the network
// thread. Exactly one of Deliver and Bounce is set: a real delivery is
// consumed once by the dispatcher, a bounce by the bounce router.
type Delivery struct {
	Deliver *codec.BasicDeliver
	Bounce  *codec.BasicReturn
	Header  *codec.ContentHeader
	Bodies  [][]byte
}

// Body concatenates the content bodies into a single payload.
func (d *Delivery) Body() []byte {
	if len(d.Bodies) == 1 {
		return d.Bodies[0]
	}
	var size int
	for _, b := range d.Bodies {
		size += len(b)
	}
	body := make([]byte, 0, size)
	for _, b := range d.Bodies {
		body = append(body, b...)
	}
	return body
}

// Message is a delivery as handed to the application by a consumer.
type Message struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
	Header      *codec.ContentHeader
	Body        []byte

	session *Session
}

// MessageListener receives asynchronously dispatched messages.
type MessageListener func(*Message)

func newMessage(d *Delivery, s *Session) *Message {
	m := &Message{
		Header:  d.Header,
		Body:    d.Body(),
		session: s,
	}
	switch {
	case d.Deliver != nil:
		m.ConsumerTag = d.Deliver.ConsumerTag
		m.DeliveryTag = d.Deliver.DeliveryTag
		m.Redelivered = d.Deliver.Redelivered
		m.Exchange = d.Deliver.Exchange
		m.RoutingKey = d.Deliver.RoutingKey
	case d.Bounce != nil:
		m.Exchange = d.Bounce.Exchange
		m.RoutingKey = d.Bounce.RoutingKey
	}
	return m
}

// Acknowledge acknowledges this message and every message delivered on the
// session before it.
func (m *Message) Acknowledge() error {
	if m.session == nil {
		return ErrClosed
	}
	if m.session.isClosed() {
		return ErrClosed
	}
	m.session.AcknowledgeMessage(m.DeliveryTag, true)
	if c := m.session.consumers.get(m.ConsumerTag); c != nil {
		c.clearUnackedUpTo(m.DeliveryTag)
	}
	return nil
}
