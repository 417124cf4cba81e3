// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Exchange kinds.
const (
	ExchangeDirect  = "direct"
	ExchangeTopic   = "topic"
	ExchangeFanout  = "fanout"
	ExchangeHeaders = "headers"
)

// Default exchanges.
const (
	DefaultQueueExchange = "amq.direct"
	DefaultTopicExchange = "amq.topic"
)

// Destination names an exchange, a routing key, and the queue consumers read
// from. NameRequired destinations get a fresh generated queue name at every
// declare, so their server-side queue is rebuilt after fail-over; fixed-name
// destinations keep their queue across reconnects.
type Destination struct {
	ExchangeName string
	ExchangeKind string
	RoutingKey   string
	QueueName    string
	Durable      bool
	Exclusive    bool
	AutoDelete   bool
	NameRequired bool

	temporary bool
	deleted   atomic.Bool
	owner     *Session
}

// NewQueue returns a destination for the named queue on the default queue
// exchange.
func NewQueue(name string) *Destination {
	return &Destination{
		ExchangeName: DefaultQueueExchange,
		ExchangeKind: ExchangeDirect,
		RoutingKey:   name,
		QueueName:    name,
		Durable:      true,
	}
}

// NewTopic returns a destination for the named topic on the default topic
// exchange. Each consumer gets a private generated queue.
func NewTopic(name string) *Destination {
	return &Destination{
		ExchangeName: DefaultTopicExchange,
		ExchangeKind: ExchangeTopic,
		RoutingKey:   name,
		Exclusive:    true,
		AutoDelete:   true,
		NameRequired: true,
	}
}

// durableTopic derives the durable-subscription destination for a topic. The
// queue name is fixed (clientID:name) so the subscription survives client
// restarts and fail-over.
func durableTopic(topic *Destination, clientID, name string) *Destination {
	return &Destination{
		ExchangeName: topic.ExchangeName,
		ExchangeKind: topic.ExchangeKind,
		RoutingKey:   topic.RoutingKey,
		QueueName:    durableQueueName(clientID, name),
		Durable:      true,
	}
}

func durableQueueName(clientID, name string) string {
	return clientID + ":" + name
}

// newTemporaryQueue returns a session-owned temporary queue destination with
// a client-generated unique name, which survives fail-over.
func newTemporaryQueue(owner *Session) *Destination {
	name := "tmp-" + uuid.NewString()
	return &Destination{
		ExchangeName: DefaultQueueExchange,
		ExchangeKind: ExchangeDirect,
		RoutingKey:   name,
		QueueName:    name,
		Exclusive:    true,
		AutoDelete:   true,
		temporary:    true,
		owner:        owner,
	}
}

// newTemporaryTopic returns a session-owned temporary topic destination.
func newTemporaryTopic(owner *Session) *Destination {
	return &Destination{
		ExchangeName: DefaultTopicExchange,
		ExchangeKind: ExchangeTopic,
		RoutingKey:   "tmp-" + uuid.NewString(),
		Exclusive:    true,
		AutoDelete:   true,
		NameRequired: true,
		temporary:    true,
		owner:        owner,
	}
}

// Temporary reports whether the destination is a temporary queue or topic.
func (d *Destination) Temporary() bool {
	return d.temporary
}

// Deleted reports whether a temporary destination has been deleted.
func (d *Destination) Deleted() bool {
	return d.deleted.Load()
}

// Delete removes a temporary destination, deleting its underlying queue.
func (d *Destination) Delete() error {
	if !d.temporary || d.owner == nil {
		return ErrInvalidDestination
	}
	if d.deleted.Swap(true) {
		return nil
	}
	if d.QueueName == "" {
		return nil
	}
	return d.owner.DeleteQueue(d.QueueName)
}

// equal reports whether two destinations name the same exchange, routing key
// and queue.
func (d *Destination) equal(o *Destination) bool {
	return o != nil && d.ExchangeName == o.ExchangeName && d.RoutingKey == o.RoutingKey && d.QueueName == o.QueueName
}
