// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync/atomic"

	"github.com/absmach/amqclient/codec"
)

// Producer publishes messages to a destination. Only one goroutine may use
// a producer at a time; the session permits a single producing thread.
type Producer struct {
	session *Session
	id      uint64
	dest    *Destination

	mandatory     bool
	immediate     bool
	waitUntilSent bool
	transacted    bool

	closed atomic.Bool
}

// ID returns the producer's session-local identifier.
func (p *Producer) ID() uint64 {
	return p.id
}

// Destination returns the default destination of the producer, which may be
// nil for an anonymous producer.
func (p *Producer) Destination() *Destination {
	return p.dest
}

// Send publishes a payload with the given properties to the producer's
// destination. The mandatory and immediate flags make the broker bounce the
// message back when it cannot be routed or has no ready consumer; bounces
// surface asynchronously through the connection error callback.
func (p *Producer) Send(body []byte, props *codec.BasicProperties) error {
	return p.SendTo(p.dest, body, props)
}

// SendTo publishes to an explicit destination.
func (p *Producer) SendTo(dest *Destination, body []byte, props *codec.BasicProperties) error {
	if p.closed.Load() || p.session.isClosed() {
		return ErrClosed
	}
	if dest == nil {
		return ErrInvalidDestination
	}

	publish := &codec.BasicPublish{
		Exchange:   dest.ExchangeName,
		RoutingKey: dest.RoutingKey,
		Mandatory:  p.mandatory,
		Immediate:  p.immediate,
	}
	methodFrame, err := codec.NewMethodFrame(p.session.channelID, publish)
	if err != nil {
		return err
	}

	var properties codec.BasicProperties
	if props != nil {
		properties = *props
	}
	header := &codec.ContentHeader{
		ClassID:    codec.ClassBasic,
		BodySize:   uint64(len(body)),
		Properties: properties,
	}
	headerFrame, err := codec.NewHeaderFrame(p.session.channelID, header)
	if err != nil {
		return err
	}

	if err := p.session.handler.WriteFrame(methodFrame); err != nil {
		return err
	}
	if err := p.session.handler.WriteFrame(headerFrame); err != nil {
		return err
	}
	if len(body) > 0 {
		if err := p.session.handler.WriteFrame(codec.NewBodyFrame(p.session.channelID, body)); err != nil {
			return err
		}
	}
	p.session.stats.published.Add(1)
	return nil
}

// Close releases the producer. There is no broker traffic for producer
// close.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.session.producers.remove(p.id)
	return nil
}

// markClosed closes the producer without deregistering, for fail-over veto.
func (p *Producer) markClosed() {
	p.closed.Store(true)
}

// resubscribe re-declares the producer's exchange after fail-over so that
// publishes have a routing target on the rebuilt channel. The caller holds
// the fail-over mutex.
func (p *Producer) resubscribe() error {
	if p.dest == nil {
		return nil
	}
	return p.session.declareExchange(p.dest.ExchangeName, p.dest.ExchangeKind, false)
}
