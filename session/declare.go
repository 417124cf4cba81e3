// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/absmach/amqclient/codec"
)

// The unguarded declare and bind round-trips. Callers hold the fail-over
// mutex, either through a guard policy or because they are the fail-over
// process itself.

func (s *Session) declareExchange(name, kind string, durable bool) error {
	frame, err := codec.NewMethodFrame(s.channelID, &codec.ExchangeDeclare{
		Exchange: name,
		Type:     kind,
		Durable:  durable,
	})
	if err != nil {
		return err
	}
	_, err = s.handler.SyncWrite(frame, codec.ClassExchange, codec.MethodExchangeDeclareOk, 0)
	return err
}

func (s *Session) declareExchangeNoWait(name, kind string) error {
	frame, err := codec.NewMethodFrame(s.channelID, &codec.ExchangeDeclare{
		Exchange: name,
		Type:     kind,
		NoWait:   true,
	})
	if err != nil {
		return err
	}
	return s.handler.WriteFrame(frame)
}

// declareQueue declares the destination's queue and returns its name. A
// destination that requires a generated name gets a fresh one from the
// protocol handler on every declare, so the queue is rebuilt after
// fail-over; fixed names are reused.
func (s *Session) declareQueue(dest *Destination) (string, error) {
	if dest.NameRequired {
		dest.QueueName = s.handler.GenerateQueueName()
	}

	frame, err := codec.NewMethodFrame(s.channelID, &codec.QueueDeclare{
		Queue:      dest.QueueName,
		Durable:    dest.Durable,
		Exclusive:  dest.Exclusive,
		AutoDelete: dest.AutoDelete,
	})
	if err != nil {
		return "", err
	}
	if _, err := s.handler.SyncWrite(frame, codec.ClassQueue, codec.MethodQueueDeclareOk, 0); err != nil {
		return "", err
	}
	return dest.QueueName, nil
}

func (s *Session) bindQueue(queue, routingKey string, args codec.Table, exchange string) error {
	frame, err := codec.NewMethodFrame(s.channelID, &codec.QueueBind{
		Queue:      queue,
		Exchange:   exchange,
		RoutingKey: routingKey,
		Arguments:  args,
	})
	if err != nil {
		return err
	}
	_, err = s.handler.SyncWrite(frame, codec.ClassQueue, codec.MethodQueueBindOk, 0)
	return err
}
