// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"
	"time"

	"github.com/absmach/amqclient/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveTimeout(t *testing.T) {
	s, _, _ := newTestSession(t, false, AckClient, testTuning())
	require.NoError(t, s.Start())

	c, err := s.CreateConsumer(NewQueue("q"))
	require.NoError(t, err)

	_, err = c.Receive(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReceiveNoWaitEmpty(t *testing.T) {
	s, _, _ := newTestSession(t, false, AckClient, testTuning())
	require.NoError(t, s.Start())

	c, err := s.CreateConsumer(NewQueue("q"))
	require.NoError(t, err)

	msg, err := c.ReceiveNoWait()
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestReceiveAutoAck(t *testing.T) {
	s, h, _ := newTestSession(t, false, AckAuto, testTuning())
	require.NoError(t, s.Start())

	c, err := s.CreateConsumer(NewQueue("q"))
	require.NoError(t, err)

	deliver(s, c.Tag(), 1, false, "m")
	msg, err := c.Receive(time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)

	waitFor(t, func() bool {
		for _, m := range h.writtenMethods() {
			if ack, ok := m.(*codec.BasicAck); ok && ack.DeliveryTag == 1 {
				return !ack.Multiple
			}
		}
		return false
	}, "received message auto-acked")
}

func TestReceiveAutoAckResumesAfterRecover(t *testing.T) {
	s, h, _ := newTestSession(t, false, AckAuto, testTuning())
	require.NoError(t, s.Start())

	c, err := s.CreateConsumer(NewQueue("q"))
	require.NoError(t, err)

	require.NoError(t, s.Recover())

	// The first delivery after a recover ends the recovery window, so
	// synchronous receives go back to auto-acking.
	deliver(s, c.Tag(), 1, true, "m")
	msg, err := c.Receive(time.Second)
	require.NoError(t, err)
	require.Equal(t, uint64(1), msg.DeliveryTag)

	waitFor(t, func() bool {
		for _, m := range h.writtenMethods() {
			if ack, ok := m.(*codec.BasicAck); ok && ack.DeliveryTag == 1 {
				return true
			}
		}
		return false
	}, "auto-ack resumes after recover")
}

func TestConsumerCloseCancelsAndRequeues(t *testing.T) {
	s, h, _ := newTestSession(t, false, AckClient, testTuning())
	require.NoError(t, s.Start())

	c, err := s.CreateConsumer(NewQueue("q"))
	require.NoError(t, err)

	deliver(s, c.Tag(), 1, false, "m")
	msg, err := c.Receive(time.Second)
	require.NoError(t, err)
	require.Equal(t, uint64(1), msg.DeliveryTag)

	deliver(s, c.Tag(), 2, false, "m")
	s.SetConnectionStopped(true)

	require.NoError(t, c.Close())

	var sawCancel bool
	for _, m := range h.syncedMethods() {
		if cancel, ok := m.(*codec.BasicCancel); ok {
			sawCancel = true
			assert.Equal(t, "1", cancel.ConsumerTag)
		}
	}
	assert.True(t, sawCancel)

	// The unacked delivery and any pending one are rejected with requeue.
	waitFor(t, func() bool {
		for _, m := range h.writtenMethods() {
			if rej, ok := m.(*codec.BasicReject); ok && rej.DeliveryTag == 1 {
				return rej.Requeue
			}
		}
		return false
	}, "unacked delivery requeued on close")

	// Close is idempotent.
	require.NoError(t, c.Close())

	_, err = c.Receive(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClosedConsumerDeliveriesRequeued(t *testing.T) {
	s, h, _ := newTestSession(t, false, AckClient, testTuning())
	require.NoError(t, s.Start())

	c, err := s.CreateConsumer(NewQueue("q"))
	require.NoError(t, err)

	tag := c.Tag()
	require.NoError(t, c.Close())

	// Force the dispatcher up and push a stale delivery for the closed
	// consumer; it must be rejected with requeue, not delivered.
	_, err = c.ReceiveNoWait()
	require.Error(t, err)

	deliver(s, tag, 9, false, "stale")
	s.startDispatcherIfNecessary()

	waitFor(t, func() bool {
		for _, m := range h.writtenMethods() {
			if rej, ok := m.(*codec.BasicReject); ok && rej.DeliveryTag == 9 {
				return rej.Requeue
			}
		}
		return false
	}, "stale delivery requeued")
}

func TestAcknowledgeAllConsumers(t *testing.T) {
	s, h, _ := newTestSession(t, false, AckClient, testTuning())
	require.NoError(t, s.Start())

	c1, err := s.CreateConsumer(NewQueue("q1"))
	require.NoError(t, err)
	c2, err := s.CreateConsumer(NewQueue("q2"))
	require.NoError(t, err)

	deliver(s, c1.Tag(), 1, false, "m")
	deliver(s, c2.Tag(), 2, false, "m")
	_, err = c1.Receive(time.Second)
	require.NoError(t, err)
	_, err = c2.Receive(time.Second)
	require.NoError(t, err)

	require.NoError(t, s.Acknowledge())

	var acked []uint64
	for _, m := range h.writtenMethods() {
		if ack, ok := m.(*codec.BasicAck); ok {
			acked = append(acked, ack.DeliveryTag)
			assert.True(t, ack.Multiple)
		}
	}
	assert.ElementsMatch(t, []uint64{1, 2}, acked)
}

func TestConsumerSetMessageListenerWhileReceiving(t *testing.T) {
	s, _, _ := newTestSession(t, false, AckClient, testTuning())
	require.NoError(t, s.Start())

	c, err := s.CreateConsumer(NewQueue("q"))
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		_, _ = c.Receive(500 * time.Millisecond)
	}()
	<-started

	waitFor(t, c.isReceiving, "receive in progress")
	assert.ErrorIs(t, c.SetMessageListener(func(*Message) {}), ErrReceiving)
	<-done
}
