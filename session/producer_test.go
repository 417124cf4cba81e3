// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"

	"github.com/absmach/amqclient/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerSendFrames(t *testing.T) {
	s, h, _ := newTestSession(t, false, AckClient, testTuning())

	p, err := s.CreateProducer(NewQueue("out"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.ID())

	err = p.Send([]byte("hello"), &codec.BasicProperties{ContentType: "text/plain"})
	require.NoError(t, err)

	written := h.writtenMethods()
	require.Len(t, written, 3)

	publish, ok := written[0].(*codec.BasicPublish)
	require.True(t, ok)
	assert.Equal(t, DefaultQueueExchange, publish.Exchange)
	assert.Equal(t, "out", publish.RoutingKey)
	assert.True(t, publish.Mandatory)
	assert.False(t, publish.Immediate)

	header, ok := written[1].(*codec.ContentHeader)
	require.True(t, ok)
	assert.Equal(t, uint64(5), header.BodySize)
	assert.Equal(t, "text/plain", header.Properties.ContentType)

	body, ok := written[2].([]byte)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), body)
}

func TestProducerFlags(t *testing.T) {
	s, h, _ := newTestSession(t, false, AckClient, testTuning())

	p, err := s.CreateProducer(NewQueue("out"), WithMandatory(false), WithImmediate(true))
	require.NoError(t, err)
	require.NoError(t, p.Send([]byte("x"), nil))

	publish, ok := h.writtenMethods()[0].(*codec.BasicPublish)
	require.True(t, ok)
	assert.False(t, publish.Mandatory)
	assert.True(t, publish.Immediate)
}

func TestProducerIDsIncrement(t *testing.T) {
	s, _, _ := newTestSession(t, false, AckClient, testTuning())

	p1, err := s.CreateProducer(nil)
	require.NoError(t, err)
	p2, err := s.CreateProducer(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p1.ID())
	assert.Equal(t, uint64(2), p2.ID())
}

func TestProducerSendAfterClose(t *testing.T) {
	s, _, _ := newTestSession(t, false, AckClient, testTuning())

	p, err := s.CreateProducer(NewQueue("out"))
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Send([]byte("x"), nil), ErrClosed)
}

func TestAnonymousProducerSendTo(t *testing.T) {
	s, h, _ := newTestSession(t, false, AckClient, testTuning())

	p, err := s.CreateProducer(nil)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Send([]byte("x"), nil), ErrInvalidDestination)
	require.NoError(t, p.SendTo(NewQueue("elsewhere"), []byte("x"), nil))

	publish, ok := h.writtenMethods()[0].(*codec.BasicPublish)
	require.True(t, ok)
	assert.Equal(t, "elsewhere", publish.RoutingKey)
}

// A mandatory publish with no matching queue comes back as a bounce carrying
// the original payload.
func TestBouncedMandatoryPublish(t *testing.T) {
	s, h, conn := newTestSession(t, false, AckClient, testTuning())

	p, err := s.CreateProducer(NewQueue("nowhere"))
	require.NoError(t, err)
	require.NoError(t, p.Send([]byte("payload"), nil))

	publish, ok := h.writtenMethods()[0].(*codec.BasicPublish)
	require.True(t, ok)
	require.True(t, publish.Mandatory)

	bounce(s, codec.NoRoute, "no binding", "payload")

	var noRoute *NoRouteError
	require.ErrorAs(t, <-conn.errs, &noRoute)
	assert.Equal(t, []byte("payload"), noRoute.Message.Body)
	assert.Equal(t, codec.NoRoute, noRoute.Code)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Equal(t, uint64(1), stats.Bounced)
}
