// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"testing"

	"github.com/absmach/amqclient/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu    sync.Mutex
	above []int
	under []int
}

func (l *recordingListener) aboveThreshold(current int) {
	l.mu.Lock()
	l.above = append(l.above, current)
	l.mu.Unlock()
}

func (l *recordingListener) underThreshold(current int) {
	l.mu.Lock()
	l.under = append(l.under, current)
	l.mu.Unlock()
}

func testDelivery(tag uint64, consumerTag string) *Delivery {
	return &Delivery{
		Deliver: &codec.BasicDeliver{ConsumerTag: consumerTag, DeliveryTag: tag},
	}
}

func TestFlowQueueFIFO(t *testing.T) {
	q := newFlowQueue(100, 50, nil)
	for tag := uint64(1); tag <= 5; tag++ {
		q.add(testDelivery(tag, "c1"))
	}
	for tag := uint64(1); tag <= 5; tag++ {
		d, ok := q.take()
		require.True(t, ok)
		assert.Equal(t, tag, d.Deliver.DeliveryTag)
	}
	assert.Equal(t, 0, q.len())
}

func TestFlowQueueThresholds(t *testing.T) {
	lst := &recordingListener{}
	q := newFlowQueue(3, 1, lst)

	// Crossing the high mark fires exactly once, on the crossing enqueue.
	for tag := uint64(1); tag <= 5; tag++ {
		q.add(testDelivery(tag, "c1"))
	}
	require.Equal(t, []int{3}, lst.above)

	// Dropping to the low mark fires on the crossing dequeue only.
	for i := 0; i < 4; i++ {
		_, ok := q.take()
		require.True(t, ok)
	}
	require.Equal(t, []int{1}, lst.under)
}

func TestFlowQueueRemoveMatchingPreservesOrder(t *testing.T) {
	q := newFlowQueue(100, 50, nil)
	q.add(testDelivery(1, "c1"))
	q.add(testDelivery(2, "c2"))
	q.add(testDelivery(3, "c1"))
	q.add(testDelivery(4, "c2"))

	var removed []uint64
	q.removeMatching(
		func(d *Delivery) bool { return d.Deliver.ConsumerTag == "c1" },
		func(d *Delivery) { removed = append(removed, d.Deliver.DeliveryTag) },
	)
	assert.Equal(t, []uint64{1, 3}, removed)

	d, ok := q.take()
	require.True(t, ok)
	assert.Equal(t, uint64(2), d.Deliver.DeliveryTag)
	d, ok = q.take()
	require.True(t, ok)
	assert.Equal(t, uint64(4), d.Deliver.DeliveryTag)
}

func TestFlowQueueContains(t *testing.T) {
	q := newFlowQueue(100, 50, nil)
	q.add(testDelivery(1, "c1"))

	assert.True(t, q.contains(func(d *Delivery) bool { return d.Deliver.ConsumerTag == "c1" }))
	assert.False(t, q.contains(func(d *Delivery) bool { return d.Deliver.ConsumerTag == "c2" }))
}

func TestFlowQueueCloseUnblocksTake(t *testing.T) {
	q := newFlowQueue(100, 50, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := q.take()
		assert.False(t, ok)
	}()

	q.close()
	<-done
}
