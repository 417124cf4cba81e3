// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"sync/atomic"
)

// dispatcher drains the inbound queue on its own goroutine and routes each
// delivery to the owning consumer. There is exactly one dispatcher per
// session, created lazily and destroyed on session close.
//
// States: stopped ↔ running; closed is terminal. While stopped the goroutine
// parks on the condition variable; close wakes it and close of the inbound
// queue unblocks a pending take.
type dispatcher struct {
	s *Session

	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool

	closed       atomic.Bool
	rollbackMark atomic.Uint64
	done         chan struct{}
}

func newDispatcher(s *Session, initiallyStopped bool) *dispatcher {
	d := &dispatcher{
		s:       s,
		stopped: initiallyStopped,
		done:    make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	d.s.logger.Debug("dispatcher started", "channel", d.s.channelID)

	for {
		if !d.awaitRunning() {
			break
		}
		msg, ok := d.s.queue.take()
		if !ok {
			break
		}
		if !d.awaitRunning() {
			break
		}

		if tag := msg.Deliver.DeliveryTag; tag <= d.rollbackMark.Load() {
			d.s.rejectDelivery(msg, true)
			continue
		}

		d.s.deliveryMu.Lock()
		d.dispatchMessage(msg)
		d.s.deliveryMu.Unlock()
	}

	d.s.logger.Debug("dispatcher terminating", "channel", d.s.channelID)
}

// awaitRunning blocks while the dispatcher is stopped. It returns false once
// the dispatcher has been closed.
func (d *dispatcher) awaitRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.stopped && !d.closed.Load() {
		d.cond.Wait()
	}
	return !d.closed.Load()
}

// setConnectionStopped flips the stopped state and returns the previous one.
func (d *dispatcher) setConnectionStopped(stopped bool) bool {
	d.mu.Lock()
	prev := d.stopped
	d.stopped = stopped
	d.cond.Broadcast()
	d.mu.Unlock()
	return prev
}

func (d *dispatcher) connectionStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// close marks the dispatcher closed and wakes the goroutine. The inbound
// queue is closed by the session, which unblocks a pending take.
func (d *dispatcher) close() {
	d.closed.Store(true)
	d.mu.Lock()
	d.cond.Broadcast()
	d.mu.Unlock()
}

// rollback stops dispatch, moves the rollback mark up to the highest
// delivery tag seen, asks every consumer to roll back its unacknowledged
// log, and restores the previous stop state. Deliveries at or below the mark
// are rejected with requeue when the dispatcher reaches them.
func (d *dispatcher) rollback() {
	prev := d.setConnectionStopped(true)

	d.rollbackMark.Store(d.s.highestDeliveryTag.Load())

	for _, c := range d.s.consumers.snapshot() {
		if c.noConsume {
			c.clearReceiveQueue()
		} else {
			c.rollback()
		}
	}

	d.setConnectionStopped(prev)
}

// rejectPending is the rollback pattern scoped to one consumer: stop, reject
// the consumer's buffered and pre-dispatch deliveries with requeue, mark the
// consumer closed, restore.
func (d *dispatcher) rejectPending(c *Consumer) {
	prev := d.setConnectionStopped(true)

	c.rollback()
	d.s.rejectPendingForTag(c.Tag(), true)
	c.markClosed()

	d.setConnectionStopped(prev)
}

func (d *dispatcher) dispatchMessage(msg *Delivery) {
	deliver := msg.Deliver
	c := d.s.consumers.get(deliver.ConsumerTag)

	if c == nil || c.isClosed() {
		if c == nil {
			d.s.logger.Info("delivery without a registered consumer, rejecting with requeue",
				"tag", deliver.DeliveryTag, "consumer", deliver.ConsumerTag)
		}
		// Don't reject if the session is already closing.
		if !d.closed.Load() {
			d.s.rejectDelivery(msg, true)
		}
		return
	}

	c.notifyMessage(msg)
	d.s.stats.dispatched.Add(1)

	if c.closeOnEmpty.Load() && !d.s.queue.contains(matchTag(c.Tag())) {
		d.s.closeCancelledConsumer(c)
	}
}

func matchTag(tag string) func(*Delivery) bool {
	return func(d *Delivery) bool {
		return d.Deliver != nil && d.Deliver.ConsumerTag == tag
	}
}
