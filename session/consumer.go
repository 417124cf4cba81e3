// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/amqclient/codec"
)

// AckMode is the session acknowledgement mode.
type AckMode int

const (
	// AckAuto acknowledges each message as soon as its delivery to the
	// application returns.
	AckAuto AckMode = iota

	// AckClient leaves acknowledgement to the application.
	AckClient

	// AckDupsOK acknowledges each message as soon as its delivery to the
	// application returns, like AckAuto; duplicates may be redelivered
	// after a failure.
	AckDupsOK

	// NoAck asks the broker not to expect acknowledgements at all.
	// Backpressure comes from watermark-driven channel suspension instead
	// of the broker prefetch window.
	NoAck

	// AckTransacted is the fixed mode of transactional sessions.
	AckTransacted
)

// Consumer receives messages from a single destination. Messages arrive
// either through an installed listener or through Receive.
type Consumer struct {
	session *Session
	dest    *Destination

	selector     string
	rawSelector  codec.Table
	noLocal      bool
	exclusive    bool
	ackMode      AckMode
	prefetchHigh int
	prefetchLow  int
	noConsume    bool
	autoClose    bool

	mu           sync.Mutex
	tag          string
	listener     MessageListener
	unacked      []uint64
	lastDelivery uint64

	receiveCh chan *Message
	done      chan struct{}
	doneOnce  sync.Once

	closed       atomic.Bool
	closeOnEmpty atomic.Bool
	receiving    atomic.Bool
	errValue     atomic.Value // error
}

func newConsumer(s *Session, dest *Destination, o consumerOpts) *Consumer {
	c := &Consumer{
		session:      s,
		dest:         dest,
		selector:     o.selector,
		rawSelector:  o.rawSelector,
		noLocal:      o.noLocal,
		exclusive:    o.exclusive,
		ackMode:      s.ackMode,
		prefetchHigh: o.prefetchHigh,
		prefetchLow:  o.prefetchLow,
		noConsume:    o.noConsume,
		autoClose:    o.autoClose,
		receiveCh:    make(chan *Message, o.prefetchHigh),
		done:         make(chan struct{}),
	}
	c.listener = s.currentListener()
	return c
}

// Tag returns the consumer tag assigned at subscribe time.
func (c *Consumer) Tag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tag
}

func (c *Consumer) setTag(tag string) {
	c.mu.Lock()
	c.tag = tag
	c.mu.Unlock()
}

// Destination returns the destination the consumer reads from.
func (c *Consumer) Destination() *Destination {
	return c.dest
}

func (c *Consumer) isClosed() bool {
	return c.closed.Load()
}

func (c *Consumer) isReceiving() bool {
	return c.receiving.Load()
}

// SetMessageListener installs or clears the listener for this consumer.
func (c *Consumer) SetMessageListener(l MessageListener) error {
	if c.isClosed() {
		return ErrClosed
	}
	if l != nil && c.isReceiving() {
		return ErrReceiving
	}
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
	if l != nil {
		c.session.setHasMessageListeners()
		c.session.startDispatcherIfNecessary()
	}
	return nil
}

// Receive blocks until a message arrives, the timeout elapses, or the
// consumer is closed. A zero timeout blocks indefinitely. Messages buffered
// before a close are still handed out.
func (c *Consumer) Receive(timeout time.Duration) (*Message, error) {
	c.mu.Lock()
	hasListener := c.listener != nil
	c.mu.Unlock()
	if hasListener {
		return nil, ErrStarted
	}

	c.receiving.Store(true)
	defer c.receiving.Store(false)

	if !c.isClosed() {
		c.session.startDispatcherIfNecessary()
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case msg := <-c.receiveCh:
		c.postReceive(msg)
		return msg, nil
	case <-timeoutCh:
		return nil, ErrTimeout
	case <-c.done:
		select {
		case msg := <-c.receiveCh:
			c.postReceive(msg)
			return msg, nil
		default:
			return nil, c.closeErr()
		}
	}
}

// ReceiveNoWait returns the next buffered message, or nil if none is ready.
func (c *Consumer) ReceiveNoWait() (*Message, error) {
	if !c.isClosed() {
		c.session.startDispatcherIfNecessary()
	}
	select {
	case msg := <-c.receiveCh:
		c.postReceive(msg)
		return msg, nil
	default:
		if c.isClosed() {
			return nil, c.closeErr()
		}
		return nil, nil
	}
}

// notifyMessage hands one delivery to the consumer. Called by the dispatcher
// under the session message delivery lock.
func (c *Consumer) notifyMessage(d *Delivery) {
	tag := d.Deliver.DeliveryTag

	// A new delivery ends any recovery window, for the listener path and
	// for synchronous receivers alike; a Recover issued during this very
	// delivery sets the flag again before the ack decision below.
	c.session.setInRecovery(false)

	c.mu.Lock()
	// A rollback may have raced the dispatch; its mark is set before the
	// unacked logs are cleared, so an elided delivery is visible here.
	if m := c.session.rollbackMark(); tag <= m {
		c.mu.Unlock()
		c.session.rejectDelivery(d, true)
		return
	}
	lst := c.listener
	if lst != nil {
		// Synchronous receivers log their tags on receive instead, so a
		// buffered-but-unreceived message is not double-counted.
		if c.ackMode == AckClient || c.ackMode == AckTransacted {
			c.unacked = append(c.unacked, tag)
		}
		c.lastDelivery = tag
	}
	c.mu.Unlock()

	msg := newMessage(d, c.session)

	if lst != nil {
		lst(msg)
		if (c.ackMode == AckAuto || c.ackMode == AckDupsOK) && !c.session.isInRecovery() {
			c.session.AcknowledgeMessage(tag, false)
		}
		return
	}

	select {
	case c.receiveCh <- msg:
	case <-c.done:
		c.session.rejectDelivery(d, true)
	}
}

func (c *Consumer) postReceive(msg *Message) {
	switch c.ackMode {
	case AckAuto, AckDupsOK:
		if !c.session.isInRecovery() {
			c.session.AcknowledgeMessage(msg.DeliveryTag, false)
		}
	case AckClient, AckTransacted:
		c.mu.Lock()
		c.unacked = append(c.unacked, msg.DeliveryTag)
		c.lastDelivery = msg.DeliveryTag
		c.mu.Unlock()
	}
}

// clearUnackedUpTo drops logged tags covered by a multiple acknowledgement.
func (c *Consumer) clearUnackedUpTo(tag uint64) {
	c.mu.Lock()
	kept := c.unacked[:0]
	for _, t := range c.unacked {
		if t > tag {
			kept = append(kept, t)
		}
	}
	c.unacked = kept
	c.mu.Unlock()
}

// acknowledgeDelivered flushes a single multiple-ack covering everything
// delivered to this consumer so far.
func (c *Consumer) acknowledgeDelivered() {
	c.mu.Lock()
	last := c.lastDelivery
	outstanding := len(c.unacked) > 0
	c.unacked = nil
	c.mu.Unlock()
	if outstanding {
		c.session.AcknowledgeMessage(last, true)
	}
}

// rollback rejects the consumer's buffered and unacknowledged deliveries
// with requeue and clears both logs.
func (c *Consumer) rollback() {
	c.mu.Lock()
	tags := c.unacked
	c.unacked = nil
	c.mu.Unlock()

	for {
		select {
		case msg := <-c.receiveCh:
			c.session.RejectMessage(msg.DeliveryTag, true)
		default:
			for _, t := range tags {
				c.session.RejectMessage(t, true)
			}
			return
		}
	}
}

// clearUnacked drops the unacknowledged log without rejecting; recover lets
// the broker redeliver instead.
func (c *Consumer) clearUnacked() {
	c.mu.Lock()
	c.unacked = nil
	c.mu.Unlock()
}

// clearReceiveQueue drops buffered messages without rejecting them.
func (c *Consumer) clearReceiveQueue() {
	for {
		select {
		case <-c.receiveCh:
		default:
			return
		}
	}
}

// Close cancels the subscription on the broker, requeues pending deliveries
// and deregisters the consumer. A fail-over during the cancel is ignored;
// the consumer is already deregistered so resubscription will not revive it.
func (c *Consumer) Close() error {
	return c.session.failoverNoop(func() error {
		return c.closeLocked(true)
	})
}

// closeLocked closes the consumer; the caller holds the fail-over mutex or
// is the fail-over process itself.
func (c *Consumer) closeLocked(sendCancel bool) error {
	if c.closed.Swap(true) {
		return nil
	}

	var err error
	if sendCancel && !c.session.isClosed() {
		frame, ferr := codec.NewMethodFrame(c.session.channelID, &codec.BasicCancel{ConsumerTag: c.Tag()})
		if ferr == nil {
			_, err = c.session.handler.SyncWrite(frame, codec.ClassBasic, codec.MethodBasicCancelOk, 0)
		} else {
			err = ferr
		}
	}

	if d := c.session.currentDispatcher(); d != nil {
		d.rejectPending(c)
	} else {
		c.rollback()
		c.session.rejectPendingForTag(c.Tag(), true)
	}

	c.session.deregisterConsumer(c)
	c.signalDone()
	return err
}

// markClosed closes the consumer without protocol traffic, for fail-over
// veto and server-initiated teardown.
func (c *Consumer) markClosed() {
	c.closed.Store(true)
	c.session.deregisterConsumer(c)
	c.signalDone()
}

// notifyError records a connection-level error and closes the consumer.
func (c *Consumer) notifyError(err error) {
	c.errValue.Store(err)
	c.session.logger.Debug("consumer closed by error", "consumer", c.Tag(), "error", err)
	c.markClosed()
}

func (c *Consumer) signalDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Consumer) closeErr() error {
	if err, ok := c.errValue.Load().(error); ok {
		return err
	}
	return ErrClosed
}
