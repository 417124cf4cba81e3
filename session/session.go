// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package session implements the client-side session runtime for an AMQP
// 0-8/0-9 connection. A session multiplexes one channel of work over a
// shared connection: it declares exchanges and queues, binds routing keys,
// creates producers and consumers, dispatches inbound deliveries, issues
// acknowledgements, runs local transactions, recovers unacknowledged
// messages, and survives connection fail-over by re-declaring, re-binding
// and re-subscribing.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/amqclient/codec"
	"github.com/absmach/amqclient/config"
)

// Filter table keys carried on subscribe requests.
const (
	filterSelector  = "x-filter-jms-selector"
	filterNoConsume = "x-filter-no-consume"
	filterAutoClose = "x-filter-auto-close"
)

// Session is a logical channel of work multiplexed over a shared connection.
// It is safe for use by multiple goroutines, with one restriction: only one
// goroutine may create producers and consumers.
type Session struct {
	conn    Connection
	handler ProtocolHandler
	logger  *slog.Logger

	channelID  uint16
	transacted bool
	ackMode    AckMode

	strict            bool
	strictFatal       bool
	immediatePrefetch bool
	prefetchHigh      int
	prefetchLow       int
	producerMandatory bool
	producerImmediate bool

	queue         *flowQueue
	consumers     *consumerRegistry
	producers     *producerRegistry
	subscriptions *subscriptionCatalog

	// deliveryMu serializes application-visible delivery with session
	// mutations: close, and the dispatch of each message.
	deliveryMu sync.Mutex
	// suspensionMu protects the suspend toggle and its round-trip.
	suspensionMu sync.Mutex
	suspended    bool

	dispatcherMu sync.Mutex
	dispatcher   *dispatcher

	highestDeliveryTag atomic.Uint64
	closed             atomic.Bool
	startedAtLeastOnce atomic.Bool
	firstDispatcher    atomic.Bool
	inRecovery         atomic.Bool
	hasListeners       atomic.Bool

	listenerMu sync.Mutex
	listener   MessageListener

	// nextTag and nextProducerID are confined to the single goroutine that
	// creates producers and consumers.
	nextTag        int
	nextProducerID uint64

	suspendCh     chan bool
	suspenderStop chan struct{}
	suspenderOnce sync.Once

	stats sessionStats
}

// New creates a session on the given channel. Transactional sessions put
// the channel into transactional mode with a tx.select round-trip; their
// acknowledgement mode is fixed to AckTransacted. A nil logger falls back
// to slog.Default().
func New(conn Connection, handler ProtocolHandler, channelID uint16, transacted bool, ackMode AckMode, cfg config.Tuning, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if transacted {
		ackMode = AckTransacted
	}

	s := &Session{
		conn:              conn,
		handler:           handler,
		logger:            logger,
		channelID:         channelID,
		transacted:        transacted,
		ackMode:           ackMode,
		strict:            cfg.Strict,
		strictFatal:       cfg.StrictFatal,
		immediatePrefetch: cfg.Strict || cfg.ImmediatePrefetch,
		prefetchHigh:      cfg.PrefetchHigh,
		prefetchLow:       cfg.PrefetchLow,
		producerMandatory: cfg.ProducerMandatory,
		producerImmediate: cfg.ProducerImmediate,
		consumers:         newConsumerRegistry(),
		producers:         newProducerRegistry(),
		subscriptions:     newSubscriptionCatalog(),
		nextTag:           1,
		suspendCh:         make(chan bool, 32),
		suspenderStop:     make(chan struct{}),
	}
	s.firstDispatcher.Store(true)

	// Only the no-acknowledge mode uses listener-driven suspension; in the
	// other modes backpressure comes from the broker prefetch window.
	if ackMode == NoAck {
		s.queue = newFlowQueue(cfg.PrefetchHigh, cfg.PrefetchLow, &watermarkSuspender{s: s})
		go s.suspender()
	} else {
		s.queue = newFlowQueue(cfg.PrefetchHigh, cfg.PrefetchLow, nil)
	}

	if transacted {
		err := s.failoverRetry(func() error {
			frame, err := codec.NewMethodFrame(channelID, &codec.TxSelect{})
			if err != nil {
				return err
			}
			_, err = handler.SyncWrite(frame, codec.ClassTx, codec.MethodTxSelectOk, 0)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("select transaction mode: %w", err)
		}
	}

	return s, nil
}

// ChannelID returns the channel this session runs on.
func (s *Session) ChannelID() uint16 {
	return s.channelID
}

// Transacted reports whether the session is transactional.
func (s *Session) Transacted() bool {
	return s.transacted
}

// AckMode returns the session acknowledgement mode.
func (s *Session) AckMode() AckMode {
	return s.ackMode
}

// IsSuspended reports whether the channel is currently suspended.
func (s *Session) IsSuspended() bool {
	s.suspensionMu.Lock()
	defer s.suspensionMu.Unlock()
	return s.suspended
}

// HasConsumer reports whether at least one live consumer reads from the
// destination.
func (s *Session) HasConsumer(dest *Destination) bool {
	return s.consumers.hasConsumer(dest)
}

func (s *Session) isClosed() bool {
	return s.closed.Load()
}

func (s *Session) checkNotClosed() error {
	if s.isClosed() {
		return ErrClosed
	}
	return nil
}

func (s *Session) checkTransacted() error {
	if !s.transacted {
		return ErrNotTransacted
	}
	return nil
}

func (s *Session) checkNotTransacted() error {
	if s.transacted {
		return ErrTransacted
	}
	return nil
}

func (s *Session) isInRecovery() bool {
	return s.inRecovery.Load()
}

func (s *Session) setInRecovery(in bool) {
	s.inRecovery.Store(in)
}

func (s *Session) setHasMessageListeners() {
	s.hasListeners.Store(true)
}

func (s *Session) currentListener() MessageListener {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	return s.listener
}

// MessageReceived is invoked by the network I/O goroutine for every decoded
// inbound envelope on this channel. It never blocks: real deliveries go into
// the inbound queue, bounces are forwarded to the bounce router.
func (s *Session) MessageReceived(d *Delivery) {
	s.stats.received.Add(1)
	if d.Deliver == nil {
		s.returnBouncedMessage(d)
		return
	}
	s.highestDeliveryTag.Store(d.Deliver.DeliveryTag)
	s.queue.add(d)
}

// Declaration and binding.

// DeclareExchange declares the named exchange. The synchronous form retries
// transparently across fail-over; the nowait form is abandoned silently on
// fail-over. Resubscription re-declares only the exchanges of registered
// consumers and producers.
func (s *Session) DeclareExchange(name, kind string, nowait bool) error {
	if err := s.checkNotClosed(); err != nil {
		return err
	}
	if nowait {
		return s.failoverNoop(func() error {
			return s.declareExchangeNoWait(name, kind)
		})
	}
	return s.failoverRetry(func() error {
		return s.declareExchange(name, kind, false)
	})
}

// DeclareQueue declares the destination's queue and returns its name, which
// is generated client-side when the destination requires one.
func (s *Session) DeclareQueue(dest *Destination) (string, error) {
	if err := s.checkNotClosed(); err != nil {
		return "", err
	}
	if dest == nil {
		return "", ErrInvalidDestination
	}
	var name string
	err := s.failoverRetry(func() error {
		var derr error
		name, derr = s.declareQueue(dest)
		return derr
	})
	return name, err
}

// BindQueue binds the named queue, with the given routing key, to the named
// exchange. The operation retries transparently across fail-over.
func (s *Session) BindQueue(queue, routingKey string, args codec.Table, exchange string) error {
	if err := s.checkNotClosed(); err != nil {
		return err
	}
	return s.failoverRetry(func() error {
		return s.bindQueue(queue, routingKey, args, exchange)
	})
}

// DeleteQueue deletes the named queue.
func (s *Session) DeleteQueue(name string) error {
	if err := s.checkNotClosed(); err != nil {
		return err
	}
	err := s.failoverRetry(func() error {
		frame, err := codec.NewMethodFrame(s.channelID, &codec.QueueDelete{Queue: name})
		if err != nil {
			return err
		}
		_, err = s.handler.SyncWrite(frame, codec.ClassQueue, codec.MethodQueueDeleteOk, 0)
		return err
	})
	if err != nil {
		return fmt.Errorf("queue deletion failed: %w", err)
	}
	return nil
}

// IsQueueBound reports whether the queue is bound to the exchange, under the
// given routing key when one is supplied.
func (s *Session) IsQueueBound(exchange, queue, routingKey string) (bool, error) {
	if err := s.checkNotClosed(); err != nil {
		return false, err
	}
	var bound bool
	err := s.failoverRetry(func() error {
		frame, err := codec.NewMethodFrame(s.channelID, &codec.ExchangeBound{
			Exchange:   exchange,
			RoutingKey: routingKey,
			Queue:      queue,
		})
		if err != nil {
			return err
		}
		reply, err := s.handler.SyncWrite(frame, codec.ClassExchange, codec.MethodExchangeBoundOk, 0)
		if err != nil {
			return err
		}
		ok, valid := reply.(*codec.ExchangeBoundOk)
		if !valid {
			return codec.NewErr(codec.UnexpectedFrame, "unexpected reply to exchange.bound", nil)
		}
		bound = ok.ReplyCode == 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("queue bound query failed: %w", err)
	}
	return bound, nil
}

// DeclareAndBind declares the destination's exchange and queue and binds
// them under the destination's routing key.
func (s *Session) DeclareAndBind(dest *Destination) error {
	if err := s.checkNotClosed(); err != nil {
		return err
	}
	if dest == nil {
		return ErrInvalidDestination
	}
	return s.failoverRetry(func() error {
		if err := s.declareExchange(dest.ExchangeName, dest.ExchangeKind, false); err != nil {
			return err
		}
		name, err := s.declareQueue(dest)
		if err != nil {
			return err
		}
		return s.bindQueue(name, dest.RoutingKey, nil, dest.ExchangeName)
	})
}

// Temporary destinations.

// CreateTemporaryQueue returns a temporary queue destination owned by this
// session. The queue itself is declared when the first consumer is created.
func (s *Session) CreateTemporaryQueue() (*Destination, error) {
	if err := s.checkNotClosed(); err != nil {
		return nil, err
	}
	return newTemporaryQueue(s), nil
}

// CreateTemporaryTopic returns a temporary topic destination owned by this
// session.
func (s *Session) CreateTemporaryTopic() (*Destination, error) {
	if err := s.checkNotClosed(); err != nil {
		return nil, err
	}
	return newTemporaryTopic(s), nil
}

// Producer lifecycle.

// CreateProducer creates a producer for the destination, which may be nil
// for an anonymous producer. Mandatory and immediate default from the
// session tuning.
func (s *Session) CreateProducer(dest *Destination, opts ...ProducerOption) (*Producer, error) {
	o := producerOpts{mandatory: s.producerMandatory, immediate: s.producerImmediate}
	for _, opt := range opts {
		opt(&o)
	}

	var producer *Producer
	err := s.failoverRetry(func() error {
		if err := s.checkNotClosed(); err != nil {
			return err
		}
		id := s.nextProducerID + 1
		s.nextProducerID = id
		p := &Producer{
			session:       s,
			id:            id,
			dest:          dest,
			mandatory:     o.mandatory,
			immediate:     o.immediate,
			waitUntilSent: o.waitUntilSent,
			transacted:    s.transacted,
		}
		s.producers.register(id, p)
		producer = p
		return nil
	})
	return producer, err
}

// Consumer lifecycle.

// CreateConsumer creates a consumer for the destination. The consumer is
// registered, its exchange and queue declared and bound, and the subscribe
// issued, all retried transparently across fail-over.
func (s *Session) CreateConsumer(dest *Destination, opts ...ConsumerOption) (*Consumer, error) {
	if dest == nil {
		return nil, ErrInvalidDestination
	}
	o := consumerOpts{
		prefetchHigh: s.prefetchHigh,
		prefetchLow:  s.prefetchLow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return s.createConsumerImpl(dest, o)
}

func (s *Session) createConsumerImpl(dest *Destination, o consumerOpts) (*Consumer, error) {
	if err := s.checkTemporaryDestination(dest); err != nil {
		return nil, err
	}

	if s.strict && o.selector != "" {
		if s.strictFatal {
			return nil, fmt.Errorf("selectors: %w", ErrStrictViolation)
		}
		o.selector = ""
	}

	var consumer *Consumer
	err := s.failoverRetry(func() error {
		if err := s.checkNotClosed(); err != nil {
			return err
		}

		c := newConsumer(s, dest, o)
		if err := s.registerConsumer(c, false); err != nil {
			return mapConsumeError(err)
		}

		s.consumers.addDestination(dest)
		consumer = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumer, nil
}

// mapConsumeError translates broker refusals of a subscribe into the
// session error kinds.
func mapConsumeError(err error) error {
	var amqErr *codec.Error
	if errors.As(err, &amqErr) {
		switch amqErr.Code {
		case codec.CommandInvalid, codec.SyntaxError:
			return fmt.Errorf("%w: %s", ErrInvalidSelector, amqErr.Message)
		case codec.NotAllowed:
			return fmt.Errorf("%w: %s", ErrInvalidRoutingKey, amqErr.Message)
		}
	}
	return err
}

// registerConsumer declares the consumer's exchange and queue, binds them,
// and issues the subscribe. The caller holds the fail-over mutex.
func (s *Session) registerConsumer(c *Consumer, nowait bool) error {
	dest := c.dest

	if err := s.declareExchange(dest.ExchangeName, dest.ExchangeKind, false); err != nil {
		return err
	}
	queueName, err := s.declareQueue(dest)
	if err != nil {
		return err
	}
	if err := s.bindQueue(queueName, dest.RoutingKey, c.rawSelector, dest.ExchangeName); err != nil {
		return err
	}

	// Delay prefetch until the client is ready to consume: with no
	// dispatcher yet, suspend the channel before subscribing and unsuspend
	// on the first receive or listener assignment.
	if !s.immediatePrefetch {
		if s.currentDispatcher() == nil && !s.IsSuspended() {
			if err := s.suspendChannel(true); err != nil {
				s.logger.Info("suspending channel before subscribe failed", "error", err)
			} else {
				s.logger.Debug("prefetch delayed until first receive or listener", "channel", s.channelID)
			}
		}
	}

	return s.consumeFromQueue(c, queueName, nowait)
}

// consumeFromQueue registers the consumer under a client-generated tag and
// issues basic.consume. The tag is generated on the client so the nowait
// flag stays usable; the registration happens before the subscribe is sent
// and is rolled back on failure.
func (s *Session) consumeFromQueue(c *Consumer, queueName string, nowait bool) error {
	tag := strconv.Itoa(s.nextTag)
	s.nextTag++

	args := codec.Table{}
	if c.selector != "" {
		args[filterSelector] = c.selector
	}
	if c.autoClose {
		args[filterAutoClose] = true
	}
	if c.noConsume {
		args[filterNoConsume] = true
	}

	c.setTag(tag)
	s.consumers.register(tag, c)

	consume := &codec.BasicConsume{
		Queue:       queueName,
		ConsumerTag: tag,
		NoLocal:     c.noLocal,
		NoAck:       c.ackMode == NoAck,
		Exclusive:   c.exclusive,
		NoWait:      nowait,
		Arguments:   args,
	}
	frame, err := codec.NewMethodFrame(s.channelID, consume)
	if err == nil {
		if nowait {
			err = s.handler.WriteFrame(frame)
		} else {
			_, err = s.handler.SyncWrite(frame, codec.ClassBasic, codec.MethodBasicConsumeOk, 0)
		}
	}
	if err != nil {
		s.consumers.remove(tag)
		return err
	}
	return nil
}

// CreateDurableSubscriber creates a consumer on a durable, named
// subscription to a topic. Reusing a name for the same topic fails; reusing
// it for a different topic replaces the subscription, deleting the old
// queue. An existing durable queue bound under a different routing key than
// the requested topic is deleted and rebuilt.
func (s *Session) CreateDurableSubscriber(topic *Destination, name string, opts ...ConsumerOption) (*Consumer, error) {
	if err := s.checkNotClosed(); err != nil {
		return nil, err
	}
	if err := s.checkValidTopic(topic); err != nil {
		return nil, err
	}

	dest := durableTopic(topic, s.conn.ClientID(), name)

	if sub, ok := s.subscriptions.lookup(name); ok {
		if sub.topic.equal(topic) {
			return nil, fmt.Errorf("%w: topic %q with subscription %q", ErrAlreadySubscribed, topic.RoutingKey, name)
		}
		if err := s.Unsubscribe(name); err != nil {
			return nil, err
		}
	} else if s.strict {
		if s.strictFatal {
			return nil, fmt.Errorf("durable subscribers: %w", ErrStrictViolation)
		}
		s.logger.Warn("cannot verify existing subscription in strict mode, deleting queue regardless",
			"subscription", name)
		if err := s.DeleteQueue(dest.QueueName); err != nil {
			return nil, err
		}
	} else {
		// A queue bound to the exchange but not under this topic belongs
		// to an older subscription and must be trashed.
		bound, err := s.IsQueueBound(dest.ExchangeName, dest.QueueName, "")
		if err != nil {
			return nil, err
		}
		if bound {
			boundHere, err := s.IsQueueBound(dest.ExchangeName, dest.QueueName, topic.RoutingKey)
			if err != nil {
				return nil, err
			}
			if !boundHere {
				if err := s.DeleteQueue(dest.QueueName); err != nil {
					return nil, err
				}
			}
		}
	}

	o := consumerOpts{
		prefetchHigh: s.prefetchHigh,
		prefetchLow:  s.prefetchLow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	consumer, err := s.createConsumerImpl(dest, o)
	if err != nil {
		return nil, err
	}

	s.subscriptions.register(name, topic, consumer)
	return consumer, nil
}

// Unsubscribe deletes the durable subscription with the given name. If the
// name is not known locally but its queue still exists on the broker, the
// queue is deleted; otherwise the subscription is unknown.
func (s *Session) Unsubscribe(name string) error {
	if err := s.checkNotClosed(); err != nil {
		return err
	}

	queueName := durableQueueName(s.conn.ClientID(), name)

	if _, ok := s.subscriptions.removeByName(name); ok {
		return s.DeleteQueue(queueName)
	}

	if s.strict {
		if s.strictFatal {
			return fmt.Errorf("durable subscribers: %w", ErrStrictViolation)
		}
		s.logger.Warn("cannot verify existing subscription in strict mode, deleting queue regardless",
			"subscription", name)
		return s.DeleteQueue(queueName)
	}

	bound, err := s.IsQueueBound(DefaultTopicExchange, queueName, "")
	if err != nil {
		return err
	}
	if !bound {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, name)
	}
	return s.DeleteQueue(queueName)
}

// CreateBrowser returns a browser over the queue. Browsers are outside the
// strict wire specification.
func (s *Session) CreateBrowser(queue *Destination, selector string) (*Browser, error) {
	if s.strict {
		return nil, fmt.Errorf("browsers: %w", ErrStrictViolation)
	}
	if err := s.checkNotClosed(); err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, ErrInvalidDestination
	}
	return &Browser{session: s, queue: queue, selector: selector}, nil
}

// Acknowledgement.

// AcknowledgeMessage writes a single acknowledgement frame, covering all
// deliveries up to the tag when multiple is set. There is no round-trip.
func (s *Session) AcknowledgeMessage(tag uint64, multiple bool) {
	frame, err := codec.NewMethodFrame(s.channelID, &codec.BasicAck{DeliveryTag: tag, Multiple: multiple})
	if err == nil {
		err = s.handler.WriteFrame(frame)
	}
	if err != nil {
		s.logger.Warn("failed to send ack", "tag", tag, "channel", s.channelID, "error", err)
		return
	}
	s.logger.Debug("sent ack", "tag", tag, "multiple", multiple, "channel", s.channelID)
}

// Acknowledge acknowledges all unacknowledged messages on the session, for
// every consumer.
func (s *Session) Acknowledge() error {
	if err := s.checkNotClosed(); err != nil {
		return err
	}
	for _, c := range s.consumers.snapshot() {
		c.acknowledgeDelivered()
	}
	return nil
}

// RejectMessage rejects a delivery, asking the broker to requeue it when
// requeue is set. Rejects are only sent in the client-acknowledge and
// transacted modes.
func (s *Session) RejectMessage(tag uint64, requeue bool) {
	if s.ackMode != AckClient && s.ackMode != AckTransacted {
		return
	}
	frame, err := codec.NewMethodFrame(s.channelID, &codec.BasicReject{DeliveryTag: tag, Requeue: requeue})
	if err == nil {
		err = s.handler.WriteFrame(frame)
	}
	if err != nil {
		s.logger.Warn("failed to send reject", "tag", tag, "error", err)
	}
}

func (s *Session) rejectDelivery(d *Delivery, requeue bool) {
	s.stats.rejected.Add(1)
	s.RejectMessage(d.Deliver.DeliveryTag, requeue)
}

// rejectPendingForTag prunes buffered deliveries for one consumer tag (or
// all, for an empty tag) from the inbound queue, rejecting each.
func (s *Session) rejectPendingForTag(tag string, requeue bool) {
	match := func(d *Delivery) bool {
		return d.Deliver != nil && (tag == "" || d.Deliver.ConsumerTag == tag)
	}
	s.queue.removeMatching(match, func(d *Delivery) {
		s.rejectDelivery(d, requeue)
	})
}

// Transactions.

// Commit flushes each live consumer's outstanding acknowledgements and
// synchronously commits. If a fail-over interrupts the round-trip the commit
// point on the broker is unknown and a FailoverInterruptedError is returned;
// the operation is never retried.
func (s *Session) Commit() error {
	if err := s.checkNotClosed(); err != nil {
		return err
	}
	if err := s.checkTransacted(); err != nil {
		return err
	}

	// Acknowledge up to the last delivered message for each consumer, then
	// commit outstanding publishes and acknowledgements together.
	for _, c := range s.consumers.snapshot() {
		c.acknowledgeDelivered()
	}

	frame, err := codec.NewMethodFrame(s.channelID, &codec.TxCommit{})
	if err != nil {
		return err
	}
	if _, err := s.handler.SyncWrite(frame, codec.ClassTx, codec.MethodTxCommitOk, 0); err != nil {
		if errors.Is(err, ErrFailover) {
			return &FailoverInterruptedError{Op: "commit", Err: err}
		}
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction's publishes and pending
// acknowledgements and restarts delivery from the last acknowledged point.
// In-flight deliveries at or below the rollback mark are rejected with requeue
// rather than delivered. A fail-over during the round-trip surfaces as a
// FailoverInterruptedError.
func (s *Session) Rollback() error {
	s.suspensionMu.Lock()
	defer s.suspensionMu.Unlock()

	if err := s.checkNotClosed(); err != nil {
		return err
	}
	if err := s.checkTransacted(); err != nil {
		return err
	}

	wasSuspended := s.suspended
	if !wasSuspended {
		if err := s.suspendChannelLocked(true); err != nil {
			return err
		}
	}

	if d := s.currentDispatcher(); d != nil {
		d.rollback()
	}

	frame, err := codec.NewMethodFrame(s.channelID, &codec.TxRollback{})
	if err != nil {
		return err
	}
	if _, err := s.handler.SyncWrite(frame, codec.ClassTx, codec.MethodTxRollbackOk, 0); err != nil {
		if errors.Is(err, ErrFailover) {
			return &FailoverInterruptedError{Op: "rollback", Err: err}
		}
		return fmt.Errorf("failed to rollback: %w", err)
	}

	if !wasSuspended {
		return s.suspendChannelLocked(false)
	}
	return nil
}

// Recover stops delivery, clears every consumer's unacknowledged log, and
// asks the broker to redeliver its unacknowledged window marked redelivered.
// Only valid on non-transactional sessions. In strict mode the recover is
// sent fire-and-forget since the confirmation is not part of the wire
// specification.
//
// The in-recovery flag stays set until the next delivery so that a listener
// calling Recover inside its callback does not get the current message
// auto-acknowledged on return.
func (s *Session) Recover() error {
	if err := s.checkNotClosed(); err != nil {
		return err
	}
	if err := s.checkNotTransacted(); err != nil {
		return err
	}

	s.setInRecovery(true)

	wasSuspended := s.IsSuspended()
	if !wasSuspended {
		if err := s.suspendChannel(true); err != nil {
			return err
		}
	}

	for _, c := range s.consumers.snapshot() {
		c.clearUnacked()
	}
	if d := s.currentDispatcher(); d != nil {
		d.rollback()
	}

	frame, err := codec.NewMethodFrame(s.channelID, &codec.BasicRecover{Requeue: false})
	if err != nil {
		return err
	}
	if s.strict {
		// The recover confirmation is not in the strict specification.
		if err := s.handler.WriteFrame(frame); err != nil {
			return fmt.Errorf("recover failed: %w", err)
		}
		s.logger.Warn("session recover cannot be guaranteed in strict mode, messages may arrive out of order",
			"channel", s.channelID)
	} else {
		if _, err := s.handler.SyncWrite(frame, codec.ClassBasic, codec.MethodBasicRecoverOk, 0); err != nil {
			if errors.Is(err, ErrFailover) {
				return &FailoverInterruptedError{Op: "recover", Err: err}
			}
			return fmt.Errorf("recover failed: %w", err)
		}
	}

	if !wasSuspended {
		return s.suspendChannel(false)
	}
	return nil
}

// Listener management.

// SetMessageListener installs a session-wide listener, propagated to every
// existing consumer. It fails with ErrStarted while the dispatcher is running
// and with ErrReceiving while any consumer is blocked in a synchronous
// receive.
func (s *Session) SetMessageListener(l MessageListener) error {
	if err := s.checkNotClosed(); err != nil {
		return err
	}
	if d := s.currentDispatcher(); d != nil && !d.connectionStopped() {
		return ErrStarted
	}
	for _, c := range s.consumers.snapshot() {
		if c.isReceiving() {
			return ErrReceiving
		}
	}

	s.listenerMu.Lock()
	s.listener = l
	s.listenerMu.Unlock()

	for _, c := range s.consumers.snapshot() {
		c.mu.Lock()
		c.listener = l
		c.mu.Unlock()
	}

	if l != nil {
		s.setHasMessageListeners()
		s.startDispatcherIfNecessary()
	}
	return nil
}

// MessageListener returns the session-wide listener, if any.
func (s *Session) MessageListener() MessageListener {
	return s.currentListener()
}

// Start and stop.

// Start resumes the session: the channel is unsuspended if the session has
// been started before, and the dispatcher is started when listeners exist.
func (s *Session) Start() error {
	if s.startedAtLeastOnce.Swap(true) {
		if err := s.suspendChannel(false); err != nil {
			return err
		}
	}
	if s.hasListeners.Load() {
		s.startDispatcherIfNecessary()
	}
	return nil
}

// Stop suspends the channel and parks the dispatcher.
func (s *Session) Stop() error {
	if err := s.suspendChannel(true); err != nil {
		return err
	}
	if d := s.currentDispatcher(); d != nil {
		d.setConnectionStopped(true)
	}
	return nil
}

func (s *Session) startDispatcherIfNecessary() {
	// If immediate prefetch is off, the first consumer left the channel
	// suspended; the first use unsuspends it.
	if !s.immediatePrefetch {
		if s.IsSuspended() && s.startedAtLeastOnce.Load() && s.firstDispatcher.CompareAndSwap(true, false) {
			if err := s.suspendChannel(false); err != nil {
				s.logger.Info("unsuspending channel failed", "error", err)
			}
		}
	}
	s.startDispatcher(!s.conn.Started())
}

func (s *Session) startDispatcher(initiallyStopped bool) {
	s.dispatcherMu.Lock()
	defer s.dispatcherMu.Unlock()
	if s.dispatcher == nil {
		s.dispatcher = newDispatcher(s, initiallyStopped)
	} else {
		s.dispatcher.setConnectionStopped(initiallyStopped)
	}
}

func (s *Session) currentDispatcher() *dispatcher {
	s.dispatcherMu.Lock()
	defer s.dispatcherMu.Unlock()
	return s.dispatcher
}

func (s *Session) rollbackMark() uint64 {
	if d := s.currentDispatcher(); d != nil {
		return d.rollbackMark.Load()
	}
	return 0
}

// SetConnectionStopped flips the dispatcher's stopped state when the owning
// connection is stopped or started, returning the previous state.
func (s *Session) SetConnectionStopped(stopped bool) bool {
	if d := s.currentDispatcher(); d != nil {
		return d.setConnectionStopped(stopped)
	}
	return false
}

// Consumer cancellation.

// ConfirmConsumerCancelled handles the broker's confirmation that a
// consumer was cancelled. Auto-close consumers are closed once their
// buffered deliveries have drained; regular consumers get their pending
// deliveries rejected with requeue.
func (s *Session) ConfirmConsumerCancelled(tag string) {
	c := s.consumers.get(tag)
	if c == nil {
		s.logger.Warn("unable to confirm cancellation, consumer not found", "consumer", tag)
		return
	}

	if c.autoClose {
		c.closeOnEmpty.Store(true)
		if !s.queue.contains(matchTag(tag)) {
			s.closeCancelledConsumer(c)
			return
		}
		// Buffered deliveries remain; the dispatcher closes the consumer
		// after handing over the last one.
	}

	if !c.noConsume {
		if s.currentDispatcher() == nil {
			s.startDispatcher(true)
		}
		s.currentDispatcher().rejectPending(c)
	}
}

func (s *Session) closeCancelledConsumer(c *Consumer) {
	s.logger.Debug("auto-closing cancelled consumer", "consumer", c.Tag())
	c.markClosed()
}

func (s *Session) deregisterConsumer(c *Consumer) {
	if s.consumers.remove(c.Tag()) == nil {
		return
	}
	s.subscriptions.removeByConsumer(c)
	s.consumers.removeDestination(c.dest)
}

// Close and teardown.

// Close closes the session: producers and consumers are shut down in order,
// channel.close is sent and its confirmation awaited up to the timeout, and
// the session is deregistered from the connection. A second Close returns
// immediately. A fail-over during the close is ignored; the session is
// already marked closed so the fail-over process will not re-open the
// channel.
func (s *Session) Close(timeout time.Duration) error {
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()

	lock := s.conn.FailoverLock()
	lock.Lock()
	defer lock.Unlock()

	if s.closed.Swap(true) {
		return nil
	}
	s.logger.Debug("closing session", "channel", s.channelID)
	s.stopSuspender()

	closeErr := s.closeProducersAndConsumers(nil)

	s.handler.CloseSession(s.channelID)

	frame, err := codec.NewMethodFrame(s.channelID, &codec.ChannelClose{
		ReplyCode: codec.ReplySuccess,
		ReplyText: "client closing channel",
	})
	if err == nil {
		_, err = s.handler.SyncWrite(frame, codec.ClassChannel, codec.MethodChannelCloseOk, timeout)
	}
	s.conn.DeregisterSession(s.channelID)

	if err != nil && !errors.Is(err, ErrFailover) {
		return fmt.Errorf("error closing session: %w", err)
	}
	if errors.Is(err, ErrFailover) {
		s.logger.Debug("fail-over during channel close ignored, channel already marked closed")
	}
	return closeErr
}

// Closed handles a server-initiated close of the session. Non-protocol
// causes are wrapped into a protocol error before propagation to consumers.
func (s *Session) Closed(cause error) error {
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()

	lock := s.conn.FailoverLock()
	lock.Lock()
	defer lock.Unlock()

	s.closed.Store(true)
	s.stopSuspender()

	var amqErr *codec.Error
	if cause != nil && !errors.As(cause, &amqErr) {
		amqErr = codec.NewErr(codec.InternalError, "closing session forcibly", cause)
	}

	s.conn.DeregisterSession(s.channelID)
	var propagate error
	if amqErr != nil {
		propagate = amqErr
	}
	return s.closeProducersAndConsumers(propagate)
}

// MarkClosed marks the session closed without protocol traffic, for when
// resubscription after fail-over has been vetoed. The caller holds the
// fail-over mutex.
func (s *Session) MarkClosed() {
	s.closed.Store(true)
	s.stopSuspender()
	s.conn.DeregisterSession(s.channelID)

	for _, p := range s.producers.snapshot() {
		p.markClosed()
	}
	if d := s.currentDispatcher(); d != nil {
		d.close()
		s.setDispatcher(nil)
	}
	s.queue.close()
	for _, c := range s.consumers.snapshot() {
		c.markClosed()
	}
}

// closeProducersAndConsumers closes producers first (no broker traffic),
// then consumers, optionally propagating an error to them.
func (s *Session) closeProducersAndConsumers(cause error) error {
	s.closeProducers()
	return s.closeConsumers(cause)
}

func (s *Session) closeProducers() {
	for _, p := range s.producers.snapshot() {
		if err := p.Close(); err != nil {
			s.logger.Error("error closing producer", "producer", p.ID(), "error", err)
		}
	}
}

func (s *Session) closeConsumers(cause error) error {
	if d := s.currentDispatcher(); d != nil {
		d.close()
		s.setDispatcher(nil)
	}
	s.queue.close()

	var firstErr error
	for _, c := range s.consumers.snapshot() {
		if cause != nil {
			c.notifyError(cause)
			continue
		}
		if err := c.closeLocked(true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Session) setDispatcher(d *dispatcher) {
	s.dispatcherMu.Lock()
	s.dispatcher = d
	s.dispatcherMu.Unlock()
}

// Fail-over.

// Resubscribe re-registers every consumer, in original creation order, and
// then every producer, after the connection has been rebuilt. Each consumer
// is re-declared, re-bound and re-subscribed under a fresh tag. The caller
// (the fail-over process) holds the fail-over mutex for the duration.
func (s *Session) Resubscribe() error {
	s.suspensionMu.Lock()
	s.suspended = false
	s.suspensionMu.Unlock()

	consumers := s.consumers.clear()
	for _, c := range consumers {
		if err := s.registerConsumer(c, true); err != nil {
			return fmt.Errorf("resubscribe consumer on %q: %w", c.dest.RoutingKey, err)
		}
	}

	for _, p := range s.producers.snapshot() {
		if err := p.resubscribe(); err != nil {
			return fmt.Errorf("resubscribe producer %d: %w", p.ID(), err)
		}
	}
	return nil
}

// Flow control.

// suspendChannel toggles channel.flow. The suspension lock guarantees the
// session never has two overlapping suspension toggles.
func (s *Session) suspendChannel(suspend bool) error {
	s.suspensionMu.Lock()
	defer s.suspensionMu.Unlock()
	return s.suspendChannelLocked(suspend)
}

func (s *Session) suspendChannelLocked(suspend bool) error {
	s.logger.Debug("setting channel flow", "suspended", suspend, "channel", s.channelID)
	s.suspended = suspend

	frame, err := codec.NewMethodFrame(s.channelID, &codec.ChannelFlow{Active: !suspend})
	if err != nil {
		return err
	}
	if _, err := s.handler.SyncWrite(frame, codec.ClassChannel, codec.MethodChannelFlowOk, 0); err != nil {
		if errors.Is(err, ErrFailover) {
			return fmt.Errorf("fail-over interrupted channel suspension: %w", err)
		}
		return err
	}
	return nil
}

// watermarkSuspender turns queue watermark crossings into suspension
// requests on the suspender worker.
type watermarkSuspender struct {
	s *Session
}

func (w *watermarkSuspender) aboveThreshold(current int) {
	w.s.logger.Debug("above prefetch high mark, suspending channel",
		"current", current, "high", w.s.prefetchHigh)
	w.s.requestSuspend(true)
}

func (w *watermarkSuspender) underThreshold(current int) {
	w.s.logger.Debug("below prefetch low mark, unsuspending channel",
		"current", current, "low", w.s.prefetchLow)
	w.s.requestSuspend(false)
}

func (s *Session) requestSuspend(suspend bool) {
	select {
	case s.suspendCh <- suspend:
	default:
		s.logger.Warn("suspension request dropped, worker backlogged", "suspend", suspend)
	}
}

// suspender is the single worker that applies watermark-driven suspension
// toggles in order, off the network thread.
func (s *Session) suspender() {
	for {
		select {
		case suspend := <-s.suspendCh:
			if err := s.suspendChannel(suspend); err != nil {
				s.logger.Warn("unable to toggle channel flow", "suspend", suspend, "error", err)
			}
		case <-s.suspenderStop:
			return
		}
	}
}

func (s *Session) stopSuspender() {
	s.suspenderOnce.Do(func() { close(s.suspenderStop) })
}

func (s *Session) checkTemporaryDestination(dest *Destination) error {
	if dest == nil {
		return ErrInvalidDestination
	}
	if dest.temporary {
		if dest.owner != s {
			return fmt.Errorf("%w: temporary destination belongs to another session", ErrInvalidDestination)
		}
		if dest.Deleted() {
			return fmt.Errorf("%w: temporary destination has been deleted", ErrInvalidDestination)
		}
	}
	return nil
}

func (s *Session) checkValidTopic(topic *Destination) error {
	if topic == nil {
		return ErrInvalidDestination
	}
	if topic.temporary {
		return fmt.Errorf("%w: cannot create a durable subscription on a temporary topic", ErrInvalidDestination)
	}
	return nil
}
