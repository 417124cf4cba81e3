// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/absmach/amqclient/codec"
)

type consumerOpts struct {
	selector     string
	rawSelector  codec.Table
	noLocal      bool
	exclusive    bool
	prefetchHigh int
	prefetchLow  int
	noConsume    bool
	autoClose    bool
}

// ConsumerOption configures a consumer at creation time.
type ConsumerOption func(*consumerOpts)

// WithSelector sets the message selector expression.
func WithSelector(selector string) ConsumerOption {
	return func(o *consumerOpts) { o.selector = selector }
}

// WithRawSelector passes a raw filter table to the subscribe request.
func WithRawSelector(t codec.Table) ConsumerOption {
	return func(o *consumerOpts) { o.rawSelector = t }
}

// WithNoLocal excludes messages published on this connection.
func WithNoLocal() ConsumerOption {
	return func(o *consumerOpts) { o.noLocal = true }
}

// WithExclusive requests exclusive access to the queue.
func WithExclusive() ConsumerOption {
	return func(o *consumerOpts) { o.exclusive = true }
}

// WithPrefetch overrides the session's prefetch watermarks for this
// consumer.
func WithPrefetch(high, low int) ConsumerOption {
	return func(o *consumerOpts) {
		o.prefetchHigh = high
		o.prefetchLow = low
	}
}

// WithNoConsume subscribes without consuming, for browse-style access to a
// queue.
func WithNoConsume() ConsumerOption {
	return func(o *consumerOpts) { o.noConsume = true }
}

// WithAutoClose closes the consumer once the broker cancels it and its
// buffered deliveries have drained.
func WithAutoClose() ConsumerOption {
	return func(o *consumerOpts) { o.autoClose = true }
}

type producerOpts struct {
	mandatory     bool
	immediate     bool
	waitUntilSent bool
}

// ProducerOption configures a producer at creation time.
type ProducerOption func(*producerOpts)

// WithMandatory controls whether the broker bounces messages it cannot route
// to any queue.
func WithMandatory(mandatory bool) ProducerOption {
	return func(o *producerOpts) { o.mandatory = mandatory }
}

// WithImmediate controls whether the broker bounces messages no consumer is
// ready to take.
func WithImmediate(immediate bool) ProducerOption {
	return func(o *producerOpts) { o.immediate = immediate }
}

// WithWaitUntilSent sets the producer's wait-until-sent flag. Send does not
// consult it: every Send returns only after ProtocolHandler.WriteFrame has
// returned for each of its frames.
func WithWaitUntilSent() ProducerOption {
	return func(o *producerOpts) { o.waitUntilSent = true }
}
