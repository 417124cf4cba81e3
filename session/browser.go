// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

// Browser inspects a queue without consuming its messages. The underlying
// consumer is created with the no-consume and auto-close flags, so the
// broker replays the queue contents and cancels the subscription after the
// last message.
type Browser struct {
	session  *Session
	queue    *Destination
	selector string
}

// Queue returns the browsed destination.
func (b *Browser) Queue() *Destination {
	return b.queue
}

// Selector returns the browser's selector expression.
func (b *Browser) Selector() string {
	return b.selector
}

// Browse opens a browse pass over the queue. Each call returns a fresh
// consumer positioned at the head of the queue; the consumer closes itself
// once the replay is exhausted.
func (b *Browser) Browse() (*Consumer, error) {
	return b.session.createConsumerImpl(b.queue, consumerOpts{
		selector:     b.selector,
		prefetchHigh: b.session.prefetchHigh,
		prefetchLow:  b.session.prefetchLow,
		noConsume:    true,
		autoClose:    true,
	})
}
