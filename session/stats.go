// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync/atomic"
)

type sessionStats struct {
	received   atomic.Uint64
	dispatched atomic.Uint64
	published  atomic.Uint64
	bounced    atomic.Uint64
	rejected   atomic.Uint64
}

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	Received   uint64
	Dispatched uint64
	Published  uint64
	Bounced    uint64
	Rejected   uint64
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Received:   s.stats.received.Load(),
		Dispatched: s.stats.dispatched.Load(),
		Published:  s.stats.published.Load(),
		Bounced:    s.stats.bounced.Load(),
		Rejected:   s.stats.rejected.Load(),
	}
}
