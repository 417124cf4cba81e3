// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
)

// failoverRetry runs op while holding the connection fail-over mutex. If a
// fail-over event interrupts the operation, the guard waits until the
// connection has been rebuilt and resubscription has completed, then retries
// from the beginning. Used for operations that are idempotent from the
// client's perspective: declare, bind, delete-queue, is-bound,
// create-consumer, create-producer.
//
// Commit, rollback and recover must never go through this guard; their
// commit point on the broker is unknown when fail-over interrupts them.
func (s *Session) failoverRetry(op func() error) error {
	for {
		s.conn.FailoverLock().Lock()
		err := op()
		s.conn.FailoverLock().Unlock()
		if errors.Is(err, ErrFailover) {
			s.logger.Debug("fail-over interrupted operation, retrying after resubscription", "channel", s.channelID)
			s.conn.AwaitResubscription()
			continue
		}
		return err
	}
}

// failoverNoop runs op while holding the connection fail-over mutex and
// abandons it silently if a fail-over interrupts it. Used for the nowait
// exchange declare and for consumer close.
func (s *Session) failoverNoop(op func() error) error {
	s.conn.FailoverLock().Lock()
	defer s.conn.FailoverLock().Unlock()
	if err := op(); err != nil && !errors.Is(err, ErrFailover) {
		return err
	}
	return nil
}
