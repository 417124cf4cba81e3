// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/absmach/amqclient/codec"
)

// returnBouncedMessage translates a broker return of an unroutable message
// into a typed asynchronous error on the connection error callback. The
// translation runs on a connection work goroutine, away from the network
// I/O thread.
func (s *Session) returnBouncedMessage(d *Delivery) {
	s.stats.bounced.Add(1)
	s.conn.RunTask(func() {
		bounce := d.Bounce
		msg := newMessage(d, s)

		s.logger.Debug("message returned by broker",
			"code", bounce.ReplyCode, "reason", bounce.ReplyText, "exchange", bounce.Exchange)

		undelivered := UndeliveredError{
			Code:    int(bounce.ReplyCode),
			Reason:  bounce.ReplyText,
			Message: msg,
		}

		var err error
		switch bounce.ReplyCode {
		case codec.NoConsumers:
			err = &NoConsumersError{UndeliveredError: undelivered}
		case codec.NoRoute:
			err = &NoRouteError{UndeliveredError: undelivered}
		default:
			err = &undelivered
		}

		s.conn.ExceptionReceived(err)
	})
}
