// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"time"

	"github.com/absmach/amqclient/codec"
)

// ProtocolHandler is the surface the session requires from the transport.
// SyncWrite issues a frame and blocks until a reply of the expected class and
// method arrives, the timeout elapses (ErrTimeout), or a fail-over event
// interrupts the round-trip (an error wrapping ErrFailover). A zero timeout
// means the transport's default reply deadline.
type ProtocolHandler interface {
	WriteFrame(f *codec.Frame) error
	SyncWrite(f *codec.Frame, expectClass, expectMethod uint16, timeout time.Duration) (interface{}, error)
	CloseSession(channelID uint16)
	GenerateQueueName() string
	ProtocolVersion() (major, minor byte)
}

// Connection is the surface the session requires from its owning connection.
type Connection interface {
	// ClientID identifies this client to the broker; durable subscription
	// queue names are derived from it.
	ClientID() string

	// FailoverLock is the connection fail-over mutex. It is held during
	// guarded protocol round-trips and by the fail-over process itself, so
	// a running round-trip either completes before fail-over or is cleanly
	// rewound.
	FailoverLock() sync.Locker

	// AwaitResubscription blocks until a fail-over in progress has rebuilt
	// the connection and resubscription has completed.
	AwaitResubscription()

	// Started reports whether message delivery on the connection has been
	// started.
	Started() bool

	// RunTask schedules work on a connection work goroutine, away from the
	// network I/O thread.
	RunTask(task func())

	// ExceptionReceived delivers an asynchronous error to the
	// connection-level error callback.
	ExceptionReceived(err error)

	// DeregisterSession removes the session from the connection's channel
	// table.
	DeregisterSession(channelID uint16)
}
