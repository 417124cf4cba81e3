// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/amqclient/codec"
	"github.com/absmach/amqclient/config"
	"github.com/stretchr/testify/require"
)

// fakeHandler implements ProtocolHandler against a scripted broker. Frames
// are recorded decoded; SyncWrite answers with the matching -ok method
// unless a stub intercepts the call.
type fakeHandler struct {
	mu      sync.Mutex
	written []interface{} // decoded fire-and-forget methods
	synced  []interface{} // decoded synchronous requests

	// stub intercepts sync round-trips. Returning handled=false falls
	// through to the default reply.
	stub func(m interface{}) (reply interface{}, err error, handled bool)

	nameSeq int
}

func (h *fakeHandler) WriteFrame(f *codec.Frame) error {
	m, err := f.Decode()
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.written = append(h.written, m)
	h.mu.Unlock()
	return nil
}

func (h *fakeHandler) SyncWrite(f *codec.Frame, expectClass, expectMethod uint16, timeout time.Duration) (interface{}, error) {
	m, err := f.Decode()
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.synced = append(h.synced, m)
	stub := h.stub
	h.mu.Unlock()

	if stub != nil {
		if reply, err, handled := stub(m); handled {
			return reply, err
		}
	}

	switch req := m.(type) {
	case *codec.ExchangeDeclare:
		return &codec.ExchangeDeclareOk{}, nil
	case *codec.ExchangeBound:
		return &codec.ExchangeBoundOk{ReplyCode: 0}, nil
	case *codec.QueueDeclare:
		return &codec.QueueDeclareOk{Queue: req.Queue}, nil
	case *codec.QueueBind:
		return &codec.QueueBindOk{}, nil
	case *codec.QueueDelete:
		return &codec.QueueDeleteOk{}, nil
	case *codec.BasicConsume:
		return &codec.BasicConsumeOk{ConsumerTag: req.ConsumerTag}, nil
	case *codec.BasicCancel:
		return &codec.BasicCancelOk{ConsumerTag: req.ConsumerTag}, nil
	case *codec.BasicRecover:
		return &codec.BasicRecoverOk{}, nil
	case *codec.ChannelFlow:
		return &codec.ChannelFlowOk{Active: req.Active}, nil
	case *codec.ChannelClose:
		return &codec.ChannelCloseOk{}, nil
	case *codec.TxSelect:
		return &codec.TxSelectOk{}, nil
	case *codec.TxCommit:
		return &codec.TxCommitOk{}, nil
	case *codec.TxRollback:
		return &codec.TxRollbackOk{}, nil
	default:
		return nil, codec.NewErr(codec.NotImplemented, fmt.Sprintf("unscripted method %T", m), nil)
	}
}

func (h *fakeHandler) CloseSession(channelID uint16) {}

func (h *fakeHandler) GenerateQueueName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nameSeq++
	return fmt.Sprintf("gen-queue-%d", h.nameSeq)
}

func (h *fakeHandler) ProtocolVersion() (byte, byte) {
	return 0, 9
}

func (h *fakeHandler) setStub(stub func(m interface{}) (interface{}, error, bool)) {
	h.mu.Lock()
	h.stub = stub
	h.mu.Unlock()
}

func (h *fakeHandler) writtenMethods() []interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]interface{}, len(h.written))
	copy(out, h.written)
	return out
}

func (h *fakeHandler) syncedMethods() []interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]interface{}, len(h.synced))
	copy(out, h.synced)
	return out
}

func (h *fakeHandler) reset() {
	h.mu.Lock()
	h.written = nil
	h.synced = nil
	h.mu.Unlock()
}

// fakeConn implements Connection. Tasks run inline for determinism and
// asynchronous errors land on a buffered channel.
type fakeConn struct {
	failover     sync.Mutex
	started      atomic.Bool
	resubs       atomic.Int32
	errs         chan error
	mu           sync.Mutex
	deregistered []uint16
}

func newFakeConn() *fakeConn {
	c := &fakeConn{errs: make(chan error, 16)}
	c.started.Store(true)
	return c
}

func (c *fakeConn) ClientID() string { return "client-1" }

func (c *fakeConn) FailoverLock() sync.Locker { return &c.failover }

func (c *fakeConn) AwaitResubscription() { c.resubs.Add(1) }

func (c *fakeConn) Started() bool { return c.started.Load() }

func (c *fakeConn) RunTask(task func()) { task() }

func (c *fakeConn) ExceptionReceived(err error) { c.errs <- err }

func (c *fakeConn) DeregisterSession(channelID uint16) {
	c.mu.Lock()
	c.deregistered = append(c.deregistered, channelID)
	c.mu.Unlock()
}

func testTuning() config.Tuning {
	cfg := config.Default()
	cfg.PrefetchHigh = 10
	cfg.PrefetchLow = 5
	return cfg
}

func newTestSession(t *testing.T, transacted bool, ackMode AckMode, cfg config.Tuning) (*Session, *fakeHandler, *fakeConn) {
	t.Helper()
	h := &fakeHandler{}
	conn := newFakeConn()
	s, err := New(conn, h, 1, transacted, ackMode, cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close(time.Second)
	})
	return s, h, conn
}

// deliver pushes a real delivery into the session as the network thread
// would.
func deliver(s *Session, consumerTag string, deliveryTag uint64, redelivered bool, body string) {
	s.MessageReceived(&Delivery{
		Deliver: &codec.BasicDeliver{
			ConsumerTag: consumerTag,
			DeliveryTag: deliveryTag,
			Redelivered: redelivered,
			Exchange:    DefaultQueueExchange,
			RoutingKey:  "test-queue",
		},
		Header: &codec.ContentHeader{ClassID: codec.ClassBasic, BodySize: uint64(len(body))},
		Bodies: [][]byte{[]byte(body)},
	})
}

// bounce pushes a broker return into the session.
func bounce(s *Session, replyCode uint16, reason, body string) {
	s.MessageReceived(&Delivery{
		Bounce: &codec.BasicReturn{
			ReplyCode:  replyCode,
			ReplyText:  reason,
			Exchange:   DefaultQueueExchange,
			RoutingKey: "test-queue",
		},
		Header: &codec.ContentHeader{ClassID: codec.ClassBasic, BodySize: uint64(len(body))},
		Bodies: [][]byte{[]byte(body)},
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}
