// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"io"
)

// Class IDs.
const (
	ClassChannel  = 20
	ClassExchange = 40
	ClassQueue    = 50
	ClassBasic    = 60
	ClassTx       = 90
)

// Channel method IDs.
const (
	MethodChannelFlow    = 20
	MethodChannelFlowOk  = 21
	MethodChannelClose   = 40
	MethodChannelCloseOk = 41
)

// Exchange method IDs. Bound and BoundOk are the exchange.bound extension
// used to query whether a queue is bound to an exchange.
const (
	MethodExchangeDeclare   = 10
	MethodExchangeDeclareOk = 11
	MethodExchangeBound     = 22
	MethodExchangeBoundOk   = 23
)

// Queue method IDs.
const (
	MethodQueueDeclare   = 10
	MethodQueueDeclareOk = 11
	MethodQueueBind      = 20
	MethodQueueBindOk    = 21
	MethodQueueDelete    = 40
	MethodQueueDeleteOk  = 41
)

// Basic method IDs.
const (
	MethodBasicQos       = 10
	MethodBasicQosOk     = 11
	MethodBasicConsume   = 20
	MethodBasicConsumeOk = 21
	MethodBasicCancel    = 30
	MethodBasicCancelOk  = 31
	MethodBasicPublish   = 40
	MethodBasicReturn    = 50
	MethodBasicDeliver   = 60
	MethodBasicAck       = 80
	MethodBasicReject    = 90
	MethodBasicRecover   = 110
	MethodBasicRecoverOk = 111
)

// Tx method IDs.
const (
	MethodTxSelect     = 10
	MethodTxSelectOk   = 11
	MethodTxCommit     = 20
	MethodTxCommitOk   = 21
	MethodTxRollback   = 30
	MethodTxRollbackOk = 31
)

// ChannelFlow asks the peer to pause (Active=false) or restart (Active=true)
// content delivery on the channel.
type ChannelFlow struct {
	Active bool
}

func (m *ChannelFlow) Read(r *bytes.Reader) (err error) {
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Active = (bits & 0x01) != 0
	return nil
}

func (m *ChannelFlow) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassChannel); err != nil {
		return err
	}
	if err := WriteShort(w, MethodChannelFlow); err != nil {
		return err
	}
	var bits byte
	if m.Active {
		bits |= 0x01
	}
	return WriteOctet(w, bits)
}

// ChannelFlowOk confirms a flow change.
type ChannelFlowOk struct {
	Active bool
}

func (m *ChannelFlowOk) Read(r *bytes.Reader) (err error) {
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Active = (bits & 0x01) != 0
	return nil
}

func (m *ChannelFlowOk) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassChannel); err != nil {
		return err
	}
	if err := WriteShort(w, MethodChannelFlowOk); err != nil {
		return err
	}
	var bits byte
	if m.Active {
		bits |= 0x01
	}
	return WriteOctet(w, bits)
}

// ChannelClose requests an orderly channel shutdown.
type ChannelClose struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (m *ChannelClose) Read(r *bytes.Reader) (err error) {
	if m.ReplyCode, err = ReadShort(r); err != nil {
		return err
	}
	if m.ReplyText, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.ClassID, err = ReadShort(r); err != nil {
		return err
	}
	if m.MethodID, err = ReadShort(r); err != nil {
		return err
	}
	return nil
}

func (m *ChannelClose) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassChannel); err != nil {
		return err
	}
	if err := WriteShort(w, MethodChannelClose); err != nil {
		return err
	}
	if err := WriteShort(w, m.ReplyCode); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.ReplyText); err != nil {
		return err
	}
	if err := WriteShort(w, m.ClassID); err != nil {
		return err
	}
	return WriteShort(w, m.MethodID)
}

// ChannelCloseOk confirms a channel close.
type ChannelCloseOk struct{}

func (m *ChannelCloseOk) Read(r *bytes.Reader) error {
	return nil
}

func (m *ChannelCloseOk) Write(w io.Writer) error {
	if err := WriteShort(w, ClassChannel); err != nil {
		return err
	}
	return WriteShort(w, MethodChannelCloseOk)
}

// ExchangeDeclare creates an exchange if it does not already exist.
type ExchangeDeclare struct {
	Ticket     uint16
	Exchange   string
	Type       string
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Arguments  Table
}

func (m *ExchangeDeclare) Read(r *bytes.Reader) (err error) {
	if m.Ticket, err = ReadShort(r); err != nil {
		return err
	}
	if m.Exchange, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.Type, err = ReadShortStr(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Passive = (bits & 0x01) != 0
	m.Durable = (bits & 0x02) != 0
	m.AutoDelete = (bits & 0x04) != 0
	m.Internal = (bits & 0x08) != 0
	m.NoWait = (bits & 0x10) != 0
	if m.Arguments, err = ReadTable(r); err != nil {
		return err
	}
	return nil
}

func (m *ExchangeDeclare) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassExchange); err != nil {
		return err
	}
	if err := WriteShort(w, MethodExchangeDeclare); err != nil {
		return err
	}
	if err := WriteShort(w, m.Ticket); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Exchange); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Type); err != nil {
		return err
	}
	var bits byte
	if m.Passive {
		bits |= 0x01
	}
	if m.Durable {
		bits |= 0x02
	}
	if m.AutoDelete {
		bits |= 0x04
	}
	if m.Internal {
		bits |= 0x08
	}
	if m.NoWait {
		bits |= 0x10
	}
	if err := WriteOctet(w, bits); err != nil {
		return err
	}
	return WriteTable(w, m.Arguments)
}

// ExchangeDeclareOk confirms an exchange declaration.
type ExchangeDeclareOk struct{}

func (m *ExchangeDeclareOk) Read(r *bytes.Reader) error {
	return nil
}

func (m *ExchangeDeclareOk) Write(w io.Writer) error {
	if err := WriteShort(w, ClassExchange); err != nil {
		return err
	}
	return WriteShort(w, MethodExchangeDeclareOk)
}

// ExchangeBound queries whether a queue is bound to an exchange, optionally
// under a specific routing key.
type ExchangeBound struct {
	Exchange   string
	RoutingKey string
	Queue      string
}

func (m *ExchangeBound) Read(r *bytes.Reader) (err error) {
	if m.Exchange, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.RoutingKey, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.Queue, err = ReadShortStr(r); err != nil {
		return err
	}
	return nil
}

func (m *ExchangeBound) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassExchange); err != nil {
		return err
	}
	if err := WriteShort(w, MethodExchangeBound); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Exchange); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.RoutingKey); err != nil {
		return err
	}
	return WriteShortStr(w, m.Queue)
}

// ExchangeBoundOk answers an ExchangeBound query. ReplyCode zero means bound.
type ExchangeBoundOk struct {
	ReplyCode uint16
	ReplyText string
}

func (m *ExchangeBoundOk) Read(r *bytes.Reader) (err error) {
	if m.ReplyCode, err = ReadShort(r); err != nil {
		return err
	}
	if m.ReplyText, err = ReadShortStr(r); err != nil {
		return err
	}
	return nil
}

func (m *ExchangeBoundOk) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassExchange); err != nil {
		return err
	}
	if err := WriteShort(w, MethodExchangeBoundOk); err != nil {
		return err
	}
	if err := WriteShort(w, m.ReplyCode); err != nil {
		return err
	}
	return WriteShortStr(w, m.ReplyText)
}

// QueueDeclare creates or checks a queue.
type QueueDeclare struct {
	Ticket     uint16
	Queue      string
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	NoWait     bool
	Arguments  Table
}

func (m *QueueDeclare) Read(r *bytes.Reader) (err error) {
	if m.Ticket, err = ReadShort(r); err != nil {
		return err
	}
	if m.Queue, err = ReadShortStr(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Passive = (bits & 0x01) != 0
	m.Durable = (bits & 0x02) != 0
	m.Exclusive = (bits & 0x04) != 0
	m.AutoDelete = (bits & 0x08) != 0
	m.NoWait = (bits & 0x10) != 0
	if m.Arguments, err = ReadTable(r); err != nil {
		return err
	}
	return nil
}

func (m *QueueDeclare) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassQueue); err != nil {
		return err
	}
	if err := WriteShort(w, MethodQueueDeclare); err != nil {
		return err
	}
	if err := WriteShort(w, m.Ticket); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Queue); err != nil {
		return err
	}
	var bits byte
	if m.Passive {
		bits |= 0x01
	}
	if m.Durable {
		bits |= 0x02
	}
	if m.Exclusive {
		bits |= 0x04
	}
	if m.AutoDelete {
		bits |= 0x08
	}
	if m.NoWait {
		bits |= 0x10
	}
	if err := WriteOctet(w, bits); err != nil {
		return err
	}
	return WriteTable(w, m.Arguments)
}

// QueueDeclareOk confirms a queue declaration and reports its name and counts.
type QueueDeclareOk struct {
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

func (m *QueueDeclareOk) Read(r *bytes.Reader) (err error) {
	if m.Queue, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.MessageCount, err = ReadLong(r); err != nil {
		return err
	}
	if m.ConsumerCount, err = ReadLong(r); err != nil {
		return err
	}
	return nil
}

func (m *QueueDeclareOk) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassQueue); err != nil {
		return err
	}
	if err := WriteShort(w, MethodQueueDeclareOk); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Queue); err != nil {
		return err
	}
	if err := WriteLong(w, m.MessageCount); err != nil {
		return err
	}
	return WriteLong(w, m.ConsumerCount)
}

// QueueBind binds a queue to an exchange under a routing key.
type QueueBind struct {
	Ticket     uint16
	Queue      string
	Exchange   string
	RoutingKey string
	NoWait     bool
	Arguments  Table
}

func (m *QueueBind) Read(r *bytes.Reader) (err error) {
	if m.Ticket, err = ReadShort(r); err != nil {
		return err
	}
	if m.Queue, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.Exchange, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.RoutingKey, err = ReadShortStr(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.NoWait = (bits & 0x01) != 0
	if m.Arguments, err = ReadTable(r); err != nil {
		return err
	}
	return nil
}

func (m *QueueBind) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassQueue); err != nil {
		return err
	}
	if err := WriteShort(w, MethodQueueBind); err != nil {
		return err
	}
	if err := WriteShort(w, m.Ticket); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Queue); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Exchange); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.RoutingKey); err != nil {
		return err
	}
	var bits byte
	if m.NoWait {
		bits |= 0x01
	}
	if err := WriteOctet(w, bits); err != nil {
		return err
	}
	return WriteTable(w, m.Arguments)
}

// QueueBindOk confirms a queue binding.
type QueueBindOk struct{}

func (m *QueueBindOk) Read(r *bytes.Reader) error {
	return nil
}

func (m *QueueBindOk) Write(w io.Writer) error {
	if err := WriteShort(w, ClassQueue); err != nil {
		return err
	}
	return WriteShort(w, MethodQueueBindOk)
}

// QueueDelete deletes a queue.
type QueueDelete struct {
	Ticket   uint16
	Queue    string
	IfUnused bool
	IfEmpty  bool
	NoWait   bool
}

func (m *QueueDelete) Read(r *bytes.Reader) (err error) {
	if m.Ticket, err = ReadShort(r); err != nil {
		return err
	}
	if m.Queue, err = ReadShortStr(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.IfUnused = (bits & 0x01) != 0
	m.IfEmpty = (bits & 0x02) != 0
	m.NoWait = (bits & 0x04) != 0
	return nil
}

func (m *QueueDelete) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassQueue); err != nil {
		return err
	}
	if err := WriteShort(w, MethodQueueDelete); err != nil {
		return err
	}
	if err := WriteShort(w, m.Ticket); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Queue); err != nil {
		return err
	}
	var bits byte
	if m.IfUnused {
		bits |= 0x01
	}
	if m.IfEmpty {
		bits |= 0x02
	}
	if m.NoWait {
		bits |= 0x04
	}
	return WriteOctet(w, bits)
}

// QueueDeleteOk confirms a queue deletion.
type QueueDeleteOk struct {
	MessageCount uint32
}

func (m *QueueDeleteOk) Read(r *bytes.Reader) (err error) {
	if m.MessageCount, err = ReadLong(r); err != nil {
		return err
	}
	return nil
}

func (m *QueueDeleteOk) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassQueue); err != nil {
		return err
	}
	if err := WriteShort(w, MethodQueueDeleteOk); err != nil {
		return err
	}
	return WriteLong(w, m.MessageCount)
}

// BasicQos requests a prefetch window.
type BasicQos struct {
	PrefetchSize  uint32
	PrefetchCount uint16
	Global        bool
}

func (m *BasicQos) Read(r *bytes.Reader) (err error) {
	if m.PrefetchSize, err = ReadLong(r); err != nil {
		return err
	}
	if m.PrefetchCount, err = ReadShort(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Global = (bits & 0x01) != 0
	return nil
}

func (m *BasicQos) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicQos); err != nil {
		return err
	}
	if err := WriteLong(w, m.PrefetchSize); err != nil {
		return err
	}
	if err := WriteShort(w, m.PrefetchCount); err != nil {
		return err
	}
	var bits byte
	if m.Global {
		bits |= 0x01
	}
	return WriteOctet(w, bits)
}

// BasicQosOk confirms a prefetch request.
type BasicQosOk struct{}

func (m *BasicQosOk) Read(r *bytes.Reader) error {
	return nil
}

func (m *BasicQosOk) Write(w io.Writer) error {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	return WriteShort(w, MethodBasicQosOk)
}

// BasicConsume starts a consumer on a queue.
type BasicConsume struct {
	Ticket      uint16
	Queue       string
	ConsumerTag string
	NoLocal     bool
	NoAck       bool
	Exclusive   bool
	NoWait      bool
	Arguments   Table
}

func (m *BasicConsume) Read(r *bytes.Reader) (err error) {
	if m.Ticket, err = ReadShort(r); err != nil {
		return err
	}
	if m.Queue, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.ConsumerTag, err = ReadShortStr(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.NoLocal = (bits & 0x01) != 0
	m.NoAck = (bits & 0x02) != 0
	m.Exclusive = (bits & 0x04) != 0
	m.NoWait = (bits & 0x08) != 0
	if m.Arguments, err = ReadTable(r); err != nil {
		return err
	}
	return nil
}

func (m *BasicConsume) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicConsume); err != nil {
		return err
	}
	if err := WriteShort(w, m.Ticket); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Queue); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.ConsumerTag); err != nil {
		return err
	}
	var bits byte
	if m.NoLocal {
		bits |= 0x01
	}
	if m.NoAck {
		bits |= 0x02
	}
	if m.Exclusive {
		bits |= 0x04
	}
	if m.NoWait {
		bits |= 0x08
	}
	if err := WriteOctet(w, bits); err != nil {
		return err
	}
	return WriteTable(w, m.Arguments)
}

// BasicConsumeOk confirms a consumer start.
type BasicConsumeOk struct {
	ConsumerTag string
}

func (m *BasicConsumeOk) Read(r *bytes.Reader) (err error) {
	if m.ConsumerTag, err = ReadShortStr(r); err != nil {
		return err
	}
	return nil
}

func (m *BasicConsumeOk) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicConsumeOk); err != nil {
		return err
	}
	return WriteShortStr(w, m.ConsumerTag)
}

// BasicCancel cancels a consumer.
type BasicCancel struct {
	ConsumerTag string
	NoWait      bool
}

func (m *BasicCancel) Read(r *bytes.Reader) (err error) {
	if m.ConsumerTag, err = ReadShortStr(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.NoWait = (bits & 0x01) != 0
	return nil
}

func (m *BasicCancel) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicCancel); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.ConsumerTag); err != nil {
		return err
	}
	var bits byte
	if m.NoWait {
		bits |= 0x01
	}
	return WriteOctet(w, bits)
}

// BasicCancelOk confirms a consumer cancellation.
type BasicCancelOk struct {
	ConsumerTag string
}

func (m *BasicCancelOk) Read(r *bytes.Reader) (err error) {
	if m.ConsumerTag, err = ReadShortStr(r); err != nil {
		return err
	}
	return nil
}

func (m *BasicCancelOk) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicCancelOk); err != nil {
		return err
	}
	return WriteShortStr(w, m.ConsumerTag)
}

// BasicPublish publishes a message to an exchange.
type BasicPublish struct {
	Ticket     uint16
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Immediate  bool
}

func (m *BasicPublish) Read(r *bytes.Reader) (err error) {
	if m.Ticket, err = ReadShort(r); err != nil {
		return err
	}
	if m.Exchange, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.RoutingKey, err = ReadShortStr(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Mandatory = (bits & 0x01) != 0
	m.Immediate = (bits & 0x02) != 0
	return nil
}

func (m *BasicPublish) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicPublish); err != nil {
		return err
	}
	if err := WriteShort(w, m.Ticket); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Exchange); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.RoutingKey); err != nil {
		return err
	}
	var bits byte
	if m.Mandatory {
		bits |= 0x01
	}
	if m.Immediate {
		bits |= 0x02
	}
	return WriteOctet(w, bits)
}

// BasicReturn carries back a message the broker could not route.
type BasicReturn struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
}

func (m *BasicReturn) Read(r *bytes.Reader) (err error) {
	if m.ReplyCode, err = ReadShort(r); err != nil {
		return err
	}
	if m.ReplyText, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.Exchange, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.RoutingKey, err = ReadShortStr(r); err != nil {
		return err
	}
	return nil
}

func (m *BasicReturn) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicReturn); err != nil {
		return err
	}
	if err := WriteShort(w, m.ReplyCode); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.ReplyText); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Exchange); err != nil {
		return err
	}
	return WriteShortStr(w, m.RoutingKey)
}

// BasicDeliver pushes a message to a consumer.
type BasicDeliver struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

func (m *BasicDeliver) Read(r *bytes.Reader) (err error) {
	if m.ConsumerTag, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.DeliveryTag, err = ReadLongLong(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Redelivered = (bits & 0x01) != 0
	if m.Exchange, err = ReadShortStr(r); err != nil {
		return err
	}
	if m.RoutingKey, err = ReadShortStr(r); err != nil {
		return err
	}
	return nil
}

func (m *BasicDeliver) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicDeliver); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.ConsumerTag); err != nil {
		return err
	}
	if err := WriteLongLong(w, m.DeliveryTag); err != nil {
		return err
	}
	var bits byte
	if m.Redelivered {
		bits |= 0x01
	}
	if err := WriteOctet(w, bits); err != nil {
		return err
	}
	if err := WriteShortStr(w, m.Exchange); err != nil {
		return err
	}
	return WriteShortStr(w, m.RoutingKey)
}

// BasicAck acknowledges one or more deliveries.
type BasicAck struct {
	DeliveryTag uint64
	Multiple    bool
}

func (m *BasicAck) Read(r *bytes.Reader) (err error) {
	if m.DeliveryTag, err = ReadLongLong(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Multiple = (bits & 0x01) != 0
	return nil
}

func (m *BasicAck) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicAck); err != nil {
		return err
	}
	if err := WriteLongLong(w, m.DeliveryTag); err != nil {
		return err
	}
	var bits byte
	if m.Multiple {
		bits |= 0x01
	}
	return WriteOctet(w, bits)
}

// BasicReject rejects a delivery, optionally requeueing it.
type BasicReject struct {
	DeliveryTag uint64
	Requeue     bool
}

func (m *BasicReject) Read(r *bytes.Reader) (err error) {
	if m.DeliveryTag, err = ReadLongLong(r); err != nil {
		return err
	}
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Requeue = (bits & 0x01) != 0
	return nil
}

func (m *BasicReject) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicReject); err != nil {
		return err
	}
	if err := WriteLongLong(w, m.DeliveryTag); err != nil {
		return err
	}
	var bits byte
	if m.Requeue {
		bits |= 0x01
	}
	return WriteOctet(w, bits)
}

// BasicRecover asks the broker to redeliver all unacknowledged messages on
// the channel.
type BasicRecover struct {
	Requeue bool
}

func (m *BasicRecover) Read(r *bytes.Reader) (err error) {
	var bits byte
	if bits, err = ReadOctet(r); err != nil {
		return err
	}
	m.Requeue = (bits & 0x01) != 0
	return nil
}

func (m *BasicRecover) Write(w io.Writer) (err error) {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	if err := WriteShort(w, MethodBasicRecover); err != nil {
		return err
	}
	var bits byte
	if m.Requeue {
		bits |= 0x01
	}
	return WriteOctet(w, bits)
}

// BasicRecoverOk confirms a recover.
type BasicRecoverOk struct{}

func (m *BasicRecoverOk) Read(r *bytes.Reader) error {
	return nil
}

func (m *BasicRecoverOk) Write(w io.Writer) error {
	if err := WriteShort(w, ClassBasic); err != nil {
		return err
	}
	return WriteShort(w, MethodBasicRecoverOk)
}

// TxSelect puts the channel into transactional mode.
type TxSelect struct{}

func (m *TxSelect) Read(r *bytes.Reader) error {
	return nil
}

func (m *TxSelect) Write(w io.Writer) error {
	if err := WriteShort(w, ClassTx); err != nil {
		return err
	}
	return WriteShort(w, MethodTxSelect)
}

// TxSelectOk confirms transactional mode.
type TxSelectOk struct{}

func (m *TxSelectOk) Read(r *bytes.Reader) error {
	return nil
}

func (m *TxSelectOk) Write(w io.Writer) error {
	if err := WriteShort(w, ClassTx); err != nil {
		return err
	}
	return WriteShort(w, MethodTxSelectOk)
}

// TxCommit commits the current transaction.
type TxCommit struct{}

func (m *TxCommit) Read(r *bytes.Reader) error {
	return nil
}

func (m *TxCommit) Write(w io.Writer) error {
	if err := WriteShort(w, ClassTx); err != nil {
		return err
	}
	return WriteShort(w, MethodTxCommit)
}

// TxCommitOk confirms a commit.
type TxCommitOk struct{}

func (m *TxCommitOk) Read(r *bytes.Reader) error {
	return nil
}

func (m *TxCommitOk) Write(w io.Writer) error {
	if err := WriteShort(w, ClassTx); err != nil {
		return err
	}
	return WriteShort(w, MethodTxCommitOk)
}

// TxRollback abandons the current transaction.
type TxRollback struct{}

func (m *TxRollback) Read(r *bytes.Reader) error {
	return nil
}

func (m *TxRollback) Write(w io.Writer) error {
	if err := WriteShort(w, ClassTx); err != nil {
		return err
	}
	return WriteShort(w, MethodTxRollback)
}

// TxRollbackOk confirms a rollback.
type TxRollbackOk struct{}

func (m *TxRollbackOk) Read(r *bytes.Reader) error {
	return nil
}

func (m *TxRollbackOk) Write(w io.Writer) error {
	if err := WriteShort(w, ClassTx); err != nil {
		return err
	}
	return WriteShort(w, MethodTxRollbackOk)
}
