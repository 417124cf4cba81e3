// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/absmach/amqclient/codec"
)

func roundTrip(t *testing.T, channel uint16, m codec.Method) interface{} {
	t.Helper()

	frame, err := codec.NewMethodFrame(channel, m)
	if err != nil {
		t.Fatalf("NewMethodFrame failed: %v", err)
	}

	buf := new(bytes.Buffer)
	if err := frame.WriteFrame(buf); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	read, err := codec.ReadFrame(buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if read.Channel != channel {
		t.Fatalf("Expected channel %d, got %d", channel, read.Channel)
	}

	decoded, err := read.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return decoded
}

func TestMethodRoundTrips(t *testing.T) {
	tests := []struct {
		name   string
		method codec.Method
	}{
		{"channel.flow", &codec.ChannelFlow{Active: true}},
		{"channel.close", &codec.ChannelClose{ReplyCode: codec.ReplySuccess, ReplyText: "bye"}},
		{"exchange.declare", &codec.ExchangeDeclare{Exchange: "amq.direct", Type: "direct", Durable: true}},
		{"exchange.bound", &codec.ExchangeBound{Exchange: "amq.topic", RoutingKey: "news", Queue: "q1"}},
		{"exchange.bound-ok", &codec.ExchangeBoundOk{ReplyCode: codec.NotFound, ReplyText: "no queue"}},
		{"queue.declare", &codec.QueueDeclare{Queue: "q1", Durable: true, Exclusive: true, AutoDelete: true}},
		{"queue.bind", &codec.QueueBind{Queue: "q1", Exchange: "amq.direct", RoutingKey: "rk"}},
		{"queue.delete", &codec.QueueDelete{Queue: "q1", NoWait: false}},
		{"basic.consume", &codec.BasicConsume{Queue: "q1", ConsumerTag: "7", NoAck: true, Exclusive: true}},
		{"basic.cancel", &codec.BasicCancel{ConsumerTag: "7", NoWait: true}},
		{"basic.publish", &codec.BasicPublish{Exchange: "amq.direct", RoutingKey: "rk", Mandatory: true}},
		{"basic.return", &codec.BasicReturn{ReplyCode: codec.NoRoute, ReplyText: "unroutable", Exchange: "e", RoutingKey: "rk"}},
		{"basic.deliver", &codec.BasicDeliver{ConsumerTag: "7", DeliveryTag: 42, Redelivered: true, Exchange: "e", RoutingKey: "rk"}},
		{"basic.ack", &codec.BasicAck{DeliveryTag: 42, Multiple: true}},
		{"basic.reject", &codec.BasicReject{DeliveryTag: 42, Requeue: true}},
		{"basic.recover", &codec.BasicRecover{Requeue: false}},
		{"tx.select", &codec.TxSelect{}},
		{"tx.commit", &codec.TxCommit{}},
		{"tx.rollback", &codec.TxRollback{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := roundTrip(t, 3, tt.method)
			fixup(tt.method)
			if !reflect.DeepEqual(tt.method, decoded) {
				t.Fatalf("Expected %+v, got %+v", tt.method, decoded)
			}
		})
	}
}

// fixup normalizes fields the codec materializes on read, such as nil
// argument tables decoding as empty ones.
func fixup(m codec.Method) {
	switch v := m.(type) {
	case *codec.ExchangeDeclare:
		if v.Arguments == nil {
			v.Arguments = codec.Table{}
		}
	case *codec.QueueDeclare:
		if v.Arguments == nil {
			v.Arguments = codec.Table{}
		}
	case *codec.QueueBind:
		if v.Arguments == nil {
			v.Arguments = codec.Table{}
		}
	case *codec.BasicConsume:
		if v.Arguments == nil {
			v.Arguments = codec.Table{}
		}
	}
}

func TestContentHeaderRoundTrip(t *testing.T) {
	header := &codec.ContentHeader{
		ClassID:  codec.ClassBasic,
		BodySize: 1024,
		Properties: codec.BasicProperties{
			ContentType:   "application/json",
			DeliveryMode:  2,
			Priority:      4,
			CorrelationID: "corr-1",
			MessageID:     "msg-1",
			Timestamp:     1234567890,
			Headers:       codec.Table{"x-tenant": "acme"},
		},
	}

	buf := new(bytes.Buffer)
	if err := header.WriteContentHeader(buf); err != nil {
		t.Fatalf("WriteContentHeader failed: %v", err)
	}

	decoded, err := codec.ReadContentHeader(buf)
	if err != nil {
		t.Fatalf("ReadContentHeader failed: %v", err)
	}

	if decoded.BodySize != header.BodySize {
		t.Fatalf("Expected body size %d, got %d", header.BodySize, decoded.BodySize)
	}
	if !reflect.DeepEqual(header.Properties, decoded.Properties) {
		t.Fatalf("Expected properties %+v, got %+v", header.Properties, decoded.Properties)
	}
	if decoded.Flags != header.Properties.Flags() {
		t.Fatalf("Expected flags %016b, got %016b", header.Properties.Flags(), decoded.Flags)
	}
}

func TestContentHeaderUnsetProperties(t *testing.T) {
	header := &codec.ContentHeader{ClassID: codec.ClassBasic, BodySize: 0}

	buf := new(bytes.Buffer)
	if err := header.WriteContentHeader(buf); err != nil {
		t.Fatalf("WriteContentHeader failed: %v", err)
	}

	decoded, err := codec.ReadContentHeader(buf)
	if err != nil {
		t.Fatalf("ReadContentHeader failed: %v", err)
	}
	if decoded.Flags != 0 {
		t.Fatalf("Expected no property flags, got %016b", decoded.Flags)
	}
}

func TestTableRoundTrip(t *testing.T) {
	table := codec.Table{
		"bool":    true,
		"int32":   int32(-7),
		"int64":   int64(1 << 40),
		"string":  "value",
		"float64": 2.5,
		"nested":  codec.Table{"inner": "x"},
	}

	buf := new(bytes.Buffer)
	if err := codec.WriteTable(buf, table); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}

	decoded, err := codec.ReadTable(buf)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if !reflect.DeepEqual(table, decoded) {
		t.Fatalf("Expected %+v, got %+v", table, decoded)
	}
}

func TestFrameEndMarkerValidation(t *testing.T) {
	frame, err := codec.NewMethodFrame(1, &codec.TxSelect{})
	if err != nil {
		t.Fatalf("NewMethodFrame failed: %v", err)
	}
	buf := new(bytes.Buffer)
	if err := frame.WriteFrame(buf); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	raw := buf.Bytes()
	raw[len(raw)-1] = 0x00

	if _, err := codec.ReadFrame(bytes.NewReader(raw)); err == nil {
		t.Fatal("Expected an error for a corrupt frame-end marker")
	}
}
