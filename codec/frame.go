// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"io"
)

// Method is implemented by every AMQP method struct. Write emits the class
// and method identifiers followed by the method arguments.
type Method interface {
	Write(w io.Writer) error
}

type methodReader interface {
	Read(r *bytes.Reader) error
}

// Frame represents a single AMQP frame.
type Frame struct {
	Type    byte
	Channel uint16
	Payload []byte
}

// NewMethodFrame encodes a method into a method frame for the given channel.
func NewMethodFrame(channel uint16, m Method) (*Frame, error) {
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		return nil, err
	}
	return &Frame{
		Type:    FrameMethod,
		Channel: channel,
		Payload: buf.Bytes(),
	}, nil
}

// NewHeaderFrame encodes a content header into a header frame for the given channel.
func NewHeaderFrame(channel uint16, h *ContentHeader) (*Frame, error) {
	var buf bytes.Buffer
	if err := h.WriteContentHeader(&buf); err != nil {
		return nil, err
	}
	return &Frame{
		Type:    FrameHeader,
		Channel: channel,
		Payload: buf.Bytes(),
	}, nil
}

// NewBodyFrame wraps a body fragment in a body frame for the given channel.
func NewBodyFrame(channel uint16, body []byte) *Frame {
	return &Frame{
		Type:    FrameBody,
		Channel: channel,
		Payload: body,
	}
}

// ReadFrame reads a single frame from the reader.
func ReadFrame(r io.Reader) (*Frame, error) {
	frameType, err := ReadOctet(r)
	if err != nil {
		return nil, err
	}

	channel, err := ReadShort(r)
	if err != nil {
		return nil, err
	}

	size, err := ReadLong(r)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	frameEnd, err := ReadOctet(r)
	if err != nil {
		return nil, err
	}

	if frameEnd != FrameEnd {
		return nil, NewErr(FrameError, "malformed frame: incorrect frame-end marker", nil)
	}

	return &Frame{
		Type:    frameType,
		Channel: channel,
		Payload: payload,
	}, nil
}

// WriteFrame writes a single frame to the writer.
func (f *Frame) WriteFrame(w io.Writer) error {
	if err := WriteOctet(w, f.Type); err != nil {
		return err
	}
	if err := WriteShort(w, f.Channel); err != nil {
		return err
	}
	if err := WriteLong(w, uint32(len(f.Payload))); err != nil {
		return err
	}
	if _, err := w.Write(f.Payload); err != nil {
		return err
	}
	return WriteOctet(w, FrameEnd)
}

// Decode decodes the frame payload into a method struct, a content header,
// a body fragment, or nil for a heartbeat.
func (f *Frame) Decode() (interface{}, error) {
	switch f.Type {
	case FrameMethod:
		return f.decodeMethod()
	case FrameHeader:
		b := bytes.NewReader(f.Payload)
		return ReadContentHeader(b)
	case FrameBody:
		return f.Payload, nil
	case FrameHeartbeat:
		return nil, nil
	default:
		return nil, NewErr(FrameError, "unknown frame type", nil)
	}
}

func (f *Frame) decodeMethod() (interface{}, error) {
	b := bytes.NewReader(f.Payload)

	classID, err := ReadShort(b)
	if err != nil {
		return nil, err
	}
	methodID, err := ReadShort(b)
	if err != nil {
		return nil, err
	}

	var m methodReader
	switch classID {
	case ClassChannel:
		switch methodID {
		case MethodChannelFlow:
			m = &ChannelFlow{}
		case MethodChannelFlowOk:
			m = &ChannelFlowOk{}
		case MethodChannelClose:
			m = &ChannelClose{}
		case MethodChannelCloseOk:
			m = &ChannelCloseOk{}
		default:
			return nil, NewErr(FrameError, "unknown method ID for Channel class", nil)
		}
	case ClassExchange:
		switch methodID {
		case MethodExchangeDeclare:
			m = &ExchangeDeclare{}
		case MethodExchangeDeclareOk:
			m = &ExchangeDeclareOk{}
		case MethodExchangeBound:
			m = &ExchangeBound{}
		case MethodExchangeBoundOk:
			m = &ExchangeBoundOk{}
		default:
			return nil, NewErr(FrameError, "unknown method ID for Exchange class", nil)
		}
	case ClassQueue:
		switch methodID {
		case MethodQueueDeclare:
			m = &QueueDeclare{}
		case MethodQueueDeclareOk:
			m = &QueueDeclareOk{}
		case MethodQueueBind:
			m = &QueueBind{}
		case MethodQueueBindOk:
			m = &QueueBindOk{}
		case MethodQueueDelete:
			m = &QueueDelete{}
		case MethodQueueDeleteOk:
			m = &QueueDeleteOk{}
		default:
			return nil, NewErr(FrameError, "unknown method ID for Queue class", nil)
		}
	case ClassBasic:
		switch methodID {
		case MethodBasicQos:
			m = &BasicQos{}
		case MethodBasicQosOk:
			m = &BasicQosOk{}
		case MethodBasicConsume:
			m = &BasicConsume{}
		case MethodBasicConsumeOk:
			m = &BasicConsumeOk{}
		case MethodBasicCancel:
			m = &BasicCancel{}
		case MethodBasicCancelOk:
			m = &BasicCancelOk{}
		case MethodBasicPublish:
			m = &BasicPublish{}
		case MethodBasicReturn:
			m = &BasicReturn{}
		case MethodBasicDeliver:
			m = &BasicDeliver{}
		case MethodBasicAck:
			m = &BasicAck{}
		case MethodBasicReject:
			m = &BasicReject{}
		case MethodBasicRecover:
			m = &BasicRecover{}
		case MethodBasicRecoverOk:
			m = &BasicRecoverOk{}
		default:
			return nil, NewErr(FrameError, "unknown method ID for Basic class", nil)
		}
	case ClassTx:
		switch methodID {
		case MethodTxSelect:
			m = &TxSelect{}
		case MethodTxSelectOk:
			m = &TxSelectOk{}
		case MethodTxCommit:
			m = &TxCommit{}
		case MethodTxCommitOk:
			m = &TxCommitOk{}
		case MethodTxRollback:
			m = &TxRollback{}
		case MethodTxRollbackOk:
			m = &TxRollbackOk{}
		default:
			return nil, NewErr(FrameError, "unknown method ID for Tx class", nil)
		}
	default:
		return nil, NewErr(FrameError, "unknown class ID", nil)
	}

	if err := m.Read(b); err != nil {
		return nil, err
	}
	return m, nil
}
