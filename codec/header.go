// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
)

// Property flag bits for the basic class, in wire order from the high bit
// down.
const (
	flagContentType uint16 = 1 << (15 - iota)
	flagContentEncoding
	flagHeaders
	flagDeliveryMode
	flagPriority
	flagCorrelationID
	flagReplyTo
	flagExpiration
	flagMessageID
	flagTimestamp
	flagType
	flagUserID
	flagAppID
	flagClusterID
)

// BasicProperties carries the message metadata of a basic-class content
// header. Zero-valued fields are left off the wire.
type BasicProperties struct {
	ContentType     string
	ContentEncoding string
	Headers         Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationID   string
	ReplyTo         string
	Expiration      string
	MessageID       string
	Timestamp       uint64
	Type            string
	UserID          string
	AppID           string
	ClusterID       string
}

// basicProperty ties one optional header field to its flag bit and its wire
// codec.
type basicProperty struct {
	bit   uint16
	isSet func(p *BasicProperties) bool
	read  func(p *BasicProperties, r io.Reader) error
	write func(p *BasicProperties, w io.Writer) error
}

func shortStrProperty(bit uint16, field func(p *BasicProperties) *string) basicProperty {
	return basicProperty{
		bit:   bit,
		isSet: func(p *BasicProperties) bool { return *field(p) != "" },
		read: func(p *BasicProperties, r io.Reader) (err error) {
			*field(p), err = ReadShortStr(r)
			return err
		},
		write: func(p *BasicProperties, w io.Writer) error {
			return WriteShortStr(w, *field(p))
		},
	}
}

func octetProperty(bit uint16, field func(p *BasicProperties) *uint8) basicProperty {
	return basicProperty{
		bit:   bit,
		isSet: func(p *BasicProperties) bool { return *field(p) != 0 },
		read: func(p *BasicProperties, r io.Reader) (err error) {
			*field(p), err = ReadOctet(r)
			return err
		},
		write: func(p *BasicProperties, w io.Writer) error {
			return WriteOctet(w, *field(p))
		},
	}
}

// basicProperties lists the fields in the order they appear on the wire.
var basicProperties = []basicProperty{
	shortStrProperty(flagContentType, func(p *BasicProperties) *string { return &p.ContentType }),
	shortStrProperty(flagContentEncoding, func(p *BasicProperties) *string { return &p.ContentEncoding }),
	{
		bit:   flagHeaders,
		isSet: func(p *BasicProperties) bool { return p.Headers != nil },
		read: func(p *BasicProperties, r io.Reader) (err error) {
			p.Headers, err = ReadTable(r)
			return err
		},
		write: func(p *BasicProperties, w io.Writer) error {
			return WriteTable(w, p.Headers)
		},
	},
	octetProperty(flagDeliveryMode, func(p *BasicProperties) *uint8 { return &p.DeliveryMode }),
	octetProperty(flagPriority, func(p *BasicProperties) *uint8 { return &p.Priority }),
	shortStrProperty(flagCorrelationID, func(p *BasicProperties) *string { return &p.CorrelationID }),
	shortStrProperty(flagReplyTo, func(p *BasicProperties) *string { return &p.ReplyTo }),
	shortStrProperty(flagExpiration, func(p *BasicProperties) *string { return &p.Expiration }),
	shortStrProperty(flagMessageID, func(p *BasicProperties) *string { return &p.MessageID }),
	{
		bit:   flagTimestamp,
		isSet: func(p *BasicProperties) bool { return p.Timestamp != 0 },
		read: func(p *BasicProperties, r io.Reader) (err error) {
			p.Timestamp, err = ReadLongLong(r)
			return err
		},
		write: func(p *BasicProperties, w io.Writer) error {
			return WriteLongLong(w, p.Timestamp)
		},
	},
	shortStrProperty(flagType, func(p *BasicProperties) *string { return &p.Type }),
	shortStrProperty(flagUserID, func(p *BasicProperties) *string { return &p.UserID }),
	shortStrProperty(flagAppID, func(p *BasicProperties) *string { return &p.AppID }),
	shortStrProperty(flagClusterID, func(p *BasicProperties) *string { return &p.ClusterID }),
}

// Flags returns the property bitmask for the fields that are set.
func (p *BasicProperties) Flags() uint16 {
	var flags uint16
	for _, f := range basicProperties {
		if f.isSet(p) {
			flags |= f.bit
		}
	}
	return flags
}

func (p *BasicProperties) read(r io.Reader, flags uint16) error {
	for _, f := range basicProperties {
		if flags&f.bit == 0 {
			continue
		}
		if err := f.read(p, r); err != nil {
			return err
		}
	}
	return nil
}

func (p *BasicProperties) write(w io.Writer, flags uint16) error {
	for _, f := range basicProperties {
		if flags&f.bit == 0 {
			continue
		}
		if err := f.write(p, w); err != nil {
			return err
		}
	}
	return nil
}

// ContentHeader is a decoded content header frame.
type ContentHeader struct {
	ClassID    uint16
	Weight     uint16
	BodySize   uint64
	Flags      uint16
	Properties BasicProperties
}

// ReadContentHeader reads a content header from the reader.
func ReadContentHeader(r io.Reader) (*ContentHeader, error) {
	h := &ContentHeader{}
	var err error
	if h.ClassID, err = ReadShort(r); err != nil {
		return nil, err
	}
	if h.Weight, err = ReadShort(r); err != nil {
		return nil, err
	}
	if h.BodySize, err = ReadLongLong(r); err != nil {
		return nil, err
	}
	if h.Flags, err = ReadShort(r); err != nil {
		return nil, err
	}
	if err := h.Properties.read(r, h.Flags); err != nil {
		return nil, err
	}
	return h, nil
}

// WriteContentHeader writes a content header to the writer, deriving the
// property flags from the set fields.
func (h *ContentHeader) WriteContentHeader(w io.Writer) error {
	h.Flags = h.Properties.Flags()
	if err := WriteShort(w, h.ClassID); err != nil {
		return err
	}
	if err := WriteShort(w, h.Weight); err != nil {
		return err
	}
	if err := WriteLongLong(w, h.BodySize); err != nil {
		return err
	}
	if err := WriteShort(w, h.Flags); err != nil {
		return err
	}
	return h.Properties.write(w, h.Flags)
}
