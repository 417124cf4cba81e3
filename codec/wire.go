// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// Frame types.
const (
	FrameMethod    byte = 1
	FrameHeader    byte = 2
	FrameBody      byte = 3
	FrameHeartbeat byte = 8
)

// FrameEnd is the octet that terminates every frame.
const FrameEnd = 0xCE

// Table is an AMQP field-table.
type Table = map[string]interface{}

// Decimal represents an AMQP decimal value with scale and unscaled
// components.
type Decimal struct {
	Scale uint8
	Value int32
}

func readN(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readLongBytes reads a long-prefixed byte block, the layout shared by long
// strings, tables and arrays.
func readLongBytes(r io.Reader) ([]byte, error) {
	n, err := ReadLong(r)
	if err != nil {
		return nil, err
	}
	return readN(r, int(n))
}

func writeLongBytes(w io.Writer, b []byte) error {
	if err := WriteLong(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadOctet reads a single byte from the reader.
func ReadOctet(r io.Reader) (byte, error) {
	b, err := readN(r, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteOctet writes a single byte to the writer.
func WriteOctet(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// ReadShort reads a 16-bit unsigned integer.
func ReadShort(r io.Reader) (uint16, error) {
	b, err := readN(r, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// WriteShort writes a 16-bit unsigned integer.
func WriteShort(w io.Writer, v uint16) error {
	_, err := w.Write(binary.BigEndian.AppendUint16(nil, v))
	return err
}

// ReadLong reads a 32-bit unsigned integer.
func ReadLong(r io.Reader) (uint32, error) {
	b, err := readN(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// WriteLong writes a 32-bit unsigned integer.
func WriteLong(w io.Writer, v uint32) error {
	_, err := w.Write(binary.BigEndian.AppendUint32(nil, v))
	return err
}

// ReadLongLong reads a 64-bit unsigned integer.
func ReadLongLong(r io.Reader) (uint64, error) {
	b, err := readN(r, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// WriteLongLong writes a 64-bit unsigned integer.
func WriteLongLong(w io.Writer, v uint64) error {
	_, err := w.Write(binary.BigEndian.AppendUint64(nil, v))
	return err
}

// ReadShortStr reads a short string.
func ReadShortStr(r io.Reader) (string, error) {
	n, err := ReadOctet(r)
	if err != nil {
		return "", err
	}
	b, err := readN(r, int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteShortStr writes a short string.
func WriteShortStr(w io.Writer, s string) error {
	if len(s) > 255 {
		return NewErr(InternalError, "short string too long", nil)
	}
	if err := WriteOctet(w, byte(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadLongStr reads a long string.
func ReadLongStr(r io.Reader) (string, error) {
	b, err := readLongBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteLongStr writes a long string.
func WriteLongStr(w io.Writer, s string) error {
	return writeLongBytes(w, []byte(s))
}

// ReadTable reads a field-table from the reader.
func ReadTable(r io.Reader) (Table, error) {
	payload, err := readLongBytes(r)
	if err != nil {
		return nil, err
	}

	table := make(Table)
	b := bytes.NewReader(payload)
	for b.Len() > 0 {
		key, err := ReadShortStr(b)
		if err != nil {
			return nil, err
		}
		if table[key], err = ReadFieldValue(b); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// WriteTable writes a field-table to the writer.
func WriteTable(w io.Writer, table Table) error {
	var body bytes.Buffer
	for key, value := range table {
		if err := WriteShortStr(&body, key); err != nil {
			return err
		}
		if err := WriteFieldValue(&body, value); err != nil {
			return err
		}
	}
	return writeLongBytes(w, body.Bytes())
}

// ReadArray reads a field-array from the reader.
func ReadArray(r io.Reader) ([]interface{}, error) {
	payload, err := readLongBytes(r)
	if err != nil {
		return nil, err
	}

	var arr []interface{}
	b := bytes.NewReader(payload)
	for b.Len() > 0 {
		value, err := ReadFieldValue(b)
		if err != nil {
			return nil, err
		}
		arr = append(arr, value)
	}
	return arr, nil
}

// WriteArray writes a field-array to the writer.
func WriteArray(w io.Writer, arr []interface{}) error {
	var body bytes.Buffer
	for _, value := range arr {
		if err := WriteFieldValue(&body, value); err != nil {
			return err
		}
	}
	return writeLongBytes(w, body.Bytes())
}

// ReadFieldValue reads a single tagged field-value from the reader.
func ReadFieldValue(r io.Reader) (interface{}, error) {
	tag, err := ReadOctet(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case 'V':
		return nil, nil
	case 't':
		b, err := ReadOctet(r)
		return b == 1, err
	case 'b':
		b, err := ReadOctet(r)
		return int8(b), err
	case 'B':
		return ReadOctet(r)
	case 'u':
		v, err := ReadShort(r)
		return int16(v), err
	case 'U':
		return ReadShort(r)
	case 'I', 'i':
		v, err := ReadLong(r)
		return int32(v), err
	case 'l':
		v, err := ReadLongLong(r)
		return int64(v), err
	case 'f':
		v, err := ReadLong(r)
		return math.Float32frombits(v), err
	case 'd':
		v, err := ReadLongLong(r)
		return math.Float64frombits(v), err
	case 'D':
		scale, err := ReadOctet(r)
		if err != nil {
			return nil, err
		}
		v, err := ReadLong(r)
		if err != nil {
			return nil, err
		}
		return Decimal{Scale: scale, Value: int32(v)}, nil
	case 's':
		return ReadShortStr(r)
	case 'S':
		return ReadLongStr(r)
	case 'T':
		return ReadLongLong(r)
	case 'F':
		return ReadTable(r)
	case 'A':
		return ReadArray(r)
	case 'x':
		return readLongBytes(r)
	default:
		return nil, NewErr(FrameError, "unsupported field type", nil)
	}
}

func writeTagged(w io.Writer, tag byte, body func(io.Writer) error) error {
	if err := WriteOctet(w, tag); err != nil {
		return err
	}
	return body(w)
}

// WriteFieldValue writes a single tagged field-value to the writer.
func WriteFieldValue(w io.Writer, value interface{}) error {
	switch v := value.(type) {
	case nil:
		return WriteOctet(w, 'V')
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		return writeTagged(w, 't', func(w io.Writer) error { return WriteOctet(w, b) })
	case int8:
		return writeTagged(w, 'b', func(w io.Writer) error { return WriteOctet(w, byte(v)) })
	case byte:
		return writeTagged(w, 'B', func(w io.Writer) error { return WriteOctet(w, v) })
	case int16:
		return writeTagged(w, 'u', func(w io.Writer) error { return WriteShort(w, uint16(v)) })
	case uint16:
		return writeTagged(w, 'U', func(w io.Writer) error { return WriteShort(w, v) })
	case int32:
		return writeTagged(w, 'I', func(w io.Writer) error { return WriteLong(w, uint32(v)) })
	case int:
		return writeTagged(w, 'I', func(w io.Writer) error { return WriteLong(w, uint32(v)) })
	case int64:
		return writeTagged(w, 'l', func(w io.Writer) error { return WriteLongLong(w, uint64(v)) })
	case float32:
		return writeTagged(w, 'f', func(w io.Writer) error { return WriteLong(w, math.Float32bits(v)) })
	case float64:
		return writeTagged(w, 'd', func(w io.Writer) error { return WriteLongLong(w, math.Float64bits(v)) })
	case Decimal:
		return writeTagged(w, 'D', func(w io.Writer) error {
			if err := WriteOctet(w, v.Scale); err != nil {
				return err
			}
			return WriteLong(w, uint32(v.Value))
		})
	case string:
		return writeTagged(w, 'S', func(w io.Writer) error { return WriteLongStr(w, v) })
	case uint64:
		return writeTagged(w, 'T', func(w io.Writer) error { return WriteLongLong(w, v) })
	case Table:
		return writeTagged(w, 'F', func(w io.Writer) error { return WriteTable(w, v) })
	case []interface{}:
		return writeTagged(w, 'A', func(w io.Writer) error { return WriteArray(w, v) })
	case []byte:
		return writeTagged(w, 'x', func(w io.Writer) error { return writeLongBytes(w, v) })
	default:
		return NewErr(FrameError, "unsupported value type", nil)
	}
}
