// Package wire holds the protobuf encoding helpers shared by the hand-written
// message codecs. Encoding follows proto3 presence rules: zero scalars are
// omitted, set sub-messages are always emitted, and fields are appended in
// the order the caller writes them, which the codecs keep ascending so the
// output is deterministic and can double as a canonical signing form.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// AppendUint32 appends a varint field. Zero is omitted.
func AppendUint32(buf []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, uint64(v))
}

// AppendUvarint appends a 64-bit varint field. Zero is omitted.
func AppendUvarint(buf []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

// AppendSint32 appends a zigzag-encoded signed field. Zero is omitted.
func AppendSint32(buf []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(v)))
}

// AppendBool appends a bool field. False is omitted.
func AppendBool(buf []byte, num protowire.Number, v bool) []byte {
	if !v {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, 1)
}

// AppendBytes appends a length-delimited field. Empty is omitted.
func AppendBytes(buf []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, v)
}

// AppendString appends a string field. Empty is omitted.
func AppendString(buf []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendString(buf, v)
}

// AppendMessage appends an embedded message field. Unlike scalars, a set
// message is always emitted, even with an empty body: presence is the
// signal (request type selection hangs on it).
func AppendMessage(buf []byte, num protowire.Number, body []byte) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, body)
}

// Decoder walks one message body field by field. Callers loop on More,
// read the tag, and consume the value with the typed reader matching the
// schema, or Skip for unknown fields.
type Decoder struct {
	data []byte
	off  int
}

// NewDecoder creates a decoder over data. The decoder does not take
// ownership; typed readers copy what they return.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// More reports whether any bytes remain.
func (d *Decoder) More() bool {
	return d.off < len(d.data)
}

// Tag consumes and returns the next field tag.
func (d *Decoder) Tag() (protowire.Number, protowire.Type, error) {
	num, typ, n := protowire.ConsumeTag(d.data[d.off:])
	if n < 0 {
		return 0, 0, fmt.Errorf("malformed field tag at offset %d: %w", d.off, protowire.ParseError(n))
	}
	d.off += n
	return num, typ, nil
}

// Skip consumes the value of an unknown field.
func (d *Decoder) Skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, d.data[d.off:])
	if n < 0 {
		return fmt.Errorf("malformed field %d: %w", num, protowire.ParseError(n))
	}
	d.off += n
	return nil
}

func (d *Decoder) varint() (uint64, error) {
	v, n := protowire.ConsumeVarint(d.data[d.off:])
	if n < 0 {
		return 0, fmt.Errorf("malformed varint at offset %d: %w", d.off, protowire.ParseError(n))
	}
	d.off += n
	return v, nil
}

// Uint32 consumes a varint field clamped to 32 bits.
func (d *Decoder) Uint32() (uint32, error) {
	v, err := d.varint()
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, fmt.Errorf("varint %d overflows uint32", v)
	}
	return uint32(v), nil
}

// Uvarint consumes a 64-bit varint field.
func (d *Decoder) Uvarint() (uint64, error) {
	return d.varint()
}

// Sint32 consumes a zigzag-encoded signed field.
func (d *Decoder) Sint32() (int32, error) {
	v, err := d.varint()
	if err != nil {
		return 0, err
	}
	s := protowire.DecodeZigZag(v)
	if s > 0x7FFFFFFF || s < -0x80000000 {
		return 0, fmt.Errorf("zigzag value %d overflows int32", s)
	}
	return int32(s), nil
}

// Bool consumes a bool field. Any nonzero varint is true.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.varint()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Bytes consumes a length-delimited field and returns a copy; decoded
// messages may outlive the frame buffer they were read from.
func (d *Decoder) Bytes() ([]byte, error) {
	raw, err := d.RawBytes()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// String consumes a length-delimited field as a string.
func (d *Decoder) String() (string, error) {
	raw, err := d.RawBytes()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// RawBytes consumes a length-delimited field without copying. The returned
// slice aliases the decoder's input; callers that retain it copy first.
func (d *Decoder) RawBytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(d.data[d.off:])
	if n < 0 {
		return nil, fmt.Errorf("malformed length-delimited field at offset %d: %w", d.off, protowire.ParseError(n))
	}
	d.off += n
	return v, nil
}
