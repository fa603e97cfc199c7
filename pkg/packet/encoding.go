package packet

import (
	"encoding/binary"
)

// RemainingLengthSize returns the number of bytes needed to encode length
// as a remaining length. Serializers reserve space with this table, so it
// must agree with what EncodeRemainingLength actually emits.
// MQTT 3.1.1 Section 2.2.3
func RemainingLengthSize(length int) int {
	switch {
	case length < 128:
		return 1
	case length < 16384:
		return 2
	case length < 2097152:
		return 3
	default:
		return 4
	}
}

// EncodeRemainingLength encodes length into buf as base-128 digits, least
// significant first, with the continuation bit set on all but the last.
// Returns the number of bytes written, or 0 if the value is out of range or
// buf is too small.
func EncodeRemainingLength(buf []byte, length int) int {
	if length < 0 || length > MaxRemainingLength {
		return 0
	}
	if len(buf) < RemainingLengthSize(length) {
		return 0
	}

	i := 0
	for {
		digit := byte(length % 128)
		length /= 128
		if length > 0 {
			digit |= 0x80
		}
		buf[i] = digit
		i++
		if length == 0 {
			return i
		}
	}
}

// DecodeRemainingLength decodes a remaining length from the start of buf.
// Returns the value and the number of bytes consumed. A fifth continuation
// byte, or a buffer ending before the last digit, is ErrMalformedRemainingLength.
func DecodeRemainingLength(buf []byte) (value int, n int, err error) {
	multiplier := 1
	for i := 0; i < 4; i++ {
		if i >= len(buf) {
			return 0, 0, ErrMalformedRemainingLength
		}
		digit := buf[i]
		value += int(digit&0x7F) * multiplier
		if digit&0x80 == 0 {
			return value, i + 1, nil
		}
		multiplier *= 128
	}
	return 0, 0, ErrMalformedRemainingLength
}

// FixedHeader is the decoded first part of every control packet.
type FixedHeader struct {
	Type            Type
	Flags           byte
	RemainingLength int
}

// FixedHeaderSize returns the size of the fixed header for a given remaining length.
func FixedHeaderSize(remainingLength int) int {
	return 1 + RemainingLengthSize(remainingLength)
}

// HeaderByte composes the first byte of a fixed header.
func HeaderByte(packetType Type, flags byte) byte {
	return byte(packetType)<<4 | (flags & 0x0F)
}

// EncodeFixedHeader encodes the fixed header into buf.
// Returns the number of bytes written, or 0 on error.
func EncodeFixedHeader(buf []byte, packetType Type, flags byte, remainingLength int) int {
	if len(buf) < 1 {
		return 0
	}
	buf[0] = HeaderByte(packetType, flags)
	n := EncodeRemainingLength(buf[1:], remainingLength)
	if n == 0 {
		return 0
	}
	return 1 + n
}

// DecodeFixedHeader decodes the fixed header from buf.
// Returns the header and the number of bytes it occupies.
func DecodeFixedHeader(buf []byte) (FixedHeader, int, error) {
	if len(buf) < 1 {
		return FixedHeader{}, 0, ErrMalformedPacket
	}

	remainingLength, n, err := DecodeRemainingLength(buf[1:])
	if err != nil {
		return FixedHeader{}, 0, err
	}

	return FixedHeader{
		Type:            Type(buf[0] >> 4),
		Flags:           buf[0] & 0x0F,
		RemainingLength: remainingLength,
	}, 1 + n, nil
}

// cursor walks a buffer whose size has already been checked by the caller.
// Its accessors do no bounds checking of their own.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) putByte(b byte) {
	c.buf[c.pos] = b
	c.pos++
}

func (c *cursor) getByte() byte {
	b := c.buf[c.pos]
	c.pos++
	return b
}

func (c *cursor) putUint16(v uint16) {
	binary.BigEndian.PutUint16(c.buf[c.pos:], v)
	c.pos += 2
}

func (c *cursor) getUint16() uint16 {
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v
}

// putBytes writes a 16-bit length prefix followed by b.
func (c *cursor) putBytes(b []byte) {
	c.putUint16(uint16(len(b)))
	c.pos += copy(c.buf[c.pos:], b)
}

func (c *cursor) putText(t Text) {
	c.putBytes(t.b)
}

// putHeader writes the type byte and the remaining length.
func (c *cursor) putHeader(packetType Type, remainingLength int) {
	c.putByte(HeaderByte(packetType, 0))
	c.pos += EncodeRemainingLength(c.buf[c.pos:], remainingLength)
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

// getBytes reads a length-prefixed field, returning a slice that aliases
// the buffer. Unlike the other accessors it checks bounds, since it is only
// used when parsing untrusted input.
func (c *cursor) getBytes() ([]byte, bool) {
	if c.remaining() < 2 {
		return nil, false
	}
	n := int(c.getUint16())
	if c.remaining() < n {
		return nil, false
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, true
}
