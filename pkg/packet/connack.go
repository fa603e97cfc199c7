package packet

// connackRemainingLength is fixed: acknowledge flags and return code.
const connackRemainingLength = 2

// ConnackSize is the total size of an encoded CONNACK.
const ConnackSize = 2 + connackRemainingLength

// connackFlagSessionPresent is bit 0 of the acknowledge flags. Bits 1-7
// are reserved and ignored on read.
const connackFlagSessionPresent = 0x01

// Connack is a decoded CONNACK packet.
// MQTT 3.1.1 Section 3.2
type Connack struct {
	SessionPresent bool
	ReturnCode     ConnackReturnCode
}

// ParseConnack decodes a complete CONNACK packet, fixed header included.
// It returns ErrUnexpectedType when buf holds some other packet,
// ErrMalformedRemainingLength when the length field cannot be decoded, and
// ErrMalformedPacket when the declared or supplied length is not exactly
// that of a CONNACK. Trailing bytes after the packet are rejected.
func ParseConnack(buf []byte) (Connack, error) {
	if len(buf) < 1 {
		return Connack{}, ErrMalformedPacket
	}
	if Type(buf[0]>>4) != TypeConnack {
		return Connack{}, ErrUnexpectedType
	}

	remainingLength, n, err := DecodeRemainingLength(buf[1:])
	if err != nil {
		return Connack{}, err
	}
	if remainingLength != connackRemainingLength || 1+n+remainingLength != len(buf) {
		return Connack{}, ErrMalformedPacket
	}

	c := cursor{buf: buf, pos: 1 + n}
	flags := c.getByte()
	return Connack{
		SessionPresent: flags&connackFlagSessionPresent != 0,
		ReturnCode:     ConnackReturnCode(c.getByte()),
	}, nil
}

// DeserializeConnack is ParseConnack reduced to a success flag. On failure
// the returned Connack is the zero value.
func DeserializeConnack(buf []byte) (Connack, bool) {
	c, err := ParseConnack(buf)
	if err != nil {
		return Connack{}, false
	}
	return c, true
}

// SerializeConnack encodes a CONNACK packet into buf.
// Returns the number of bytes written, or ErrBufferTooShort.
func SerializeConnack(buf []byte, sessionPresent bool, code ConnackReturnCode) (int, error) {
	if len(buf) < ConnackSize {
		return 0, ErrBufferTooShort
	}

	c := cursor{buf: buf}
	c.putHeader(TypeConnack, connackRemainingLength)
	if sessionPresent {
		c.putByte(connackFlagSessionPresent)
	} else {
		c.putByte(0)
	}
	c.putByte(byte(code))
	return c.pos, nil
}
