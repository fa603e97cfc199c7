package packet

// ZeroSize is the size of a packet without variable header or payload.
const ZeroSize = 2

// serializeZero writes a fixed header with remaining length 0.
func serializeZero(buf []byte, packetType Type) (int, error) {
	if len(buf) < ZeroSize {
		return 0, ErrBufferTooShort
	}
	c := cursor{buf: buf}
	c.putHeader(packetType, 0)
	return c.pos, nil
}

// SerializePingreq encodes a PINGREQ packet into buf.
// MQTT 3.1.1 Section 3.12
func SerializePingreq(buf []byte) (int, error) {
	return serializeZero(buf, TypePingreq)
}

// SerializePingresp encodes a PINGRESP packet into buf.
// MQTT 3.1.1 Section 3.13
func SerializePingresp(buf []byte) (int, error) {
	return serializeZero(buf, TypePingresp)
}

// ParseZero checks that buf holds exactly one packet of packetType with
// no flags and remaining length 0.
func ParseZero(buf []byte, packetType Type) error {
	if len(buf) < 1 {
		return ErrMalformedPacket
	}
	if Type(buf[0]>>4) != packetType {
		return ErrUnexpectedType
	}
	if buf[0]&0x0F != 0 {
		return ErrInvalidFlags
	}
	if len(buf) != ZeroSize || buf[1] != 0 {
		return ErrMalformedPacket
	}
	return nil
}
