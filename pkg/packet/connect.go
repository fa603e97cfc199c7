package packet

import "bytes"

// Options are the client's session parameters carried by a CONNECT.
type Options struct {
	// ClientID identifies the client to the server. Required.
	ClientID Text

	// KeepAlive is the longest interval, in seconds, between two control
	// packets sent by the client.
	KeepAlive uint16

	// CleanSession asks the server to discard any previous session state.
	CleanSession bool

	// Username and Password are optional credentials. A Password without a
	// Username cannot be expressed in 3.1.1 and is not sent.
	Username Text
	Password Text
}

// Validate checks the options against the limits of the wire format.
func (o *Options) Validate() error {
	if !o.ClientID.Present() {
		return ErrMissingClientID
	}
	for _, t := range []Text{o.ClientID, o.Username, o.Password} {
		if t.Len() > maxStringLength {
			return ErrStringTooLong
		}
	}
	return nil
}

// Will is the message a server publishes for the client if the network
// connection closes without a DISCONNECT.
type Will struct {
	Topic   Text
	Payload []byte
	QoS     QoS
	Retain  bool
}

// Validate checks the will against the limits of the wire format.
func (w *Will) Validate() error {
	if !w.QoS.Valid() {
		return ErrInvalidQoS
	}
	if w.Topic.Len() > maxStringLength || len(w.Payload) > maxStringLength {
		return ErrStringTooLong
	}
	return nil
}

// ConnectFlags is the connect flags byte of the CONNECT variable header.
// MQTT 3.1.1 Section 3.1.2.3
type ConnectFlags byte

// Bit positions in the connect flags byte.
const (
	connectFlagReserved     = 1 << 0
	connectFlagCleanSession = 1 << 1
	connectFlagWill         = 1 << 2
	connectFlagWillQoSShift = 3
	connectFlagWillQoSMask  = 0x03 << connectFlagWillQoSShift
	connectFlagWillRetain   = 1 << 5
	connectFlagPassword     = 1 << 6
	connectFlagUsername     = 1 << 7
)

// NewConnectFlags composes the flags byte for opts and will. The password
// bit is only set together with the username bit.
func NewConnectFlags(opts *Options, will *Will) ConnectFlags {
	var f ConnectFlags
	if opts.CleanSession {
		f |= connectFlagCleanSession
	}
	if will != nil {
		f |= connectFlagWill
		f |= ConnectFlags(will.QoS&0x03) << connectFlagWillQoSShift
		if will.Retain {
			f |= connectFlagWillRetain
		}
	}
	if opts.Username.Present() {
		f |= connectFlagUsername
		if opts.Password.Present() {
			f |= connectFlagPassword
		}
	}
	return f
}

func (f ConnectFlags) Reserved() bool     { return f&connectFlagReserved != 0 }
func (f ConnectFlags) CleanSession() bool { return f&connectFlagCleanSession != 0 }
func (f ConnectFlags) Will() bool         { return f&connectFlagWill != 0 }
func (f ConnectFlags) WillQoS() QoS       { return QoS((f & connectFlagWillQoSMask) >> connectFlagWillQoSShift) }
func (f ConnectFlags) WillRetain() bool   { return f&connectFlagWillRetain != 0 }
func (f ConnectFlags) Password() bool     { return f&connectFlagPassword != 0 }
func (f ConnectFlags) Username() bool     { return f&connectFlagUsername != 0 }

var protocolName = []byte(ProtocolName)

// connectVariableHeaderSize covers the protocol name (2+4), level (1),
// flags (1) and keep alive (2).
const connectVariableHeaderSize = 10

// connectRemainingLength returns the remaining length of a CONNECT.
func connectRemainingLength(opts *Options, will *Will) int {
	n := connectVariableHeaderSize + opts.ClientID.encodedLen()
	if will != nil {
		n += will.Topic.encodedLen() + 2 + len(will.Payload)
	}
	if opts.Username.Present() {
		n += opts.Username.encodedLen()
		if opts.Password.Present() {
			n += opts.Password.encodedLen()
		}
	}
	return n
}

// ConnectSize returns the total size of the encoded CONNECT packet.
func ConnectSize(opts *Options, will *Will) int {
	remainingLength := connectRemainingLength(opts, will)
	return FixedHeaderSize(remainingLength) + remainingLength
}

// connectFieldsFit reports whether every length-prefixed field fits its
// 16-bit length.
func connectFieldsFit(opts *Options, will *Will) bool {
	if opts.ClientID.Len() > maxStringLength ||
		opts.Username.Len() > maxStringLength ||
		opts.Password.Len() > maxStringLength {
		return false
	}
	if will != nil && (will.Topic.Len() > maxStringLength || len(will.Payload) > maxStringLength) {
		return false
	}
	return true
}

// SerializeConnect encodes a CONNECT packet into buf. will may be nil.
// Returns the number of bytes written. If buf is too small it returns
// ErrBufferTooShort, and if a field is longer than 65535 bytes it returns
// ErrStringTooLong. In both cases buf is left untouched. Other input is
// encoded as given; Options.Validate and Will.Validate check the rest.
func SerializeConnect(buf []byte, opts *Options, will *Will) (int, error) {
	if !connectFieldsFit(opts, will) {
		return 0, ErrStringTooLong
	}
	remainingLength := connectRemainingLength(opts, will)
	if remainingLength > MaxRemainingLength {
		return 0, ErrRemainingLengthTooLarge
	}
	if FixedHeaderSize(remainingLength)+remainingLength > len(buf) {
		return 0, ErrBufferTooShort
	}

	c := cursor{buf: buf}
	c.putHeader(TypeConnect, remainingLength)

	// Variable header
	c.putBytes(protocolName)
	c.putByte(ProtocolLevel)
	flags := NewConnectFlags(opts, will)
	c.putByte(byte(flags))
	c.putUint16(opts.KeepAlive)

	// Payload
	c.putText(opts.ClientID)
	if will != nil {
		c.putText(will.Topic)
		c.putBytes(will.Payload)
	}
	if flags.Username() {
		c.putText(opts.Username)
		if flags.Password() {
			c.putText(opts.Password)
		}
	}

	return c.pos, nil
}

// Connect is a decoded CONNECT packet. Its byte fields alias the buffer it
// was parsed from.
type Connect struct {
	Flags       ConnectFlags
	KeepAlive   uint16
	ClientID    []byte
	WillTopic   []byte
	WillPayload []byte
	Username    []byte
	Password    []byte
}

// Options returns the session parameters carried by the packet.
func (p *Connect) Options() Options {
	o := Options{
		ClientID:     Span(nonNil(p.ClientID)),
		KeepAlive:    p.KeepAlive,
		CleanSession: p.Flags.CleanSession(),
	}
	if p.Flags.Username() {
		o.Username = Span(nonNil(p.Username))
	}
	if p.Flags.Password() {
		o.Password = Span(nonNil(p.Password))
	}
	return o
}

// Will returns the will carried by the packet, or nil.
func (p *Connect) Will() *Will {
	if !p.Flags.Will() {
		return nil
	}
	return &Will{
		Topic:   Span(nonNil(p.WillTopic)),
		Payload: p.WillPayload,
		QoS:     p.Flags.WillQoS(),
		Retain:  p.Flags.WillRetain(),
	}
}

// ParseConnect decodes a complete MQTT 3.1.1 CONNECT packet, fixed header
// included. buf must hold exactly one packet.
func ParseConnect(buf []byte) (Connect, error) {
	var p Connect

	header, n, err := DecodeFixedHeader(buf)
	if err != nil {
		return p, err
	}
	if header.Type != TypeConnect {
		return p, ErrUnexpectedType
	}
	if header.Flags != 0 {
		return p, ErrInvalidFlags
	}
	if n+header.RemainingLength != len(buf) {
		return p, ErrMalformedPacket
	}

	c := cursor{buf: buf, pos: n}

	name, ok := c.getBytes()
	if !ok {
		return p, ErrMalformedPacket
	}
	if !bytes.Equal(name, protocolName) {
		return p, ErrInvalidProtocolName
	}

	// Level, flags and keep alive
	if c.remaining() < 4 {
		return p, ErrMalformedPacket
	}
	if c.getByte() != ProtocolLevel {
		return p, ErrInvalidProtocolVersion
	}

	p.Flags = ConnectFlags(c.getByte())
	if p.Flags.Reserved() {
		return p, ErrMalformedPacket
	}
	if p.Flags.Will() {
		if !p.Flags.WillQoS().Valid() {
			return p, ErrInvalidQoS
		}
	} else if p.Flags.WillQoS() != QoS0 || p.Flags.WillRetain() {
		return p, ErrMalformedPacket
	}
	if p.Flags.Password() && !p.Flags.Username() {
		return p, ErrMalformedPacket
	}

	p.KeepAlive = c.getUint16()

	if p.ClientID, ok = c.getBytes(); !ok {
		return p, ErrMalformedPacket
	}
	if p.Flags.Will() {
		if p.WillTopic, ok = c.getBytes(); !ok {
			return p, ErrMalformedPacket
		}
		if p.WillPayload, ok = c.getBytes(); !ok {
			return p, ErrMalformedPacket
		}
	}
	if p.Flags.Username() {
		if p.Username, ok = c.getBytes(); !ok {
			return p, ErrMalformedPacket
		}
	}
	if p.Flags.Password() {
		if p.Password, ok = c.getBytes(); !ok {
			return p, ErrMalformedPacket
		}
	}

	if c.remaining() != 0 {
		return p, ErrMalformedPacket
	}
	return p, nil
}

// nonNil keeps zero-length fields present when they are turned back into Text.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
