package packet

// Packet is implemented by the packets a client sends.
type Packet interface {
	// Type returns the packet type.
	Type() Type

	// EncodedSize returns the total size of the encoded packet.
	EncodedSize() int

	// Encode encodes the packet into buf.
	// Returns the number of bytes written, or ErrBufferTooShort.
	Encode(buf []byte) (int, error)
}

// ConnectPacket pairs connect options with an optional will.
type ConnectPacket struct {
	Options Options
	Will    *Will
}

func (p *ConnectPacket) Type() Type       { return TypeConnect }
func (p *ConnectPacket) EncodedSize() int { return ConnectSize(&p.Options, p.Will) }

func (p *ConnectPacket) Encode(buf []byte) (int, error) {
	return SerializeConnect(buf, &p.Options, p.Will)
}

// Pingreq represents an MQTT PINGREQ packet.
type Pingreq struct{}

func (Pingreq) Type() Type                     { return TypePingreq }
func (Pingreq) EncodedSize() int               { return ZeroSize }
func (Pingreq) Encode(buf []byte) (int, error) { return SerializePingreq(buf) }

// Disconnect represents an MQTT DISCONNECT packet.
type Disconnect struct{}

func (Disconnect) Type() Type                     { return TypeDisconnect }
func (Disconnect) EncodedSize() int               { return ZeroSize }
func (Disconnect) Encode(buf []byte) (int, error) { return SerializeDisconnect(buf) }
