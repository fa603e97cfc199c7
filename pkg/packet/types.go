// Package packet implements the MQTT 3.1.1 wire format for the session
// establishment packets: CONNECT, CONNACK, PINGREQ, PINGRESP and DISCONNECT.
//
// All encoders write into caller-owned buffers and never allocate. Capacity
// is checked once before the first byte is written, so a failed encode
// leaves nothing half-written in the stream.
package packet

// Type represents an MQTT control packet type.
type Type byte

// MQTT Control Packet types as defined in MQTT 3.1.1 Section 2.2.1
const (
	TypeReserved0   Type = 0  // Reserved
	TypeConnect     Type = 1  // Client request to connect to Server
	TypeConnack     Type = 2  // Connect acknowledgment
	TypePublish     Type = 3  // Publish message
	TypePuback      Type = 4  // Publish acknowledgment
	TypePubrec      Type = 5  // Publish received
	TypePubrel      Type = 6  // Publish release
	TypePubcomp     Type = 7  // Publish complete
	TypeSubscribe   Type = 8  // Subscribe request
	TypeSuback      Type = 9  // Subscribe acknowledgment
	TypeUnsubscribe Type = 10 // Unsubscribe request
	TypeUnsuback    Type = 11 // Unsubscribe acknowledgment
	TypePingreq     Type = 12 // PING request
	TypePingresp    Type = 13 // PING response
	TypeDisconnect  Type = 14 // Disconnect notification
)

// String returns the string representation of the packet type.
func (t Type) String() string {
	switch t {
	case TypeConnect:
		return "CONNECT"
	case TypeConnack:
		return "CONNACK"
	case TypePublish:
		return "PUBLISH"
	case TypePuback:
		return "PUBACK"
	case TypePubrec:
		return "PUBREC"
	case TypePubrel:
		return "PUBREL"
	case TypePubcomp:
		return "PUBCOMP"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSuback:
		return "SUBACK"
	case TypeUnsubscribe:
		return "UNSUBSCRIBE"
	case TypeUnsuback:
		return "UNSUBACK"
	case TypePingreq:
		return "PINGREQ"
	case TypePingresp:
		return "PINGRESP"
	case TypeDisconnect:
		return "DISCONNECT"
	default:
		return "RESERVED"
	}
}

// ProtocolName is the protocol name carried in every 3.1.1 CONNECT.
const ProtocolName = "MQTT"

// ProtocolLevel is the protocol level byte for MQTT 3.1.1.
const ProtocolLevel byte = 4

// QoS represents MQTT Quality of Service level.
type QoS byte

const (
	QoS0 QoS = 0 // At most once delivery
	QoS1 QoS = 1 // At least once delivery
	QoS2 QoS = 2 // Exactly once delivery
)

// Valid returns true if the QoS level is valid.
func (q QoS) Valid() bool {
	return q <= QoS2
}

// String returns the string representation of the QoS level.
func (q QoS) String() string {
	switch q {
	case QoS0:
		return "QoS0"
	case QoS1:
		return "QoS1"
	case QoS2:
		return "QoS2"
	default:
		return "invalid"
	}
}

// ConnackReturnCode is the connect return code carried in a CONNACK.
// MQTT 3.1.1 Section 3.2.2.3
type ConnackReturnCode byte

const (
	ConnackAccepted                    ConnackReturnCode = 0x00 // Connection Accepted
	ConnackUnacceptableProtocolVersion ConnackReturnCode = 0x01 // Connection Refused, unacceptable protocol version
	ConnackIdentifierRejected          ConnackReturnCode = 0x02 // Connection Refused, identifier rejected
	ConnackServerUnavailable           ConnackReturnCode = 0x03 // Connection Refused, Server unavailable
	ConnackBadUsernameOrPassword       ConnackReturnCode = 0x04 // Connection Refused, bad user name or password
	ConnackNotAuthorized               ConnackReturnCode = 0x05 // Connection Refused, not authorized
)

// IsAccepted returns true if the connection was accepted.
func (c ConnackReturnCode) IsAccepted() bool {
	return c == ConnackAccepted
}

// String returns the string representation of the CONNACK return code.
func (c ConnackReturnCode) String() string {
	switch c {
	case ConnackAccepted:
		return "Connection Accepted"
	case ConnackUnacceptableProtocolVersion:
		return "Connection Refused, unacceptable protocol version"
	case ConnackIdentifierRejected:
		return "Connection Refused, identifier rejected"
	case ConnackServerUnavailable:
		return "Connection Refused, Server unavailable"
	case ConnackBadUsernameOrPassword:
		return "Connection Refused, bad user name or password"
	case ConnackNotAuthorized:
		return "Connection Refused, not authorized"
	default:
		return "Unknown return code"
	}
}

// MaxRemainingLength is the largest value a four byte remaining length can carry.
const MaxRemainingLength = 268435455

// MaxHeaderSize is the largest fixed header: one type byte and four length bytes.
const MaxHeaderSize = 5

// maxStringLength bounds every length-prefixed field.
const maxStringLength = 65535
