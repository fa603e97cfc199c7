package packet

import "errors"

// Sentinel errors for packet encoding and decoding.
var (
	// ErrBufferTooShort indicates the destination buffer cannot hold the
	// packet. Nothing has been written when it is returned.
	ErrBufferTooShort = errors.New("buffer too short")

	// ErrMalformedRemainingLength indicates a remaining length that needs a
	// fifth continuation byte, or one cut short by the end of the buffer.
	ErrMalformedRemainingLength = errors.New("malformed remaining length")

	// ErrRemainingLengthTooLarge indicates a value that cannot be encoded in
	// four remaining length bytes.
	ErrRemainingLengthTooLarge = errors.New("remaining length too large")

	// ErrUnexpectedType indicates the first header byte carries a different
	// packet type than the one asked for. Callers probing heterogeneous
	// input can treat it as "no match".
	ErrUnexpectedType = errors.New("unexpected packet type")

	// ErrMalformedPacket indicates the packet structure is invalid.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrInvalidFlags indicates non-zero fixed header flags.
	ErrInvalidFlags = errors.New("invalid packet flags")

	// ErrInvalidQoS indicates an invalid QoS level.
	ErrInvalidQoS = errors.New("invalid QoS level")

	// ErrInvalidProtocolName indicates an unrecognized protocol name.
	ErrInvalidProtocolName = errors.New("invalid protocol name")

	// ErrInvalidProtocolVersion indicates an unsupported protocol level.
	ErrInvalidProtocolVersion = errors.New("invalid protocol version")

	// ErrStringTooLong indicates a field longer than a 16-bit length prefix allows.
	ErrStringTooLong = errors.New("string exceeds 65535 bytes")

	// ErrMissingClientID indicates a CONNECT without a client identifier.
	ErrMissingClientID = errors.New("missing client identifier")
)
