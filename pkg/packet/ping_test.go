package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeZeroPackets(t *testing.T) {
	tests := []struct {
		name      string
		serialize func([]byte) (int, error)
		want      []byte
	}{
		{"disconnect", SerializeDisconnect, []byte{0xE0, 0x00}},
		{"pingreq", SerializePingreq, []byte{0xC0, 0x00}},
		{"pingresp", SerializePingresp, []byte{0xD0, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := []byte{0xAA, 0xAA, 0xAA}
			n, err := tt.serialize(buf)
			require.NoError(t, err)
			require.Equal(t, 2, n)
			require.Equal(t, tt.want, buf[:n])
			require.Equal(t, byte(0xAA), buf[2])

			short := []byte{0xAA}
			n, err = tt.serialize(short)
			require.ErrorIs(t, err, ErrBufferTooShort)
			require.Zero(t, n)
			require.Equal(t, []byte{0xAA}, short)
		})
	}
}

func TestParseZero(t *testing.T) {
	require.NoError(t, ParseZero([]byte{0xD0, 0x00}, TypePingresp))
	require.ErrorIs(t, ParseZero([]byte{0x20, 0x02}, TypePingresp), ErrUnexpectedType)
	require.ErrorIs(t, ParseZero([]byte{0xD1, 0x00}, TypePingresp), ErrInvalidFlags)
	require.ErrorIs(t, ParseZero([]byte{0xD0, 0x01, 0x00}, TypePingresp), ErrMalformedPacket)
	require.ErrorIs(t, ParseZero([]byte{0xD0}, TypePingresp), ErrMalformedPacket)
	require.ErrorIs(t, ParseZero(nil, TypePingresp), ErrMalformedPacket)
}

func TestPacketInterface(t *testing.T) {
	pkts := []Packet{
		&ConnectPacket{Options: Options{ClientID: CString("x")}},
		Pingreq{},
		Disconnect{},
	}

	for _, pkt := range pkts {
		buf := make([]byte, pkt.EncodedSize())
		n, err := pkt.Encode(buf)
		require.NoError(t, err, pkt.Type().String())
		require.Equal(t, len(buf), n, pkt.Type().String())
		require.Equal(t, pkt.Type(), Type(buf[0]>>4))
	}
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "CONNECT", TypeConnect.String())
	require.Equal(t, "PINGREQ", TypePingreq.String())
	require.Equal(t, "DISCONNECT", TypeDisconnect.String())
	require.Equal(t, "RESERVED", Type(15).String())
}
