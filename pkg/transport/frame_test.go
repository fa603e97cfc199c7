package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/mqttprobe/pkg/packet"
)

func TestReadFrameSequence(t *testing.T) {
	stream := []byte{
		0x20, 0x02, 0x01, 0x00, // CONNACK
		0xD0, 0x00, // PINGRESP
	}
	big := make([]byte, 3+200)
	n := packet.EncodeFixedHeader(big, packet.TypePublish, 0, 200)
	require.Equal(t, 3, n)
	stream = append(stream, big...)

	fr := NewFrameReader(bytes.NewReader(stream))
	buf := make([]byte, 256)

	n, err := fr.ReadFrame(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x20, 0x02, 0x01, 0x00}, buf[:n])

	n, err = fr.ReadFrame(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0xD0, 0x00}, buf[:n])

	n, err = fr.ReadFrame(buf)
	require.NoError(t, err)
	require.Equal(t, 203, n)

	_, err = fr.ReadFrame(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		name   string
		stream []byte
		size   int
		want   error
	}{
		{"fifth length byte", []byte{0x30, 0x80, 0x80, 0x80, 0x80, 0x01}, 64, packet.ErrMalformedRemainingLength},
		{"truncated header", []byte{0x30, 0x80}, 64, io.ErrUnexpectedEOF},
		{"truncated body", []byte{0x20, 0x02, 0x00}, 64, io.ErrUnexpectedEOF},
		{"too large", append([]byte{0x30, 0x10}, make([]byte, 16)...), 8, ErrFrameTooLarge},
		{"too large and truncated", []byte{0x30, 0x10, 0x00}, 8, io.ErrUnexpectedEOF},
		{"tiny buffer", []byte{0xD0, 0x00}, 1, ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := NewFrameReader(bytes.NewReader(tt.stream))
			_, err := fr.ReadFrame(make([]byte, tt.size))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadFrameSkipsOversize(t *testing.T) {
	big := make([]byte, 3+300)
	n := packet.EncodeFixedHeader(big, packet.TypePublish, 0x01, 300)
	require.Equal(t, 3, n)
	stream := append(big, 0xD0, 0x00)

	fr := NewFrameReader(bytes.NewReader(stream))
	buf := make([]byte, 256)

	_, err := fr.ReadFrame(buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	var oversize *OversizeError
	require.ErrorAs(t, err, &oversize)
	require.Equal(t, packet.TypePublish, oversize.Header.Type)
	require.Equal(t, byte(0x01), oversize.Header.Flags)
	require.Equal(t, 303, oversize.Size)

	// The next packet is read intact.
	n, err = fr.ReadFrame(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0xD0, 0x00}, buf[:n])
}
