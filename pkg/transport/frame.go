package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/bromq-dev/mqttprobe/pkg/packet"
)

// ErrFrameTooLarge indicates a packet that does not fit the caller's buffer.
var ErrFrameTooLarge = errors.New("frame exceeds buffer")

// OversizeError reports a packet that did not fit the caller's buffer. Its
// body has been discarded, so the stream is still on a packet boundary.
type OversizeError struct {
	Header packet.FixedHeader
	Size   int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("%s of %d bytes: %v", e.Header.Type, e.Size, ErrFrameTooLarge)
}

func (e *OversizeError) Unwrap() error { return ErrFrameTooLarge }

// FrameReader reads whole MQTT control packets from an io.Reader.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 512)}
}

// ReadFrame reads the next packet, fixed header included, into buf and
// returns its length. io.EOF is only returned on a packet boundary.
// A packet larger than buf is skipped and reported as *OversizeError.
func (f *FrameReader) ReadFrame(buf []byte) (int, error) {
	var hdr [packet.MaxHeaderSize]byte

	first, err := f.r.ReadByte()
	if err != nil {
		return 0, err
	}
	hdr[0] = first

	// Remaining length: up to four bytes, the last without continuation bit
	n := 1
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return 0, unexpectedEOF(err)
		}
		hdr[n] = b
		n++
		if b&0x80 == 0 {
			break
		}
		if n == packet.MaxHeaderSize {
			return 0, packet.ErrMalformedRemainingLength
		}
	}

	fh, _, err := packet.DecodeFixedHeader(hdr[:n])
	if err != nil {
		return 0, err
	}

	total := n + fh.RemainingLength
	if total > len(buf) {
		if _, err := f.r.Discard(fh.RemainingLength); err != nil {
			return 0, unexpectedEOF(err)
		}
		return 0, &OversizeError{Header: fh, Size: total}
	}

	copy(buf, hdr[:n])
	if _, err := io.ReadFull(f.r, buf[n:total]); err != nil {
		return 0, unexpectedEOF(err)
	}
	return total, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
