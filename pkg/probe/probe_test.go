package probe

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bromq-dev/mqttprobe/pkg/packet"
	"github.com/bromq-dev/mqttprobe/pkg/transport"
)

// fakeBroker serves one client over the broker end of a net.Pipe.
type fakeBroker struct {
	code           packet.ConnackReturnCode
	sessionPresent bool

	// beforeConnack is written instead of a CONNACK if set.
	beforeConnack []byte
	// beforePingresp is written ahead of every PINGRESP.
	beforePingresp []byte
	// silent never answers.
	silent bool

	mu      sync.Mutex
	connect packet.Connect
	pings   int
	gotDisc bool
}

func (b *fakeBroker) dial(ctx context.Context, target string) (net.Conn, error) {
	client, server := net.Pipe()
	go b.serve(server)
	return client, nil
}

func (b *fakeBroker) serve(conn net.Conn) {
	defer conn.Close()
	fr := transport.NewFrameReader(conn)
	buf := make([]byte, 1024)
	out := make([]byte, 16)

	for {
		n, err := fr.ReadFrame(buf)
		if err != nil {
			return
		}
		frame := buf[:n]
		if b.silent {
			continue
		}

		switch packet.Type(frame[0] >> 4) {
		case packet.TypeConnect:
			c, err := packet.ParseConnect(bytes.Clone(frame))
			if err != nil {
				return
			}
			b.mu.Lock()
			b.connect = c
			b.mu.Unlock()

			if b.beforeConnack != nil {
				_, _ = conn.Write(b.beforeConnack)
				continue
			}
			m, _ := packet.SerializeConnack(out, b.sessionPresent, b.code)
			if _, err := conn.Write(out[:m]); err != nil {
				return
			}

		case packet.TypePingreq:
			if packet.ParseZero(frame, packet.TypePingreq) != nil {
				return
			}
			b.mu.Lock()
			b.pings++
			b.mu.Unlock()

			if b.beforePingresp != nil {
				if _, err := conn.Write(b.beforePingresp); err != nil {
					return
				}
			}
			m, _ := packet.SerializePingresp(out)
			if _, err := conn.Write(out[:m]); err != nil {
				return
			}

		case packet.TypeDisconnect:
			b.mu.Lock()
			b.gotDisc = packet.ParseZero(frame, packet.TypeDisconnect) == nil
			b.mu.Unlock()
			return
		}
	}
}

func (b *fakeBroker) disconnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gotDisc
}

func newTestProber(b *fakeBroker, cfg Config) *Prober {
	cfg.Dial = b.dial
	if cfg.Options.ClientID.Len() == 0 {
		cfg.Options.ClientID = packet.CString("probe-test")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return New(&cfg)
}

type recordingHook struct {
	mu       sync.Mutex
	connacks []packet.Connack
	pings    []int
	results  []*Result
}

func (h *recordingHook) ID() string { return "recording" }

func (h *recordingHook) OnConnack(ctx context.Context, target string, connack packet.Connack, rtt time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connacks = append(h.connacks, connack)
}

func (h *recordingHook) OnPing(ctx context.Context, target string, seq int, rtt time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pings = append(h.pings, seq)
}

func (h *recordingHook) OnResult(ctx context.Context, res *Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, res)
}

func TestProbeAccepted(t *testing.T) {
	b := &fakeBroker{sessionPresent: true}
	p := newTestProber(b, Config{
		Options: packet.Options{
			ClientID:     packet.CString("dev1"),
			KeepAlive:    30,
			CleanSession: true,
			Username:     packet.CString("user"),
			Password:     packet.CString("secret"),
		},
		PingCount: 3,
	})
	hook := &recordingHook{}
	p.AddHook(hook)

	res := p.Probe(context.Background(), "fake")
	require.NoError(t, res.Err)
	require.True(t, res.OK())
	assert.True(t, res.Accepted)
	assert.True(t, res.SessionPresent)
	assert.Equal(t, packet.ConnackAccepted, res.ReturnCode)
	assert.Equal(t, "dev1", res.ClientID)
	assert.Len(t, res.PingRTTs, 3)

	b.mu.Lock()
	assert.Equal(t, []byte("dev1"), b.connect.ClientID)
	assert.Equal(t, []byte("user"), b.connect.Username)
	assert.Equal(t, []byte("secret"), b.connect.Password)
	assert.Equal(t, uint16(30), b.connect.KeepAlive)
	assert.True(t, b.connect.Flags.CleanSession())
	assert.Equal(t, 3, b.pings)
	b.mu.Unlock()

	require.Eventually(t, b.disconnected, time.Second, 10*time.Millisecond)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	assert.Len(t, hook.connacks, 1)
	assert.Equal(t, []int{0, 1, 2}, hook.pings)
	require.Len(t, hook.results, 1)
	assert.Same(t, res, hook.results[0])
}

func TestProbeWill(t *testing.T) {
	b := &fakeBroker{}
	p := newTestProber(b, Config{
		Will: &packet.Will{
			Topic:   packet.CString("probe/status"),
			Payload: []byte("gone"),
			QoS:     packet.QoS1,
			Retain:  true,
		},
	})

	res := p.Probe(context.Background(), "fake")
	require.NoError(t, res.Err)

	b.mu.Lock()
	defer b.mu.Unlock()
	will := b.connect.Will()
	require.NotNil(t, will)
	assert.Equal(t, "probe/status", will.Topic.String())
	assert.Equal(t, []byte("gone"), will.Payload)
	assert.Equal(t, packet.QoS1, will.QoS)
	assert.True(t, will.Retain)
}

func TestProbeRefused(t *testing.T) {
	b := &fakeBroker{code: packet.ConnackBadUsernameOrPassword}
	p := newTestProber(b, Config{PingCount: 2})
	hook := &recordingHook{}
	p.AddHook(hook)

	res := p.Probe(context.Background(), "fake")
	require.ErrorIs(t, res.Err, ErrRefused)
	assert.False(t, res.OK())
	assert.False(t, res.Accepted)
	assert.Equal(t, packet.ConnackBadUsernameOrPassword, res.ReturnCode)
	assert.Empty(t, res.PingRTTs)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	assert.Len(t, hook.connacks, 1)
	assert.Empty(t, hook.pings)
	assert.Len(t, hook.results, 1)
}

func TestProbeUnexpectedPacket(t *testing.T) {
	b := &fakeBroker{beforeConnack: []byte{0xD0, 0x00}}
	p := newTestProber(b, Config{})

	res := p.Probe(context.Background(), "fake")
	require.ErrorIs(t, res.Err, ErrUnexpectedPacket)
	assert.False(t, res.Accepted)
}

func TestProbeMalformedConnack(t *testing.T) {
	b := &fakeBroker{beforeConnack: []byte{0x20, 0x03, 0x00, 0x00, 0x00}}
	p := newTestProber(b, Config{})

	res := p.Probe(context.Background(), "fake")
	require.ErrorIs(t, res.Err, packet.ErrMalformedPacket)
}

func TestProbeSkipsPublishWhilePinging(t *testing.T) {
	// QoS 0 PUBLISH on topic "a" with payload "x"
	b := &fakeBroker{beforePingresp: []byte{0x30, 0x04, 0x00, 0x01, 'a', 'x'}}
	p := newTestProber(b, Config{PingCount: 2})

	res := p.Probe(context.Background(), "fake")
	require.NoError(t, res.Err)
	assert.Len(t, res.PingRTTs, 2)
}

func TestProbeSkipsLargePublishWhilePinging(t *testing.T) {
	// QoS 1 PUBLISH, remaining length 303: larger than the 256 byte buffer
	publish := make([]byte, 3+303)
	n := packet.EncodeFixedHeader(publish, packet.TypePublish, 0x02, 303)
	require.Equal(t, 3, n)
	publish[4] = 1 // topic length
	publish[5] = 'a'

	b := &fakeBroker{beforePingresp: publish}
	p := newTestProber(b, Config{PingCount: 2, BufferSize: 256})

	res := p.Probe(context.Background(), "fake")
	require.NoError(t, res.Err)
	assert.Len(t, res.PingRTTs, 2)
	require.Eventually(t, b.disconnected, time.Second, 10*time.Millisecond)
}

func TestProbeOversizeConnack(t *testing.T) {
	// CONNACK declaring 300 bytes never fits and is not skipped
	connack := make([]byte, 3+300)
	packet.EncodeFixedHeader(connack, packet.TypeConnack, 0, 300)
	b := &fakeBroker{beforeConnack: connack}
	p := newTestProber(b, Config{BufferSize: 256})

	res := p.Probe(context.Background(), "fake")
	require.ErrorIs(t, res.Err, transport.ErrFrameTooLarge)
	assert.False(t, res.Accepted)
}

func TestProbeUnexpectedPingReply(t *testing.T) {
	b := &fakeBroker{beforePingresp: []byte{0x20, 0x02, 0x00, 0x00}}
	p := newTestProber(b, Config{PingCount: 1})

	res := p.Probe(context.Background(), "fake")
	require.ErrorIs(t, res.Err, ErrUnexpectedPacket)
	assert.True(t, res.Accepted)
	assert.False(t, res.OK())
}

func TestProbeTimeout(t *testing.T) {
	b := &fakeBroker{silent: true}
	p := newTestProber(b, Config{Timeout: 50 * time.Millisecond})

	res := p.Probe(context.Background(), "fake")
	require.Error(t, res.Err)
	var netErr net.Error
	require.True(t, errors.As(res.Err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestProbeContextCanceled(t *testing.T) {
	b := &fakeBroker{silent: true}
	p := newTestProber(b, Config{Timeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := p.Probe(ctx, "fake")
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProbeDialError(t *testing.T) {
	dialErr := errors.New("no route")
	p := New(&Config{
		Options: packet.Options{ClientID: packet.CString("x")},
		Dial: func(ctx context.Context, target string) (net.Conn, error) {
			return nil, dialErr
		},
	})

	res := p.Probe(context.Background(), "fake")
	require.ErrorIs(t, res.Err, dialErr)
}

func TestProbeInvalidOptions(t *testing.T) {
	b := &fakeBroker{}
	p := newTestProber(b, Config{
		Will: &packet.Will{Topic: packet.CString("t"), QoS: 3},
	})

	res := p.Probe(context.Background(), "fake")
	require.ErrorIs(t, res.Err, packet.ErrInvalidQoS)
}

func TestProbeAll(t *testing.T) {
	codes := map[string]packet.ConnackReturnCode{
		"a": packet.ConnackAccepted,
		"b": packet.ConnackServerUnavailable,
		"c": packet.ConnackAccepted,
	}
	p := New(&Config{
		Options:   packet.Options{ClientID: packet.CString("all")},
		PingCount: 1,
		Timeout:   2 * time.Second,
		Dial: func(ctx context.Context, target string) (net.Conn, error) {
			b := &fakeBroker{code: codes[target]}
			return b.dial(ctx, target)
		},
	})

	results := p.ProbeAll(context.Background(), []string{"a", "b", "c"}, 2)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Target)
	assert.True(t, results[0].OK())
	assert.Equal(t, "b", results[1].Target)
	assert.ErrorIs(t, results[1].Err, ErrRefused)
	assert.Equal(t, "c", results[2].Target)
	assert.True(t, results[2].OK())
}

func TestNewDefaults(t *testing.T) {
	p := New(nil)
	assert.Equal(t, 10*time.Second, p.cfg.Timeout)
	assert.Equal(t, 256, p.cfg.BufferSize)
	assert.NotNil(t, p.cfg.Dial)
	assert.NotNil(t, p.log)

	big := make([]byte, 1000)
	p = New(&Config{Options: packet.Options{ClientID: packet.Span(big)}})
	assert.GreaterOrEqual(t, p.cfg.BufferSize, 1014)
}
