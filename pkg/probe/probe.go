// Package probe checks MQTT brokers by running the session handshake
// against them: CONNECT, CONNACK, a number of PINGREQ/PINGRESP round
// trips, and DISCONNECT.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bromq-dev/mqttprobe/pkg/packet"
	"github.com/bromq-dev/mqttprobe/pkg/transport"
)

var (
	// ErrRefused is returned when the broker answers CONNECT with a
	// non-zero return code.
	ErrRefused = errors.New("connection refused")

	// ErrUnexpectedPacket is returned when the broker sends a packet the
	// handshake does not allow at that point.
	ErrUnexpectedPacket = errors.New("unexpected packet")
)

// DialFunc opens a connection to target.
type DialFunc func(ctx context.Context, target string) (net.Conn, error)

// Config configures a Prober.
type Config struct {
	// Options are sent in every CONNECT.
	Options packet.Options

	// Will is attached to every CONNECT if set.
	Will *packet.Will

	// PingCount is the number of PINGREQ round trips after CONNACK.
	PingCount int

	// PingInterval is the pause between two pings (default: none).
	PingInterval time.Duration

	// Timeout bounds each write and each wait for a reply (default: 10s).
	Timeout time.Duration

	// BufferSize is the packet buffer size. It is raised to fit the
	// CONNECT if smaller (default: 256).
	BufferSize int

	// Transport is the connection template; its URL is replaced by the
	// probe target.
	Transport transport.Config

	// Dial overrides how connections are opened.
	Dial DialFunc

	// Logger for logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Result is the outcome of probing one broker.
type Result struct {
	Target         string
	ClientID       string
	Started        time.Time
	Accepted       bool
	SessionPresent bool
	ReturnCode     packet.ConnackReturnCode
	ConnectRTT     time.Duration
	PingRTTs       []time.Duration
	Err            error
}

// OK reports whether the broker accepted the connection and every step succeeded.
func (r *Result) OK() bool {
	return r.Err == nil && r.Accepted
}

// Prober runs probes. It is safe for concurrent use once hooks are registered.
type Prober struct {
	cfg   Config
	hooks *Hooks
	log   *slog.Logger
}

// New creates a new Prober.
func New(cfg *Config) *Prober {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 256
	}
	if size := packet.ConnectSize(&c.Options, c.Will); c.BufferSize < size {
		c.BufferSize = size
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Dial == nil {
		tmpl := c.Transport
		c.Dial = func(ctx context.Context, target string) (net.Conn, error) {
			tc := tmpl
			tc.URL = target
			return transport.Dial(ctx, &tc)
		}
	}

	return &Prober{
		cfg:   c,
		hooks: NewHooks(),
		log:   c.Logger,
	}
}

// AddHook registers a hook.
func (p *Prober) AddHook(hook Hook) {
	p.hooks.Register(hook)
	p.log.Debug("hook registered", "hook", hook.ID())
}

// Probe runs one handshake against target. Failures are reported in the
// result rather than returned.
func (p *Prober) Probe(ctx context.Context, target string) *Result {
	res := &Result{
		Target:   target,
		ClientID: p.cfg.Options.ClientID.String(),
		Started:  time.Now(),
	}

	if err := p.run(ctx, target, res); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		res.Err = err
	}

	p.hooks.OnResult(ctx, res)
	return res
}

// ProbeAll probes every target, at most concurrency at a time (0 means
// no limit). Results are returned in target order.
func (p *Prober) ProbeAll(ctx context.Context, targets []string, concurrency int) []*Result {
	results := make([]*Result, len(targets))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, target := range targets {
		g.Go(func() error {
			results[i] = p.Probe(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Prober) run(ctx context.Context, target string, res *Result) error {
	if err := p.cfg.Options.Validate(); err != nil {
		return fmt.Errorf("invalid connect options: %w", err)
	}
	if p.cfg.Will != nil {
		if err := p.cfg.Will.Validate(); err != nil {
			return fmt.Errorf("invalid will: %w", err)
		}
	}

	conn, err := p.cfg.Dial(ctx, target)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock any pending read or write when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s := &session{
		conn:    conn,
		frames:  transport.NewFrameReader(conn),
		buf:     make([]byte, p.cfg.BufferSize),
		timeout: p.cfg.Timeout,
		log:     p.log.With("target", target),
	}

	start := time.Now()
	if err := s.send(&packet.ConnectPacket{Options: p.cfg.Options, Will: p.cfg.Will}); err != nil {
		return err
	}
	frame, err := s.receive()
	if err != nil {
		return fmt.Errorf("waiting for CONNACK: %w", err)
	}
	connack, err := packet.ParseConnack(frame)
	if err != nil {
		if errors.Is(err, packet.ErrUnexpectedType) {
			return fmt.Errorf("%w: got %s, want CONNACK", ErrUnexpectedPacket, packet.Type(frame[0]>>4))
		}
		return fmt.Errorf("decoding CONNACK: %w", err)
	}

	res.ConnectRTT = time.Since(start)
	res.SessionPresent = connack.SessionPresent
	res.ReturnCode = connack.ReturnCode
	p.hooks.OnConnack(ctx, target, connack, res.ConnectRTT)

	if !connack.ReturnCode.IsAccepted() {
		return fmt.Errorf("%w: %s", ErrRefused, connack.ReturnCode)
	}
	res.Accepted = true

	for seq := 0; seq < p.cfg.PingCount; seq++ {
		if seq > 0 && p.cfg.PingInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.PingInterval):
			}
		}

		rtt, err := s.ping()
		if err != nil {
			return fmt.Errorf("ping %d: %w", seq, err)
		}
		res.PingRTTs = append(res.PingRTTs, rtt)
		p.hooks.OnPing(ctx, target, seq, rtt)
	}

	return s.send(packet.Disconnect{})
}

// session is one probe connection. It owns a single packet buffer used for
// both directions.
type session struct {
	conn    net.Conn
	frames  *transport.FrameReader
	buf     []byte
	timeout time.Duration
	log     *slog.Logger
}

func (s *session) send(pkt packet.Packet) error {
	n, err := pkt.Encode(s.buf)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", pkt.Type(), err)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	if _, err := s.conn.Write(s.buf[:n]); err != nil {
		return fmt.Errorf("sending %s: %w", pkt.Type(), err)
	}
	s.log.Debug("packet sent", "type", pkt.Type().String(), "bytes", n)
	return nil
}

func (s *session) receive() ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return nil, err
	}
	n, err := s.frames.ReadFrame(s.buf)
	if err != nil {
		return nil, err
	}
	s.log.Debug("packet received", "type", packet.Type(s.buf[0]>>4).String(), "bytes", n)
	return s.buf[:n], nil
}

// ping sends a PINGREQ and waits for the PINGRESP. PUBLISH packets queued
// for a resumed session may arrive first and are skipped.
func (s *session) ping() (time.Duration, error) {
	start := time.Now()
	if err := s.send(packet.Pingreq{}); err != nil {
		return 0, err
	}

	for {
		frame, err := s.receive()
		var oversize *transport.OversizeError
		if errors.As(err, &oversize) && oversize.Header.Type == packet.TypePublish {
			s.log.Debug("skipping packet while waiting for PINGRESP", "type", oversize.Header.Type.String(), "bytes", oversize.Size)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("waiting for PINGRESP: %w", err)
		}
		err = packet.ParseZero(frame, packet.TypePingresp)
		if err == nil {
			return time.Since(start), nil
		}

		t := packet.Type(frame[0] >> 4)
		if errors.Is(err, packet.ErrUnexpectedType) && t == packet.TypePublish {
			s.log.Debug("skipping packet while waiting for PINGRESP", "type", t.String())
			continue
		}
		if errors.Is(err, packet.ErrUnexpectedType) {
			return 0, fmt.Errorf("%w: got %s, want PINGRESP", ErrUnexpectedPacket, t)
		}
		return 0, fmt.Errorf("decoding PINGRESP: %w", err)
	}
}
