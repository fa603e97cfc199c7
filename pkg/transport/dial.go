// Package transport opens network connections to MQTT brokers and reads
// whole control packets off them.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ErrUnsupportedScheme is returned for broker URLs with an unknown scheme.
var ErrUnsupportedScheme = errors.New("unsupported broker URL scheme")

// Config configures a broker connection.
type Config struct {
	// URL is the broker address. Supported schemes:
	// tcp/mqtt (default port 1883), ssl/tls/mqtts (8883), ws (80), wss (443).
	// A bare host:port is treated as tcp.
	URL string

	// TLSConfig is used for ssl/tls/mqtts and wss.
	TLSConfig *tls.Config

	// Header is sent with the WebSocket handshake.
	Header http.Header

	// DialTimeout bounds connection setup (default: 10s).
	DialTimeout time.Duration
}

// Dial connects to the broker described by cfg.
func Dial(ctx context.Context, cfg *Config) (net.Conn, error) {
	u, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	netDialer := &net.Dialer{Timeout: timeout}

	switch u.Scheme {
	case "tcp", "mqtt":
		conn, err := netDialer.DialContext(ctx, "tcp", hostPort(u, "1883"))
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", u.Host, err)
		}
		return conn, nil

	case "ssl", "tls", "mqtts":
		d := &tls.Dialer{NetDialer: netDialer, Config: cfg.TLSConfig}
		conn, err := d.DialContext(ctx, "tcp", hostPort(u, "8883"))
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", u.Host, err)
		}
		return conn, nil

	case "ws", "wss":
		return dialWebSocket(ctx, u, cfg, timeout)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// ParseURL parses a broker URL, accepting a bare host:port as tcp.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// "localhost:1883" parses with scheme "localhost" and no host.
		if u2, err2 := url.Parse("tcp://" + raw); err2 == nil && u2.Host != "" {
			return u2, nil
		}
		if err == nil {
			err = fmt.Errorf("missing host in %q", raw)
		}
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}
	return u, nil
}

func hostPort(u *url.URL, defaultPort string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), defaultPort)
}
