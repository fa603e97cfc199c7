// Package config loads probe settings from YAML or JSON files.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/xid"
	"gopkg.in/yaml.v3"

	"github.com/bromq-dev/mqttprobe/pkg/hooks"
	"github.com/bromq-dev/mqttprobe/pkg/packet"
	"github.com/bromq-dev/mqttprobe/pkg/probe"
	"github.com/bromq-dev/mqttprobe/pkg/topic"
	"github.com/bromq-dev/mqttprobe/pkg/transport"
)

// ClientIDPrefix prefixes generated client identifiers.
const ClientIDPrefix = "mqttprobe-"

// Validation errors.
var (
	ErrNoTargets          = errors.New("no targets configured")
	ErrInvalidConcurrency = errors.New("concurrency must not be negative")
	ErrInvalidPingCount   = errors.New("ping count must not be negative")
)

// Config is the complete probe configuration.
type Config struct {
	Targets      []string      `yaml:"targets" json:"targets"`
	ClientID     string        `yaml:"client_id" json:"client_id"`
	KeepAlive    uint16        `yaml:"keep_alive" json:"keep_alive"`
	CleanSession bool          `yaml:"clean_session" json:"clean_session"`
	Username     string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password     string        `yaml:"password,omitempty" json:"password,omitempty"`
	Will         *Will         `yaml:"will,omitempty" json:"will,omitempty"`
	PingCount    int           `yaml:"ping_count" json:"ping_count"`
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	Concurrency  int           `yaml:"concurrency" json:"concurrency"`

	// Interval repeats the probe run; zero probes once.
	Interval    time.Duration `yaml:"interval" json:"interval"`
	MetricsAddr string        `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`

	TLS   TLS    `yaml:"tls" json:"tls"`
	Redis *Redis `yaml:"redis,omitempty" json:"redis,omitempty"`
	Log   Log    `yaml:"log" json:"log"`
}

// Will is the last will sent with every CONNECT.
type Will struct {
	Topic   string `yaml:"topic" json:"topic"`
	Payload string `yaml:"payload" json:"payload"`
	QoS     byte   `yaml:"qos" json:"qos"`
	Retain  bool   `yaml:"retain" json:"retain"`
}

// TLS configures ssl, mqtts and wss targets.
type TLS struct {
	ServerName         string `yaml:"server_name,omitempty" json:"server_name,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// Redis enables the Redis result store.
type Redis struct {
	Addr       string        `yaml:"addr" json:"addr"`
	Password   string        `yaml:"password,omitempty" json:"password,omitempty"`
	DB         int           `yaml:"db" json:"db"`
	KeyPrefix  string        `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
	TTL        time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	HistoryLen int           `yaml:"history_len,omitempty" json:"history_len,omitempty"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		KeepAlive:    60,
		CleanSession: true,
		PingCount:    1,
		Timeout:      10 * time.Second,
		Concurrency:  8,
		Log:          Log{Level: "info"},
	}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes JSON or YAML config data over the defaults. An empty
// client id is replaced by a generated one.
func Parse(b []byte) (*Config, error) {
	c := Default()

	// JSON is decoded as YAML so durations like "2s" work in both.
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}

	if c.ClientID == "" {
		c.ClientID = NewClientID()
	}
	return c, nil
}

// NewClientID returns a unique client identifier.
func NewClientID() string {
	return ClientIDPrefix + xid.New().String()
}

// Validate checks the configuration, including the CONNECT it produces.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}
	if c.Concurrency < 0 {
		return ErrInvalidConcurrency
	}
	if c.PingCount < 0 {
		return ErrInvalidPingCount
	}

	opts, will := c.ConnectOptions()
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if will != nil {
		if err := will.Validate(); err != nil {
			return fmt.Errorf("will: %w", err)
		}
		if err := topic.ValidateName(c.Will.Topic); err != nil {
			return fmt.Errorf("will: %w", err)
		}
	}
	return nil
}

// ConnectOptions returns the CONNECT parameters. will is nil unless a
// will topic is configured.
func (c *Config) ConnectOptions() (packet.Options, *packet.Will) {
	opts := packet.Options{
		ClientID:     packet.CString(c.ClientID),
		KeepAlive:    c.KeepAlive,
		CleanSession: c.CleanSession,
	}
	if c.Username != "" {
		opts.Username = packet.CString(c.Username)
	}
	if c.Password != "" {
		opts.Password = packet.CString(c.Password)
	}

	if c.Will == nil || c.Will.Topic == "" {
		return opts, nil
	}
	return opts, &packet.Will{
		Topic:   packet.CString(c.Will.Topic),
		Payload: []byte(c.Will.Payload),
		QoS:     packet.QoS(c.Will.QoS),
		Retain:  c.Will.Retain,
	}
}

// ProbeConfig returns the prober settings. The logger is left for the
// caller to set.
func (c *Config) ProbeConfig() *probe.Config {
	opts, will := c.ConnectOptions()
	pc := &probe.Config{
		Options:      opts,
		Will:         will,
		PingCount:    c.PingCount,
		PingInterval: c.PingInterval,
		Timeout:      c.Timeout,
		Transport: transport.Config{
			DialTimeout: c.Timeout,
		},
	}
	if c.TLS.ServerName != "" || c.TLS.InsecureSkipVerify {
		pc.Transport.TLSConfig = &tls.Config{
			ServerName:         c.TLS.ServerName,
			InsecureSkipVerify: c.TLS.InsecureSkipVerify,
		}
	}
	return pc
}

// RedisConfig returns the Redis hook settings, or nil if Redis is not
// configured.
func (c *Config) RedisConfig() *hooks.RedisConfig {
	if c.Redis == nil || c.Redis.Addr == "" {
		return nil
	}
	return &hooks.RedisConfig{
		Addr:       c.Redis.Addr,
		Password:   c.Redis.Password,
		DB:         c.Redis.DB,
		KeyPrefix:  c.Redis.KeyPrefix,
		TTL:        c.Redis.TTL,
		HistoryLen: c.Redis.HistoryLen,
	}
}
