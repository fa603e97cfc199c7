package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/bromq-dev/mqttprobe/pkg/packet"
	"github.com/bromq-dev/mqttprobe/pkg/probe"
)

// LoggerHook logs probe events using slog.
type LoggerHook struct {
	logger *slog.Logger
	level  LogLevel
}

// LogLevel controls which events are logged.
type LogLevel int

const (
	// LogLevelConnack logs CONNACK replies.
	LogLevelConnack LogLevel = 1 << iota
	// LogLevelPing logs every ping round trip.
	LogLevelPing
	// LogLevelResult logs the outcome of each probe.
	LogLevelResult
	// LogLevelAll logs all events.
	LogLevelAll = LogLevelConnack | LogLevelPing | LogLevelResult
)

// LoggerConfig configures the logger hook.
type LoggerConfig struct {
	// Logger is the slog.Logger to use (default: slog.Default()).
	Logger *slog.Logger

	// Level controls which events are logged (default: LogLevelAll).
	Level LogLevel
}

// NewLoggerHook creates a new logging hook.
func NewLoggerHook(cfg LoggerConfig) *LoggerHook {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Level == 0 {
		cfg.Level = LogLevelAll
	}
	return &LoggerHook{
		logger: cfg.Logger,
		level:  cfg.Level,
	}
}

func (h *LoggerHook) ID() string { return "logger" }

func (h *LoggerHook) OnConnack(ctx context.Context, target string, connack packet.Connack, rtt time.Duration) {
	if h.level&LogLevelConnack == 0 {
		return
	}
	h.logger.Debug("connack received",
		"target", target,
		"return_code", connack.ReturnCode.String(),
		"session_present", connack.SessionPresent,
		"rtt", rtt,
	)
}

func (h *LoggerHook) OnPing(ctx context.Context, target string, seq int, rtt time.Duration) {
	if h.level&LogLevelPing == 0 {
		return
	}
	h.logger.Debug("ping",
		"target", target,
		"seq", seq,
		"rtt", rtt,
	)
}

func (h *LoggerHook) OnResult(ctx context.Context, res *probe.Result) {
	if h.level&LogLevelResult == 0 {
		return
	}
	if res.Err != nil {
		h.logger.Warn("probe failed",
			"target", res.Target,
			"client_id", res.ClientID,
			"return_code", res.ReturnCode.String(),
			"error", res.Err.Error(),
		)
		return
	}
	h.logger.Info("probe ok",
		"target", res.Target,
		"client_id", res.ClientID,
		"session_present", res.SessionPresent,
		"connect_rtt", res.ConnectRTT,
		"pings", len(res.PingRTTs),
	)
}
