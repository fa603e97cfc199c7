package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bromq-dev/mqttprobe/pkg/probe"
)

// ErrNoResult is returned when no result is stored for a target.
var ErrNoResult = errors.New("no stored result")

// RedisHook stores probe results in Redis/Valkey so that other processes
// can read the latest state of every target.
//
// Keys:
//   - <prefix>result:<target>   last result, expires after TTL
//   - <prefix>history:<target>  newest-first list of the last HistoryLen results
//
// Every result is also published on the <prefix>results channel.
type RedisHook struct {
	client     redis.UniversalClient
	keyPrefix  string
	ttl        time.Duration
	historyLen int64
	log        *slog.Logger
}

// RedisConfig configures the Redis hook.
type RedisConfig struct {
	// Addr is the Redis server address (default: "localhost:6379").
	Addr string

	// Password for Redis authentication (optional).
	Password string

	// DB is the Redis database number (default: 0).
	DB int

	// KeyPrefix is prepended to all Redis keys (default: "mqttprobe:").
	KeyPrefix string

	// TTL is how long the last result of a target is kept (default: 10m).
	TTL time.Duration

	// HistoryLen caps the per-target history list (default: 100).
	HistoryLen int

	// Client allows providing a pre-configured Redis client.
	// If set, Addr/Password/DB are ignored.
	Client redis.UniversalClient

	// Logger for logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Record is the stored form of a probe result.
type Record struct {
	Target         string          `msgpack:"t"`
	ClientID       string          `msgpack:"c"`
	Started        time.Time       `msgpack:"s"`
	Outcome        string          `msgpack:"o"`
	Accepted       bool            `msgpack:"a"`
	SessionPresent bool            `msgpack:"sp"`
	ReturnCode     byte            `msgpack:"rc"`
	ConnectRTT     time.Duration   `msgpack:"cr"`
	PingRTTs       []time.Duration `msgpack:"pr,omitempty"`
	Error          string          `msgpack:"e,omitempty"`
}

// NewRecord converts a probe result into its stored form.
func NewRecord(res *probe.Result) Record {
	rec := Record{
		Target:         res.Target,
		ClientID:       res.ClientID,
		Started:        res.Started,
		Outcome:        Outcome(res),
		Accepted:       res.Accepted,
		SessionPresent: res.SessionPresent,
		ReturnCode:     byte(res.ReturnCode),
		ConnectRTT:     res.ConnectRTT,
		PingRTTs:       res.PingRTTs,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// NewRedisHook creates the hook and checks the connection.
func NewRedisHook(ctx context.Context, cfg *RedisConfig) (*RedisHook, error) {
	if cfg == nil {
		cfg = &RedisConfig{}
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mqttprobe:"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.HistoryLen == 0 {
		cfg.HistoryLen = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if cfg.Client == nil {
			client.Close()
		}
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	cfg.Logger.Info("redis hook initialized",
		"addr", cfg.Addr,
		"prefix", cfg.KeyPrefix,
	)

	return &RedisHook{
		client:     client,
		keyPrefix:  cfg.KeyPrefix,
		ttl:        cfg.TTL,
		historyLen: int64(cfg.HistoryLen),
		log:        cfg.Logger,
	}, nil
}

func (h *RedisHook) ID() string { return "redis" }

// Stop closes the Redis connection.
func (h *RedisHook) Stop() error {
	return h.client.Close()
}

func (h *RedisHook) resultKey(target string) string {
	return h.keyPrefix + "result:" + target
}

func (h *RedisHook) historyKey(target string) string {
	return h.keyPrefix + "history:" + target
}

// Channel returns the pub/sub channel results are published on.
func (h *RedisHook) Channel() string {
	return h.keyPrefix + "results"
}

// OnResult stores the result. Storage failures are logged, never returned
// to the prober.
func (h *RedisHook) OnResult(ctx context.Context, res *probe.Result) {
	if err := h.Store(ctx, NewRecord(res)); err != nil {
		h.log.Warn("failed to store probe result",
			"target", res.Target,
			"error", err.Error(),
		)
	}
}

// Store writes rec as the last result of its target and appends it to the
// target's history.
func (h *RedisHook) Store(ctx context.Context, rec Record) error {
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}

	_, err = h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, h.resultKey(rec.Target), data, h.ttl)
		pipe.LPush(ctx, h.historyKey(rec.Target), data)
		pipe.LTrim(ctx, h.historyKey(rec.Target), 0, h.historyLen-1)
		pipe.Publish(ctx, h.Channel(), data)
		return nil
	})
	return err
}

// LastResult returns the most recent stored result for target, or
// ErrNoResult if there is none or it expired.
func (h *RedisHook) LastResult(ctx context.Context, target string) (*Record, error) {
	data, err := h.client.Get(ctx, h.resultKey(target)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// History returns up to limit stored results for target, newest first.
// A limit of 0 returns the whole history.
func (h *RedisHook) History(ctx context.Context, target string, limit int) ([]Record, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}
	items, err := h.client.LRange(ctx, h.historyKey(target), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := decodeRecord([]byte(item))
		if err != nil {
			h.log.Warn("skipping undecodable history entry", "target", target, "error", err.Error())
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Subscribe returns a subscription to the results channel. Messages carry
// msgpack encoded records; see DecodeRecord.
func (h *RedisHook) Subscribe(ctx context.Context) *redis.PubSub {
	return h.client.Subscribe(ctx, h.Channel())
}

// DecodeRecord decodes a record published on the results channel.
func DecodeRecord(payload string) (*Record, error) {
	return decodeRecord([]byte(payload))
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
