// Command mqttprobe checks MQTT 3.1.1 brokers by connecting, pinging and
// disconnecting, and decodes captured packets.
//
//	mqttprobe [flags] -target URL [-target URL ...]
//	mqttprobe decode HEX
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bromq-dev/mqttprobe/pkg/config"
	"github.com/bromq-dev/mqttprobe/pkg/hooks"
	"github.com/bromq-dev/mqttprobe/pkg/probe"
)

// Custom flag type for accumulating targets
type targetList []string

func (t *targetList) String() string { return strings.Join(*t, ",") }
func (t *targetList) Set(s string) error {
	*t = append(*t, s)
	return nil
}

// Custom flag type for username:password pairs
type credential struct {
	username string
	password string
}

func (c *credential) String() string { return c.username }
func (c *credential) Set(s string) error {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return fmt.Errorf("invalid credential format: %s (expected username:password)", s)
	}
	c.username, c.password = parts[0], parts[1]
	return nil
}

type options struct {
	configPath string
	targets    targetList
	cred       credential
	clientID   string
	keepAlive  uint
	clean      bool

	willTopic   string
	willPayload string
	willQoS     uint
	willRetain  bool

	pings        int
	pingInterval time.Duration
	timeout      time.Duration
	concurrency  int
	interval     time.Duration
	metricsAddr  string
	redisAddr    string
	insecure     bool
	logLevel     string
	logJSON      bool

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("mqttprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.configPath, "config", "", "YAML or JSON config file (optional)")
	fs.Var(&o.targets, "target", "Broker URL: tcp://, ssl://, mqtts://, ws://, wss:// or host:port (can be repeated)")
	fs.Var(&o.cred, "credential", "Credential: username:password")
	fs.StringVar(&o.clientID, "client-id", "", "Client identifier (default: generated)")
	fs.UintVar(&o.keepAlive, "keepalive", 60, "Keep alive in seconds")
	fs.BoolVar(&o.clean, "clean", true, "Request a clean session")
	fs.StringVar(&o.willTopic, "will-topic", "", "Will topic (optional)")
	fs.StringVar(&o.willPayload, "will-payload", "", "Will payload")
	fs.UintVar(&o.willQoS, "will-qos", 0, "Will QoS (0-2)")
	fs.BoolVar(&o.willRetain, "will-retain", false, "Retain the will message")
	fs.IntVar(&o.pings, "pings", 1, "PINGREQ round trips per probe")
	fs.DurationVar(&o.pingInterval, "ping-interval", 0, "Pause between pings")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "Timeout for each network step")
	fs.IntVar(&o.concurrency, "concurrency", 8, "Targets probed in parallel")
	fs.DurationVar(&o.interval, "interval", 0, "Repeat probes at this interval until interrupted")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9105)")
	fs.StringVar(&o.redisAddr, "redis", "", "Store results in Redis at this address (optional)")
	fs.BoolVar(&o.insecure, "insecure", false, "Skip TLS certificate verification")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVar(&o.logJSON, "log-json", false, "Log as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	o.targets = append(o.targets, fs.Args()...)
	return o, nil
}

// loadConfig reads the config file, if any, and applies the flags that were
// given explicitly on top of it.
func loadConfig(o *options) (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	if o.configPath != "" {
		c, err = config.Load(o.configPath)
	} else {
		c, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}

	c.Targets = append(c.Targets, o.targets...)
	if o.set["credential"] {
		c.Username, c.Password = o.cred.username, o.cred.password
	}
	if o.set["client-id"] {
		c.ClientID = o.clientID
	}
	if o.set["keepalive"] {
		if o.keepAlive > 65535 {
			return nil, fmt.Errorf("keepalive %d exceeds 65535", o.keepAlive)
		}
		c.KeepAlive = uint16(o.keepAlive)
	}
	if o.set["clean"] {
		c.CleanSession = o.clean
	}
	if o.set["will-topic"] {
		c.Will = &config.Will{
			Topic:   o.willTopic,
			Payload: o.willPayload,
			QoS:     byte(min(o.willQoS, 255)),
			Retain:  o.willRetain,
		}
	}
	if o.set["pings"] {
		c.PingCount = o.pings
	}
	if o.set["ping-interval"] {
		c.PingInterval = o.pingInterval
	}
	if o.set["timeout"] {
		c.Timeout = o.timeout
	}
	if o.set["concurrency"] {
		c.Concurrency = o.concurrency
	}
	if o.set["interval"] {
		c.Interval = o.interval
	}
	if o.set["metrics-addr"] {
		c.MetricsAddr = o.metricsAddr
	}
	if o.set["redis"] {
		if c.Redis == nil {
			c.Redis = &config.Redis{}
		}
		c.Redis.Addr = o.redisAddr
	}
	if o.set["insecure"] {
		c.TLS.InsecureSkipVerify = o.insecure
	}
	if o.set["log-level"] {
		c.Log.Level = o.logLevel
	}
	if o.set["log-json"] {
		c.Log.JSON = o.logJSON
	}

	return c, c.Validate()
}

func newLogger(c config.Log, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.JSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "decode" {
		os.Exit(runDecode(os.Args[2:], os.Stdout, os.Stderr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run probes the configured targets and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	c, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "mqttprobe: %v\n", err)
		return 2
	}
	log, err := newLogger(c.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "mqttprobe: log level: %v\n", err)
		return 2
	}

	pc := c.ProbeConfig()
	pc.Logger = log
	p := probe.New(pc)
	p.AddHook(hooks.NewLoggerHook(hooks.LoggerConfig{Logger: log}))

	if c.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mh, err := hooks.NewMetricsHook(hooks.MetricsConfig{Registerer: reg})
		if err != nil {
			fmt.Fprintf(stderr, "mqttprobe: metrics: %v\n", err)
			return 1
		}
		p.AddHook(mh)

		srv := serveMetrics(c.MetricsAddr, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if rc := c.RedisConfig(); rc != nil {
		rc.Logger = log
		rh, err := hooks.NewRedisHook(ctx, rc)
		if err != nil {
			fmt.Fprintf(stderr, "mqttprobe: %v\n", err)
			return 1
		}
		defer rh.Stop()
		p.AddHook(rh)
	}

	if c.Interval <= 0 {
		return report(stdout, p.ProbeAll(ctx, c.Targets, c.Concurrency))
	}

	log.Info("probing", "targets", len(c.Targets), "interval", c.Interval)
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		report(stdout, p.ProbeAll(ctx, c.Targets, c.Concurrency))
		select {
		case <-ctx.Done():
			log.Info("stopped")
			return 0
		case <-ticker.C:
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err.Error())
		}
	}()
	return srv
}

// report prints one line per result and returns 1 if any probe failed.
func report(w io.Writer, results []*probe.Result) int {
	status := 0
	for _, res := range results {
		if !res.OK() {
			status = 1
			fmt.Fprintf(w, "FAIL %s: %v\n", res.Target, res.Err)
			continue
		}

		pings := make([]string, len(res.PingRTTs))
		for i, rtt := range res.PingRTTs {
			pings[i] = rtt.Round(time.Microsecond).String()
		}
		fmt.Fprintf(w, "OK   %s connect=%s session_present=%t pings=[%s]\n",
			res.Target,
			res.ConnectRTT.Round(time.Microsecond),
			res.SessionPresent,
			strings.Join(pings, " "),
		)
	}
	return status
}
