package probe

import (
	"context"
	"sync"
	"time"

	"github.com/bromq-dev/mqttprobe/pkg/packet"
)

// Hook observes probe events. Implementations opt into events by also
// implementing one or more of the interfaces below.
//
// Hook methods are called synchronously from the probing goroutine, and
// from several goroutines at once under ProbeAll.
type Hook interface {
	// ID returns a unique identifier for this hook.
	ID() string
}

// ConnackHook is notified when a broker answers a CONNECT.
type ConnackHook interface {
	Hook

	// OnConnack is called with the decoded CONNACK and the CONNECT round trip.
	OnConnack(ctx context.Context, target string, connack packet.Connack, rtt time.Duration)
}

// PingHook is notified for every PINGREQ/PINGRESP exchange.
type PingHook interface {
	Hook

	// OnPing is called with the zero-based ping sequence number and round trip.
	OnPing(ctx context.Context, target string, seq int, rtt time.Duration)
}

// ResultHook is notified once per probe, successful or not.
type ResultHook interface {
	Hook

	// OnResult is called with the finished result.
	OnResult(ctx context.Context, res *Result)
}

// Hooks manages registered hooks and dispatches events.
type Hooks struct {
	mu sync.RWMutex

	connack []ConnackHook
	ping    []PingHook
	result  []ResultHook
}

// NewHooks creates a new hook manager.
func NewHooks() *Hooks {
	return &Hooks{}
}

// Register registers a hook. The hook is checked for all supported interfaces.
func (h *Hooks) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := hook.(ConnackHook); ok {
		h.connack = append(h.connack, ch)
	}
	if ph, ok := hook.(PingHook); ok {
		h.ping = append(h.ping, ph)
	}
	if rh, ok := hook.(ResultHook); ok {
		h.result = append(h.result, rh)
	}
}

// OnConnack notifies all connack hooks.
func (h *Hooks) OnConnack(ctx context.Context, target string, connack packet.Connack, rtt time.Duration) {
	h.mu.RLock()
	hooks := h.connack
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnConnack(ctx, target, connack, rtt)
	}
}

// OnPing notifies all ping hooks.
func (h *Hooks) OnPing(ctx context.Context, target string, seq int, rtt time.Duration) {
	h.mu.RLock()
	hooks := h.ping
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnPing(ctx, target, seq, rtt)
	}
}

// OnResult notifies all result hooks.
func (h *Hooks) OnResult(ctx context.Context, res *Result) {
	h.mu.RLock()
	hooks := h.result
	h.mu.RUnlock()

	for _, hook := range hooks {
		hook.OnResult(ctx, res)
	}
}
