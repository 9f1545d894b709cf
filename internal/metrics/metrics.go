// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides opt-in Prometheus instrumentation for the client.
// It is adapted from internal/ratelimiter/telemetry/churn: the same
// Config-plus-Enable() opt-in gate and the rule that every exported function
// is a safe no-op when disabled carries over directly. Dropped from churn:
// the rolling-window KPI exporter, the live ANSI terminal renderer, and the
// package-owned HTTP listener — none of those fit a library meant to be
// embedded in a caller's process, which already owns its own metrics
// endpoint and its own registerer.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config controls whether and where metrics are registered.
type Config struct {
	// Enabled gates every recording call. Defaults to false (zero value).
	Enabled bool
	// Registerer receives the collectors on Enable. A nil Registerer with
	// Enabled=true falls back to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Namespace prefixes every metric name, default "teneo".
	Namespace string
}

// Collectors holds every metric the client exposes. Safe for concurrent use;
// every method is a no-op when the Collectors was built disabled.
type Collectors struct {
	mu      sync.RWMutex
	enabled bool

	connectionState   *prometheus.GaugeVec
	reconnectTotal    prometheus.Counter
	messagesSentTotal *prometheus.CounterVec
	messagesRecvTotal *prometheus.CounterVec
	rateLimitThrottle prometheus.Counter
	breakerState      prometheus.Gauge
	webhookAttempts   *prometheus.CounterVec
	dedupDrops        prometheus.Counter

	// rawMu guards the plain-Go mirror of the above, kept so Snapshot can
	// hand callers a point-in-time read without scraping Prometheus's own
	// registry (the Collectors may be registered on a Registerer the
	// caller's process owns, not one this package can read back from).
	rawMu            sync.Mutex
	rawConnState     string
	rawReconnects    uint64
	rawMessagesSent  map[string]uint64
	rawMessagesRecv  map[string]uint64
	rawThrottles     uint64
	rawBreakerState  float64
	rawWebhookAttempt map[string]uint64
	rawDedupDrops    uint64
}

// Snapshot is a point-in-time, dependency-free read of every counter/gauge
// Collectors tracks. Returned by Client.Metrics() so callers who don't want
// to scrape Prometheus can still inspect the client's health.
type Snapshot struct {
	ConnectionState    string
	ReconnectTotal     uint64
	MessagesSent       map[string]uint64
	MessagesReceived   map[string]uint64
	RateLimitThrottles uint64
	BreakerState       float64
	WebhookAttempts    map[string]uint64
	DedupDrops         uint64
}

// Snapshot returns the current value of every metric. Safe to call on a
// disabled (Noop) Collectors; it returns the zero Snapshot.
func (c *Collectors) Snapshot() Snapshot {
	if c == nil || !c.on() {
		return Snapshot{MessagesSent: map[string]uint64{}, MessagesReceived: map[string]uint64{}, WebhookAttempts: map[string]uint64{}}
	}
	c.rawMu.Lock()
	defer c.rawMu.Unlock()

	sent := make(map[string]uint64, len(c.rawMessagesSent))
	for k, v := range c.rawMessagesSent {
		sent[k] = v
	}
	recv := make(map[string]uint64, len(c.rawMessagesRecv))
	for k, v := range c.rawMessagesRecv {
		recv[k] = v
	}
	attempts := make(map[string]uint64, len(c.rawWebhookAttempt))
	for k, v := range c.rawWebhookAttempt {
		attempts[k] = v
	}

	return Snapshot{
		ConnectionState:    c.rawConnState,
		ReconnectTotal:     c.rawReconnects,
		MessagesSent:       sent,
		MessagesReceived:   recv,
		RateLimitThrottles: c.rawThrottles,
		BreakerState:       c.rawBreakerState,
		WebhookAttempts:    attempts,
		DedupDrops:         c.rawDedupDrops,
	}
}

// Noop returns a disabled Collectors; every method becomes a cheap no-op.
func Noop() *Collectors {
	return &Collectors{enabled: false}
}

// Enable builds and registers the collector set per cfg. Safe to call once;
// a disabled Config (the zero value) returns a Noop() Collectors instead.
func Enable(cfg Config) *Collectors {
	if !cfg.Enabled {
		return Noop()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "teneo"
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collectors{
		enabled:           true,
		rawMessagesSent:   make(map[string]uint64),
		rawMessagesRecv:   make(map[string]uint64),
		rawWebhookAttempt: make(map[string]uint64),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "connection_state", Help: "Current connection state (1=active label, 0=inactive).",
		}, []string{"state"}),
		reconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "reconnect_total", Help: "Total reconnect attempts.",
		}),
		messagesSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "messages_sent_total", Help: "Total frames sent, by kind.",
		}, []string{"kind"}),
		messagesRecvTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "messages_received_total", Help: "Total frames received, by kind.",
		}, []string{"kind"}),
		rateLimitThrottle: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "rate_limit_throttle_total", Help: "Total sends delayed or rejected by the rate limiter.",
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "breaker_state", Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}),
		webhookAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "webhook_attempts_total", Help: "Webhook delivery attempts, by outcome.",
		}, []string{"outcome"}),
		dedupDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "dedup_drops_total", Help: "Total inbound frames dropped as duplicates.",
		}),
	}

	reg.MustRegister(
		c.connectionState, c.reconnectTotal, c.messagesSentTotal, c.messagesRecvTotal,
		c.rateLimitThrottle, c.breakerState, c.webhookAttempts, c.dedupDrops,
	)
	return c
}

func (c *Collectors) on() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetConnectionState reports the current named state (e.g. "connected",
// "reconnecting", "disconnected") as active and every other known state as
// inactive, mirroring a single-active-label gauge vec pattern.
func (c *Collectors) SetConnectionState(states []string, active string) {
	if !c.on() {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1.0
		}
		c.connectionState.WithLabelValues(s).Set(v)
	}
	c.rawMu.Lock()
	c.rawConnState = active
	c.rawMu.Unlock()
}

func (c *Collectors) IncReconnect() {
	if !c.on() {
		return
	}
	c.reconnectTotal.Inc()
	c.rawMu.Lock()
	c.rawReconnects++
	c.rawMu.Unlock()
}

func (c *Collectors) IncMessageSent(kind string) {
	if !c.on() {
		return
	}
	c.messagesSentTotal.WithLabelValues(kind).Inc()
	c.rawMu.Lock()
	c.rawMessagesSent[kind]++
	c.rawMu.Unlock()
}

func (c *Collectors) IncMessageReceived(kind string) {
	if !c.on() {
		return
	}
	c.messagesRecvTotal.WithLabelValues(kind).Inc()
	c.rawMu.Lock()
	c.rawMessagesRecv[kind]++
	c.rawMu.Unlock()
}

func (c *Collectors) IncRateLimitThrottle() {
	if !c.on() {
		return
	}
	c.rateLimitThrottle.Inc()
	c.rawMu.Lock()
	c.rawThrottles++
	c.rawMu.Unlock()
}

// SetBreakerState accepts 0 (closed), 1 (half-open), or 2 (open).
func (c *Collectors) SetBreakerState(state float64) {
	if !c.on() {
		return
	}
	c.breakerState.Set(state)
	c.rawMu.Lock()
	c.rawBreakerState = state
	c.rawMu.Unlock()
}

func (c *Collectors) IncWebhookAttempt(outcome string) {
	if !c.on() {
		return
	}
	c.webhookAttempts.WithLabelValues(outcome).Inc()
	c.rawMu.Lock()
	c.rawWebhookAttempt[outcome]++
	c.rawMu.Unlock()
}

func (c *Collectors) IncDedupDrop() {
	if !c.on() {
		return
	}
	c.dedupDrops.Inc()
	c.rawMu.Lock()
	c.rawDedupDrops++
	c.rawMu.Unlock()
}
