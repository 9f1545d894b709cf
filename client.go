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

// Package teneo is the facade (spec component L): a thin aggregator owning
// exactly the connection engine, message pipeline, and webhook engine, per
// spec.md §3's ownership rule, and forwarding events between them. It does
// not expose convenience getters, a fluent config builder, or public event
// re-fan-out beyond the typed On/Emit surface below — those belong to an
// outer wrapper layer spec.md §1 names as out of scope.
package teneo

import (
	"context"
	"strings"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/breaker"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/config"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/conn"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/dedup"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/events"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/frame"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/logging"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/metrics"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/pipeline"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/queue"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/retry"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/signature"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/signer"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/webhook"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// Config is re-exported so callers only need to import this package.
type Config = config.Config

// ClientType re-exports config.ClientType and its constants.
type (
	ClientType = config.ClientType
)

const (
	ClientTypeUser        = config.ClientTypeUser
	ClientTypeAgent       = config.ClientTypeAgent
	ClientTypeCoordinator = config.ClientTypeCoordinator
)

// DefaultConfig returns spec.md §6's defaults for wsURL.
func DefaultConfig(wsURL string) Config { return config.Defaults(wsURL) }

// Frame re-exports the wire frame type so callers don't need to import
// internal/frame directly.
type Frame = frame.Frame

// Client is the facade. Construct with New, call Connect, then Send or
// Request; Disconnect or Destroy tear it down.
type Client struct {
	cfg     Config
	logger  logging.Logger
	bus     *events.Bus
	metrics *metrics.Collectors

	conn     *conn.Engine
	pipeline *pipeline.Pipeline
	webhook  *webhook.Engine
	wallet   *signer.Wallet
}

// Option customizes a Client beyond the Config struct. WithLogger is the
// only Option; metrics, when enabled, are always registered on
// prometheus.DefaultRegisterer.
type Option func(*Client)

// WithLogger overrides the default logrus-backed logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New validates cfg, derives the signer (if a private key is configured),
// and wires the connection engine, message pipeline, and webhook engine
// together, per spec.md §3's ownership rule. It does not connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, logger: logging.NewDefault(), bus: events.New()}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Noop{}
	}

	c.metrics = metrics.Enable(metrics.Config{Enabled: cfg.MetricsEnabled})

	var sgn conn.Signer
	if cfg.PrivateKey != "" {
		w, err := signer.New(cfg.PrivateKey)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, "invalid private_key", err)
		}
		if cfg.WalletAddress != "" && !sameAddress(cfg.WalletAddress, w.Address()) {
			return nil, xerrors.New(xerrors.CodeConfiguration, "wallet_address does not match private_key")
		}
		c.wallet = w
		sgn = w
	}

	reconnectPolicy, err := retry.New(
		orDefault(cfg.ReconnectStrategy, retry.Exponential),
		orDurationDefault(cfg.ReconnectDelay, time.Second),
		orDurationDefault(cfg.ReconnectMaxDelay, 30*time.Second),
		cfg.MaxReconnectAttempts,
		cfg.ReconnectJitter,
	)
	if err != nil {
		return nil, err
	}

	connCfg := conn.Config{
		WSURL:                cfg.WSURL,
		WebhookURL:           cfg.WebhookURL,
		WalletAddress:        cfg.WalletAddress,
		ConnectionTimeout:    orDurationDefault(cfg.ConnectionTimeout, 10*time.Second),
		MessageTimeout:       orDurationDefault(cfg.MessageTimeout, 30*time.Second),
		MaxMessageSize:       orIntDefault(cfg.MaxMessageSize, frame.MaxFrameSize),
		Reconnect:            cfg.Reconnect,
		ReconnectPolicy:      reconnectPolicy,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,

		AllowCorrelationFallback: cfg.AllowCorrelationFallback,
	}
	connCfg.RateLimit.Rate = orFloatDefault(cfg.MaxMessagesPerSecond, 10)
	connCfg.RateLimit.Burst = orFloatDefault(cfg.MaxMessagesPerSecond, 10)

	c.conn = conn.New(connCfg, c.logger, c.bus, c.metrics, sgn)

	var dedupCache *dedup.Cache
	if cfg.EnableMessageDeduplication {
		dedupCache = dedup.New(
			orDurationDefault(cfg.MessageDedupeTTL, 60*time.Second),
			orIntDefault(cfg.MessageDedupeMaxSize, 10000),
		)
	} else {
		dedupCache = dedup.Disabled()
	}

	var verifier *signature.Verifier
	if cfg.ValidateSignatures {
		trusted := make(map[string]bool, len(cfg.TrustedAgentAddresses))
		for _, a := range cfg.TrustedAgentAddresses {
			trusted[a] = true
		}
		requireFor := make(map[string]bool, len(cfg.RequireSignaturesFor))
		for _, k := range cfg.RequireSignaturesFor {
			requireFor[k] = true
		}
		verifier = signature.New(signature.Config{
			TrustedAddresses: trusted,
			RequireFor:       requireFor,
			StrictMode:       cfg.StrictSignatureValidation,
		})
	}

	c.pipeline = pipeline.New(pipeline.Options{
		Dedup:    dedupCache,
		Verifier: verifier,
		Metrics:  c.metrics,
		Logger:   c.logger,
		Bus:      c.bus,
		Conn:     c.conn,
	})
	c.conn.OnInbound = c.pipeline.Process
	c.conn.ClearDedup = c.pipeline.ClearDedup

	if cfg.WebhookURL != "" {
		webhookRetry, err := retry.New(
			orDefault(cfg.WebhookRetryStrategy, retry.Exponential),
			orDurationDefault(cfg.WebhookRetryBaseDelay, time.Second),
			orDurationDefault(cfg.WebhookRetryMaxDelay, 30*time.Second),
			orIntDefault(cfg.WebhookRetries, 3),
			cfg.WebhookRetryJitter,
		)
		if err != nil {
			return nil, err
		}

		var filter map[webhook.EventKind]bool
		if len(cfg.WebhookEventTypes) > 0 {
			filter = make(map[webhook.EventKind]bool, len(cfg.WebhookEventTypes))
			for _, k := range cfg.WebhookEventTypes {
				filter[webhook.EventKind(k)] = true
			}
		}

		c.webhook = webhook.New(webhook.Config{
			URL:           cfg.WebhookURL,
			Headers:       cfg.WebhookHeaders,
			QueueCap:      orIntDefault(cfg.WebhookQueueCap, 1000),
			QueuePolicy:   queue.DropOldest,
			Retry:         webhookRetry,
			AllowInsecure: cfg.AllowInsecureWebhooks,
			EventTypeFilter: filter,
			Breaker: breaker.Config{
				FailureThreshold: orIntDefault(cfg.BreakerFailureThreshold, 5),
				SuccessThreshold: orIntDefault(cfg.BreakerSuccessThreshold, 2),
				OpenTimeout:      orDurationDefault(cfg.BreakerOpenTimeout, 60*time.Second),
				Window:           orDurationDefault(cfg.BreakerWindow, 60*time.Second),
			},
			TimeoutMs: orDurationDefault(cfg.WebhookTimeout, 10*time.Second),
		}, c.bus, c.logger, c.metrics)
	}

	c.wireWebhookForwarding()
	c.wireAutoJoin()

	return c, nil
}

// wireWebhookForwarding subscribes to the pipeline/connection events the
// webhook enum names (spec.md §6) and forwards each to the webhook engine.
// Handlers themselves never perform webhook I/O (spec.md §4.J); only the
// facade does, per that same section's final paragraph.
func (c *Client) wireWebhookForwarding() {
	if c.webhook == nil {
		return
	}
	forward := func(kind webhook.EventKind) events.Handler {
		return func(payload any) { _ = c.webhook.Enqueue(kind, payload, nil) }
	}
	c.bus.On("message", forward(webhook.EventMessage))
	c.bus.On("task", forward(webhook.EventTask))
	c.bus.On("agent:response", forward(webhook.EventTaskResponse))
	c.bus.On("agent:selected", forward(webhook.EventAgentSelected))
	c.bus.On("server:error", forward(webhook.EventError))
	c.bus.On("message:error", forward(webhook.EventError))
	c.bus.On("state", forward(webhook.EventConnectionState))
	c.bus.On("auth:success", forward(webhook.EventAuthState))
	c.bus.On("auth:error", forward(webhook.EventAuthState))
}

// wireAutoJoin subscribes rooms named in auto_join_rooms once the auth
// handshake completes.
func (c *Client) wireAutoJoin() {
	if len(c.cfg.AutoJoinRooms) == 0 {
		return
	}
	c.bus.On("auth:success", func(any) {
		for _, room := range c.cfg.AutoJoinRooms {
			_ = c.conn.Send(context.Background(), &frame.Frame{Kind: frame.KindSubscribe, Room: room})
		}
	})
}

// Connect opens the transport and runs the auth handshake, per spec.md
// §4.I's connect protocol.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Disconnect tears down the connection intentionally, per spec.md §4.I.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Send writes f to the transport, per spec.md §4.I's outbound send
// algorithm.
func (c *Client) Send(ctx context.Context, f *Frame) error {
	return c.conn.Send(ctx, f)
}

// Request sends f and waits up to timeout for a reply correlated by id.
func (c *Client) Request(ctx context.Context, f *Frame, timeout time.Duration) (*Frame, error) {
	return c.conn.Request(ctx, f, timeout)
}

// ListRooms implements spec.md §9's second Open Question as fire-and-
// forget: it sends the list_rooms frame and returns immediately. The
// eventual reply surfaces as a rooms:updated event (internal/pipeline's
// handleListRooms) rather than as this call's return value.
func (c *Client) ListRooms(ctx context.Context) error {
	return c.conn.Send(ctx, &frame.Frame{Kind: frame.KindListRooms})
}

// Subscribe joins room.
func (c *Client) Subscribe(ctx context.Context, room string) error {
	return c.conn.Send(ctx, &frame.Frame{Kind: frame.KindSubscribe, Room: room})
}

// Unsubscribe leaves room.
func (c *Client) Unsubscribe(ctx context.Context, room string) error {
	return c.conn.Send(ctx, &frame.Frame{Kind: frame.KindUnsubscribe, Room: room})
}

// EnqueueWebhook pushes a webhook event directly, for callers that want to
// forward application-level events alongside the ones the facade wires
// automatically. Returns nil with no effect if no webhook URL is
// configured.
func (c *Client) EnqueueWebhook(kind string, data any, meta map[string]any) error {
	if c.webhook == nil {
		return nil
	}
	return c.webhook.Enqueue(webhook.EventKind(kind), data, meta)
}

// ConfigureWebhook re-points the webhook engine at a new URL/headers,
// re-validating the URL immediately (spec.md §4.K).
func (c *Client) ConfigureWebhook(ctx context.Context, url string, headers map[string]string) error {
	if c.webhook == nil {
		return xerrors.New(xerrors.CodeConfiguration, "no webhook engine configured; set webhook_url first")
	}
	return c.webhook.Configure(ctx, url, headers)
}

// ConfigureBreaker replaces the webhook engine's circuit breaker, discarding
// its current failure/success counters (spec.md §4.L).
func (c *Client) ConfigureBreaker(cfg breaker.Config) error {
	if c.webhook == nil {
		return xerrors.New(xerrors.CodeConfiguration, "no webhook engine configured; set webhook_url first")
	}
	c.webhook.SetBreaker(cfg)
	return nil
}

// ConfigureRetry replaces the retry policy governing future webhook delivery
// failures (spec.md §4.L). Already-queued items keep whatever nextRetry
// their previous attempt count computed.
func (c *Client) ConfigureRetry(strategy retry.Strategy, base, max time.Duration, maxAttempts int, jitter bool) error {
	if c.webhook == nil {
		return xerrors.New(xerrors.CodeConfiguration, "no webhook engine configured; set webhook_url first")
	}
	p, err := retry.New(strategy, base, max, maxAttempts, jitter)
	if err != nil {
		return err
	}
	c.webhook.SetRetry(p)
	return nil
}

// Metrics returns a point-in-time snapshot of every counter and gauge the
// client tracks (spec.md §4.L). Safe to call whether or not metrics_enabled
// was set; a disabled client returns the zero Snapshot.
func (c *Client) Metrics() metrics.Snapshot {
	return c.metrics.Snapshot()
}

// RetryFailedWebhooks resets attempts on every queued webhook item
// currently carrying an error, so they are retried immediately.
func (c *Client) RetryFailedWebhooks() {
	if c.webhook != nil {
		c.webhook.RetryFailed()
	}
}

// ClearWebhookQueue drops every queued webhook item without delivering it.
func (c *Client) ClearWebhookQueue() {
	if c.webhook != nil {
		c.webhook.ClearQueue()
	}
}

// On subscribes fn to event and returns a function that removes it. See
// spec.md §4.I/§4.K for the full event catalog.
func (c *Client) On(event string, fn func(payload any)) events.Unsubscribe {
	return c.bus.On(event, fn)
}

// Rooms returns a snapshot of rooms this client believes it has joined.
func (c *Client) Rooms() []string { return c.pipeline.Rooms().List() }

// Agents returns a snapshot of the last-known remote agent registry.
func (c *Client) Agents() []pipeline.AgentInfo { return c.pipeline.Agents().All() }

// State reports the connection engine's current lifecycle phase.
func (c *Client) State() conn.State { return c.conn.State() }

// Destroy cascades shutdown to every owned component: it disconnects the
// transport, stops the webhook processor, clears every event subscription,
// and releases the signer's key material. Per spec.md §5's cancellation
// rules, this is safe to call once; using the Client afterward is a
// contract violation, not a recovered error.
func (c *Client) Destroy() {
	c.conn.Disconnect()
	if c.webhook != nil {
		c.webhook.Destroy()
	}
	if c.wallet != nil {
		c.wallet.Release()
	}
	c.bus.Clear()
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

func orDefault(v retry.Strategy, def retry.Strategy) retry.Strategy {
	if v == "" {
		return def
	}
	return v
}

func orDurationDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orIntDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orFloatDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
