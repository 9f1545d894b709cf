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

// Package conn implements the connection engine (spec component I): it
// owns the WebSocket transport, the auth handshake, the outbound
// rate-limited write path, request/response correlation, heartbeat, and
// reconnect. It is grounded on the read-pump/pending-map/correlation-ID
// shape of other_examples' OpenClaw gateway client
// (internal/client/ws.go): a background goroutine owns the socket read
// loop and delivers frames either to a waiting pending-request channel or
// onward to a handler, while writes happen under a mutex from whichever
// goroutine calls Send.
package conn

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/events"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/frame"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/logging"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/metrics"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/queue"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/ratelimit"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/retry"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// State is the engine's connection lifecycle phase.
type State int

const (
	Idle State = iota
	Connecting
	Authenticating
	Ready
	Disconnecting
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	case Disconnecting:
		return "disconnecting"
	case Reconnecting:
		return "reconnecting"
	default:
		return "idle"
	}
}

// Implementation defaults for timing constants the distilled spec names but
// does not fix numerically.
const (
	DefaultCachedAuthWait = 2 * time.Second
	DefaultAuthTimeout    = 15 * time.Second
	DefaultPingInterval   = 25 * time.Second
)

// Socket is the subset of *websocket.Conn the engine depends on, so tests
// can substitute an in-memory double without dialing a real network socket.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

// Dialer opens a Socket to url with the given handshake timeout.
type Dialer func(ctx context.Context, rawURL string, handshakeTimeout time.Duration) (Socket, error)

func defaultDialer(ctx context.Context, rawURL string, handshakeTimeout time.Duration) (Socket, error) {
	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	c, _, err := d.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConnection, "websocket dial failed", err)
	}
	return c, nil
}

type pendingRequest struct {
	replyCh   chan *frame.Frame
	errCh     chan error
	timer     *time.Timer
	room      string
	createdAt time.Time
}

// Signer answers the auth challenge by signing arbitrary bytes and
// reporting its own address. The facade supplies an implementation backed
// by internal/signature; tests may supply a stub.
type Signer interface {
	Address() string
	Sign(msg []byte) ([]byte, error)
}

// Config is the subset of client configuration the engine needs.
type Config struct {
	WSURL             string
	WebhookURL        string
	WalletAddress     string
	ConnectionTimeout time.Duration
	MessageTimeout    time.Duration
	MaxMessageSize    int
	RateLimit         struct {
		Rate, Burst float64
	}
	Reconnect            bool
	ReconnectPolicy       retry.Policy
	MaxReconnectAttempts int
	PingInterval         time.Duration
	AuthTimeout          time.Duration
	CachedAuthWait       time.Duration

	// AllowCorrelationFallback resolves spec.md §9 Open Question 1: when
	// set, a message or task_response frame carrying no id resolves the
	// oldest pending request sharing its room, within a 60s window. Off
	// by default so a server that always echoes id never takes the
	// downgraded path.
	AllowCorrelationFallback bool
}

// correlationFallbackWindow bounds how long a pending request stays
// eligible for the id-less fallback match.
const correlationFallbackWindow = 60 * time.Second

// Engine is the connection engine. Construct with New, then call Connect.
type Engine struct {
	cfg     Config
	logger  logging.Logger
	bus     *events.Bus
	metrics *metrics.Collectors
	signer  Signer
	dial    Dialer

	limiter *ratelimit.Bucket

	mu                    sync.Mutex
	state                 State
	sock                  Socket
	pending               map[string]*pendingRequest
	outboundQueue         *queue.Bounded[*frame.Frame]
	reconnectAttempt      int
	intentionalDisconnect atomic.Bool
	authenticated         atomic.Bool
	lastError             error
	stopHeartbeat         chan struct{}
	readPumpDone          chan struct{}

	// OnInbound receives frames not matched to a pending request; wired to
	// the message pipeline by the facade.
	OnInbound func(*frame.Frame)
	// ClearDedup is called on disconnect, per spec.md §4.I; wired by the
	// facade to the pipeline's dedup cache.
	ClearDedup func()
}

// New constructs an Engine in the Idle state.
func New(cfg Config, logger logging.Logger, bus *events.Bus, m *metrics.Collectors, signer Signer) *Engine {
	if logger == nil {
		logger = logging.Noop{}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.CachedAuthWait <= 0 {
		cfg.CachedAuthWait = DefaultCachedAuthWait
	}
	rate := cfg.RateLimit.Rate
	burst := cfg.RateLimit.Burst
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = 10
	}
	return &Engine{
		cfg:           cfg,
		logger:        logger,
		bus:           bus,
		metrics:       m,
		signer:        signer,
		dial:          defaultDialer,
		limiter:       ratelimit.New(rate, burst),
		state:         Idle,
		pending:       make(map[string]*pendingRequest),
		outboundQueue: queue.New[*frame.Frame](1000, queue.DropOldest),
	}
}

// SetDialer overrides the Socket dialer; exposed for tests.
func (e *Engine) SetDialer(d Dialer) { e.dial = d }

func (e *Engine) emit(event string, payload any) {
	if e.bus != nil {
		e.bus.Emit(event, payload)
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.emit("state", s)
	if e.metrics != nil {
		e.metrics.SetConnectionState([]string{"idle", "connecting", "authenticating", "ready", "disconnecting", "reconnecting"}, s.String())
	}
}

// State reports the engine's current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) targetURL() (string, error) {
	u, err := url.Parse(e.cfg.WSURL)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeConfiguration, "invalid ws_url", err)
	}
	if e.cfg.WebhookURL != "" {
		q := u.Query()
		q.Set("webhookUrl", e.cfg.WebhookURL)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect implements spec.md §4.I's connect protocol.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.sock != nil {
		_ = e.sock.Close()
		e.sock = nil
	}
	e.intentionalDisconnect.Store(false)
	e.mu.Unlock()

	target, err := e.targetURL()
	if err != nil {
		return err
	}

	e.setState(Connecting)
	sock, err := e.dial(ctx, target, e.cfg.ConnectionTimeout)
	if err != nil {
		e.emit("error", err)
		return err
	}

	e.mu.Lock()
	e.sock = sock
	e.stopHeartbeat = make(chan struct{})
	e.readPumpDone = make(chan struct{})
	e.mu.Unlock()

	e.emit("open", nil)
	go e.heartbeatLoop()
	go e.readPump()

	if err := e.authenticate(ctx); err != nil {
		e.emit("auth:error", err)
		return err
	}

	e.drainOutbound()
	e.setState(Ready)
	e.emit("ready", nil)
	return nil
}

func (e *Engine) authenticate(ctx context.Context) error {
	if e.signer == nil {
		return nil
	}
	e.setState(Authenticating)

	if e.cfg.WalletAddress != "" {
		_ = e.writeFrame(&frame.Frame{Kind: frame.KindCheckCachedAuth, From: e.cfg.WalletAddress})
		e.emit("auth:challenge", nil)
		time.Sleep(e.cfg.CachedAuthWait)
		if e.authenticated.Load() {
			e.emit("auth:success", e.State())
			return nil
		}
	}

	if err := e.writeFrame(&frame.Frame{Kind: frame.KindRequestChallenge, From: e.signer.Address()}); err != nil {
		return err
	}

	deadline := time.NewTimer(e.cfg.AuthTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return xerrors.Wrap(xerrors.CodeAuthentication, "auth canceled", ctx.Err())
		case <-deadline.C:
			return xerrors.New(xerrors.CodeAuthentication, "authentication timed out")
		case <-poll.C:
			if e.authenticated.Load() {
				e.emit("auth:success", e.State())
				return nil
			}
			if e.lastError != nil {
				return xerrors.Wrap(xerrors.CodeAuthentication, "transport error during authentication", e.lastError)
			}
		}
	}
}

// MarkAuthenticated is called by the challenge-response handler once an
// auth_success frame arrives.
func (e *Engine) MarkAuthenticated() { e.authenticated.Store(true) }

// HandleChallenge signs challenge and replies with an auth frame; invoked by
// the pipeline's challenge handler.
func (e *Engine) HandleChallenge(challenge []byte) error {
	if e.signer == nil {
		return xerrors.New(xerrors.CodeAuthentication, "no signer configured")
	}
	sig, err := e.signer.Sign(challenge)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeAuthentication, "failed to sign challenge", err)
	}
	return e.writeFrame(&frame.Frame{
		Kind:      frame.KindAuth,
		From:      e.signer.Address(),
		Signature: string(sig),
		PublicKey: e.signer.Address(),
	})
}

func (e *Engine) drainOutbound() {
	for {
		f, ok := e.outboundQueue.Shift()
		if !ok {
			return
		}
		_ = e.writeFrame(f)
	}
}

// Send implements spec.md §4.I's outbound send algorithm.
func (e *Engine) Send(ctx context.Context, f *frame.Frame) error {
	if err := frame.ValidateOutbound(f); err != nil {
		return err
	}

	state := e.State()
	if state != Ready {
		if e.cfg.Reconnect && (state == Reconnecting || state == Authenticating || state == Connecting) {
			e.outboundQueue.Push(f)
			return nil
		}
		return xerrors.New(xerrors.CodeConnection, "connection is not open")
	}

	frame.StampTimestamp(f)

	if err := e.limiter.Consume(ctx, e.cfg.MessageTimeout); err != nil {
		if e.metrics != nil {
			e.metrics.IncRateLimitThrottle()
		}
		return err
	}

	return e.writeFrame(f)
}

func (e *Engine) writeFrame(f *frame.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeMessage, "frame does not serialize", err)
	}
	if e.cfg.MaxMessageSize > 0 && len(data) > e.cfg.MaxMessageSize {
		return xerrors.New(xerrors.CodeMessage, "serialized frame exceeds max_message_size")
	}

	e.mu.Lock()
	sock := e.sock
	e.mu.Unlock()
	if sock == nil {
		return xerrors.New(xerrors.CodeConnection, "no active transport")
	}

	if err := sock.WriteMessage(websocket.TextMessage, data); err != nil {
		return xerrors.Wrap(xerrors.CodeConnection, "write failed", err)
	}
	e.emit("message:sent", f)
	if e.metrics != nil {
		e.metrics.IncMessageSent(string(f.Kind))
	}
	return nil
}

// Request implements spec.md §4.I's request/response correlation.
func (e *Engine) Request(ctx context.Context, f *frame.Frame, timeout time.Duration) (*frame.Frame, error) {
	if f.ID == "" {
		f.ID = newCorrelationID()
	}

	replyCh := make(chan *frame.Frame, 1)
	errCh := make(chan error, 1)
	timer := time.NewTimer(timeout)
	e.mu.Lock()
	e.pending[f.ID] = &pendingRequest{replyCh: replyCh, errCh: errCh, timer: timer, room: f.Room, createdAt: time.Now()}
	e.mu.Unlock()

	cleanup := func() {
		timer.Stop()
		e.mu.Lock()
		delete(e.pending, f.ID)
		e.mu.Unlock()
	}

	if err := e.Send(ctx, f); err != nil {
		cleanup()
		return nil, err
	}

	select {
	case reply := <-replyCh:
		cleanup()
		return reply, nil
	case err := <-errCh:
		cleanup()
		return nil, err
	case <-timer.C:
		cleanup()
		return nil, xerrors.New(xerrors.CodeTimeout, "request timed out waiting for reply")
	case <-ctx.Done():
		cleanup()
		return nil, xerrors.Wrap(xerrors.CodeTimeout, "request canceled", ctx.Err())
	}
}

// matchFallback finds the oldest pending request sharing room, created
// within correlationFallbackWindow. Used only when AllowCorrelationFallback
// is set and an inbound reply carries no id (spec.md §9 Open Question 1).
func (e *Engine) matchFallback(room string) (*pendingRequest, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-correlationFallbackWindow)
	var bestID string
	var best *pendingRequest
	for id, pr := range e.pending {
		if pr.room != room || pr.createdAt.Before(cutoff) {
			continue
		}
		if best == nil || pr.createdAt.Before(best.createdAt) {
			best, bestID = pr, id
		}
	}
	return best, bestID, best != nil
}

func (e *Engine) readPump() {
	defer close(e.readPumpDone)
	for {
		e.mu.Lock()
		sock := e.sock
		e.mu.Unlock()
		if sock == nil {
			return
		}

		_, data, err := sock.ReadMessage()
		if err != nil {
			e.mu.Lock()
			e.lastError = err
			e.mu.Unlock()
			e.handleClose(err)
			return
		}

		f, err := frame.ParseInbound(data)
		if err != nil {
			e.emit("message:error", err)
			continue
		}
		frame.ReclassifyInboundAck(f)
		e.emit("message:received", f)
		if e.metrics != nil {
			e.metrics.IncMessageReceived(string(f.Kind))
		}

		if f.ID != "" {
			e.mu.Lock()
			pr, ok := e.pending[f.ID]
			if ok {
				delete(e.pending, f.ID)
			}
			e.mu.Unlock()
			if ok {
				pr.timer.Stop()
				pr.replyCh <- f
				continue
			}
		} else if e.cfg.AllowCorrelationFallback && (f.Kind == frame.KindMessage || f.Kind == frame.KindTaskResponse) {
			if pr, id, ok := e.matchFallback(f.Room); ok {
				e.logger.Warn("resolved reply via correlation fallback; server did not echo id", "room", f.Room, "kind", f.Kind)
				pr.timer.Stop()
				e.mu.Lock()
				delete(e.pending, id)
				e.mu.Unlock()
				pr.replyCh <- f
				continue
			}
		}

		if e.OnInbound != nil {
			e.OnInbound(f)
		}
	}
}

func (e *Engine) heartbeatLoop() {
	ticker := time.NewTicker(e.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if e.State() == Ready {
				_ = e.writeFrame(&frame.Frame{Kind: frame.KindPing})
			}
		case <-e.stopHeartbeat:
			return
		}
	}
}

func (e *Engine) handleClose(cause error) {
	e.emit("close", cause)
	if e.intentionalDisconnect.Load() || !e.cfg.Reconnect {
		e.setState(Idle)
		return
	}
	go e.reconnectLoop()
}

func (e *Engine) reconnectLoop() {
	e.mu.Lock()
	e.reconnectAttempt++
	attempt := e.reconnectAttempt
	e.mu.Unlock()

	if !e.cfg.ReconnectPolicy.ShouldRetry(attempt) {
		e.emit("error", xerrors.New(xerrors.CodeConnection, "max reconnect attempts reached"))
		e.setState(Idle)
		return
	}

	delay, _ := e.cfg.ReconnectPolicy.Delay(attempt)
	e.setState(Reconnecting)
	e.emit("reconnecting", attempt)
	if e.metrics != nil {
		e.metrics.IncReconnect()
	}
	time.Sleep(delay)

	if err := e.Connect(context.Background()); err != nil {
		e.emit("error", err)
		go e.reconnectLoop()
		return
	}

	e.mu.Lock()
	e.reconnectAttempt = 0
	e.mu.Unlock()
	e.emit("reconnected", nil)
}

// Disconnect implements spec.md §4.I's disconnect algorithm.
func (e *Engine) Disconnect() {
	e.intentionalDisconnect.Store(true)
	e.setState(Disconnecting)

	e.mu.Lock()
	if e.stopHeartbeat != nil {
		close(e.stopHeartbeat)
		e.stopHeartbeat = nil
	}
	pending := e.pending
	e.pending = make(map[string]*pendingRequest)
	sock := e.sock
	e.sock = nil
	e.mu.Unlock()

	for _, pr := range pending {
		pr.timer.Stop()
		select {
		case pr.errCh <- xerrors.New(xerrors.CodeConnection, "connection closed"):
		default:
		}
	}

	if sock != nil {
		_ = sock.Close()
	}
	if e.ClearDedup != nil {
		e.ClearDedup()
	}
	e.outboundQueue.Clear()
	e.setState(Idle)
	e.emit("disconnect", nil)
}

func newCorrelationID() string {
	return uuid.New().String()
}
