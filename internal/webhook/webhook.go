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

// Package webhook implements the webhook delivery engine (spec component
// K): internal/queue (B) plus internal/retry (E) plus internal/breaker (F)
// plus internal/ssrf (G) wrapped around a single-runner HTTP POST loop. Its
// processor shape is grounded on other_examples' dmitrymomot-saaskit
// webhook sender: one goroutine owns delivery, Allow()/RecordSuccess()/
// RecordFailure() gate and report through the breaker, and a failed item is
// rescheduled rather than dropped until its retry budget is exhausted. The
// rotate-to-tail-on-retry behavior (avoiding head-of-line blocking) is
// spec.md §4.K's own addition, layered on top of that shape.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/breaker"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/events"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/logging"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/metrics"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/queue"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/retry"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/ssrf"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// EventKind is the closed set of webhook event kinds (spec.md §6).
type EventKind string

const (
	EventMessage         EventKind = "message"
	EventTask            EventKind = "task"
	EventTaskResponse    EventKind = "task_response"
	EventAgentSelected   EventKind = "agent_selected"
	EventError           EventKind = "error"
	EventConnectionState EventKind = "connection_state"
	EventAuthState       EventKind = "auth_state"
)

var allowedEventKinds = map[EventKind]bool{
	EventMessage: true, EventTask: true, EventTaskResponse: true,
	EventAgentSelected: true, EventError: true, EventConnectionState: true,
	EventAuthState: true,
}

// Payload is the JSON body posted to the webhook URL (spec.md §6).
type Payload struct {
	Event     EventKind      `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      any            `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// item is a queued webhook delivery attempt (spec.md §3's "Webhook item").
type item struct {
	payload    Payload
	attempts   int
	lastAttempt time.Time
	nextRetry  time.Time
	lastError  error
}

// Config configures the engine per spec.md §4.K / §6.
type Config struct {
	URL                string
	Headers            map[string]string
	QueueCap           int
	QueuePolicy        queue.Policy
	Retry              retry.Policy
	Breaker            breaker.Config
	TimeoutMs          time.Duration
	AllowInsecure      bool
	EventTypeFilter    map[EventKind]bool // nil means all event kinds pass
	HTTPClient         *http.Client
}

// Engine is the webhook delivery engine (spec component K).
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	q         *queue.Bounded[*item]
	breaker   *breaker.Breaker
	client    *http.Client
	bus       *events.Bus
	logger    logging.Logger
	metrics   *metrics.Collectors
	destroyed bool
	wake      chan struct{}
	now       func() time.Time
}

// New constructs an Engine. Configure must be called (or Config.URL set
// non-empty at construction) before any item is delivered.
func New(cfg Config, bus *events.Bus, logger logging.Logger, m *metrics.Collectors) *Engine {
	if logger == nil {
		logger = logging.Noop{}
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 1000
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: ssrf.Transport(cfg.AllowInsecure)}
	}

	e := &Engine{
		cfg:     cfg,
		q:       queue.New[*item](cfg.QueueCap, cfg.QueuePolicy),
		breaker: breaker.New(cfg.Breaker),
		client:  client,
		bus:     bus,
		logger:  logger,
		metrics: m,
		wake:    make(chan struct{}, 1),
		now:     time.Now,
	}
	go e.run()
	return e
}

func (e *Engine) emit(event string, payload any) {
	if e.bus != nil {
		e.bus.Emit(event, payload)
	}
}

// Configure replaces the target URL and headers, re-validating the URL
// immediately per spec.md §4.K.
func (e *Engine) Configure(ctx context.Context, url string, headers map[string]string) error {
	if err := ssrf.Validate(ctx, url, e.cfg.AllowInsecure); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg.URL = url
	e.cfg.Headers = headers
	e.mu.Unlock()
	return nil
}

// SetRetry replaces the retry policy applied to future delivery failures.
// Items already queued keep whatever nextRetry their current attempt count
// computed; only the policy used for the next failure changes.
func (e *Engine) SetRetry(p retry.Policy) {
	e.mu.Lock()
	e.cfg.Retry = p
	e.mu.Unlock()
}

// SetBreaker replaces the circuit breaker wholesale, discarding any
// in-flight failure/success counters. Grounded on breaker.New's own
// validated-config-plus-defaults constructor.
func (e *Engine) SetBreaker(cfg breaker.Config) {
	newBreaker := breaker.New(cfg)
	e.mu.Lock()
	e.cfg.Breaker = cfg
	e.breaker = newBreaker
	e.mu.Unlock()
}

// Enqueue implements spec.md §4.K's enqueue algorithm. meta is optional
// and becomes the payload's metadata field.
func (e *Engine) Enqueue(kind EventKind, data any, meta map[string]any) error {
	if !allowedEventKinds[kind] {
		return xerrors.New(xerrors.CodeValidation, "unknown webhook event kind: "+string(kind))
	}

	e.mu.Lock()
	filter := e.cfg.EventTypeFilter
	destroyed := e.destroyed
	e.mu.Unlock()
	if destroyed {
		return nil
	}
	if filter != nil && !filter[kind] {
		return nil
	}

	p := Payload{
		Event:     kind,
		Timestamp: e.now().UTC().Format(time.RFC3339Nano),
		Data:      data,
		Metadata:  meta,
	}
	it := &item{payload: p}
	e.q.Push(it)
	e.kick()
	return nil
}

func (e *Engine) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// QueueSize reports the number of items currently queued.
func (e *Engine) QueueSize() int { return e.q.Size() }

// ClearQueue drops every queued item without delivering it.
func (e *Engine) ClearQueue() { e.q.Clear() }

// RetryFailed resets attempts/errors on every item currently carrying a
// recorded error, so they are retried immediately.
func (e *Engine) RetryFailed() {
	for _, it := range e.q.ToArray() {
		if it.lastError != nil {
			it.attempts = 0
			it.lastError = nil
			it.nextRetry = time.Time{}
		}
	}
	e.kick()
}

// Destroy stops the processor and clears the queue. Further Enqueue calls
// are no-ops.
func (e *Engine) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
	e.q.Clear()
	e.kick()
}

func (e *Engine) isDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// run is the engine's single processor loop (spec.md §4.K).
func (e *Engine) run() {
	for {
		if e.isDestroyed() {
			return
		}

		head, ok := e.q.Peek()
		if !ok {
			<-e.wake
			continue
		}

		if wait := time.Until(head.nextRetry); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-e.wake:
				timer.Stop()
			}
			continue
		}

		e.mu.Lock()
		url, headers, allowInsecure := e.cfg.URL, e.cfg.Headers, e.cfg.AllowInsecure
		activeBreaker := e.breaker
		e.mu.Unlock()

		err := activeBreaker.Execute(func() error {
			return e.deliver(head, url, headers, allowInsecure)
		})

		if err != nil {
			if xerrors.Is(err, xerrors.CodeCircuitBreaker) {
				if e.metrics != nil {
					e.metrics.SetBreakerState(2)
				}
				// Pause until the breaker lets a probe through again.
				timer := time.NewTimer(time.Second)
				select {
				case <-timer.C:
				case <-e.wake:
					timer.Stop()
				}
				continue
			}
			e.handleFailure(head, err)
			continue
		}

		e.q.Shift()
		if e.metrics != nil {
			e.metrics.IncWebhookAttempt("success")
			e.metrics.SetBreakerState(0)
		}
		e.emit("webhook:sent", map[string]any{"payload": head.payload, "url": url})
		e.emit("webhook:success", map[string]any{"payload": head.payload, "url": url})
	}
}

func (e *Engine) handleFailure(head *item, err error) {
	head.attempts++
	head.lastAttempt = e.now()
	head.lastError = err

	if !e.cfg.Retry.ShouldRetry(head.attempts) {
		e.q.Shift()
		if e.metrics != nil {
			e.metrics.IncWebhookAttempt("failure")
		}
		e.emit("webhook:error", map[string]any{"error": err, "url": e.cfg.URL})
		return
	}

	delay, derr := e.cfg.Retry.Delay(head.attempts)
	if derr != nil {
		delay = e.cfg.Retry.BaseDelay
	}
	head.nextRetry = e.now().Add(delay)
	if e.metrics != nil {
		e.metrics.IncWebhookAttempt("retry")
	}
	e.emit("webhook:retry", map[string]any{"attempt": head.attempts, "url": e.cfg.URL})
	e.q.RotateToTail()
}

// deliver performs the SSRF check and the HTTP POST for one item. Called
// only from inside the breaker's Execute.
func (e *Engine) deliver(it *item, url string, headers map[string]string, allowInsecure bool) error {
	if url == "" {
		return xerrors.New(xerrors.CodeWebhook, "no webhook URL configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeoutOr(10*time.Second))
	defer cancel()

	if err := ssrf.Validate(ctx, url, allowInsecure); err != nil {
		return err
	}

	body, err := json.Marshal(it.payload)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeWebhook, "payload does not serialize", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeWebhook, "could not build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return xerrors.Wrap(xerrors.CodeTimeout, "webhook request timed out", err)
		}
		return xerrors.Wrap(xerrors.CodeWebhook, "webhook request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return xerrors.New(xerrors.CodeWebhook, fmt.Sprintf("webhook returned non-2xx status: %d", resp.StatusCode))
	}
	return nil
}

func (e *Engine) timeoutOr(def time.Duration) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.TimeoutMs > 0 {
		return e.cfg.TimeoutMs
	}
	return def
}
