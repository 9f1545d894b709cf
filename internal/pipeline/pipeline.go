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

// Package pipeline implements the message pipeline (spec component J): the
// dedup gate, the signature gate, and dispatch to a static, kind-keyed
// handler registry. It is a small routing façade in the shape of
// etalazz-vsa's plugin/tfd/pipeline.go (Pipeline.Handle classifying an
// envelope by channel and routing to the S-lane or V-lane): this Pipeline
// classifies an inbound frame by kind and routes it to the one handler
// registered for that kind, instead of building a branching dispatcher
// inline in the connection engine.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/conn"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/dedup"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/events"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/frame"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/logging"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/metrics"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/signature"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// Connection is the subset of the connection engine handlers are allowed to
// touch: signing the auth challenge, flipping the authenticated flag,
// sending frames, and reading the current state. Defined here rather than
// depending on *conn.Engine's full surface so handler tests can supply a
// stub.
type Connection interface {
	State() conn.State
	Send(ctx context.Context, f *frame.Frame) error
	HandleChallenge(challenge []byte) error
	MarkAuthenticated()
}

// Context is handed to every handler; it bears exactly the capabilities
// spec.md §4.J names: an event emitter, a logger, the connection handle
// (state getters/updaters plus send), and the room/agent registries.
type Context struct {
	Emit   func(event string, payload any)
	Logger logging.Logger
	Conn   Connection
	Rooms  *RoomRegistry
	Agents *AgentRegistry
}

// Handler processes one inbound frame of the kind it is registered for.
// Returning an error does not stop the pipeline; Process reports it via
// message:error and continues.
type Handler func(ctx *Context, f *frame.Frame) error

// Pipeline consumes frames the connection engine did not match to a
// pending request.
type Pipeline struct {
	hctx     *Context
	dedup    *dedup.Cache
	verifier *signature.Verifier
	metrics  *metrics.Collectors

	mu       sync.RWMutex
	handlers map[frame.Kind]Handler
}

// Options configures a new Pipeline.
type Options struct {
	Dedup    *dedup.Cache     // nil means deduplication is disabled
	Verifier *signature.Verifier // nil means signatures are never checked
	Metrics  *metrics.Collectors
	Logger   logging.Logger
	Bus      *events.Bus
	Conn     Connection
	Rooms    *RoomRegistry
	Agents   *AgentRegistry
}

// New builds a Pipeline seeded with the SDK's default handler set (spec.md
// §4.J: challenge, auth-success, agents, task-response, and the
// subscribe/unsubscribe ack handlers resolving spec.md §9's third Open
// Question).
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = logging.Noop{}
	}
	if opts.Dedup == nil {
		opts.Dedup = dedup.Disabled()
	}
	if opts.Rooms == nil {
		opts.Rooms = NewRoomRegistry()
	}
	if opts.Agents == nil {
		opts.Agents = NewAgentRegistry()
	}

	hctx := &Context{
		Logger: opts.Logger,
		Conn:   opts.Conn,
		Rooms:  opts.Rooms,
		Agents: opts.Agents,
	}
	if opts.Bus != nil {
		hctx.Emit = opts.Bus.Emit
	} else {
		hctx.Emit = func(string, any) {}
	}

	p := &Pipeline{
		hctx:     hctx,
		dedup:    opts.Dedup,
		verifier: opts.Verifier,
		metrics:  opts.Metrics,
		handlers: DefaultHandlers(),
	}
	return p
}

// RegisterHandler overrides (or adds) the handler for kind. Callers may use
// this to extend the default registry with application-specific kinds.
func (p *Pipeline) RegisterHandler(kind frame.Kind, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

// Rooms returns the pipeline's room registry.
func (p *Pipeline) Rooms() *RoomRegistry { return p.hctx.Rooms }

// Agents returns the pipeline's agent registry.
func (p *Pipeline) Agents() *AgentRegistry { return p.hctx.Agents }

// Process implements spec.md §4.J's three ordered steps for a frame that
// was not matched to a pending request.
func (p *Pipeline) Process(f *frame.Frame) {
	if p.dedupDrop(f) {
		return
	}
	if p.signatureDrop(f) {
		return
	}
	p.dispatch(f)
}

func (p *Pipeline) dedupDrop(f *frame.Frame) bool {
	if !p.dedup.Enabled() || f.ID == "" {
		return false
	}
	if p.dedup.Has(f.ID) {
		p.hctx.Emit("message:duplicate", f)
		if p.metrics != nil {
			p.metrics.IncDedupDrop()
		}
		return true
	}
	p.dedup.Add(f.ID)
	return false
}

func (p *Pipeline) signatureDrop(f *frame.Frame) bool {
	if p.verifier == nil {
		return false
	}
	canonical, err := frame.Canonical(f)
	if err != nil {
		p.hctx.Emit("message:error", err)
		return true
	}
	result := p.verifier.Verify(string(f.Kind), canonical, []byte(f.Signature), []byte(f.PublicKey), []byte(f.From))
	if result.Missing && !result.Valid {
		p.hctx.Emit("message:error", xerrors.New(xerrors.CodeSignatureVerification, result.Reason))
		return true
	}
	if result.Missing {
		// Missing-but-allowed: spec.md §4.J step 2 says continue.
		return false
	}
	if !result.Valid {
		p.hctx.Emit("message:error", xerrors.New(xerrors.CodeSignatureVerification, result.Reason))
		return true
	}
	return false
}

// ClearDedup empties the dedup cache; wired to the connection engine's
// disconnect path.
func (p *Pipeline) ClearDedup() {
	if p.dedup != nil {
		p.dedup.Clear()
	}
}

func (p *Pipeline) dispatch(f *frame.Frame) {
	p.mu.RLock()
	h, ok := p.handlers[f.Kind]
	p.mu.RUnlock()
	if !ok {
		return
	}
	if err := h(p.hctx, f); err != nil {
		p.hctx.Emit("message:error", err)
	}
}

// decodeData unmarshals f.Data into v, tolerating an absent payload.
func decodeData(f *frame.Frame, v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}
