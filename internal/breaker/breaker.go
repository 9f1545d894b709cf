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

// Package breaker implements the three-state circuit breaker guarding
// webhook delivery (spec component F). Its Allow/RecordSuccess/RecordFailure
// split is grounded on the webhook sender found in other_examples
// (dmitrymomot-saaskit's pkg/webhook), whose Send() checks
// circuitBreaker.Allow() before dialing out and reports the outcome back
// with RecordSuccess/RecordFailure; Execute below composes those three
// calls into the single-call form spec.md §4.F describes.
package breaker

import (
	"sync"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// State is the breaker's current phase.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

// Config parameterizes the breaker. Zero values fall back to spec.md §4.F's
// defaults.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	Window           time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 60 * time.Second
	}
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	return c
}

// Breaker is a thread-safe circuit breaker.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	state  State
	fails  []time.Time
	succs  int
	nextAt time.Time

	now func() time.Time
}

// New creates a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), state: Closed, now: time.Now}
}

// State reports the breaker's current phase. Note this does not perform the
// Open -> HalfOpen timeout transition; only Allow/Execute do.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether an operation may proceed, advancing Open -> HalfOpen
// when the timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowLocked()
}

func (b *Breaker) allowLocked() bool {
	switch b.state {
	case Closed:
		return true
	case Open:
		if !b.now().Before(b.nextAt) {
			b.state = HalfOpen
			b.succs = 0
			return true
		}
		return false
	default: // HalfOpen
		return true
	}
}

// RecordSuccess reports a successful invocation.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		if len(b.fails) > 0 {
			b.fails = b.fails[1:]
		}
	case HalfOpen:
		b.succs++
		if b.succs >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.fails = nil
			b.succs = 0
		}
	}
}

// RecordFailure reports a failed invocation.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	switch b.state {
	case Closed:
		b.fails = append(b.fails, now)
		cutoff := now.Add(-b.cfg.Window)
		kept := b.fails[:0]
		for _, t := range b.fails {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		b.fails = kept
		if len(b.fails) >= b.cfg.FailureThreshold {
			b.trip(now)
		}
	case HalfOpen:
		b.trip(now)
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = Open
	b.nextAt = now.Add(b.cfg.OpenTimeout)
	b.succs = 0
}

// Execute runs op only if Allow() permits it, and records the outcome.
// Returns a typed CircuitBreakerError without invoking op when the breaker
// is Open.
func (b *Breaker) Execute(op func() error) error {
	if !b.Allow() {
		return xerrors.New(xerrors.CodeCircuitBreaker, "circuit breaker is open")
	}
	err := op()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Reset force-returns the breaker to Closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.fails = nil
	b.succs = 0
	b.nextAt = time.Time{}
}
