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

// Package ratelimit implements the token-bucket admission control on
// outbound frames (spec component C). It is adapted from
// pkg/vsa/vsa.go's mutex-guarded scalar/vector accounting: that file's
// single RWMutex and combined check-and-increment under the write lock
// (TryConsume) carries over directly, since a single Bucket here plays the
// same "one stateful counter behind one lock" role a single VSA key used
// to play. The root vsa.go's striped-atomic, per-CPU-pinned variant is not
// adapted — it exists to collapse contention across thousands of
// concurrently hot per-key counters in a multi-tenant server, a problem
// this SDK, which runs one limiter per connection, does not have.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// Bucket is a thread-safe token bucket: tokens refill continuously at Rate
// per second up to a ceiling of Burst, and each send consumes one token.
type Bucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      float64 // max tokens
	tokens     float64
	lastRefill time.Time

	now func() time.Time // overridable for tests
}

// New creates a Bucket. rate must be >= 1 token/sec, burst >= 1.
func New(rate float64, burst float64) *Bucket {
	if rate < 1 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Bucket{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}

// TryConsume refills the bucket then, if at least one token is available,
// consumes it and returns true. Non-blocking.
func (b *Bucket) TryConsume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// pollInterval bounds the sleep between TryConsume retries in Consume:
// min(1/rate, 100ms), per spec.md §4.C.
func (b *Bucket) pollInterval() time.Duration {
	b.mu.Lock()
	rate := b.rate
	b.mu.Unlock()
	interval := time.Duration(float64(time.Second) / rate)
	if interval > 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	return interval
}

// Consume blocks, retrying TryConsume, until a token is acquired, ctx is
// done, or timeout elapses (timeout <= 0 means no deadline beyond ctx).
// Returns a CodeRateLimit error on timeout.
func (b *Bucket) Consume(ctx context.Context, timeout time.Duration) error {
	if b.TryConsume() {
		return nil
	}

	var deadlineCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadlineCh = timer.C
	}

	interval := b.pollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return xerrors.Wrap(xerrors.CodeRateLimit, "rate limit wait canceled", ctx.Err())
		case <-deadlineCh:
			return xerrors.New(xerrors.CodeRateLimit, "timed out waiting for rate limit token")
		case <-ticker.C:
			if b.TryConsume() {
				return nil
			}
		}
	}
}

// Reset restores the bucket to full capacity.
func (b *Bucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.burst
	b.lastRefill = b.now()
}

// Tokens reports the current (refilled) token count. Exposed for metrics
// and tests.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}
