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

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

func TestBucket_TryConsume_RespectsBurst(t *testing.T) {
	b := New(1, 3)
	clock := time.Now()
	b.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if !b.TryConsume() {
			t.Fatalf("expected burst token %d to be available", i)
		}
	}
	if b.TryConsume() {
		t.Fatalf("expected burst to be exhausted")
	}
}

func TestBucket_Refill_OverTime(t *testing.T) {
	b := New(10, 1) // 10 tokens/sec, burst 1
	clock := time.Now()
	b.now = func() time.Time { return clock }

	if !b.TryConsume() {
		t.Fatalf("expected initial token")
	}
	if b.TryConsume() {
		t.Fatalf("expected bucket to be empty immediately after consume")
	}

	clock = clock.Add(100 * time.Millisecond) // 1 token at 10/sec
	if !b.TryConsume() {
		t.Fatalf("expected refill after 100ms at rate=10/sec")
	}
}

func TestBucket_Consume_TimesOut(t *testing.T) {
	b := New(1, 1)
	b.TryConsume() // drain the only token

	err := b.Consume(context.Background(), 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !xerrors.Is(err, xerrors.CodeRateLimit) {
		t.Fatalf("expected CodeRateLimit, got %v", err)
	}
}

func TestBucket_Consume_SucceedsOnceRefilled(t *testing.T) {
	b := New(1000, 1) // fast refill so the blocking test stays quick
	b.TryConsume()

	if err := b.Consume(context.Background(), time.Second); err != nil {
		t.Fatalf("expected consume to succeed once refilled, got %v", err)
	}
}

func TestBucket_Consume_CanceledContext(t *testing.T) {
	b := New(1, 1)
	b.TryConsume()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Consume(ctx, time.Second)
	if err == nil {
		t.Fatalf("expected error from canceled context")
	}
}

func TestBucket_Reset_RestoresFull(t *testing.T) {
	b := New(1, 5)
	for i := 0; i < 5; i++ {
		b.TryConsume()
	}
	if b.TryConsume() {
		t.Fatalf("expected bucket to be empty before reset")
	}
	b.Reset()
	if !b.TryConsume() {
		t.Fatalf("expected token available after reset")
	}
}

func TestBucket_Conservation_AcrossWindow(t *testing.T) {
	// Testable property 4: across any window W seconds, accepted sends <= burst + rate*W.
	b := New(5, 2)
	clock := time.Now()
	b.now = func() time.Time { return clock }

	window := 3 * time.Second
	limit := 2 + 5*window.Seconds()

	accepted := 0
	step := 10 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < window; elapsed += step {
		if b.TryConsume() {
			accepted++
		}
		clock = clock.Add(step)
	}

	if float64(accepted) > limit+1 { // +1 slack for the discrete stepping above
		t.Fatalf("accepted %d sends, want <= %v (burst + rate*window)", accepted, limit)
	}
}
