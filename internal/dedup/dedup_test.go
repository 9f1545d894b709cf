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

package dedup

import (
	"testing"
	"time"
)

func TestCache_AddThenHas(t *testing.T) {
	c := New(time.Minute, 100)
	if c.Has("a") {
		t.Fatalf("expected miss before add")
	}
	if !c.Add("a") {
		t.Fatalf("expected first add to succeed")
	}
	if !c.Has("a") {
		t.Fatalf("expected hit after add")
	}
	if c.Add("a") {
		t.Fatalf("expected second add of same key to fail")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(time.Minute, 100)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Add("a")
	clock = clock.Add(time.Minute + time.Second)

	if c.Has("a") {
		t.Fatalf("expected key to be expired after ttl+epsilon")
	}
	if !c.Add("a") {
		t.Fatalf("expected re-add to succeed once expired")
	}
}

func TestCache_DisabledIsNoop(t *testing.T) {
	c := Disabled()
	if c.Enabled() {
		t.Fatalf("expected disabled cache to report Enabled()==false")
	}
	if c.Has("a") {
		t.Fatalf("disabled cache must always report Has()==false")
	}
	if !c.Add("a") {
		t.Fatalf("disabled cache must always report Add()==true")
	}
	if c.Size() != 0 {
		t.Fatalf("disabled cache must report zero size")
	}
}

func TestCache_SweepOnHighWatermark(t *testing.T) {
	c := New(50*time.Millisecond, 10)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	for i := 0; i < 8; i++ { // below 90% of cap=10
		c.Add(string(rune('a' + i)))
	}
	clock = clock.Add(100 * time.Millisecond) // everything now expired

	// Crossing the 90% watermark (9th add) should sweep the 8 stale entries.
	c.Add("z")
	if c.Size() > 1 {
		t.Fatalf("expected sweep to drop expired entries once watermark crossed, size=%d", c.Size())
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New(time.Minute, 10)
	c.Add("a")
	c.Add("b")
	c.Delete("a")
	if c.Has("a") {
		t.Fatalf("expected a to be gone after Delete")
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1 after delete, got %d", c.Size())
	}
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("expected size 0 after Clear, got %d", c.Size())
	}
}

func TestNew_InvalidParamsDisables(t *testing.T) {
	c := New(0, 10)
	if c.Enabled() {
		t.Fatalf("expected ttl below 1s to disable the cache")
	}
	c2 := New(time.Second, 0)
	if c2.Enabled() {
		t.Fatalf("expected cap < 1 to disable the cache")
	}
}
