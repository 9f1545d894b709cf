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

// Package dedup implements the inbound-frame deduplication cache (spec
// component D). It is adapted from internal/ratelimiter/core/store.go's
// Store: the same sync.Map-of-atomic-timestamp shape that let GetOrCreate
// avoid allocating on the hot path now lets Has avoid allocating on a
// membership check, and the eviction worker's "drop entries idle past
// evictionAge" sweep becomes a sweep triggered inline, once per mutation,
// instead of on a ticker, since the cache here never needs an instance to
// close and has no background commit state to protect.
package dedup

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry records when a key was added, as UnixNano for atomic access.
type entry struct {
	insertedAt int64
}

func (e *entry) expired(ttl time.Duration, now time.Time) bool {
	inserted := atomic.LoadInt64(&e.insertedAt)
	return now.Sub(time.Unix(0, inserted)) > ttl
}

// Cache is a thread-safe TTL set keyed by opaque string.
type Cache struct {
	entries sync.Map
	ttl     time.Duration
	cap     int
	enabled bool

	size int64 // approximate live count, maintained alongside entries

	now func() time.Time
}

// New creates a Cache. ttl must be >= 1s and cap >= 1 per spec.md §4.D; a
// ttl below 1s or a cap below 1 disables the cache (equivalent to Disabled()).
func New(ttl time.Duration, cap int) *Cache {
	if ttl < time.Second || cap < 1 {
		return Disabled()
	}
	return &Cache{ttl: ttl, cap: cap, enabled: true, now: time.Now}
}

// Disabled returns a no-op cache: Has always reports false, Add always
// succeeds, per spec.md §4.D.
func Disabled() *Cache {
	return &Cache{enabled: false, now: time.Now}
}

// Enabled reports whether this cache performs real deduplication.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Has reports membership, lazily evicting the entry first if it has expired.
func (c *Cache) Has(key string) bool {
	if !c.enabled {
		return false
	}
	v, ok := c.entries.Load(key)
	if !ok {
		return false
	}
	e := v.(*entry)
	if e.expired(c.ttl, c.now()) {
		c.delete(key)
		return false
	}
	return true
}

// Add stores key with the current timestamp and returns true, unless the
// key is already present (and unexpired), in which case it returns false
// without mutating anything. Triggers a cleanup sweep when size crosses
// 90% of cap.
func (c *Cache) Add(key string) bool {
	if !c.enabled {
		return true
	}
	if c.Has(key) {
		return false
	}
	now := c.now()
	newEntry := &entry{insertedAt: now.UnixNano()}
	if _, loaded := c.entries.LoadOrStore(key, newEntry); loaded {
		// Lost the race to a concurrent Add for the same key.
		return false
	}
	n := atomic.AddInt64(&c.size, 1)

	if float64(n) >= 0.9*float64(c.cap) {
		c.sweep()
	}
	return true
}

// Delete removes key unconditionally.
func (c *Cache) Delete(key string) {
	if !c.enabled {
		return
	}
	c.delete(key)
}

func (c *Cache) delete(key string) {
	if _, ok := c.entries.LoadAndDelete(key); ok {
		atomic.AddInt64(&c.size, -1)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	if !c.enabled {
		return
	}
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
	atomic.StoreInt64(&c.size, 0)
}

// Size reports the approximate live entry count.
func (c *Cache) Size() int {
	if !c.enabled {
		return 0
	}
	return int(atomic.LoadInt64(&c.size))
}

// sweep drops every expired entry. Called inline once the cache crosses the
// 90%-of-cap watermark, never on a background timer.
func (c *Cache) sweep() {
	now := c.now()
	c.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		if e.expired(c.ttl, now) {
			c.delete(key.(string))
		}
		return true
	})
}
