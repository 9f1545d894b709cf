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

// Package events is the typed event bus shared by the connection engine,
// message pipeline, webhook engine, and facade (spec §4.I/.K event lists).
// No teacher file implements a pub/sub bus; it is written directly against
// spec.md's event names, using the corpus's general preference for small
// mutex-guarded slices of subscribers over a third-party event library (none
// appears anywhere in the retrieval pack).
package events

import "sync"

// Handler receives an event's payload. The concrete type varies by event
// name and is documented alongside each Emit call site.
type Handler func(payload any)

// Unsubscribe removes a previously registered Handler.
type Unsubscribe func()

// Bus is a thread-safe multi-event pub/sub register.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]*subscription
	seq      uint64
}

type subscription struct {
	id int
	fn Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]*subscription)}
}

// On registers fn for event and returns a function that removes it.
func (b *Bus) On(event string, fn Handler) Unsubscribe {
	b.mu.Lock()
	b.seq++
	sub := &subscription{id: int(b.seq), fn: fn}
	b.handlers[event] = append(b.handlers[event], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[event]
		for i, s := range subs {
			if s.id == sub.id {
				b.handlers[event] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every handler registered for event, synchronously, in
// registration order. A copy of the subscriber slice is taken under lock so
// a handler may safely unsubscribe itself or subscribe further handlers.
func (b *Bus) Emit(event string, payload any) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.handlers[event]))
	copy(subs, b.handlers[event])
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(payload)
	}
}

// Clear removes every handler for every event. Used by disconnect/destroy
// paths that must not leak subscriptions across reconnects.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]*subscription)
}
