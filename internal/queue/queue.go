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

// Package queue implements the bounded FIFO container used by the webhook
// engine (spec component B). It has no teacher-file ancestor in the
// retrieval pack (the VSA store is a keyed map, not an ordered queue); it is
// a small, self-contained component written directly against spec.md §4.B.
package queue

import (
	"sync"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// Policy controls what happens when Push is called on a full queue.
type Policy int

const (
	DropOldest Policy = iota
	DropNewest
	Reject
)

// Bounded is a thread-safe FIFO with a fixed capacity and overflow policy.
type Bounded[T any] struct {
	mu     sync.Mutex
	items  []T
	max    int
	policy Policy
}

// New creates a Bounded queue. max must be >= 1.
func New[T any](max int, policy Policy) *Bounded[T] {
	if max < 1 {
		max = 1
	}
	return &Bounded[T]{items: make([]T, 0, max), max: max, policy: policy}
}

// Push appends item, applying the overflow policy if the queue is full.
// Returns whether the item was accepted; under Reject a full queue returns
// false, and the typed overflow error is only surfaced through PushErr.
func (q *Bounded[T]) Push(item T) bool {
	accepted, _ := q.PushErr(item)
	return accepted
}

// PushErr is Push but surfaces the Reject policy's overflow as an error
// instead of silently declining.
func (q *Bounded[T]) PushErr(item T) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) < q.max {
		q.items = append(q.items, item)
		return true, nil
	}

	switch q.policy {
	case DropOldest:
		q.items = append(q.items[1:], item)
		return true, nil
	case DropNewest:
		return false, nil
	case Reject:
		return false, xerrors.New(xerrors.CodeQueueOverflow, "queue is at capacity")
	default:
		return false, nil
	}
}

// Shift removes and returns the head item.
func (q *Bounded[T]) Shift() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Peek returns the head item without removing it.
func (q *Bounded[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	return q.items[0], true
}

// RotateToTail removes the head item and appends it at the tail, used by
// the webhook processor to avoid head-of-line blocking on a retrying item
// (spec.md §4.K).
func (q *Bounded[T]) RotateToTail() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	head := q.items[0]
	q.items = append(q.items[1:], head)
}

// Size returns the current item count.
func (q *Bounded[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes every item.
func (q *Bounded[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

// ToArray returns a defensive copy of the queue contents, head-first.
func (q *Bounded[T]) ToArray() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
