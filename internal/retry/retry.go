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

// Package retry computes backoff delays for the webhook and reconnect
// engines (spec component E). No file in the retrieval pack implements this
// exact formula set (exponential/linear/constant with jitter and attempt
// clamping), so it is written directly against spec.md §4.E; the surrounding
// error taxonomy and option-struct shape follow internal/xerrors and the
// teacher's general preference for small validated config structs.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// Strategy selects the backoff growth curve.
type Strategy string

const (
	Exponential Strategy = "exponential"
	Linear      Strategy = "linear"
	Constant    Strategy = "constant"
)

// Policy configures retry timing. BackoffMultiplier defaults to 2 when zero.
type Policy struct {
	Type              Strategy
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	MaxAttempts       int
	Jitter            bool
	BackoffMultiplier float64

	// randFloat is overridable for deterministic tests; defaults to
	// math/rand's global source via rand.Float64.
	randFloat func() float64
}

// New validates and returns a Policy. MaxDelay must be >= BaseDelay.
func New(strategy Strategy, base, max time.Duration, maxAttempts int, jitter bool) (Policy, error) {
	if max < base {
		return Policy{}, xerrors.New(xerrors.CodeValidation, "max_delay must be >= base_delay")
	}
	if maxAttempts < 0 {
		return Policy{}, xerrors.New(xerrors.CodeValidation, "max_attempts must be >= 0")
	}
	return Policy{
		Type:              strategy,
		BaseDelay:         base,
		MaxDelay:          max,
		MaxAttempts:       maxAttempts,
		Jitter:            jitter,
		BackoffMultiplier: 2,
	}, nil
}

func (p Policy) multiplier() float64 {
	if p.BackoffMultiplier <= 0 {
		return 2
	}
	return p.BackoffMultiplier
}

// ShouldRetry reports whether attempt is still within budget.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt <= p.MaxAttempts
}

// Delay computes the backoff for a 1-indexed attempt, clamped to MaxDelay and
// optionally jittered with up to 1000ms of additional uniform delay. attempt
// < 1 is an error.
func (p Policy) Delay(attempt int) (time.Duration, error) {
	if attempt < 1 {
		return 0, xerrors.New(xerrors.CodeValidation, "attempt must be >= 1")
	}

	base := float64(p.BaseDelay)
	var raw float64
	switch p.Type {
	case Exponential:
		raw = base * math.Pow(p.multiplier(), float64(attempt-1))
	case Linear:
		raw = base * float64(attempt)
	case Constant:
		raw = base
	default:
		raw = base
	}

	d := time.Duration(raw)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.Jitter {
		rf := p.randFloat
		if rf == nil {
			rf = rand.Float64
		}
		d += time.Duration(rf() * float64(time.Second))
	}

	return time.Duration(math.Floor(float64(d))), nil
}
