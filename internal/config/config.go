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

// Package config declares the client's configuration struct and validates
// it with github.com/go-playground/validator/v10, the declarative
// struct-tag validator present in the retrieval pack's dependency surface.
// No teacher file in etalazz-vsa validates config this way (it reads
// raw env vars ad hoc), so the tag vocabulary and Validate() wrapper below
// are written directly against spec.md §6's configuration table, matching
// the corpus's general preference (seen across several pack entries) for
// one struct, one call to validator.Struct, one wrapped error.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/retry"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// ClientType enumerates spec.md §6's client_type option.
type ClientType string

const (
	ClientTypeUser        ClientType = "user"
	ClientTypeAgent       ClientType = "agent"
	ClientTypeCoordinator ClientType = "coordinator"
)

// Config is the complete set of client options from spec.md §6's table.
type Config struct {
	WSURL string `validate:"required"`

	PrivateKey     string
	WalletAddress  string
	ClientType     ClientType `validate:"omitempty,oneof=user agent coordinator"`
	AutoJoinRooms  []string

	WebhookURL            string
	WebhookHeaders        map[string]string
	WebhookRetries        int `validate:"gte=0"`
	WebhookRetryBaseDelay time.Duration
	WebhookRetryMaxDelay  time.Duration
	WebhookRetryJitter    bool
	WebhookTimeout        time.Duration
	WebhookRetryStrategy  retry.Strategy
	WebhookQueueCap       int `validate:"gte=1"`
	WebhookEventTypes     []string // empty means every event kind is forwarded
	AllowInsecureWebhooks bool

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerOpenTimeout      time.Duration
	BreakerWindow           time.Duration

	Reconnect             bool
	ReconnectDelay        time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectJitter       bool
	MaxReconnectAttempts  int `validate:"gte=0"`
	ReconnectStrategy     retry.Strategy
	ConnectionTimeout     time.Duration `validate:"gt=0"`

	MessageTimeout       time.Duration `validate:"gt=0"`
	MaxMessageSize        int           `validate:"gt=0"`
	MaxMessagesPerSecond  float64       `validate:"gt=0"`

	ValidateSignatures        bool
	TrustedAgentAddresses     []string
	RequireSignaturesFor      []string
	StrictSignatureValidation bool

	EnableMessageDeduplication bool
	MessageDedupeTTL           time.Duration
	MessageDedupeMaxSize       int

	MetricsEnabled bool

	AllowCorrelationFallback bool // [ADDED] resolves spec.md §9 open question; default false
}

// Defaults returns a Config with every non-required field set to the
// corpus's conventional values (mirroring spec.md §4's per-component
// defaults: breaker failure_threshold=5, retry base/cap, etc., restated
// here as connection-level defaults).
func Defaults(wsURL string) Config {
	return Config{
		WSURL:                wsURL,
		ClientType:           ClientTypeUser,
		WebhookRetries:          3,
		WebhookRetryBaseDelay:   time.Second,
		WebhookRetryMaxDelay:    30 * time.Second,
		WebhookTimeout:          10 * time.Second,
		WebhookRetryStrategy:    retry.Exponential,
		WebhookQueueCap:         1000,
		BreakerFailureThreshold: 5,
		BreakerSuccessThreshold: 2,
		BreakerOpenTimeout:      60 * time.Second,
		BreakerWindow:           60 * time.Second,
		Reconnect:               true,
		ReconnectDelay:          time.Second,
		ReconnectMaxDelay:       30 * time.Second,
		MaxReconnectAttempts:    10,
		ReconnectStrategy:       retry.Exponential,
		ConnectionTimeout:       10 * time.Second,
		MessageTimeout:       30 * time.Second,
		MaxMessageSize:       256 * 1024,
		MaxMessagesPerSecond: 10,
		EnableMessageDeduplication: true,
		MessageDedupeTTL:           60 * time.Second,
		MessageDedupeMaxSize:       10000,
	}
}

var v = validator.New()

// Validate checks structural rules via validator/v10 plus the cross-field
// rules spec.md §6 calls out that struct tags alone can't express: scheme
// prefix on ws_url and the dedupe TTL floor. wallet_address/private_key
// agreement is left to the facade's New, which derives the address through
// internal/signer, since config has no key-derivation of its own.
func Validate(cfg Config) error {
	if err := v.Struct(cfg); err != nil {
		return xerrors.Wrap(xerrors.CodeConfiguration, "invalid configuration", err)
	}
	if !strings.HasPrefix(cfg.WSURL, "ws://") && !strings.HasPrefix(cfg.WSURL, "wss://") {
		return xerrors.New(xerrors.CodeConfiguration, "ws_url must start with ws:// or wss://")
	}
	if cfg.MessageDedupeTTL != 0 && cfg.MessageDedupeTTL < time.Second {
		return xerrors.New(xerrors.CodeConfiguration, "message_dedupe_ttl must be >= 1000ms")
	}
	return nil
}
