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

package config

import (
	"testing"
	"time"
)

func TestDefaults_ValidateClean(t *testing.T) {
	cfg := Defaults("wss://agents.example.com/ws")
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected defaults to validate cleanly, got %v", err)
	}
}

func TestValidate_RejectsMissingWSURL(t *testing.T) {
	cfg := Defaults("")
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for empty ws_url")
	}
}

func TestValidate_RejectsBadScheme(t *testing.T) {
	cfg := Defaults("http://agents.example.com")
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for non-ws(s) scheme")
	}
}

func TestValidate_RejectsBadClientType(t *testing.T) {
	cfg := Defaults("ws://x")
	cfg.ClientType = "superuser"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for invalid client_type")
	}
}

func TestValidate_RejectsShortDedupeTTL(t *testing.T) {
	cfg := Defaults("ws://x")
	cfg.MessageDedupeTTL = 500 * time.Millisecond
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for dedupe ttl below 1s")
	}
}

func TestValidate_RejectsNonPositiveMaxMessageSize(t *testing.T) {
	cfg := Defaults("ws://x")
	cfg.MaxMessageSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for zero max_message_size")
	}
}
