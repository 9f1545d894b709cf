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

package signer

import (
	"testing"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/signature"
)

// testKey1 is an arbitrary 32-byte scalar used only to exercise sign/verify
// in tests. Never use a fixed key like this outside tests.
const testKey1 = "1111111111111111111111111111111111111111111111111111111111111111"[:64]

func TestNew_DerivesAddress(t *testing.T) {
	w, err := New(testKey1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if w.Address() == "" {
		t.Fatalf("expected a derived address")
	}
}

func TestSign_ProducesVerifiableSignature(t *testing.T) {
	w, err := New(testKey1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msg := []byte(`{"content":"hello","kind":"message"}`)
	sig, err := w.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	recovered, err := signature.RecoverAddress(signature.PersonalMessageHash(msg), sig)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if recovered != w.Address() {
		t.Fatalf("expected recovered address %q to match wallet address %q", recovered, w.Address())
	}
}

func TestSign_SucceedsRepeatedlyAfterFirstUse(t *testing.T) {
	w, err := New(testKey1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := w.Sign([]byte("msg")); err != nil {
			t.Fatalf("Sign call %d: %v", i, err)
		}
	}
}

func TestRelease_RejectsFurtherSigning(t *testing.T) {
	w, err := New(testKey1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Release()

	if _, err := w.Sign([]byte("msg")); err == nil {
		t.Fatalf("expected Sign to fail after Release")
	}
	if w.Address() == "" {
		t.Fatalf("Address should still report the derived address after Release")
	}
}
