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

package signature

import (
	"testing"
)

// testKey1 / testKey2 are arbitrary 32-byte scalars used only to exercise
// sign/recover in tests. Never use fixed keys like these outside tests.
const (
	testKey1 = "1111111111111111111111111111111111111111111111111111111111111111"[:64]
	testKey2 = "2222222222222222222222222222222222222222222222222222222222222222"[:64]
)

func TestVerify_RoundTrip(t *testing.T) {
	addr, err := AddressFromPrivateKey(testKey1)
	if err != nil {
		t.Fatalf("AddressFromPrivateKey: %v", err)
	}

	canonical := []byte(`{"content":"hello","kind":"message"}`)
	sig, err := Sign(canonical, testKey1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	v := New(Config{})
	res := v.Verify("message", canonical, sig, []byte(addr), nil)
	if !res.Valid {
		t.Fatalf("expected valid signature, got reason=%q", res.Reason)
	}
	if res.Recovered != addr {
		t.Fatalf("recovered=%s want=%s", res.Recovered, addr)
	}
}

func TestVerify_MissingButNotRequired(t *testing.T) {
	v := New(Config{})
	res := v.Verify("message", []byte(`{}`), nil, nil, nil)
	if !res.Valid || !res.Missing {
		t.Fatalf("expected valid=true missing=true when signature absent and not required")
	}
}

func TestVerify_MissingAndRequired(t *testing.T) {
	v := New(Config{RequireFor: map[string]bool{"task_response": true}})
	res := v.Verify("task_response", []byte(`{}`), nil, nil, nil)
	if res.Valid || !res.Missing {
		t.Fatalf("expected valid=false missing=true when signature required but absent")
	}
}

func TestVerify_StrictModeRequiresEveryKind(t *testing.T) {
	v := New(Config{StrictMode: true})
	res := v.Verify("message", []byte(`{}`), nil, nil, nil)
	if res.Valid {
		t.Fatalf("expected strict mode to require a signature on every kind")
	}
}

func TestVerify_WrongSignerRejected(t *testing.T) {
	addr1, _ := AddressFromPrivateKey(testKey1)
	canonical := []byte(`{"content":"hello"}`)
	sig, _ := Sign(canonical, testKey2) // signed by key2 but declaring key1's address

	v := New(Config{})
	res := v.Verify("task_response", canonical, sig, []byte(addr1), nil)
	if res.Valid {
		t.Fatalf("expected mismatch rejection")
	}
}

func TestVerify_UntrustedSignerRejected(t *testing.T) {
	addr1, _ := AddressFromPrivateKey(testKey1)
	addr2, _ := AddressFromPrivateKey(testKey2)
	canonical := []byte(`{"content":"hello"}`)
	sig, _ := Sign(canonical, testKey1)

	v := New(Config{TrustedAddresses: map[string]bool{addr2: true}})
	res := v.Verify("message", canonical, sig, []byte(addr1), nil)
	if res.Valid {
		t.Fatalf("expected rejection: signer not in trusted whitelist")
	}
}

func TestVerify_FromFallbackWhenNoPublicKey(t *testing.T) {
	addr, _ := AddressFromPrivateKey(testKey1)
	canonical := []byte(`{"content":"hi"}`)
	sig, _ := Sign(canonical, testKey1)

	v := New(Config{})
	res := v.Verify("message", canonical, sig, nil, []byte(addr))
	if !res.Valid {
		t.Fatalf("expected from-address fallback to work, reason=%q", res.Reason)
	}
}

func TestVerify_NoAddressAvailable(t *testing.T) {
	canonical := []byte(`{"content":"hi"}`)
	sig, _ := Sign(canonical, testKey1)

	v := New(Config{})
	res := v.Verify("message", canonical, sig, nil, []byte("not-an-address"))
	if res.Valid {
		t.Fatalf("expected failure when no usable address is available")
	}
}

func TestLooksLikeAddress(t *testing.T) {
	if !LooksLikeAddress("0x00000000000000000000000000000000000000aa") {
		t.Fatalf("expected valid-shaped address to match")
	}
	if LooksLikeAddress("not-an-address") {
		t.Fatalf("expected non-address string to not match")
	}
}
