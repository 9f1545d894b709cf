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

// Package signature verifies frame signatures (spec component H) using
// ECDSA-over-Keccak256 with Ethereum's "personal message" prefix. The
// retrieval pack's Ethereum-adjacent files import
// github.com/ethereum/go-ethereum/crypto for exactly this hash-sign-recover
// triple, so this package builds on the same library rather than
// golang.org/x/crypto's raw secp256k1/sha3 primitives.
package signature

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

var hexAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Config parameterizes the verifier.
type Config struct {
	TrustedAddresses map[string]bool // lower-cased 0x-addresses; empty = allow-all
	RequireFor       map[string]bool // frame kinds that must carry a signature
	StrictMode       bool            // require a signature on every kind
}

// Result is the outcome of Verify.
type Result struct {
	Valid     bool
	Missing   bool
	Recovered string
	IsTrusted bool
	Reason    string
}

// Verifier checks frame signatures against Config.
type Verifier struct {
	cfg Config
}

// New builds a Verifier, lower-casing the trusted-address set for
// case-insensitive comparison.
func New(cfg Config) *Verifier {
	norm := make(map[string]bool, len(cfg.TrustedAddresses))
	for addr := range cfg.TrustedAddresses {
		norm[strings.ToLower(addr)] = true
	}
	cfg.TrustedAddresses = norm
	return &Verifier{cfg: cfg}
}

// Verify implements spec.md §4.H's seven-step algorithm. canonical is the
// frame's canonical signable bytes (sorted-key JSON with signature,
// public_key, id removed), produced by internal/frame.Canonical.
func (v *Verifier) Verify(kind string, canonical []byte, sig, publicKey, from []byte) Result {
	if len(sig) == 0 {
		missingRequired := v.cfg.StrictMode || v.cfg.RequireFor[kind]
		if missingRequired {
			return Result{Valid: false, Missing: true, Reason: "signature is missing and required for this frame kind"}
		}
		return Result{Valid: true, Missing: true}
	}

	hash := PersonalMessageHash(canonical)

	declared := resolveAddress(publicKey, from)
	if declared == "" {
		return Result{Valid: false, Reason: "no address available to verify against"}
	}

	recovered, err := RecoverAddress(hash, sig)
	if err != nil {
		return Result{Valid: false, Reason: "could not recover signer: " + err.Error()}
	}

	if !strings.EqualFold(recovered, declared) {
		return Result{Valid: false, Reason: "signature does not match declared address", Recovered: recovered}
	}

	isTrusted := true
	if len(v.cfg.TrustedAddresses) > 0 {
		isTrusted = v.cfg.TrustedAddresses[strings.ToLower(recovered)]
		if !isTrusted {
			return Result{Valid: false, Reason: "recovered address is not in trusted whitelist", Recovered: recovered}
		}
	}

	return Result{Valid: true, Recovered: recovered, IsTrusted: isTrusted}
}

func resolveAddress(publicKey, from []byte) string {
	if len(publicKey) > 0 {
		return string(publicKey)
	}
	fromStr := string(from)
	if hexAddressPattern.MatchString(fromStr) {
		return fromStr
	}
	return ""
}

// PersonalMessageHash hashes msg with Ethereum's "\x19Ethereum Signed
// Message:\n<len>" prefix, per spec.md §4.H step 3.
func PersonalMessageHash(msg []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefixed), msg)
}

// RecoverAddress recovers the EIP-55 checksummed (mixed-case) 0x-address
// that produced sig over hash. sig must be the 65-byte [R || S || V] form; V may
// be 0/1 or 27/28.
func RecoverAddress(hash, sig []byte) (string, error) {
	if len(sig) != 65 {
		return "", xerrors.New(xerrors.CodeSignatureVerification, "signature must be 65 bytes")
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSignatureVerification, "signature recovery failed", err)
	}
	addr := crypto.PubkeyToAddress(*pub)
	return addr.Hex(), nil
}

// Sign produces a 65-byte signature over msg's personal-message hash using
// privateKeyHex (0x-optional hex-encoded secp256k1 key). Used by tests and
// by callers that sign their own outbound frames.
func Sign(msg []byte, privateKeyHex string) ([]byte, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSignatureVerification, "invalid private key", err)
	}
	hash := PersonalMessageHash(msg)
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSignatureVerification, "signing failed", err)
	}
	return sig, nil
}

// AddressFromPrivateKey returns the 0x-address for privateKeyHex.
func AddressFromPrivateKey(privateKeyHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSignatureVerification, "invalid private key", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// LooksLikeAddress reports whether s has the 0x + 40 hex-char shape.
func LooksLikeAddress(s string) bool {
	return hexAddressPattern.MatchString(s)
}
