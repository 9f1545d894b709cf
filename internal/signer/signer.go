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

// Package signer adapts internal/signature's key-material functions to
// internal/conn.Signer. A Wallet keeps the hex-encoded private key in
// plaintext from New until Release, so Sign can be called any number of
// times; each Sign works on a scratch copy that it zeroes on return. The
// at-rest encryption utility that would protect the key between process
// restarts is named in spec.md §1 as an orthogonal, out-of-scope
// collaborator; this package handles only the in-memory key it is handed.
package signer

import (
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/signature"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// Wallet is the conn.Signer implementation backed by a raw private key.
type Wallet struct {
	address string
	key     []byte // hex bytes; held for the wallet's lifetime, copied out per Sign
}

// New derives the address for privateKeyHex and returns a Wallet that
// re-derives nothing further until Sign is called.
func New(privateKeyHex string) (*Wallet, error) {
	addr, err := signature.AddressFromPrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return &Wallet{address: addr, key: []byte(privateKeyHex)}, nil
}

// Address returns the wallet's 0x-address. Safe to call any number of
// times; it never touches the retained key bytes.
func (w *Wallet) Address() string { return w.address }

// Sign copies the key material into a scratch buffer for the duration of
// one signing operation and zeroes that buffer before returning, win or
// lose. The string passed to signature.Sign and the key parsed from it are
// not zeroed.
func (w *Wallet) Sign(msg []byte) ([]byte, error) {
	if w.key == nil {
		return nil, xerrors.New(xerrors.CodeAuthentication, "signer key has been released")
	}
	scratch := make([]byte, len(w.key))
	copy(scratch, w.key)
	defer zero(scratch)
	return signature.Sign(msg, string(scratch))
}

// Release zeroes the retained key material immediately, without signing.
// Exported so the facade can scrub the key without waiting for the signer
// to be garbage collected.
func (w *Wallet) Release() {
	zero(w.key)
	w.key = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
