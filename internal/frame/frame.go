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

// Package frame implements the wire frame type and its schema validator
// (spec component A). Every inbound byte buffer passes through ParseInbound
// before it is dispatched, and every outbound frame passes through
// ValidateOutbound before it is written to the transport. There is no third-party JSON-schema engine anywhere in the
// grounding corpus, so the discriminated-union walk below is hand-written
// against encoding/json (see DESIGN.md for the stdlib justification).
package frame

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// Kind is the closed set of wire frame discriminators (spec.md §6).
type Kind string

const (
	KindRequestChallenge   Kind = "request_challenge"
	KindChallenge          Kind = "challenge"
	KindCheckCachedAuth    Kind = "check_cached_auth"
	KindAuth               Kind = "auth"
	KindAuthRequired       Kind = "auth_required"
	KindAuthSuccess        Kind = "auth_success"
	KindAuthError          Kind = "auth_error"
	KindRegister           Kind = "register"
	KindRegistrationSucc   Kind = "registration_success"
	KindMessage            Kind = "message"
	KindTask               Kind = "task"
	KindTaskResponse       Kind = "task_response"
	KindAgentSelected      Kind = "agent_selected"
	KindAgents             Kind = "agents"
	KindError              Kind = "error"
	KindPing               Kind = "ping"
	KindPong               Kind = "pong"
	KindCapabilities       Kind = "capabilities"
	KindSubscribe          Kind = "subscribe"
	KindUnsubscribe        Kind = "unsubscribe"
	KindListRooms          Kind = "list_rooms"

	// KindSubscribeAck / KindUnsubscribeAck are synthetic, decode-time-only
	// kinds. See SPEC_FULL.md §4.J's resolution of spec.md §9's third Open
	// Question: the wire still carries "subscribe"/"unsubscribe" in both
	// directions: ReclassifyInboundAck re-tags an inbound ack so downstream dispatch
	// can tell the two directions apart without a server-side change.
	KindSubscribeAck   Kind = "subscribe_ack"
	KindUnsubscribeAck Kind = "unsubscribe_ack"
)

var knownKinds = map[Kind]bool{
	KindRequestChallenge: true, KindChallenge: true, KindCheckCachedAuth: true,
	KindAuth: true, KindAuthRequired: true, KindAuthSuccess: true, KindAuthError: true,
	KindRegister: true, KindRegistrationSucc: true, KindMessage: true, KindTask: true,
	KindTaskResponse: true, KindAgentSelected: true, KindAgents: true, KindError: true,
	KindPing: true, KindPong: true, KindCapabilities: true, KindSubscribe: true,
	KindUnsubscribe: true, KindListRooms: true,
}

// MaxFrameSize is the default ceiling on a serialized frame, overridable via
// config's max_message_size.
const MaxFrameSize = 256 * 1024

// Frame is the transport unit (spec.md §3). Optional fields are left
// empty-valued so json.Marshal can omit them with `omitempty`.
type Frame struct {
	Kind        Kind            `json:"kind"`
	ID          string          `json:"id,omitempty"`
	Content     string          `json:"content,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Room        string          `json:"room,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Signature   string          `json:"signature,omitempty"`
	PublicKey   string          `json:"public_key,omitempty"`
	Reasoning   string          `json:"reasoning,omitempty"`
	TaskID      string          `json:"task_id,omitempty"`
}

// fieldSpec describes one required/optional field of a variant.
type fieldSpec struct {
	name     string
	required bool
	kind     string // "string", "bool-ish", "object"
}

// variants maps each Kind to the fields spec.md declares for it. Fields not
// listed here (e.g. kind, id) are always implicitly allowed.
var variants = map[Kind][]fieldSpec{
	KindRequestChallenge: {},
	KindChallenge:        {{"data", true, "object"}},
	KindCheckCachedAuth:  {{"from", false, "string"}},
	KindAuth:             {{"data", true, "object"}},
	KindAuthRequired:     {},
	KindAuthSuccess:      {},
	KindAuthError:        {{"content", false, "string"}},
	KindRegister:         {{"data", true, "object"}},
	KindRegistrationSucc: {},
	KindMessage:          {{"content", true, "string"}},
	KindTask:             {{"content", true, "string"}, {"task_id", false, "string"}},
	KindTaskResponse:     {{"content", true, "string"}, {"content_type", true, "string"}, {"from", true, "string"}, {"data", true, "object"}},
	KindAgentSelected:    {{"data", true, "object"}},
	KindAgents:           {{"data", true, "object"}},
	KindError:            {{"content", false, "string"}},
	KindPing:             {},
	KindPong:             {},
	KindCapabilities:     {{"data", false, "object"}},
	KindSubscribe:        {{"room", true, "string"}},
	KindUnsubscribe:      {{"room", true, "string"}},
	KindListRooms:        {},
	KindSubscribeAck:     {{"room", false, "string"}},
	KindUnsubscribeAck:   {{"room", false, "string"}},
}

// ValidationError carries the parser's diagnostic path, per spec.md §4.A.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string { return e.Path + ": " + e.Reason }

func newValidationErr(path, reason string) *xerrors.Error {
	return xerrors.Wrap(xerrors.CodeValidation, path+": "+reason, &ValidationError{Path: path, Reason: reason})
}

// ParseInbound parses a raw transport message and validates it as an
// inbound frame. Unknown kinds are rejected outright.
func ParseInbound(raw []byte) (*Frame, error) {
	if len(raw) > MaxFrameSize {
		return nil, newValidationErr("$", "frame exceeds maximum size")
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, newValidationErr("$", "invalid JSON: "+err.Error())
	}

	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, newValidationErr("$", "invalid frame shape: "+err.Error())
	}

	if err := validateKind(f.Kind); err != nil {
		return nil, err
	}

	if err := validateBooleanish(generic); err != nil {
		return nil, err
	}

	if err := validateVariant(&f, generic); err != nil {
		return nil, err
	}

	return &f, nil
}

// ValidateOutbound checks a frame built by this SDK before it is serialized
// and written to the transport. It shares the variant rules with inbound
// validation; outbound frames are re-encoded to run the same generic-field
// pass so "stringified boolean" fields set programmatically are accepted
// too.
func ValidateOutbound(f *Frame) error {
	if err := validateKind(f.Kind); err != nil {
		return err
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return newValidationErr("$", "frame does not serialize: "+err.Error())
	}
	if len(raw) > MaxFrameSize {
		return newValidationErr("$", "frame exceeds maximum size")
	}
	var generic map[string]json.RawMessage
	_ = json.Unmarshal(raw, &generic)
	if err := validateBooleanish(generic); err != nil {
		return err
	}
	return validateVariant(f, generic)
}

func validateKind(k Kind) error {
	if k == "" {
		return newValidationErr("$.kind", "missing")
	}
	if !knownKinds[k] {
		return newValidationErr("$.kind", "unrecognized frame kind: "+string(k))
	}
	return nil
}

func validateVariant(f *Frame, generic map[string]json.RawMessage) error {
	spec, ok := variants[f.Kind]
	if !ok {
		return newValidationErr("$.kind", "no variant spec for: "+string(f.Kind))
	}
	for _, fs := range spec {
		raw, present := generic[fs.name]
		if !present || len(raw) == 0 || string(raw) == "null" {
			if fs.required {
				return newValidationErr("$."+fs.name, "required field missing")
			}
			continue
		}
		if fs.kind == "string" {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return newValidationErr("$."+fs.name, "expected string")
			}
		}
		if fs.kind == "object" {
			var m map[string]json.RawMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				return newValidationErr("$."+fs.name, "expected object")
			}
		}
	}
	return nil
}

// boolishDataFields lists the top-level fields that are declared boolean in the
// data payload of variants that carry one, honoring spec.md §4.A's tolerant
// stringified-boolean rule. Frame.Data is a generic object, so the coercion
// runs against known sub-paths rather than the top-level Frame struct,
// which has no boolean fields of its own.
var boolishDataFields = map[Kind][]string{
	KindTaskResponse: {"success"},
	KindAuth:         {"cached"},
}

// validateBooleanish walks the declared boolean sub-fields of frame.data and
// rejects any that are neither a real JSON bool nor one of the tolerated
// stringified forms.
func validateBooleanish(generic map[string]json.RawMessage) error {
	kindRaw, ok := generic["kind"]
	if !ok {
		return nil
	}
	var k Kind
	if err := json.Unmarshal(kindRaw, &k); err != nil {
		return nil
	}
	fields, ok := boolishDataFields[k]
	if !ok {
		return nil
	}
	dataRaw, ok := generic["data"]
	if !ok {
		return nil
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(dataRaw, &data); err != nil {
		return nil
	}
	for _, name := range fields {
		raw, present := data[name]
		if !present {
			continue
		}
		if _, err := CoerceBool(raw); err != nil {
			return newValidationErr("$.data."+name, err.Error())
		}
	}
	return nil
}

// CoerceBool accepts a raw JSON value that should represent a boolean. Real
// JSON booleans pass through. A JSON string is accepted per spec.md §4.A:
// {"true","1","yes"} (case-insensitive, trimmed) -> true,
// {"false","0","no"} -> false, anything else is rejected.
func CoerceBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, &ValidationError{Reason: "not a boolean or string"}
	}
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, &ValidationError{Reason: "unrecognized boolean string: " + s}
	}
}

// StampTimestamp sets f.Timestamp to now, in ISO-8601, if it is not already
// set. Called by the connection engine's send path (spec.md §3, §4.I).
func StampTimestamp(f *Frame) {
	if f.Timestamp == "" {
		f.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
}

// Canonical builds the canonical signable content for a frame: the frame
// with signature, public_key, and id removed and undefined fields dropped,
// serialized with keys sorted lexicographically (spec.md §4.H / glossary).
func Canonical(f *Frame) ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	delete(generic, "signature")
	delete(generic, "public_key")
	delete(generic, "id")

	keys := make([]string, 0, len(generic))
	for k := range generic {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		b.Write(generic[k])
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// ReclassifyInboundAck rewrites an inbound subscribe/unsubscribe frame's
// Kind to its *_ack synthetic variant. Called by the connection engine
// immediately after ParseInbound, before dispatch, so every downstream
// consumer (pipeline handlers, event listeners) sees a direction-tagged
// Kind. See SPEC_FULL.md §4.J.
func ReclassifyInboundAck(f *Frame) {
	switch f.Kind {
	case KindSubscribe:
		f.Kind = KindSubscribeAck
	case KindUnsubscribe:
		f.Kind = KindUnsubscribeAck
	}
}
