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

// Package xerrors defines the stable, machine-checkable error taxonomy
// shared by every core component. Every error raised across a package
// boundary carries one of the Codes below plus a stack-aware wrapped cause,
// so callers can both switch on Code and, with "%+v", print a trace.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a stable machine-checkable error classification.
type Code string

const (
	CodeConnection           Code = "connection_error"
	CodeAuthentication       Code = "authentication_error"
	CodeTimeout              Code = "timeout_error"
	CodeValidation           Code = "validation_error"
	CodeMessage              Code = "message_error"
	CodeWebhook              Code = "webhook_error"
	CodeRateLimit            Code = "rate_limit_error"
	CodeSignatureVerification Code = "signature_verification_error"
	CodeCircuitBreaker       Code = "circuit_breaker_error"
	CodeConfiguration        Code = "configuration_error"
	CodeSDK                  Code = "sdk_error"
	CodeQueueOverflow        Code = "queue_overflow_error"
)

// Error is the concrete type every typed error in this module resolves to.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New creates a typed error whose cause is a github.com/pkg/errors error
// carrying the same message, which captures the stack at the call site so
// "%+v" prints a trace in dev.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: errors.New(message)}
}

// Wrap attaches a Code to an existing error, preserving it as the Cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: errors.Wrap(cause, message)}
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, or "" if err is not a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
