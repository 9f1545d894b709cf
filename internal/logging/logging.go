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

// Package logging defines the logger capability every core component is
// constructed with. There is no package-level logger: callers that don't
// supply one get a logrus-backed default, but nothing in this module reaches
// for a global.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Logger is the four-method capability components depend on.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Noop discards every log line. Useful in tests that don't care about logs.
type Noop struct{}

func (Noop) Debug(string, ...any) {}
func (Noop) Info(string, ...any)  {}
func (Noop) Warn(string, ...any)  {}
func (Noop) Error(string, ...any) {}

// logrusLogger adapts *logrus.Logger to the Logger capability.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewDefault returns a logrus-backed Logger writing structured JSON-free
// text, one field set per call via alternating kv pairs (key, value, key,
// value, ...). An odd trailing key without a value is logged as-is under
// "extra".
func NewDefault() Logger {
	l := logrus.New()
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// NewWithLogrus adapts a caller-supplied *logrus.Logger.
func NewWithLogrus(l *logrus.Logger) Logger {
	if l == nil {
		return NewDefault()
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = "field"
		}
		f[key] = kv[i+1]
	}
	if len(kv)%2 == 1 {
		f["extra"] = kv[len(kv)-1]
	}
	return f
}

func (l *logrusLogger) Debug(msg string, kv ...any) { l.entry.WithFields(fields(kv)).Debug(msg) }
func (l *logrusLogger) Info(msg string, kv ...any)  { l.entry.WithFields(fields(kv)).Info(msg) }
func (l *logrusLogger) Warn(msg string, kv ...any)  { l.entry.WithFields(fields(kv)).Warn(msg) }
func (l *logrusLogger) Error(msg string, kv ...any) { l.entry.WithFields(fields(kv)).Error(msg) }
