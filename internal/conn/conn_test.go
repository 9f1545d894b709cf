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

package conn

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/events"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/frame"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/logging"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// fakeSocket is an in-memory Socket double; it never touches the network.
type fakeSocket struct {
	mu      sync.Mutex
	writes  chan []byte
	toRead  chan []byte
	closed  bool
	closeCh chan struct{}
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		writes:  make(chan []byte, 16),
		toRead:  make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes <- cp
	return nil
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.toRead:
		return 1, b, nil
	case <-f.closeCh:
		return 0, nil, io.EOF
	}
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

func (f *fakeSocket) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeSocket) SetPongHandler(func(string) error) {}

func (f *fakeSocket) push(b []byte) { f.toRead <- b }

func (f *fakeSocket) waitForWrite(t *testing.T) []byte {
	t.Helper()
	select {
	case b := <-f.writes:
		return b
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a write")
		return nil
	}
}

func newTestEngine(sock *fakeSocket) *Engine {
	cfg := Config{
		WSURL:             "ws://example.invalid/ws",
		ConnectionTimeout: time.Second,
		MessageTimeout:    time.Second,
		MaxMessageSize:    1 << 20,
	}
	e := New(cfg, logging.Noop{}, events.New(), nil, nil)
	e.SetDialer(func(ctx context.Context, rawURL string, handshakeTimeout time.Duration) (Socket, error) {
		return sock, nil
	})
	return e
}

func TestEngine_ConnectWithoutSignerGoesReady(t *testing.T) {
	sock := newFakeSocket()
	e := newTestEngine(sock)

	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if e.State() != Ready {
		t.Fatalf("expected Ready, got %v", e.State())
	}
	e.Disconnect()
}

func TestEngine_SendRejectedWhenNotConnected(t *testing.T) {
	sock := newFakeSocket()
	e := newTestEngine(sock)

	err := e.Send(context.Background(), &frame.Frame{Kind: frame.KindMessage, Content: "hi"})
	if err == nil {
		t.Fatalf("expected error sending before Connect")
	}
}

func TestEngine_SendWritesValidatedFrame(t *testing.T) {
	sock := newFakeSocket()
	e := newTestEngine(sock)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	if err := e.Send(context.Background(), &frame.Frame{Kind: frame.KindMessage, Content: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	raw := sock.waitForWrite(t)
	var got frame.Frame
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal written frame: %v", err)
	}
	if got.Content != "hi" || got.Timestamp == "" {
		t.Fatalf("expected stamped frame with content, got %+v", got)
	}
}

func TestEngine_SendRejectsInvalidFrame(t *testing.T) {
	sock := newFakeSocket()
	e := newTestEngine(sock)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	// message requires non-empty content.
	err := e.Send(context.Background(), &frame.Frame{Kind: frame.KindMessage})
	if err == nil {
		t.Fatalf("expected validation error for missing required content field")
	}
}

func TestEngine_RequestResolvesOnMatchingID(t *testing.T) {
	sock := newFakeSocket()
	e := newTestEngine(sock)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	go func() {
		raw := sock.waitForWrite(t)
		var sent frame.Frame
		_ = json.Unmarshal(raw, &sent)

		reply := frame.Frame{
			Kind:        frame.KindTaskResponse,
			ID:          sent.ID,
			Content:     "done",
			ContentType: "text/plain",
			From:        "agent-1",
			Data:        json.RawMessage(`{"task_id":"1","success":true}`),
		}
		b, _ := json.Marshal(reply)
		sock.push(b)
	}()

	resp, err := e.Request(context.Background(), &frame.Frame{Kind: frame.KindTask, Content: "do it"}, 2*time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Content != "done" {
		t.Fatalf("expected matching reply content, got %+v", resp)
	}
}

func TestEngine_RequestTimesOut(t *testing.T) {
	sock := newFakeSocket()
	e := newTestEngine(sock)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	_, err := e.Request(context.Background(), &frame.Frame{Kind: frame.KindTask, Content: "do it"}, 50*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestEngine_CorrelationFallbackMatchesByRoom(t *testing.T) {
	sock := newFakeSocket()
	cfg := Config{
		WSURL:                    "ws://example.invalid/ws",
		ConnectionTimeout:        time.Second,
		MessageTimeout:           time.Second,
		MaxMessageSize:           1 << 20,
		AllowCorrelationFallback: true,
	}
	e := New(cfg, logging.Noop{}, events.New(), nil, nil)
	e.SetDialer(func(ctx context.Context, rawURL string, handshakeTimeout time.Duration) (Socket, error) {
		return sock, nil
	})
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	go func() {
		sock.waitForWrite(t)
		reply := frame.Frame{Kind: frame.KindMessage, Room: "lobby", Content: "no id echoed"}
		b, _ := json.Marshal(reply)
		sock.push(b)
	}()

	resp, err := e.Request(context.Background(), &frame.Frame{Kind: frame.KindTask, Room: "lobby", Content: "do it"}, 2*time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Content != "no id echoed" {
		t.Fatalf("expected fallback-matched reply, got %+v", resp)
	}
}

func TestEngine_CorrelationFallbackDisabledByDefault(t *testing.T) {
	sock := newFakeSocket()
	e := newTestEngine(sock)
	var gotInbound *frame.Frame
	e.OnInbound = func(f *frame.Frame) { gotInbound = f }
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	go func() {
		sock.waitForWrite(t)
		reply := frame.Frame{Kind: frame.KindMessage, Room: "lobby", Content: "no id echoed"}
		b, _ := json.Marshal(reply)
		sock.push(b)
	}()

	_, err := e.Request(context.Background(), &frame.Frame{Kind: frame.KindTask, Room: "lobby", Content: "do it"}, 100*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout since fallback is disabled by default")
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && gotInbound == nil {
		time.Sleep(5 * time.Millisecond)
	}
	if gotInbound == nil || gotInbound.Content != "no id echoed" {
		t.Fatalf("expected the unmatched frame to fall through to OnInbound, got %+v", gotInbound)
	}
}

func TestEngine_DisconnectRejectsPendingRequests(t *testing.T) {
	sock := newFakeSocket()
	e := newTestEngine(sock)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Request(context.Background(), &frame.Frame{Kind: frame.KindTask, Content: "do it"}, 5*time.Second)
		errCh <- err
	}()

	sock.waitForWrite(t) // ensure the request was sent before disconnecting
	e.Disconnect()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected Disconnect to reject the pending request with an error, got nil")
		}
		if !xerrors.Is(err, xerrors.CodeConnection) {
			t.Fatalf("expected a CodeConnection error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected pending request to resolve after Disconnect")
	}
}

func TestEngine_InboundUnmatchedFrameGoesToOnInbound(t *testing.T) {
	sock := newFakeSocket()
	e := newTestEngine(sock)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	received := make(chan *frame.Frame, 1)
	e.OnInbound = func(f *frame.Frame) { received <- f }

	b, _ := json.Marshal(frame.Frame{Kind: frame.KindAgents, Data: json.RawMessage(`{}`)})
	sock.push(b)

	select {
	case f := <-received:
		if f.Kind != frame.KindAgents {
			t.Fatalf("expected agents frame, got %v", f.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected OnInbound to be called for an unmatched frame")
	}
}
