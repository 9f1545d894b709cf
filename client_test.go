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

package teneo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/breaker"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/conn"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/frame"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/retry"
)

// fakeSocket is an in-memory conn.Socket double; see internal/conn's test
// file for the original shape this is copied from.
type fakeSocket struct {
	mu      sync.Mutex
	writes  chan []byte
	toRead  chan []byte
	closed  bool
	closeCh chan struct{}
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{writes: make(chan []byte, 16), toRead: make(chan []byte, 16), closeCh: make(chan struct{})}
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
func (f *fakeSocket) push(b []byte)                     { f.toRead <- b }

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

func newTestClient(t *testing.T, cfg Config) (*Client, *fakeSocket) {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sock := newFakeSocket()
	c.conn.SetDialer(func(ctx context.Context, rawURL string, handshakeTimeout time.Duration) (conn.Socket, error) {
		return sock, nil
	})
	return c, sock
}

func TestClient_ConnectWithoutCredentialsGoesReady(t *testing.T) {
	cfg := DefaultConfig("wss://agents.example.com/ws")
	c, _ := newTestClient(t, cfg)
	defer c.Destroy()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != conn.Ready {
		t.Fatalf("expected Ready, got %v", c.State())
	}
}

func TestClient_SendWritesFrameToTransport(t *testing.T) {
	cfg := DefaultConfig("wss://agents.example.com/ws")
	c, sock := newTestClient(t, cfg)
	defer c.Destroy()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Send(context.Background(), &Frame{Kind: frame.KindMessage, Content: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	raw := sock.waitForWrite(t)
	var got frame.Frame
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal written frame: %v", err)
	}
	if got.Content != "hello" {
		t.Fatalf("expected content 'hello', got %q", got.Content)
	}
}

func TestClient_InboundMessageReachesPipelineAndEmitsEvent(t *testing.T) {
	cfg := DefaultConfig("wss://agents.example.com/ws")
	c, sock := newTestClient(t, cfg)
	defer c.Destroy()

	var got atomic.Value
	c.On("message", func(payload any) { got.Store(payload) })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	raw, _ := json.Marshal(&frame.Frame{Kind: frame.KindMessage, Content: "hi there"})
	sock.push(raw)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got.Load() != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	f, ok := got.Load().(*frame.Frame)
	if !ok || f == nil {
		t.Fatalf("expected a message event carrying the inbound frame")
	}
	if f.Content != "hi there" {
		t.Fatalf("expected content 'hi there', got %q", f.Content)
	}
}

func TestClient_WebhookForwardsMessageEvents(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	cfg := DefaultConfig("wss://agents.example.com/ws")
	cfg.WebhookURL = srv.URL
	cfg.AllowInsecureWebhooks = true
	c, sock := newTestClient(t, cfg)
	defer c.Destroy()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	raw, _ := json.Marshal(&frame.Frame{Kind: frame.KindMessage, Content: "fan me out"})
	sock.push(raw)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hits.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if hits.Load() == 0 {
		t.Fatalf("expected the inbound message event to be forwarded to the webhook endpoint")
	}
}

func TestClient_MetricsReportsCountersWhenEnabled(t *testing.T) {
	cfg := DefaultConfig("wss://agents.example.com/ws")
	cfg.MetricsEnabled = true
	c, sock := newTestClient(t, cfg)
	defer c.Destroy()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	raw, _ := json.Marshal(&frame.Frame{Kind: frame.KindMessage, Content: "count me"})
	sock.push(raw)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && c.Metrics().MessagesReceived["message"] == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	snap := c.Metrics()
	if snap.MessagesReceived["message"] == 0 {
		t.Fatalf("expected a recorded received message, got %+v", snap)
	}
	if snap.ConnectionState == "" {
		t.Fatalf("expected a non-empty connection state in the snapshot")
	}
}

func TestClient_MetricsDisabledReturnsZeroSnapshot(t *testing.T) {
	cfg := DefaultConfig("wss://agents.example.com/ws")
	c, _ := newTestClient(t, cfg)
	defer c.Destroy()

	snap := c.Metrics()
	if snap.ReconnectTotal != 0 || snap.DedupDrops != 0 || len(snap.MessagesSent) != 0 {
		t.Fatalf("expected a zero snapshot when metrics are disabled, got %+v", snap)
	}
}

func TestClient_ConfigureBreakerRequiresWebhookEngine(t *testing.T) {
	cfg := DefaultConfig("wss://agents.example.com/ws")
	c, _ := newTestClient(t, cfg)
	defer c.Destroy()

	if err := c.ConfigureBreaker(breaker.Config{FailureThreshold: 2}); err == nil {
		t.Fatalf("expected an error configuring the breaker with no webhook_url set")
	}
}

func TestClient_ConfigureRetryAppliesToWebhookEngine(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(500)
	}))
	defer srv.Close()

	cfg := DefaultConfig("wss://agents.example.com/ws")
	cfg.WebhookURL = srv.URL
	cfg.AllowInsecureWebhooks = true
	c, _ := newTestClient(t, cfg)
	defer c.Destroy()

	if err := c.ConfigureRetry(retry.Constant, time.Millisecond, time.Millisecond, 0, false); err != nil {
		t.Fatalf("ConfigureRetry: %v", err)
	}
	if err := c.ConfigureBreaker(breaker.Config{FailureThreshold: 100}); err != nil {
		t.Fatalf("ConfigureBreaker: %v", err)
	}

	if err := c.EnqueueWebhook("error", map[string]any{"msg": "boom"}, nil); err != nil {
		t.Fatalf("EnqueueWebhook: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hits.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if hits.Load() == 0 {
		t.Fatalf("expected the reconfigured webhook engine to still attempt delivery")
	}
}

func TestClient_RejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected an error for a config with no ws_url")
	}
}

func TestClient_WalletAddressMismatchRejected(t *testing.T) {
	cfg := DefaultConfig("wss://agents.example.com/ws")
	cfg.PrivateKey = "1111111111111111111111111111111111111111111111111111111111111111"
	cfg.WalletAddress = "0x0000000000000000000000000000000000dEaD"
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected wallet_address/private_key mismatch to be rejected")
	}
}
