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

// Command teneo-smoketest wires the teneo.Client facade against a live
// gateway and logs every event it emits. It is not the example application
// spec.md names as an out-of-scope collaborator: it takes no application
// arguments, persists nothing, and exists only to exercise Connect and
// Destroy end to end against a real ws:// or wss:// endpoint during
// manual verification.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	teneo "github.com/TeneoProtocolAI/teneo-sdk-sub000"
)

func main() {
	wsURL := flag.String("ws_url", "wss://agents.teneo.pro/ws", "gateway WebSocket URL")
	privateKey := flag.String("private_key", "", "hex-encoded secp256k1 private key used to answer the auth challenge")
	walletAddress := flag.String("wallet_address", "", "expected wallet address; validated against private_key")
	webhookURL := flag.String("webhook_url", "", "optional webhook endpoint to forward events to")
	autoJoinRooms := flag.String("auto_join_rooms", "", "comma-separated room names to subscribe to after auth succeeds")
	clientType := flag.String("client_type", "user", "user, agent, or coordinator")
	metricsEnabled := flag.Bool("metrics", false, "enable Prometheus instrumentation")
	connectTimeout := flag.Duration("connect_timeout", 10*time.Second, "connection handshake timeout")
	flag.Parse()

	cfg := teneo.DefaultConfig(*wsURL)
	cfg.PrivateKey = *privateKey
	cfg.WalletAddress = *walletAddress
	cfg.WebhookURL = *webhookURL
	cfg.ClientType = teneo.ClientType(*clientType)
	cfg.MetricsEnabled = *metricsEnabled
	cfg.ConnectionTimeout = *connectTimeout
	if *autoJoinRooms != "" {
		cfg.AutoJoinRooms = strings.Split(*autoJoinRooms, ",")
	}

	client, err := teneo.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not construct client: %v\n", err)
		os.Exit(1)
	}

	for _, evt := range []string{
		"message", "task", "agent:response", "agent:selected",
		"auth:success", "auth:error", "server:error", "message:error",
		"room:joined", "room:left", "rooms:updated",
	} {
		event := evt
		client.On(event, func(payload any) {
			fmt.Printf("[%s] %+v\n", event, payload)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), *connectTimeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("connected to %s, state=%v\n", *wsURL, client.State())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nshutting down...")
	client.Destroy()
	fmt.Println("disconnected.")
}
