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

// Package ssrf validates webhook target URLs before dial (spec component
// G). It is grounded on internal/upload/ssrf.go from the
// brennhill-gasoline-mcp-ai-devtools retrieval pack entry: the private-CIDR
// table, DNS-resolve-then-pin dial pattern, and "reject unless a public IP
// comes back" posture are carried over directly. Extended for this spec's
// rule set with the cloud-metadata/Kubernetes literal blocklist, the
// internal-service port blocklist, and http/localhost interaction, none of
// which the teacher file's simpler private-range check covers.
package ssrf

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

const lookupTimeout = 5 * time.Second

var privateRanges []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"224.0.0.0/4",
		"255.255.255.255/32",
		"::1/128",
		"::/128",
		"fe80::/10",
		"fc00::/7",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			privateRanges = append(privateRanges, n)
		}
	}
}

var blockedLiteralHosts = map[string]bool{
	"169.254.169.254":            true,
	"fd00:ec2::254":              true,
	"instance-data":               true,
	"instance-data.ec2.internal":  true,
	"metadata.google.internal":    true,
	"metadata.google.com":         true,
	"0.0.0.0":                     true,
	"::":                          true,
	"[::]":                        true,
}

var localhostLiterals = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

var blockedPorts = map[string]bool{
	"22": true, "23": true, "25": true, "3306": true,
	"5432": true, "6379": true, "9200": true, "27017": true,
}

// Validate enforces spec.md §4.G's seven ordered rules against target,
// resolving DNS where needed. Returns a typed ValidationError naming the
// failing rule.
func Validate(ctx context.Context, target string, allowInsecure bool) error {
	u, err := url.Parse(target)
	if err != nil {
		return fail("url_parse", "could not parse target URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fail("scheme", "scheme must be http or https")
	}

	host := u.Hostname()
	lowerHost := strings.ToLower(host)

	if blockedLiteralHosts[lowerHost] {
		return fail("blocked_literal", "hostname is a known cloud-metadata or bind-all address")
	}
	if strings.HasPrefix(lowerHost, "kubernetes.default") {
		return fail("blocked_literal", "hostname is a Kubernetes API host")
	}
	if strings.Contains(lowerHost, ".svc") || strings.HasPrefix(lowerHost, "kubernetes") {
		return fail("k8s_service_heuristic", "hostname matches the Kubernetes-service heuristic")
	}

	isLocalhostLiteral := localhostLiterals[lowerHost]
	if isLocalhostLiteral && !allowInsecure {
		return fail("localhost_blocked", "localhost is only permitted when allow_insecure is set")
	}

	if u.Scheme == "http" && !isLocalhostLiteral {
		return fail("insecure_scheme", "http is only permitted to localhost")
	}

	if !isLocalhostLiteral {
		if err := resolvePublic(ctx, host); err != nil {
			return fail("private_ip", err.Error())
		}
	}

	if u.Port() != "" && blockedPorts[u.Port()] {
		return fail("blocked_port", "port is in the internal-service blocklist")
	}

	return nil
}

func fail(rule, reason string) error {
	return xerrors.New(xerrors.CodeValidation, "ssrf: "+rule+": "+reason)
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsUnspecified() || ip.IsLoopback() {
		return true
	}
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// resolvePublic resolves host and errors unless at least one address is
// non-private. Literal IPs are checked directly without a DNS round trip.
func resolvePublic(ctx context.Context, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return xerrors.New(xerrors.CodeValidation, "host resolves to a private/special IP range")
		}
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeValidation, "DNS lookup failed", err)
	}
	for _, a := range addrs {
		if !isPrivateIP(a.IP) {
			return nil
		}
	}
	return xerrors.New(xerrors.CodeValidation, "hostname resolves only to private IP addresses")
}

// DialerFor pins the dial to a pre-resolved public IP, re-validating on
// every connection attempt so DNS cannot be rebound between Validate and
// Dial (TOCTOU).
func DialerFor(allowInsecure bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeValidation, "invalid dial address", err)
		}

		if localhostLiterals[strings.ToLower(host)] {
			if !allowInsecure {
				return nil, xerrors.New(xerrors.CodeValidation, "ssrf: localhost_blocked: not permitted")
			}
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		}

		ip := net.ParseIP(host)
		if ip == nil {
			lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
			defer cancel()
			addrs, lerr := net.DefaultResolver.LookupIPAddr(lookupCtx, host)
			if lerr != nil {
				return nil, xerrors.Wrap(xerrors.CodeValidation, "DNS lookup failed", lerr)
			}
			for _, a := range addrs {
				if !isPrivateIP(a.IP) {
					ip = a.IP
					break
				}
			}
			if ip == nil {
				return nil, xerrors.New(xerrors.CodeValidation, "hostname resolves only to private IP addresses")
			}
		} else if isPrivateIP(ip) {
			return nil, xerrors.New(xerrors.CodeValidation, "ssrf: private_ip: dial target is private")
		}

		var d net.Dialer
		return d.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
	}
}

// Transport returns an *http.Transport whose DialContext is pinned through
// DialerFor, for use by the webhook engine's pooled HTTP client.
func Transport(allowInsecure bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = DialerFor(allowInsecure)
	return t
}
