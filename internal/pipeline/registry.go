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

package pipeline

import "sync"

// RoomRegistry tracks the rooms this client believes it is subscribed to,
// mutated by the subscribe/unsubscribe ack handlers and the list_rooms
// handler.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]bool
}

// NewRoomRegistry returns an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]bool)}
}

// Add records room as joined.
func (r *RoomRegistry) Add(room string) {
	if room == "" {
		return
	}
	r.mu.Lock()
	r.rooms[room] = true
	r.mu.Unlock()
}

// Remove records room as left.
func (r *RoomRegistry) Remove(room string) {
	r.mu.Lock()
	delete(r.rooms, room)
	r.mu.Unlock()
}

// Has reports whether room is currently joined.
func (r *RoomRegistry) Has(room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[room]
}

// List returns a snapshot of the joined rooms.
func (r *RoomRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	return out
}

// AgentInfo is the registry's view of one remote agent, populated from the
// "agents" frame's data payload.
type AgentInfo struct {
	ID           string
	Status       string
	Capabilities []string
}

// AgentRegistry tracks the last-known set of remote agents, mutated only by
// the agents-list handler.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]AgentInfo
}

// NewAgentRegistry returns an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]AgentInfo)}
}

// Replace atomically swaps the known agent set, per the "agents" frame's
// full-snapshot semantics (spec.md §6's agents enum is a list, not a diff).
func (a *AgentRegistry) Replace(agents []AgentInfo) {
	next := make(map[string]AgentInfo, len(agents))
	for _, ag := range agents {
		next[ag.ID] = ag
	}
	a.mu.Lock()
	a.agents = next
	a.mu.Unlock()
}

// Get returns the known info for id, if any.
func (a *AgentRegistry) Get(id string) (AgentInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	info, ok := a.agents[id]
	return info, ok
}

// All returns a snapshot of every known agent.
func (a *AgentRegistry) All() []AgentInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AgentInfo, 0, len(a.agents))
	for _, info := range a.agents {
		out = append(out, info)
	}
	return out
}
