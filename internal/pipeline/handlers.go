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

import (
	"encoding/json"

	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/frame"
	"github.com/TeneoProtocolAI/teneo-sdk-sub000/internal/xerrors"
)

// DefaultHandlers returns the SDK's "default handlers" set (spec.md §4.J),
// seeded once per Pipeline and overridable via RegisterHandler.
func DefaultHandlers() map[frame.Kind]Handler {
	return map[frame.Kind]Handler{
		frame.KindChallenge:        handleChallenge,
		frame.KindAuthSuccess:      handleAuthSuccess,
		frame.KindAuthError:        handleAuthError,
		frame.KindAuthRequired:     handleAuthRequired,
		frame.KindRegistrationSucc: handleRegistrationSuccess,
		frame.KindAgents:           handleAgents,
		frame.KindAgentSelected:    handleAgentSelected,
		frame.KindTask:             handleTask,
		frame.KindTaskResponse:     handleTaskResponse,
		frame.KindMessage:          handleMessage,
		frame.KindError:            handleError,
		frame.KindPong:             handlePong,
		frame.KindCapabilities:     handleCapabilities,
		frame.KindListRooms:        handleListRooms,
		frame.KindSubscribeAck:     handleSubscribeAck,
		frame.KindUnsubscribeAck:   handleUnsubscribeAck,
	}
}

type challengePayload struct {
	Challenge string `json:"challenge"`
}

// handleChallenge signs the server's challenge and replies with an auth
// frame, per spec.md §4.I's auth handshake.
func handleChallenge(ctx *Context, f *frame.Frame) error {
	var payload challengePayload
	if err := decodeData(f, &payload); err != nil {
		return xerrors.Wrap(xerrors.CodeValidation, "challenge frame has no decodable payload", err)
	}
	if payload.Challenge == "" {
		return xerrors.New(xerrors.CodeValidation, "challenge frame is missing its challenge field")
	}
	if ctx.Conn == nil {
		return xerrors.New(xerrors.CodeAuthentication, "no connection bound to pipeline")
	}
	return ctx.Conn.HandleChallenge([]byte(payload.Challenge))
}

func handleAuthSuccess(ctx *Context, f *frame.Frame) error {
	if ctx.Conn != nil {
		ctx.Conn.MarkAuthenticated()
	}
	ctx.Emit("auth:success", f)
	return nil
}

func handleAuthError(ctx *Context, f *frame.Frame) error {
	ctx.Emit("auth:error", f.Content)
	return nil
}

func handleAuthRequired(ctx *Context, f *frame.Frame) error {
	ctx.Emit("auth:required", f)
	return nil
}

func handleRegistrationSuccess(ctx *Context, f *frame.Frame) error {
	ctx.Emit("registered", f)
	return nil
}

type agentsPayload struct {
	Agents []struct {
		ID           string   `json:"id"`
		Status       string   `json:"status"`
		Capabilities []string `json:"capabilities"`
	} `json:"agents"`
}

// handleAgents updates the agent registry from a full-snapshot agents
// frame, per spec.md §4.J's "agent-list handler updates the agent
// registry".
func handleAgents(ctx *Context, f *frame.Frame) error {
	var payload agentsPayload
	if err := decodeData(f, &payload); err != nil {
		return xerrors.Wrap(xerrors.CodeValidation, "agents frame has no decodable payload", err)
	}
	infos := make([]AgentInfo, 0, len(payload.Agents))
	for _, a := range payload.Agents {
		infos = append(infos, AgentInfo{ID: a.ID, Status: a.Status, Capabilities: a.Capabilities})
	}
	ctx.Agents.Replace(infos)
	ctx.Emit("agents", infos)
	return nil
}

func handleAgentSelected(ctx *Context, f *frame.Frame) error {
	ctx.Emit("agent:selected", f)
	return nil
}

type taskResponsePayload struct {
	TaskID  string          `json:"task_id"`
	Success json.RawMessage `json:"success"`
}

// handleTaskResponse emits agent:response with the task's coerced success
// flag, tolerating the stringified-boolean wire form (spec.md §4.A).
func handleTaskResponse(ctx *Context, f *frame.Frame) error {
	var payload taskResponsePayload
	if err := decodeData(f, &payload); err != nil {
		return xerrors.Wrap(xerrors.CodeValidation, "task_response frame has no decodable payload", err)
	}
	success := false
	if len(payload.Success) > 0 {
		ok, err := frame.CoerceBool(payload.Success)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeValidation, "task_response.success is not boolean-ish", err)
		}
		success = ok
	}
	ctx.Emit("agent:response", map[string]any{
		"task_id": payload.TaskID,
		"success": success,
		"content": f.Content,
		"from":    f.From,
	})
	return nil
}

func handleMessage(ctx *Context, f *frame.Frame) error {
	ctx.Emit("message", f)
	return nil
}

func handleError(ctx *Context, f *frame.Frame) error {
	ctx.Emit("server:error", f.Content)
	return nil
}

func handleSubscribeAck(ctx *Context, f *frame.Frame) error {
	ctx.Rooms.Add(f.Room)
	ctx.Emit("room:joined", f.Room)
	return nil
}

func handleUnsubscribeAck(ctx *Context, f *frame.Frame) error {
	ctx.Rooms.Remove(f.Room)
	ctx.Emit("room:left", f.Room)
	return nil
}

// handleTask surfaces an inbound task assignment (a coordinator routing a
// unit of work to this agent client) as a typed event; the facade forwards
// it to the webhook engine as an "task" event, per spec.md §6's enum.
func handleTask(ctx *Context, f *frame.Frame) error {
	ctx.Emit("task", f)
	return nil
}

func handlePong(ctx *Context, f *frame.Frame) error {
	ctx.Emit("pong", f)
	return nil
}

func handleCapabilities(ctx *Context, f *frame.Frame) error {
	ctx.Emit("capabilities", f)
	return nil
}

type listRoomsPayload struct {
	Rooms []string `json:"rooms"`
}

// handleListRooms updates the room registry from the server's eventual
// reply, per spec.md §9's second Open Question: list_rooms is fire-and-
// forget on send (SPEC_FULL.md §4.I), so the only place its result ever
// surfaces is this handler's rooms:updated event.
func handleListRooms(ctx *Context, f *frame.Frame) error {
	var payload listRoomsPayload
	if err := decodeData(f, &payload); err != nil {
		return xerrors.Wrap(xerrors.CodeValidation, "list_rooms frame has no decodable payload", err)
	}
	for _, room := range payload.Rooms {
		ctx.Rooms.Add(room)
	}
	ctx.Emit("rooms:updated", payload.Rooms)
	return nil
}
