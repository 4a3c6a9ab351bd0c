// Package wsrelay implements the WebSocket connection layer shared by the
// user-chat and gateway-relay endpoints: the wire envelope, the single-
// connection-per-id registry (Pool), and the auth handshake that both
// endpoints perform before any other message is accepted.
package wsrelay

import (
	"encoding/json"
	"time"
)

// Message types exchanged over every relay socket. Unknown types are logged
// and ignored rather than rejected, so new types can be introduced without
// breaking older clients mid-rollout.
const (
	TypeAuth      = "auth"
	TypeAuthOK    = "auth_ok"
	TypeAuthError = "auth_error"

	TypeHeartbeat    = "heartbeat"
	TypeHeartbeatAck = "heartbeat_ack"

	TypeChat = "chat"
	// TypeChatReply is the canonical wire spelling for a gateway's reply.
	// TypeChatReplyAlt is also accepted and normalized to it, matching
	// gateways observed sending the dotted form.
	TypeChatReply    = "chat_reply"
	TypeChatReplyAlt = "chat.reply"
	TypeChatSend     = "chat.send"

	TypeSystem = "system"
	TypeError  = "error"

	TypeBoardState  = "board.state"
	TypeTaskCreated = "task.created"
	TypeTaskUpdated = "task.updated"
	TypeTaskDeleted = "task.deleted"
	TypeTaskMove    = "task.move"
	TypeTaskCreate  = "task.create"
	TypeSuggestion  = "suggestion.new"
)

// Close codes used across every relay endpoint, per the handshake and
// runtime-error contract.
const (
	CloseAuthFailed = 4001
	CloseNotFound   = 4004
	CloseReplaced   = 1012
	CloseNormal     = 1000
)

// Envelope is the wire shape for every frame sent or received on a relay
// socket: {"type": "...", "id": "...", "timestamp": "...", "payload": {...}}.
// ID is caller-supplied and echoed back where a reply makes sense (e.g.
// heartbeat_ack); it is never generated or interpreted by the relay itself.
// Timestamp is stamped by encode at send time, RFC3339 UTC, so every
// outbound frame (board-sync broadcasts included) carries one.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals a type/id/payload triple into a ready-to-send Envelope.
// Exported for callers outside this package (router, boardsync) that build
// frames to hand to a Pool or publish to the event bus directly.
func Encode(msgType, id string, payload any) ([]byte, error) {
	return encode(msgType, id, payload)
}

// encode marshals a type/id/payload triple into a ready-to-send Envelope,
// stamping the current time as the frame's timestamp.
func encode(msgType, id string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   raw,
	})
}

// AuthOKPayload is sent on successful handshake completion.
type AuthOKPayload struct {
	PrincipalID string        `json:"principal_id"`
	OrgID       string        `json:"organization_id,omitempty"`
	Config      *AuthOKConfig `json:"config,omitempty"`
}

// AuthOKConfig carries connection-specific operational parameters the
// client should adopt; currently only the gateway endpoint populates it.
type AuthOKConfig struct {
	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds"`
}

// ErrorPayload carries a human-readable reason for a "error" or "auth_error"
// frame.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// HeartbeatAckPayload is sent in reply to a heartbeat frame.
type HeartbeatAckPayload struct {
	ServerTime time.Time `json:"server_time"`
}
