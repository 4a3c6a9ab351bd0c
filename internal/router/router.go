// Package router implements the Message Router: the user<->agent chat
// relay described by SPEC_FULL.md's Message Router component. It is
// grounded on original_source/backend/app/services/ws_relay/message_router.py's
// two-direction routing algorithm (route_h5_to_agent / route_gateway_to_h5),
// adapted to the Go connection-pool/event-bus stack instead of asyncio
// connection managers.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycore/core/internal/eventbus"
	"github.com/relaycore/core/internal/metrics"
	"github.com/relaycore/core/internal/repositories"
	"github.com/relaycore/core/internal/repository"
	"github.com/relaycore/core/internal/wsrelay"
)

// sessionKey builds the "h5:{user_id}:{agent_id}" key every chat session is
// addressed by, matching the source system's naming so session keys remain
// meaningful if ever exported or logged alongside legacy data.
func sessionKey(endUserID, agentID uuid.UUID) string {
	return fmt.Sprintf("h5:%s:%s", endUserID, agentID)
}

// Router routes chat messages between end-users and the gateway-hosted
// agents they're assigned to.
type Router struct {
	assignments repository.EndUserAssignmentRepository
	sessions    repository.ChatSessionRepository
	agents      repositories.AgentRepository

	userPool    *wsrelay.Pool
	gatewayPool *wsrelay.Pool
	bus         *eventbus.Bus
	publisher   *eventbus.Publisher

	logger *zap.Logger
}

// New creates a Router. publisher may be nil, in which case chat routing
// never emits SystemEvents (used in tests that don't need the rule engine
// or governor activity signal).
func New(
	assignments repository.EndUserAssignmentRepository,
	sessions repository.ChatSessionRepository,
	agents repositories.AgentRepository,
	userPool, gatewayPool *wsrelay.Pool,
	bus *eventbus.Bus,
	publisher *eventbus.Publisher,
	logger *zap.Logger,
) *Router {
	return &Router{
		assignments: assignments,
		sessions:    sessions,
		agents:      agents,
		userPool:    userPool,
		gatewayPool: gatewayPool,
		bus:         bus,
		publisher:   publisher,
		logger:      logger.Named("router"),
	}
}

// chatEventPayload is the SystemEvent payload recorded for both chat
// directions, giving rule authors and the governor's activity signal
// something to key off without re-deriving it from the raw message frame.
type chatEventPayload struct {
	SessionKey string `json:"session_key"`
	Content    string `json:"content"`
}

func (r *Router) publishChatEvent(ctx context.Context, eventType string, orgID uuid.UUID, boardID, agentID *uuid.UUID, sessionKey, content string) {
	if r.publisher == nil {
		return
	}
	if _, err := r.publisher.Publish(ctx, eventType, orgID, boardID, agentID, nil, chatEventPayload{SessionKey: sessionKey, Content: content}); err != nil {
		r.logger.Warn("publishing chat event failed", zap.Error(err), zap.String("event_type", eventType))
	}
}

// gatewayChatPayload is the payload shape forwarded to a gateway as
// {type: chat.send, ...}.
type gatewayChatPayload struct {
	SessionKey string `json:"session_key"`
	UserID     string `json:"user_id"`
	AgentID    string `json:"agent_id"`
	Content    string `json:"content"`
	Role       string `json:"role"`
}

// userReplyPayload is the payload shape forwarded to a user as
// {type: chat_reply, ...}. Extra's fields are spread at the payload's top
// level, not nested under an "extra" key.
type userReplyPayload struct {
	SessionKey string `json:"session_key"`
	AgentID    string `json:"agent_id"`
	Content    string `json:"content"`
	Role       string `json:"role"`
	Extra      map[string]any
}

// MarshalJSON flattens Extra's keys alongside the struct's own fields
// instead of nesting them under "extra".
func (p userReplyPayload) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"session_key": p.SessionKey,
		"agent_id":    p.AgentID,
		"content":     p.Content,
		"role":        p.Role,
	}
	for k, v := range p.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// RouteUserToAgent authorizes, resolves a session, and forwards a chat
// message from an end-user to the agent's gateway. Returns false (with a
// nil error) for ordinary routing failures — "no assignment", "gateway
// unreachable" — reserving the error return for unexpected storage errors.
func (r *Router) RouteUserToAgent(ctx context.Context, endUserID, agentID uuid.UUID, content, msgID string) (bool, error) {
	assignment, err := r.assignments.GetByUserAndAgent(ctx, endUserID, agentID)
	if err != nil {
		if isNotFound(err) {
			r.logger.Warn("no assignment", zap.String("end_user_id", endUserID.String()), zap.String("agent_id", agentID.String()))
			return false, nil
		}
		return false, fmt.Errorf("router: loading assignment: %w", err)
	}

	agent, err := r.agents.GetByID(ctx, agentID)
	if err != nil {
		if isNotFound(err) {
			r.logger.Warn("agent not found", zap.String("agent_id", agentID.String()))
			return false, nil
		}
		return false, fmt.Errorf("router: loading agent: %w", err)
	}

	key := sessionKey(endUserID, agentID)
	session, err := r.sessions.GetOrCreate(ctx, assignment.OrganizationID, endUserID, agentID, agent.GatewayID, key)
	if err != nil {
		return false, fmt.Errorf("router: resolving chat session: %w", err)
	}

	if err := r.sessions.TouchLastMessageAt(ctx, session.ID, time.Now()); err != nil {
		r.logger.Warn("touch last_message_at failed", zap.Error(err))
	}

	b, err := wsrelay.Encode(wsrelay.TypeChatSend, msgID, gatewayChatPayload{
		SessionKey: key,
		UserID:     endUserID.String(),
		AgentID:    agentID.String(),
		Content:    content,
		Role:       "user",
	})
	if err != nil {
		return false, fmt.Errorf("router: encoding chat.send: %w", err)
	}

	gatewayIDStr := agent.GatewayID.String()
	delivered := r.gatewayPool.Send(gatewayIDStr, b)
	if !delivered {
		delivered = r.bus.PublishRaw(ctx, eventbus.GatewayRouteChannel(agent.GatewayID), b)
		if !delivered {
			r.logger.Warn("gateway unreachable", zap.String("gateway_id", gatewayIDStr))
		}
	}

	if delivered {
		r.publishChatEvent(ctx, eventbus.EventChatSent, assignment.OrganizationID, agent.BoardID, &agentID, key, content)
		metrics.ChatMessagesRouted.WithLabelValues("user_to_agent", "delivered").Inc()
	} else {
		metrics.ChatMessagesRouted.WithLabelValues("user_to_agent", "undelivered").Inc()
	}
	return delivered, nil
}

// RouteGatewayReply loads the ChatSession addressed by sessionKey and
// forwards a gateway's reply to the owning end-user.
func (r *Router) RouteGatewayReply(ctx context.Context, sessionKey, content, msgID string, extra map[string]any) (bool, error) {
	session, err := r.sessions.GetBySessionKey(ctx, sessionKey)
	if err != nil {
		if isNotFound(err) {
			r.logger.Warn("session not found", zap.String("session_key", sessionKey))
			return false, nil
		}
		return false, fmt.Errorf("router: loading chat session: %w", err)
	}
	if session.Status != "active" {
		r.logger.Warn("session not active", zap.String("session_key", sessionKey), zap.String("status", session.Status))
		return false, nil
	}

	b, err := wsrelay.Encode(wsrelay.TypeChatReply, msgID, userReplyPayload{
		SessionKey: sessionKey,
		AgentID:    session.AgentID.String(),
		Content:    content,
		Role:       "assistant",
		Extra:      extra,
	})
	if err != nil {
		return false, fmt.Errorf("router: encoding chat_reply: %w", err)
	}

	userIDStr := session.EndUserID.String()
	delivered := r.userPool.Send(userIDStr, b)
	if !delivered {
		delivered = r.bus.PublishRaw(ctx, eventbus.UserRouteChannel(session.EndUserID), b)
		if !delivered {
			r.logger.Warn("user unreachable", zap.String("end_user_id", userIDStr))
		}
	}

	if delivered {
		var boardID *uuid.UUID
		if agent, err := r.agents.GetByID(ctx, session.AgentID); err == nil {
			boardID = agent.BoardID
		}
		agentID := session.AgentID
		r.publishChatEvent(ctx, eventbus.EventChatReceived, session.OrganizationID, boardID, &agentID, sessionKey, content)
		metrics.ChatMessagesRouted.WithLabelValues("gateway_to_user", "delivered").Inc()
	} else {
		metrics.ChatMessagesRouted.WithLabelValues("gateway_to_user", "undelivered").Inc()
	}
	return delivered, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, repositories.ErrNotFound)
}
