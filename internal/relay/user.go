// Package relay wires the wsrelay connection primitives to the two
// "leaf" endpoints of the relay: end-user chat and gateway relay. Board
// sync has its own handler in internal/boardsync since its connection
// shape (topic fan-out via Redis, no Pool) differs from these two.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycore/core/internal/auth"
	"github.com/relaycore/core/internal/router"
	"github.com/relaycore/core/internal/wsrelay"
)

// UserHandler serves /ws/user/chat for mobile-client end-users.
type UserHandler struct {
	pool    *wsrelay.Pool
	authSvc *auth.AuthService
	router  *router.Router
	logger  *zap.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(pool *wsrelay.Pool, authSvc *auth.AuthService, rt *router.Router, logger *zap.Logger) *UserHandler {
	return &UserHandler{pool: pool, authSvc: authSvc, router: rt, logger: logger.Named("relay.user")}
}

type chatPayload struct {
	AgentID string `json:"agent_id"`
	Content string `json:"content"`
}

// ServeHTTP upgrades the connection, authenticates the end-user via bearer
// JWT, registers it in the user pool, and relays "chat" frames to the
// message router for the lifetime of the connection.
func (h *UserHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := wsrelay.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := wsrelay.NewConn("", wsConn, h.logger)

	endUserID, _, ok := wsrelay.Handshake(c, func(payload wsrelay.AuthPayload) (string, string, error) {
		claims, err := h.authSvc.ValidateAccessToken(payload.Token)
		if err != nil {
			return "", "", errors.New("invalid or expired token")
		}
		if claims.Kind != auth.ClaimKindEndUser {
			return "", "", errors.New("token is not an end-user token")
		}
		return claims.UserID, claims.OrganizationID, nil
	})
	if !ok {
		return
	}

	h.pool.Register(endUserID, c)
	h.logger.Info("end-user connected", zap.String("end_user_id", endUserID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer h.pool.Unregister(endUserID, c)

	c.Run(ctx, func(ctx context.Context, c *wsrelay.Conn, msg wsrelay.Envelope) {
		if msg.Type != wsrelay.TypeChat {
			h.logger.Debug("unknown message type", zap.String("type", msg.Type))
			return
		}

		var p chatPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.AgentID == "" || p.Content == "" {
			c.SendEnvelope(wsrelay.TypeError, msg.ID, wsrelay.ErrorPayload{Reason: "missing agent_id or content"})
			return
		}

		agentUUID, err := uuid.Parse(p.AgentID)
		if err != nil {
			c.SendEnvelope(wsrelay.TypeError, msg.ID, wsrelay.ErrorPayload{Reason: "invalid agent_id"})
			return
		}
		endUserUUID, err := uuid.Parse(endUserID)
		if err != nil {
			return
		}

		sent, err := h.router.RouteUserToAgent(ctx, endUserUUID, agentUUID, p.Content, msg.ID)
		if err != nil {
			h.logger.Error("routing failed", zap.Error(err))
			c.SendEnvelope(wsrelay.TypeError, msg.ID, wsrelay.ErrorPayload{Reason: "internal error"})
			return
		}
		if !sent {
			c.SendEnvelope(wsrelay.TypeError, msg.ID, wsrelay.ErrorPayload{Reason: "failed to route message to agent"})
		}
	})
}
