package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycore/core/internal/repositories"
	"github.com/relaycore/core/internal/router"
	"github.com/relaycore/core/internal/wsrelay"
)

// GatewayHandler serves /ws/gateway/{gateway_id}/relay.
type GatewayHandler struct {
	pool     *wsrelay.Pool
	gateways repositories.GatewayRepository
	router   *router.Router
	logger   *zap.Logger
}

// NewGatewayHandler creates a GatewayHandler.
func NewGatewayHandler(pool *wsrelay.Pool, gateways repositories.GatewayRepository, rt *router.Router, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{pool: pool, gateways: gateways, router: rt, logger: logger.Named("relay.gateway")}
}

func hashRelayToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// gatewayHeartbeatIntervalSeconds is the poll cadence pushed to every
// gateway on connect, matching the original implementation's default
// ws_heartbeat_interval_seconds.
const gatewayHeartbeatIntervalSeconds = 30

// ServeHTTP upgrades the connection, authenticates the gateway via its
// opaque relay token, marks it online, and relays "chat_reply" frames to
// the message router for the lifetime of the connection.
func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gatewayID, err := uuid.Parse(chi.URLParam(r, "gateway_id"))
	if err != nil {
		http.Error(w, "invalid gateway id", http.StatusBadRequest)
		return
	}

	wsConn, err := wsrelay.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := wsrelay.NewConn(gatewayID.String(), wsConn, h.logger)

	_, _, ok := wsrelay.Handshake(c, func(payload wsrelay.AuthPayload) (string, string, error) {
		if payload.RelayToken == "" {
			return "", "", errors.New("missing relay_token")
		}
		gw, err := h.gateways.GetByID(r.Context(), gatewayID)
		if err != nil {
			return "", "", errors.New("unknown gateway")
		}
		if gw.RelayTokenHash == "" || gw.RelayTokenHash != hashRelayToken(payload.RelayToken) {
			return "", "", errors.New("invalid credentials")
		}
		return gatewayID.String(), "", nil
	}, wsrelay.AuthOKConfig{HeartbeatIntervalSeconds: gatewayHeartbeatIntervalSeconds})
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.gateways.UpdateStatus(ctx, gatewayID, "online", time.Now()); err != nil {
		h.logger.Warn("marking gateway online failed", zap.Error(err))
	}

	h.pool.Register(gatewayID.String(), c)
	h.logger.Info("gateway connected", zap.String("gateway_id", gatewayID.String()))

	defer func() {
		// Only mark the gateway offline if this connection is still the one
		// registered. A reconnect may have already replaced it and marked
		// it online, and this teardown can run after that happens.
		if !h.pool.Unregister(gatewayID.String(), c) {
			return
		}
		if err := h.gateways.UpdateStatus(context.Background(), gatewayID, "offline", time.Now()); err != nil {
			h.logger.Warn("marking gateway offline failed", zap.Error(err))
		}
	}()

	c.Run(ctx, func(ctx context.Context, c *wsrelay.Conn, msg wsrelay.Envelope) {
		if msg.Type != wsrelay.TypeChatReply && msg.Type != wsrelay.TypeChatReplyAlt {
			h.logger.Debug("unknown message type", zap.String("type", msg.Type))
			return
		}

		var p struct {
			SessionKey string         `json:"session_key"`
			Content    string         `json:"content"`
			Extra      map[string]any `json:"extra,omitempty"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.SessionKey == "" || p.Content == "" {
			h.logger.Debug("incomplete chat_reply", zap.String("gateway_id", gatewayID.String()))
			return
		}

		if _, err := h.router.RouteGatewayReply(ctx, p.SessionKey, p.Content, msg.ID, p.Extra); err != nil {
			h.logger.Error("routing gateway reply failed", zap.Error(err))
		}
	})
}
