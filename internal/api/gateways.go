package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repositories"
)

// GatewayHandler groups gateway CRUD and relay-token provisioning handlers.
type GatewayHandler struct {
	repo   repositories.GatewayRepository
	logger *zap.Logger
}

func NewGatewayHandler(repo repositories.GatewayRepository, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{repo: repo, logger: logger.Named("gateway_handler")}
}

type gatewayResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	WorkspaceRoot  string `json:"workspace_root"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func gatewayToResponse(g *db.Gateway) gatewayResponse {
	return gatewayResponse{
		ID:             g.ID.String(),
		OrganizationID: g.OrganizationID.String(),
		Name:           g.Name,
		URL:            g.URL,
		WorkspaceRoot:  g.WorkspaceRoot,
		Status:         g.Status,
		CreatedAt:      g.CreatedAt.UTC().String(),
		UpdatedAt:      g.UpdatedAt.UTC().String(),
	}
}

type listGatewaysResponse struct {
	Items []gatewayResponse `json:"items"`
	Total int64             `json:"total"`
}

// List handles GET /api/v1/organizations/{org_id}/gateways.
func (h *GatewayHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	gateways, total, err := h.repo.ListByOrganization(r.Context(), orgID, paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list gateways", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]gatewayResponse, len(gateways))
	for i := range gateways {
		items[i] = gatewayToResponse(&gateways[i])
	}
	Ok(w, listGatewaysResponse{Items: items, Total: total})
}

type createGatewayRequest struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	WorkspaceRoot string `json:"workspace_root"`
}

type createGatewayResponse struct {
	gatewayResponse
	RelayToken string `json:"relay_token"`
}

// Create handles POST /api/v1/organizations/{org_id}/gateways. The raw
// relay token is returned once, in this response only; the gateway's
// relay-socket handshake authenticates against RelayTokenHash afterward.
func (h *GatewayHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	var req createGatewayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}

	rawToken, tokenHash, err := generateRelayToken()
	if err != nil {
		h.logger.Error("failed to generate relay token", zap.Error(err))
		ErrInternal(w)
		return
	}

	gw := &db.Gateway{
		OrganizationID: orgID,
		Name:           req.Name,
		URL:            req.URL,
		WorkspaceRoot:  req.WorkspaceRoot,
		RelayTokenHash: tokenHash,
		Status:         "pending",
	}

	if err := h.repo.Create(r.Context(), gw); err != nil {
		h.logger.Error("failed to create gateway", zap.Error(err))
		ErrInternal(w)
		return
	}
	JSON(w, http.StatusCreated, envelope{"data": createGatewayResponse{gatewayResponse: gatewayToResponse(gw), RelayToken: rawToken}})
}

// GetByID handles GET /api/v1/gateways/{id}.
func (h *GatewayHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	gw, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get gateway", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, gatewayToResponse(gw))
}

type updateGatewayRequest struct {
	Name          *string `json:"name"`
	URL           *string `json:"url"`
	WorkspaceRoot *string `json:"workspace_root"`
}

// Update handles PATCH /api/v1/gateways/{id}.
func (h *GatewayHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateGatewayRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	gw, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get gateway for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			ErrBadRequest(w, "name cannot be empty")
			return
		}
		gw.Name = *req.Name
	}
	if req.URL != nil {
		gw.URL = *req.URL
	}
	if req.WorkspaceRoot != nil {
		gw.WorkspaceRoot = *req.WorkspaceRoot
	}

	if err := h.repo.Update(r.Context(), gw); err != nil {
		h.logger.Error("failed to update gateway", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, gatewayToResponse(gw))
}

// Delete handles DELETE /api/v1/gateways/{id}.
func (h *GatewayHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Warn("failed to delete gateway", zap.String("id", id.String()), zap.Error(err))
		ErrConflict(w, "gateway is still referenced by one or more agents")
		return
	}
	NoContent(w)
}

// generateRelayToken returns a random raw token and its SHA-256 hex digest,
// mirroring internal/auth's refresh-token generation pattern: only the
// hash is ever persisted.
func generateRelayToken() (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	sum := sha256.Sum256([]byte(raw))
	hash = hex.EncodeToString(sum[:])
	return raw, hash, nil
}
