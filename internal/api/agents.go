package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repositories"
)

// AgentHandler groups agent CRUD and registration handlers. GatewayID is
// immutable once set, so Update never accepts it.
type AgentHandler struct {
	repo   repositories.AgentRepository
	logger *zap.Logger
}

func NewAgentHandler(repo repositories.AgentRepository, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{repo: repo, logger: logger.Named("agent_handler")}
}

type agentResponse struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	GatewayID      string  `json:"gateway_id"`
	BoardID        *string `json:"board_id,omitempty"`
	Name           string  `json:"name"`
	WorkspacePath  string  `json:"workspace_path"`
	IsBoardLead    bool    `json:"is_board_lead"`
	AutoHeartbeatEnabled bool   `json:"auto_heartbeat_enabled"`
	AutoHeartbeatStep    int    `json:"auto_heartbeat_step"`
	AutoHeartbeatOff     bool   `json:"auto_heartbeat_off"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func agentToResponse(a *db.Agent) agentResponse {
	var boardID *string
	if a.BoardID != nil {
		v := a.BoardID.String()
		boardID = &v
	}
	return agentResponse{
		ID:                   a.ID.String(),
		OrganizationID:       a.OrganizationID.String(),
		GatewayID:            a.GatewayID.String(),
		BoardID:              boardID,
		Name:                 a.Name,
		WorkspacePath:        a.WorkspacePath,
		IsBoardLead:          a.IsBoardLead,
		AutoHeartbeatEnabled: a.AutoHeartbeatEnabled,
		AutoHeartbeatStep:    a.AutoHeartbeatStep,
		AutoHeartbeatOff:     a.AutoHeartbeatOff,
		CreatedAt:            a.CreatedAt.UTC().String(),
		UpdatedAt:            a.UpdatedAt.UTC().String(),
	}
}

type listAgentsResponse struct {
	Items []agentResponse `json:"items"`
	Total int64           `json:"total"`
}

// List handles GET /api/v1/organizations/{org_id}/agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	agents, total, err := h.repo.ListByOrganization(r.Context(), orgID, paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list agents", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]agentResponse, len(agents))
	for i := range agents {
		items[i] = agentToResponse(&agents[i])
	}
	Ok(w, listAgentsResponse{Items: items, Total: total})
}

type createAgentRequest struct {
	GatewayID     string  `json:"gateway_id"`
	BoardID       *string `json:"board_id"`
	Name          string  `json:"name"`
	WorkspacePath string  `json:"workspace_path"`
	IsBoardLead   bool    `json:"is_board_lead"`
}

// Create handles POST /api/v1/organizations/{org_id}/agents. Registration
// of the agent's auth token is a separate provisioning concern handled by
// the gateway's own enrollment flow, not this endpoint.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	var req createAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}
	gatewayID, err := parseUUIDString(req.GatewayID)
	if err != nil {
		ErrBadRequest(w, "gateway_id must be a valid UUID")
		return
	}

	agent := &db.Agent{
		OrganizationID: orgID,
		GatewayID:      gatewayID,
		Name:           req.Name,
		WorkspacePath:  req.WorkspacePath,
		IsBoardLead:    req.IsBoardLead,
	}
	if req.BoardID != nil && *req.BoardID != "" {
		boardID, err := parseUUIDString(*req.BoardID)
		if err != nil {
			ErrBadRequest(w, "board_id must be a valid UUID")
			return
		}
		agent.BoardID = &boardID
	}

	if err := h.repo.Create(r.Context(), agent); err != nil {
		h.logger.Error("failed to create agent", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, agentToResponse(agent))
}

// GetByID handles GET /api/v1/agents/{id}.
func (h *AgentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	agent, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get agent", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, agentToResponse(agent))
}

type updateAgentRequest struct {
	Name          *string `json:"name"`
	BoardID       *string `json:"board_id"`
	WorkspacePath *string `json:"workspace_path"`
	IsBoardLead   *bool   `json:"is_board_lead"`
}

// Update handles PATCH /api/v1/agents/{id}. Does not touch GatewayID or any
// AutoHeartbeat* column — those are governor-owned (see db.Agent doc) and
// updated only via the governor's UpdateHeartbeatState.
func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	agent, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get agent for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			ErrBadRequest(w, "name cannot be empty")
			return
		}
		agent.Name = *req.Name
	}
	if req.WorkspacePath != nil {
		agent.WorkspacePath = *req.WorkspacePath
	}
	if req.IsBoardLead != nil {
		agent.IsBoardLead = *req.IsBoardLead
	}
	if req.BoardID != nil {
		if *req.BoardID == "" {
			agent.BoardID = nil
		} else {
			boardID, err := parseUUIDString(*req.BoardID)
			if err != nil {
				ErrBadRequest(w, "board_id must be a valid UUID")
				return
			}
			agent.BoardID = &boardID
		}
	}

	if err := h.repo.Update(r.Context(), agent); err != nil {
		h.logger.Error("failed to update agent", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, agentToResponse(agent))
}

// Delete handles DELETE /api/v1/agents/{id}.
func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Warn("failed to delete agent", zap.String("id", id.String()), zap.Error(err))
		ErrConflict(w, "agent is still referenced by one or more assignments or tasks")
		return
	}
	NoContent(w)
}
