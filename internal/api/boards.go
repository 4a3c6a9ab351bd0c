package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repository"
)

// BoardHandler groups board CRUD handlers, including the heartbeat-governor
// policy columns a board carries for its agents.
type BoardHandler struct {
	repo   repository.BoardRepository
	logger *zap.Logger
}

func NewBoardHandler(repo repository.BoardRepository, logger *zap.Logger) *BoardHandler {
	return &BoardHandler{repo: repo, logger: logger.Named("board_handler")}
}

type boardResponse struct {
	ID                           string   `json:"id"`
	OrganizationID               string   `json:"organization_id"`
	Name                         string   `json:"name"`
	GovernorEnabled              bool     `json:"governor_enabled"`
	GovernorRunIntervalSeconds   int      `json:"governor_run_interval_seconds"`
	GovernorLadder               []string `json:"governor_ladder,omitempty"`
	GovernorLeadCapEvery         string   `json:"governor_lead_cap_every,omitempty"`
	GovernorActivityTrigger      string   `json:"governor_activity_trigger"`
	CreatedAt                    string   `json:"created_at"`
	UpdatedAt                    string   `json:"updated_at"`
}

func boardToResponse(b *db.Board) boardResponse {
	var ladder []string
	if b.AutoHeartbeatGovernorLadder != "" {
		_ = json.Unmarshal([]byte(b.AutoHeartbeatGovernorLadder), &ladder)
	}
	return boardResponse{
		ID:                         b.ID.String(),
		OrganizationID:             b.OrganizationID.String(),
		Name:                       b.Name,
		GovernorEnabled:            b.AutoHeartbeatGovernorEnabled,
		GovernorRunIntervalSeconds: b.AutoHeartbeatGovernorRunIntervalSeconds,
		GovernorLadder:             ladder,
		GovernorLeadCapEvery:       b.AutoHeartbeatGovernorLeadCapEvery,
		GovernorActivityTrigger:    b.AutoHeartbeatGovernorActivityTrigger,
		CreatedAt:                  b.CreatedAt.UTC().String(),
		UpdatedAt:                  b.UpdatedAt.UTC().String(),
	}
}

type listBoardsResponse struct {
	Items []boardResponse `json:"items"`
	Total int64           `json:"total"`
}

// List handles GET /api/v1/organizations/{org_id}/boards.
func (h *BoardHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	boards, total, err := h.repo.ListByOrganization(r.Context(), orgID, paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list boards", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]boardResponse, len(boards))
	for i := range boards {
		items[i] = boardToResponse(&boards[i])
	}
	Ok(w, listBoardsResponse{Items: items, Total: total})
}

type createBoardRequest struct {
	Name                    string   `json:"name"`
	GovernorEnabled         *bool    `json:"governor_enabled"`
	GovernorRunIntervalSec  int      `json:"governor_run_interval_seconds"`
	GovernorLadder          []string `json:"governor_ladder"`
	GovernorLeadCapEvery    string   `json:"governor_lead_cap_every"`
	GovernorActivityTrigger string   `json:"governor_activity_trigger"`
}

// Create handles POST /api/v1/organizations/{org_id}/boards.
func (h *BoardHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	var req createBoardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}
	if req.GovernorActivityTrigger != "" && req.GovernorActivityTrigger != "A" && req.GovernorActivityTrigger != "B" {
		ErrBadRequest(w, "governor_activity_trigger must be 'A' or 'B'")
		return
	}

	board := &db.Board{
		OrganizationID:                       orgID,
		Name:                                 req.Name,
		AutoHeartbeatGovernorEnabled:         true,
		AutoHeartbeatGovernorRunIntervalSeconds: 300,
		AutoHeartbeatGovernorActivityTrigger: "B",
	}
	if req.GovernorEnabled != nil {
		board.AutoHeartbeatGovernorEnabled = *req.GovernorEnabled
	}
	if req.GovernorRunIntervalSec > 0 {
		board.AutoHeartbeatGovernorRunIntervalSeconds = req.GovernorRunIntervalSec
	}
	if len(req.GovernorLadder) > 0 {
		encoded, err := json.Marshal(req.GovernorLadder)
		if err != nil {
			ErrBadRequest(w, "invalid governor_ladder")
			return
		}
		board.AutoHeartbeatGovernorLadder = string(encoded)
	}
	if req.GovernorLeadCapEvery != "" {
		board.AutoHeartbeatGovernorLeadCapEvery = req.GovernorLeadCapEvery
	}
	if req.GovernorActivityTrigger != "" {
		board.AutoHeartbeatGovernorActivityTrigger = req.GovernorActivityTrigger
	}

	if err := h.repo.Create(r.Context(), board); err != nil {
		h.logger.Error("failed to create board", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, boardToResponse(board))
}

// GetByID handles GET /api/v1/boards/{id}.
func (h *BoardHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	board, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if isRepoNotFound(err) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get board", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, boardToResponse(board))
}

type updateBoardRequest struct {
	Name                    *string  `json:"name"`
	GovernorEnabled         *bool    `json:"governor_enabled"`
	GovernorRunIntervalSec  *int     `json:"governor_run_interval_seconds"`
	GovernorLadder          []string `json:"governor_ladder"`
	GovernorLeadCapEvery    *string  `json:"governor_lead_cap_every"`
	GovernorActivityTrigger *string  `json:"governor_activity_trigger"`
}

// Update handles PATCH /api/v1/boards/{id}.
func (h *BoardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateBoardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	board, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if isRepoNotFound(err) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get board for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			ErrBadRequest(w, "name cannot be empty")
			return
		}
		board.Name = *req.Name
	}
	if req.GovernorEnabled != nil {
		board.AutoHeartbeatGovernorEnabled = *req.GovernorEnabled
	}
	if req.GovernorRunIntervalSec != nil {
		if *req.GovernorRunIntervalSec <= 0 {
			ErrBadRequest(w, "governor_run_interval_seconds must be positive")
			return
		}
		board.AutoHeartbeatGovernorRunIntervalSeconds = *req.GovernorRunIntervalSec
	}
	if req.GovernorLadder != nil {
		encoded, err := json.Marshal(req.GovernorLadder)
		if err != nil {
			ErrBadRequest(w, "invalid governor_ladder")
			return
		}
		board.AutoHeartbeatGovernorLadder = string(encoded)
	}
	if req.GovernorLeadCapEvery != nil {
		board.AutoHeartbeatGovernorLeadCapEvery = *req.GovernorLeadCapEvery
	}
	if req.GovernorActivityTrigger != nil {
		if *req.GovernorActivityTrigger != "A" && *req.GovernorActivityTrigger != "B" {
			ErrBadRequest(w, "governor_activity_trigger must be 'A' or 'B'")
			return
		}
		board.AutoHeartbeatGovernorActivityTrigger = *req.GovernorActivityTrigger
	}

	if err := h.repo.Update(r.Context(), board); err != nil {
		h.logger.Error("failed to update board", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, boardToResponse(board))
}

// Delete handles DELETE /api/v1/boards/{id}.
func (h *BoardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if isRepoNotFound(err) {
			ErrNotFound(w)
			return
		}
		h.logger.Warn("failed to delete board", zap.String("id", id.String()), zap.Error(err))
		ErrConflict(w, "board is still referenced by one or more agents or tasks")
		return
	}
	NoContent(w)
}

func isRepoNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
