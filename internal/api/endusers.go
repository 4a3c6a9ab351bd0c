package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/auth"
	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repository"
)

// EndUserHandler groups end-user CRUD handlers. Password hashing reuses
// auth.HashPassword so end-user credentials are stored with the same
// Argon2id scheme as operator accounts.
type EndUserHandler struct {
	repo   repository.EndUserRepository
	logger *zap.Logger
}

func NewEndUserHandler(repo repository.EndUserRepository, logger *zap.Logger) *EndUserHandler {
	return &EndUserHandler{repo: repo, logger: logger.Named("end_user_handler")}
}

type endUserResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Username       string `json:"username"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func endUserToResponse(u *db.EndUser) endUserResponse {
	return endUserResponse{
		ID:             u.ID.String(),
		OrganizationID: u.OrganizationID.String(),
		Username:       u.Username,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt.UTC().String(),
		UpdatedAt:      u.UpdatedAt.UTC().String(),
	}
}

type listEndUsersResponse struct {
	Items []endUserResponse `json:"items"`
	Total int64             `json:"total"`
}

// List handles GET /api/v1/organizations/{org_id}/end-users.
func (h *EndUserHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	users, total, err := h.repo.ListByOrganization(r.Context(), orgID, paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list end-users", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]endUserResponse, len(users))
	for i := range users {
		items[i] = endUserToResponse(&users[i])
	}
	Ok(w, listEndUsersResponse{Items: items, Total: total})
}

type createEndUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Create handles POST /api/v1/organizations/{org_id}/end-users.
func (h *EndUserHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	var req createEndUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" {
		ErrBadRequest(w, "username is required")
		return
	}
	if len(req.Password) < 8 {
		ErrBadRequest(w, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		ErrInternal(w)
		return
	}

	u := &db.EndUser{
		OrganizationID: orgID,
		Username:       req.Username,
		PasswordHash:   db.EncryptedString(hash),
		IsActive:       true,
	}

	if err := h.repo.Create(r.Context(), u); err != nil {
		h.logger.Error("failed to create end-user", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, endUserToResponse(u))
}

// GetByID handles GET /api/v1/end-users/{id}.
func (h *EndUserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get end-user", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, endUserToResponse(u))
}

type updateEndUserRequest struct {
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

// Update handles PATCH /api/v1/end-users/{id}.
func (h *EndUserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateEndUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get end-user for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.Password != nil {
		if len(*req.Password) < 8 {
			ErrBadRequest(w, "password must be at least 8 characters")
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			h.logger.Error("failed to hash password", zap.Error(err))
			ErrInternal(w)
			return
		}
		u.PasswordHash = db.EncryptedString(hash)
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}

	if err := h.repo.Update(r.Context(), u); err != nil {
		h.logger.Error("failed to update end-user", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, endUserToResponse(u))
}

// Delete handles DELETE /api/v1/end-users/{id}.
func (h *EndUserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Warn("failed to delete end-user", zap.String("id", id.String()), zap.Error(err))
		ErrConflict(w, "end-user is still referenced by one or more assignments")
		return
	}
	NoContent(w)
}
