package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repositories"
)

// OrganizationHandler groups the tenancy-root CRUD handlers. Organizations
// are created and renamed by operators only; there is no delete endpoint.
type OrganizationHandler struct {
	repo   repositories.OrganizationRepository
	logger *zap.Logger
}

func NewOrganizationHandler(repo repositories.OrganizationRepository, logger *zap.Logger) *OrganizationHandler {
	return &OrganizationHandler{repo: repo, logger: logger.Named("organization_handler")}
}

type organizationResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func organizationToResponse(o *db.Organization) organizationResponse {
	return organizationResponse{
		ID:        o.ID.String(),
		Name:      o.Name,
		CreatedAt: o.CreatedAt.UTC().String(),
		UpdatedAt: o.UpdatedAt.UTC().String(),
	}
}

type listOrganizationsResponse struct {
	Items []organizationResponse `json:"items"`
	Total int64                  `json:"total"`
}

// List handles GET /api/v1/organizations.
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	orgs, total, err := h.repo.List(r.Context(), paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list organizations", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]organizationResponse, len(orgs))
	for i := range orgs {
		items[i] = organizationToResponse(&orgs[i])
	}
	Ok(w, listOrganizationsResponse{Items: items, Total: total})
}

type createOrganizationRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/v1/organizations.
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}

	org := &db.Organization{Name: req.Name}
	if err := h.repo.Create(r.Context(), org); err != nil {
		h.logger.Error("failed to create organization", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, organizationToResponse(org))
}

// GetByID handles GET /api/v1/organizations/{id}.
func (h *OrganizationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	org, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get organization", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, organizationToResponse(org))
}

type updateOrganizationRequest struct {
	Name *string `json:"name"`
}

// Update handles PATCH /api/v1/organizations/{id}.
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateOrganizationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	org, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get organization for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			ErrBadRequest(w, "name cannot be empty")
			return
		}
		org.Name = *req.Name
	}

	if err := h.repo.Update(r.Context(), org); err != nil {
		h.logger.Error("failed to update organization", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, organizationToResponse(org))
}
