package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repository"
	"github.com/relaycore/core/internal/ruleengine"
)

// RuleHandler groups proactive-rule CRUD handlers. Conditions and
// ActionConfig are accepted and returned as raw JSON objects — the rule
// engine is the only consumer that needs typed access to them.
type RuleHandler struct {
	repo   repository.ProactiveRuleRepository
	logger *zap.Logger
}

func NewRuleHandler(repo repository.ProactiveRuleRepository, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{repo: repo, logger: logger.Named("rule_handler")}
}

type ruleResponse struct {
	ID              string          `json:"id"`
	OrganizationID  string          `json:"organization_id"`
	BoardID         *string         `json:"board_id,omitempty"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	TriggerEvent    string          `json:"trigger_event"`
	Conditions      json.RawMessage `json:"conditions"`
	ActionType      string          `json:"action_type"`
	ActionConfig    json.RawMessage `json:"action_config"`
	IsEnabled       bool            `json:"is_enabled"`
	IsBuiltin       bool            `json:"is_builtin"`
	CooldownSeconds int             `json:"cooldown_seconds"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

func ruleToResponse(rule *db.ProactiveRule) ruleResponse {
	var boardID *string
	if rule.BoardID != nil {
		v := rule.BoardID.String()
		boardID = &v
	}
	return ruleResponse{
		ID:              rule.ID.String(),
		OrganizationID:  rule.OrganizationID.String(),
		BoardID:         boardID,
		Name:            rule.Name,
		Description:     rule.Description,
		TriggerEvent:    rule.TriggerEvent,
		Conditions:      json.RawMessage(rule.Conditions),
		ActionType:      rule.ActionType,
		ActionConfig:    json.RawMessage(rule.ActionConfig),
		IsEnabled:       rule.IsEnabled,
		IsBuiltin:       rule.IsBuiltin,
		CooldownSeconds: rule.CooldownSeconds,
		CreatedAt:       rule.CreatedAt.UTC().String(),
		UpdatedAt:       rule.UpdatedAt.UTC().String(),
	}
}

type listRulesResponse struct {
	Items []ruleResponse `json:"items"`
	Total int64          `json:"total"`
}

// List handles GET /api/v1/organizations/{org_id}/rules.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	rules, total, err := h.repo.ListByOrganization(r.Context(), orgID, paginationOpts(r))
	if err != nil {
		h.logger.Error("failed to list rules", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]ruleResponse, len(rules))
	for i := range rules {
		items[i] = ruleToResponse(&rules[i])
	}
	Ok(w, listRulesResponse{Items: items, Total: total})
}

type createRuleRequest struct {
	BoardID         *string         `json:"board_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	TriggerEvent    string          `json:"trigger_event"`
	Conditions      json.RawMessage `json:"conditions"`
	ActionType      string          `json:"action_type"`
	ActionConfig    json.RawMessage `json:"action_config"`
	CooldownSeconds int             `json:"cooldown_seconds"`
}

// Create handles POST /api/v1/organizations/{org_id}/rules.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	var req createRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}
	if req.TriggerEvent == "" {
		ErrBadRequest(w, "trigger_event is required")
		return
	}
	if req.ActionType == "" {
		ErrBadRequest(w, "action_type is required")
		return
	}

	conditions := req.Conditions
	if len(conditions) == 0 {
		conditions = json.RawMessage(`{}`)
	}
	if !validConditionTree(conditions) {
		ErrBadRequest(w, "conditions must be a valid condition tree")
		return
	}
	actionConfig := req.ActionConfig
	if len(actionConfig) == 0 {
		actionConfig = json.RawMessage(`{}`)
	}

	rule := &db.ProactiveRule{
		OrganizationID:  orgID,
		Name:            req.Name,
		Description:     req.Description,
		TriggerEvent:    req.TriggerEvent,
		Conditions:      string(conditions),
		ActionType:      req.ActionType,
		ActionConfig:    string(actionConfig),
		IsEnabled:       true,
		CooldownSeconds: req.CooldownSeconds,
	}
	if req.BoardID != nil && *req.BoardID != "" {
		boardID, err := parseUUIDString(*req.BoardID)
		if err != nil {
			ErrBadRequest(w, "board_id must be a valid UUID")
			return
		}
		rule.BoardID = &boardID
	}

	if err := h.repo.Create(r.Context(), rule); err != nil {
		h.logger.Error("failed to create rule", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, ruleToResponse(rule))
}

// GetByID handles GET /api/v1/rules/{id}.
func (h *RuleHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	rule, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if isRepoNotFound(err) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get rule", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, ruleToResponse(rule))
}

type updateRuleRequest struct {
	Name            *string         `json:"name"`
	Description     *string         `json:"description"`
	TriggerEvent    *string         `json:"trigger_event"`
	Conditions      json.RawMessage `json:"conditions"`
	ActionType      *string         `json:"action_type"`
	ActionConfig    json.RawMessage `json:"action_config"`
	IsEnabled       *bool           `json:"is_enabled"`
	CooldownSeconds *int            `json:"cooldown_seconds"`
}

// Update handles PATCH /api/v1/rules/{id}. Builtin rules (IsBuiltin) may
// still be toggled or have their cooldown tuned, but never renamed or
// rewired to a different trigger — the action config they came with is
// part of what makes them "builtin".
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if isRepoNotFound(err) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get rule for update", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}

	if rule.IsBuiltin {
		if req.IsEnabled != nil {
			rule.IsEnabled = *req.IsEnabled
		}
		if req.CooldownSeconds != nil {
			rule.CooldownSeconds = *req.CooldownSeconds
		}
		if err := h.repo.Update(r.Context(), rule); err != nil {
			h.logger.Error("failed to update builtin rule", zap.String("id", id.String()), zap.Error(err))
			ErrInternal(w)
			return
		}
		Ok(w, ruleToResponse(rule))
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			ErrBadRequest(w, "name cannot be empty")
			return
		}
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.TriggerEvent != nil {
		if *req.TriggerEvent == "" {
			ErrBadRequest(w, "trigger_event cannot be empty")
			return
		}
		rule.TriggerEvent = *req.TriggerEvent
	}
	if req.Conditions != nil {
		if !validConditionTree(req.Conditions) {
			ErrBadRequest(w, "conditions must be a valid condition tree")
			return
		}
		rule.Conditions = string(req.Conditions)
	}
	if req.ActionType != nil {
		if *req.ActionType == "" {
			ErrBadRequest(w, "action_type cannot be empty")
			return
		}
		rule.ActionType = *req.ActionType
	}
	if req.ActionConfig != nil {
		rule.ActionConfig = string(req.ActionConfig)
	}
	if req.IsEnabled != nil {
		rule.IsEnabled = *req.IsEnabled
	}
	if req.CooldownSeconds != nil {
		rule.CooldownSeconds = *req.CooldownSeconds
	}

	if err := h.repo.Update(r.Context(), rule); err != nil {
		h.logger.Error("failed to update rule", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, ruleToResponse(rule))
}

// Delete handles DELETE /api/v1/rules/{id}. Builtin rules cannot be
// deleted, only disabled via Update.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	rule, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if isRepoNotFound(err) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to get rule for delete", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	if rule.IsBuiltin {
		ErrConflict(w, "builtin rules cannot be deleted, only disabled")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if isRepoNotFound(err) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("failed to delete rule", zap.String("id", id.String()), zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

// validConditionTree reports whether raw decodes into a well-formed
// ruleengine.ConditionTree. It does not validate individual operators —
// Evaluate already fails closed on an unknown op.
func validConditionTree(raw json.RawMessage) bool {
	var tree ruleengine.ConditionTree
	return json.Unmarshal(raw, &tree) == nil
}
