package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/repositories"
	"github.com/relaycore/core/internal/suggestion"
)

// SuggestionHandler groups suggestion listing, resolution, and the SSE
// stream handlers. Suggestions are produced by the rule engine, never
// created directly through this handler.
type SuggestionHandler struct {
	svc    *suggestion.Service
	logger *zap.Logger
}

func NewSuggestionHandler(svc *suggestion.Service, logger *zap.Logger) *SuggestionHandler {
	return &SuggestionHandler{svc: svc, logger: logger.Named("suggestion_handler")}
}

type listSuggestionsResponse struct {
	Items []suggestion.View `json:"items"`
	Total int64             `json:"total"`
}

// List handles GET /api/v1/organizations/{org_id}/suggestions.
func (h *SuggestionHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	opts := paginationOpts(r)
	rows, total, err := h.svc.ListPending(r.Context(), orgID, repositories.ListOptions{Limit: opts.Limit, Offset: opts.Offset})
	if err != nil {
		h.logger.Error("failed to list suggestions", zap.Error(err))
		ErrInternal(w)
		return
	}

	items := make([]suggestion.View, len(rows))
	for i, row := range rows {
		items[i] = suggestion.ToView(row)
	}
	Ok(w, listSuggestionsResponse{Items: items, Total: total})
}

// Accept handles POST /api/v1/suggestions/{id}/accept.
func (h *SuggestionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := claimsUserID(r)
	if !ok {
		ErrUnauthorized(w)
		return
	}

	row, err := h.svc.Accept(r.Context(), id, userID)
	if err != nil {
		h.writeResolveError(w, id, err)
		return
	}
	Ok(w, suggestion.ToView(*row))
}

// Dismiss handles POST /api/v1/suggestions/{id}/dismiss.
func (h *SuggestionHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := claimsUserID(r)
	if !ok {
		ErrUnauthorized(w)
		return
	}

	row, err := h.svc.Dismiss(r.Context(), id, userID)
	if err != nil {
		h.writeResolveError(w, id, err)
		return
	}
	Ok(w, suggestion.ToView(*row))
}

func (h *SuggestionHandler) writeResolveError(w http.ResponseWriter, id interface{ String() string }, err error) {
	if errors.Is(err, suggestion.ErrNotPending) {
		ErrConflict(w, "suggestion is no longer pending")
		return
	}
	if errors.Is(err, repositories.ErrNotFound) {
		ErrNotFound(w)
		return
	}
	h.logger.Error("failed to resolve suggestion", zap.String("id", id.String()), zap.Error(err))
	ErrInternal(w)
}

// Stream handles GET /api/v1/organizations/{org_id}/suggestions/stream, an
// SSE endpoint pushing every new pending suggestion as it's created, as an
// "event: suggestion" frame, with a comment ping every 15s in between.
func (h *SuggestionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUID(w, r, "org_id")
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		ErrInternal(w)
		return
	}

	ch, cancel := h.svc.Subscribe(orgID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case data, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: suggestion\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
