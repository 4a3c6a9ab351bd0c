package suggestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repositories"
)

// defaultExpiryHours matches the source system's default suggestion expiry
// window (168h = 7 days) when a rule's action_config omits one.
const defaultExpiryHours = 168

// ErrNotPending is returned by Accept/Dismiss when the suggestion has
// already left the "pending" state.
var ErrNotPending = errors.New("suggestion: not pending")

// BoardNotifier pushes a suggestion notice to board-sync subscribers. It is
// satisfied by *boardsync.Broadcaster; defined locally to avoid an import
// cycle (boardsync never needs to import suggestion).
type BoardNotifier interface {
	BroadcastSuggestion(ctx context.Context, boardID uuid.UUID, suggestion any)
}

// CreateParams carries the fields needed to materialize a new Suggestion,
// mirroring action_config's shape from a fired ProactiveRule.
type CreateParams struct {
	OrganizationID uuid.UUID
	BoardID        *uuid.UUID
	AgentID        *uuid.UUID
	RuleID         uuid.UUID
	SourceEventID  uuid.UUID
	SuggestionType string
	Title          string
	Description    string
	Confidence     float64
	Priority       int
	ExpiryHours    int
}

// View is the self-describing JSON shape of a Suggestion, used both for SSE
// push and REST responses.
type View struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	BoardID        *string `json:"board_id,omitempty"`
	AgentID        *string `json:"agent_id,omitempty"`
	RuleID         string  `json:"rule_id"`
	SuggestionType string  `json:"suggestion_type"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	Confidence     float64 `json:"confidence"`
	Priority       int     `json:"priority"`
	Status         string  `json:"status"`
	ExpiresAt      string  `json:"expires_at"`
	CreatedAt      string  `json:"created_at"`
	ResolvedByUserID *string `json:"resolved_by_user_id,omitempty"`
}

// ToView converts a persisted Suggestion row to its JSON view, for callers
// outside this package (the REST list endpoint) that need the same shape
// the SSE stream pushes.
func ToView(s db.Suggestion) View {
	return toView(s)
}

func toView(s db.Suggestion) View {
	var boardID, agentID *string
	if s.BoardID != nil {
		v := s.BoardID.String()
		boardID = &v
	}
	if s.AgentID != nil {
		v := s.AgentID.String()
		agentID = &v
	}
	var resolvedBy *string
	if s.ResolvedByUserID != nil {
		v := s.ResolvedByUserID.String()
		resolvedBy = &v
	}
	return View{
		ID:             s.ID.String(),
		OrganizationID: s.OrganizationID.String(),
		BoardID:        boardID,
		AgentID:        agentID,
		RuleID:         s.RuleID.String(),
		SuggestionType: s.SuggestionType,
		Title:          s.Title,
		Description:    s.Description,
		Confidence:     s.Confidence,
		Priority:       s.Priority,
		Status:         s.Status,
		ExpiresAt:      s.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
		ResolvedByUserID: resolvedBy,
	}
}

type ssePayload struct {
	Type       string `json:"type"`
	Suggestion View   `json:"suggestion"`
}

// Service manages Suggestion creation and resolution, and fans new
// suggestions out over the Broker (and, when board-scoped, the board-sync
// broadcaster).
type Service struct {
	repo     repositories.SuggestionRepository
	broker   *Broker
	notifier BoardNotifier
	logger   *zap.Logger
}

// New creates a Service. notifier may be nil when board-sync wiring is not
// needed (e.g. in tests).
func New(repo repositories.SuggestionRepository, broker *Broker, notifier BoardNotifier, logger *zap.Logger) *Service {
	return &Service{repo: repo, broker: broker, notifier: notifier, logger: logger.Named("suggestion")}
}

// Create persists a new pending Suggestion and notifies subscribers.
func (s *Service) Create(ctx context.Context, p CreateParams) (*db.Suggestion, error) {
	expiryHours := p.ExpiryHours
	if expiryHours <= 0 {
		expiryHours = defaultExpiryHours
	}

	now := time.Now()
	row := &db.Suggestion{
		OrganizationID: p.OrganizationID,
		BoardID:        p.BoardID,
		AgentID:        p.AgentID,
		RuleID:         p.RuleID,
		SourceEventID:  p.SourceEventID,
		SuggestionType: p.SuggestionType,
		Title:          p.Title,
		Description:    p.Description,
		Confidence:     p.Confidence,
		Priority:       p.Priority,
		Status:         "pending",
		ExpiresAt:      now.Add(time.Duration(expiryHours) * time.Hour),
	}

	if err := s.repo.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("suggestion: create: %w", err)
	}

	s.notifySubscribers(ctx, *row)
	return row, nil
}

func (s *Service) notifySubscribers(ctx context.Context, row db.Suggestion) {
	view := toView(row)

	data, err := json.Marshal(ssePayload{Type: "suggestion.new", Suggestion: view})
	if err != nil {
		s.logger.Warn("marshal sse payload failed", zap.Error(err))
	} else {
		s.broker.Publish(row.OrganizationID, data)
	}

	if row.BoardID != nil && s.notifier != nil {
		s.notifier.BroadcastSuggestion(ctx, *row.BoardID, view)
	}
}

// Accept marks a pending suggestion as accepted by resolvedByUserID.
func (s *Service) Accept(ctx context.Context, id, resolvedByUserID uuid.UUID) (*db.Suggestion, error) {
	return s.resolve(ctx, id, "accepted", resolvedByUserID)
}

// Dismiss marks a pending suggestion as dismissed by resolvedByUserID.
func (s *Service) Dismiss(ctx context.Context, id, resolvedByUserID uuid.UUID) (*db.Suggestion, error) {
	return s.resolve(ctx, id, "dismissed", resolvedByUserID)
}

func (s *Service) resolve(ctx context.Context, id uuid.UUID, status string, resolvedByUserID uuid.UUID) (*db.Suggestion, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("suggestion: loading for resolve: %w", err)
	}
	if row.Status != "pending" {
		return nil, ErrNotPending
	}

	now := time.Now()
	row.Status = status
	row.ResolvedAt = &now
	row.ResolvedByUserID = &resolvedByUserID

	if err := s.repo.Update(ctx, row); err != nil {
		return nil, fmt.Errorf("suggestion: resolve: %w", err)
	}
	return row, nil
}

// ListPending returns suggestions for an organization.
func (s *Service) ListPending(ctx context.Context, orgID uuid.UUID, opts repositories.ListOptions) ([]db.Suggestion, int64, error) {
	return s.repo.ListPendingByOrganization(ctx, orgID, opts)
}

// ExpireStale transitions every pending suggestion whose ExpiresAt has
// passed to "expired", satisfying invariant I6 (only "pending" may
// transition, ResolvedAt set iff terminal).
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpirePending(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("suggestion: expiring stale: %w", err)
	}
	return count, nil
}

// Subscribe exposes the broker subscription for the SSE handler.
func (s *Service) Subscribe(orgID uuid.UUID) (chan []byte, func()) {
	return s.broker.Subscribe(orgID)
}
