package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
)

// -----------------------------------------------------------------------------
// Common
// -----------------------------------------------------------------------------

// ListOptions contains common pagination and filtering options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// -----------------------------------------------------------------------------
// OrganizationRepository
// -----------------------------------------------------------------------------

type OrganizationRepository interface {
	Create(ctx context.Context, org *db.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Organization, error)
	Update(ctx context.Context, org *db.Organization) error
	List(ctx context.Context, opts ListOptions) ([]db.Organization, int64, error)
}

// -----------------------------------------------------------------------------
// GatewayRepository
// -----------------------------------------------------------------------------

type GatewayRepository interface {
	Create(ctx context.Context, gw *db.Gateway) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Gateway, error)
	GetByRelayTokenHash(ctx context.Context, hash string) (*db.Gateway, error)
	Update(ctx context.Context, gw *db.Gateway) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, lastHeartbeatAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.Gateway, int64, error)
}

// -----------------------------------------------------------------------------
// AgentRepository
// -----------------------------------------------------------------------------

type AgentRepository interface {
	Create(ctx context.Context, agent *db.Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Agent, error)
	GetByAuthTokenHash(ctx context.Context, hash string) (*db.Agent, error)
	Update(ctx context.Context, agent *db.Agent) error

	// UpdateHeartbeatState persists the governor-owned columns in one write,
	// so concurrent read-modify-write races during a governor tick only ever
	// touch this column set (see SPEC_FULL.md §3.7).
	UpdateHeartbeatState(ctx context.Context, id uuid.UUID, step int, off bool, lastActiveAt *time.Time, heartbeatConfig string) error

	Delete(ctx context.Context, id uuid.UUID) error
	ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.Agent, int64, error)
	ListByBoard(ctx context.Context, boardID uuid.UUID) ([]db.Agent, error)

	// ListGovernable returns every agent with auto-heartbeat enabled, across
	// all organizations, for the governor's tick scan. Agents with no board
	// assigned are included; the governor applies default policy to them.
	ListGovernable(ctx context.Context) ([]db.Agent, error)
}

// -----------------------------------------------------------------------------
// SystemEventRepository
// -----------------------------------------------------------------------------

type SystemEventRepository interface {
	Create(ctx context.Context, event *db.SystemEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.SystemEvent, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.SystemEvent, int64, error)
	ListByBoard(ctx context.Context, boardID uuid.UUID, opts ListOptions) ([]db.SystemEvent, int64, error)

	// LatestEventTimeByBoard returns, for every board with at least one
	// matching event, the timestamp of its most recent row whose EventType
	// is in eventTypes. The governor uses this as the "recent activity"
	// signal feeding compute_desired_heartbeat's activity trigger.
	LatestEventTimeByBoard(ctx context.Context, eventTypes []string) (map[uuid.UUID]time.Time, error)
}

// -----------------------------------------------------------------------------
// SuggestionRepository
// -----------------------------------------------------------------------------

type SuggestionRepository interface {
	Create(ctx context.Context, s *db.Suggestion) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Suggestion, error)
	Update(ctx context.Context, s *db.Suggestion) error
	ListPendingByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.Suggestion, int64, error)
	ExpirePending(ctx context.Context, olderThan time.Time) (int64, error)
}
