// Package repository holds the second half of the persistence layer,
// mirroring internal/repositories' interface-per-entity style for the
// entities that grew here instead: operator accounts, boards, end-users
// and their chat/assignment state, proactive rules, and tasks.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repositories"
)

// ListOptions is an alias of repositories.ListOptions so callers wiring both
// packages together share one pagination type.
type ListOptions = repositories.ListOptions

// -----------------------------------------------------------------------------
// UserRepository (operator accounts)
// -----------------------------------------------------------------------------

type UserRepository interface {
	Create(ctx context.Context, user *db.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetByEmail(ctx context.Context, email string) (*db.User, error)
	Update(ctx context.Context, user *db.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]db.User, int64, error)
}

// -----------------------------------------------------------------------------
// RefreshTokenRepository
// -----------------------------------------------------------------------------

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *db.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*db.RefreshToken, error)
	DeleteByHash(ctx context.Context, hash string) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// BoardRepository
// -----------------------------------------------------------------------------

type BoardRepository interface {
	Create(ctx context.Context, board *db.Board) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Board, error)
	Update(ctx context.Context, board *db.Board) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.Board, int64, error)

	// ListGovernorEnabled returns every board with the heartbeat governor
	// enabled, for the governor's per-tick scan.
	ListGovernorEnabled(ctx context.Context) ([]db.Board, error)
}

// -----------------------------------------------------------------------------
// EndUserRepository
// -----------------------------------------------------------------------------

type EndUserRepository interface {
	Create(ctx context.Context, u *db.EndUser) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.EndUser, error)
	GetByOrgUsername(ctx context.Context, orgID uuid.UUID, username string) (*db.EndUser, error)
	Update(ctx context.Context, u *db.EndUser) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.EndUser, int64, error)
}

// -----------------------------------------------------------------------------
// EndUserAssignmentRepository
// -----------------------------------------------------------------------------

type EndUserAssignmentRepository interface {
	Create(ctx context.Context, a *db.EndUserAssignment) error
	GetByUserAndAgent(ctx context.Context, endUserID, agentID uuid.UUID) (*db.EndUserAssignment, error)
	ListByEndUser(ctx context.Context, endUserID uuid.UUID) ([]db.EndUserAssignment, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]db.EndUserAssignment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// -----------------------------------------------------------------------------
// ChatSessionRepository
// -----------------------------------------------------------------------------

type ChatSessionRepository interface {
	Create(ctx context.Context, s *db.ChatSession) error
	GetBySessionKey(ctx context.Context, key string) (*db.ChatSession, error)
	GetOrCreate(ctx context.Context, orgID, endUserID, agentID, gatewayID uuid.UUID, sessionKey string) (*db.ChatSession, error)
	TouchLastMessageAt(ctx context.Context, id uuid.UUID, at time.Time) error
	Close(ctx context.Context, id uuid.UUID) error
}

// -----------------------------------------------------------------------------
// ProactiveRuleRepository
// -----------------------------------------------------------------------------

type ProactiveRuleRepository interface {
	Create(ctx context.Context, rule *db.ProactiveRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.ProactiveRule, error)
	Update(ctx context.Context, rule *db.ProactiveRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.ProactiveRule, int64, error)

	// ListEnabledByTrigger returns every enabled rule across organizations
	// whose TriggerEvent matches eventType, for the rule engine's dispatch
	// on each consumed SystemEvent.
	ListEnabledByTrigger(ctx context.Context, eventType string) ([]db.ProactiveRule, error)

	SetLastFiredAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// -----------------------------------------------------------------------------
// TaskRepository
// -----------------------------------------------------------------------------

type TaskRepository interface {
	Create(ctx context.Context, task *db.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Task, error)
	Update(ctx context.Context, task *db.Task) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByBoard returns every task on a board in creation-descending order,
	// matching the board.state snapshot contract.
	ListByBoard(ctx context.Context, boardID uuid.UUID) ([]db.Task, error)

	// ListAgentIDsWithActiveWork returns the set of agent ids that have at
	// least one task in an active status ("in_progress", "review"). The
	// governor uses this as the has_work signal feeding
	// compute_desired_heartbeat.
	ListAgentIDsWithActiveWork(ctx context.Context) (map[uuid.UUID]bool, error)
}
