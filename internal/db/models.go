package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
// This ensures every record has a valid time-ordered ID before insertion.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// softDelete extends base with a nullable DeletedAt field for soft deletion.
// GORM automatically filters out soft-deleted records from all queries unless
// Unscoped() is used explicitly.
type softDelete struct {
	base
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// -----------------------------------------------------------------------------
// Operator accounts
// -----------------------------------------------------------------------------

// User is an operator account for the administrative dashboard. Operators
// authenticate with the same JWT machinery as end-users but carry a Role
// instead of an organization-scoped username, and their WS connections are
// admitted onto board-sync endpoints rather than the chat relay.
type User struct {
	base
	Email       string          `gorm:"uniqueIndex;not null"`
	Password    EncryptedString `gorm:"type:text"`
	DisplayName string          `gorm:"not null"`
	Role        string          `gorm:"not null;default:'user'"` // "admin" or "user"
	IsActive    bool            `gorm:"not null;default:true"`
	LastLoginAt *time.Time
}

// RefreshToken stores a hashed refresh token associated with an operator
// session. The raw token is never stored — only its SHA-256 hash.
type RefreshToken struct {
	base
	UserID    uuid.UUID `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null;index"`
	RevokedAt *time.Time
	UserAgent string
	IPAddress string
}

// -----------------------------------------------------------------------------
// Organization
// -----------------------------------------------------------------------------

// Organization is the tenancy root. Every other entity belongs to exactly one
// Organization; cross-organization reads must return not-found rather than
// forbidden, so callers never learn that a foreign-org record exists.
type Organization struct {
	base
	Name string `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Board
// -----------------------------------------------------------------------------

// Board is a workspace scoped to an organization. It also carries the
// heartbeat-governor policy for every agent assigned to it — the governor
// reads these columns on every tick rather than hardcoding ladder defaults
// per agent.
type Board struct {
	base
	OrganizationID uuid.UUID `gorm:"type:text;not null;index"`
	Name           string    `gorm:"not null"`

	// Governor policy. Ladder is a JSON array of duration strings
	// (e.g. ["10m","30m","1h","3h","6h"]); empty means "use package defaults".
	AutoHeartbeatGovernorEnabled            bool   `gorm:"not null;default:true"`
	AutoHeartbeatGovernorRunIntervalSeconds int    `gorm:"not null;default:300"`
	AutoHeartbeatGovernorLadder             string `gorm:"type:text;default:''"`
	AutoHeartbeatGovernorLeadCapEvery       string `gorm:"default:''"`
	AutoHeartbeatGovernorActivityTrigger    string `gorm:"not null;default:'B'"` // 'A' or 'B'
}

// -----------------------------------------------------------------------------
// Agent
// -----------------------------------------------------------------------------

// Agent is an autonomous worker bound to exactly one gateway and at most one
// board. GatewayID is immutable once set by the first successful
// registration — callers must never reassign it.
//
// The AutoHeartbeat* fields are owned by the heartbeat governor; everything
// else may write HeartbeatConfig's initial payload, but after that only the
// governor updates it (see SPEC_FULL.md §2, "Lifecycles").
type Agent struct {
	softDelete
	OrganizationID uuid.UUID  `gorm:"type:text;not null;index"`
	GatewayID      uuid.UUID  `gorm:"type:text;not null;index"`
	BoardID        *uuid.UUID `gorm:"type:text;index"`
	Name           string     `gorm:"not null"`
	WorkspacePath  string     `gorm:"not null;default:''"`
	IsBoardLead    bool       `gorm:"not null;default:false"`

	// AuthTokenHash is the SHA-256 hex digest of the agent's registration
	// secret. The raw secret is only ever shown once, at provisioning time.
	AuthTokenHash string `gorm:"default:''"`

	AutoHeartbeatEnabled      bool       `gorm:"not null;default:true"`
	AutoHeartbeatStep         int        `gorm:"not null;default:0"`
	AutoHeartbeatOff          bool       `gorm:"not null;default:false"`
	AutoHeartbeatLastActiveAt *time.Time

	// HeartbeatConfig is a JSON object whose "every" field holds the current
	// heartbeat interval (a duration string) plus any gateway-specific keys
	// the provisioning step set. Nil/empty means the heartbeat is fully off.
	HeartbeatConfig string `gorm:"type:text;default:''"`
}

// -----------------------------------------------------------------------------
// Gateway
// -----------------------------------------------------------------------------

// Gateway is an external relay endpoint hosting one or more Agents. Exactly
// one WebSocket connection is live per gateway per core instance; a second
// connection attempt replaces the first and closes it with code 1012.
type Gateway struct {
	base
	OrganizationID  uuid.UUID `gorm:"type:text;not null;index"`
	Name            string    `gorm:"not null"`
	URL             string    `gorm:"not null;default:''"`
	WorkspaceRoot   string    `gorm:"not null;default:''"`
	RelayTokenHash  string    `gorm:"not null;default:''"`
	Status          string    `gorm:"not null;default:'pending'"` // pending|online|offline
	LastHeartbeatAt *time.Time
}

// -----------------------------------------------------------------------------
// EndUser / EndUserAssignment
// -----------------------------------------------------------------------------

// EndUser is a mobile-client identity, unique per organization by username.
type EndUser struct {
	base
	OrganizationID uuid.UUID       `gorm:"type:text;not null;index:idx_end_users_org_username,unique"`
	Username       string          `gorm:"not null;index:idx_end_users_org_username,unique"`
	PasswordHash   EncryptedString `gorm:"type:text;not null"`
	IsActive       bool            `gorm:"not null;default:true"`
}

// EndUserAssignment binds one EndUser to one Agent on one Board. A unique
// index on (end_user_id, agent_id) enforces "at-most-one active assignment
// per (user, agent)" at the database layer, matching SPEC_FULL.md §2.
type EndUserAssignment struct {
	base
	OrganizationID uuid.UUID `gorm:"type:text;not null;index"`
	EndUserID      uuid.UUID `gorm:"type:text;not null;uniqueIndex:idx_assignment_user_agent"`
	AgentID        uuid.UUID `gorm:"type:text;not null;uniqueIndex:idx_assignment_user_agent"`
	BoardID        uuid.UUID `gorm:"type:text;not null;index"`
}

// -----------------------------------------------------------------------------
// ChatSession
// -----------------------------------------------------------------------------

// ChatSession materializes on the first user-to-agent message. SessionKey has
// the form "h5:{user_id}:{agent_id}" and is unique — the source system this
// was distilled from never enforced that at the DB layer (see SPEC_FULL.md
// §2 / spec.md §9 Open Questions); this schema does.
type ChatSession struct {
	base
	OrganizationID uuid.UUID `gorm:"type:text;not null;index"`
	SessionKey     string    `gorm:"not null;uniqueIndex"`
	EndUserID      uuid.UUID `gorm:"type:text;not null;index"`
	AgentID        uuid.UUID `gorm:"type:text;not null;index"`
	GatewayID      uuid.UUID `gorm:"type:text;not null"`
	Status         string    `gorm:"not null;default:'active'"` // active|closed
	LastMessageAt  time.Time `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// SystemEvent
// -----------------------------------------------------------------------------

// SystemEvent is an append-only audit record and the source of truth for the
// rule engine. Rows are never updated or deleted, so SystemEvent embeds base
// directly rather than softDelete.
type SystemEvent struct {
	base
	OrganizationID uuid.UUID  `gorm:"type:text;not null;index"`
	BoardID        *uuid.UUID `gorm:"type:text;index"`
	AgentID        *uuid.UUID `gorm:"type:text;index"`
	TaskID         *uuid.UUID `gorm:"type:text;index"`
	EventType      string     `gorm:"not null;index"`
	Payload        string     `gorm:"type:text;not null;default:'{}'"` // JSON
}

// -----------------------------------------------------------------------------
// Task
// -----------------------------------------------------------------------------

// Task is a unit of work on a Board. Full REST CRUD around tasks is out of
// scope; tasks are only ever mutated through the board-sync socket's
// task.move/task.create handling, which re-broadcasts on every write.
type Task struct {
	base
	OrganizationID uuid.UUID  `gorm:"type:text;not null;index"`
	BoardID        uuid.UUID  `gorm:"type:text;not null;index"`
	AgentID        *uuid.UUID `gorm:"type:text;index"`
	Title          string     `gorm:"not null"`
	Status         string     `gorm:"not null;default:'pending';index"` // pending|in_progress|review|done|cancelled
	Description    string     `gorm:"type:text;default:''"`
}

// -----------------------------------------------------------------------------
// ProactiveRule
// -----------------------------------------------------------------------------

// ProactiveRule pairs a trigger event type with a condition tree and an
// action. Conditions and ActionConfig are stored as JSON columns; the rule
// engine unmarshals them on each evaluation rather than caching parsed forms,
// since rule evaluation happens at most once per matching event.
type ProactiveRule struct {
	base
	OrganizationID  uuid.UUID  `gorm:"type:text;not null;index"`
	BoardID         *uuid.UUID `gorm:"type:text;index"`
	Name            string     `gorm:"not null"`
	Description     string     `gorm:"type:text;default:''"`
	TriggerEvent    string     `gorm:"not null;index"`
	Conditions      string     `gorm:"type:text;not null;default:'{}'"` // JSON: {"rules":[{field,op,value},...]}
	ActionType      string     `gorm:"not null"`
	ActionConfig    string     `gorm:"type:text;not null;default:'{}'"` // JSON: suggestion_type,title,description,confidence,priority
	IsEnabled       bool       `gorm:"not null;default:true"`
	IsBuiltin       bool       `gorm:"not null;default:false"`
	CooldownSeconds int        `gorm:"not null;default:0"`
	LastFiredAt     *time.Time
}

// -----------------------------------------------------------------------------
// Suggestion
// -----------------------------------------------------------------------------

// Suggestion is a materialized recommendation produced by the rule engine.
// Lifecycle is pending -> accepted|dismissed|expired; only "pending" may
// transition, and ResolvedAt is set iff the status is terminal (invariant I6).
type Suggestion struct {
	base
	OrganizationID uuid.UUID  `gorm:"type:text;not null;index"`
	BoardID        *uuid.UUID `gorm:"type:text;index"`
	AgentID        *uuid.UUID `gorm:"type:text;index"`
	RuleID         uuid.UUID  `gorm:"type:text;not null;index"`
	SourceEventID  uuid.UUID  `gorm:"type:text;not null"`
	SuggestionType string     `gorm:"not null"`
	Title          string     `gorm:"not null"`
	Description    string     `gorm:"type:text;default:''"`
	Confidence     float64    `gorm:"not null;default:0"`
	Priority       int        `gorm:"not null;default:0"`
	Status         string     `gorm:"not null;default:'pending';index"` // pending|accepted|dismissed|expired
	ExpiresAt      time.Time  `gorm:"not null"`
	ResolvedAt     *time.Time
	ResolvedByUserID *uuid.UUID `gorm:"type:text"`
}
