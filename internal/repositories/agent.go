package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
	"gorm.io/gorm"
)

// gormAgentRepository is the GORM implementation of AgentRepository.
type gormAgentRepository struct {
	db *gorm.DB
}

// NewAgentRepository returns an AgentRepository backed by the provided *gorm.DB.
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &gormAgentRepository{db: db}
}

func (r *gormAgentRepository) Create(ctx context.Context, agent *db.Agent) error {
	if err := r.db.WithContext(ctx).Create(agent).Error; err != nil {
		return fmt.Errorf("agents: create: %w", err)
	}
	return nil
}

// GetByID retrieves an agent by its UUID. Soft-deleted agents are excluded.
func (r *gormAgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Agent, error) {
	var agent db.Agent
	err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("agents: get by id: %w", err)
	}
	return &agent, nil
}

// GetByAuthTokenHash retrieves a non-deleted agent by the SHA-256 hash of its
// registration secret.
func (r *gormAgentRepository) GetByAuthTokenHash(ctx context.Context, hash string) (*db.Agent, error) {
	var agent db.Agent
	err := r.db.WithContext(ctx).First(&agent, "auth_token_hash = ?", hash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("agents: get by auth token hash: %w", err)
	}
	return &agent, nil
}

func (r *gormAgentRepository) Update(ctx context.Context, agent *db.Agent) error {
	result := r.db.WithContext(ctx).Save(agent)
	if result.Error != nil {
		return fmt.Errorf("agents: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateHeartbeatState writes only the governor-owned columns, so a tick's
// read-modify-write never clobbers fields owned by other write paths.
func (r *gormAgentRepository) UpdateHeartbeatState(ctx context.Context, id uuid.UUID, step int, off bool, lastActiveAt *time.Time, heartbeatConfig string) error {
	result := r.db.WithContext(ctx).
		Model(&db.Agent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"auto_heartbeat_step":           step,
			"auto_heartbeat_off":            off,
			"auto_heartbeat_last_active_at": lastActiveAt,
			"heartbeat_config":              heartbeatConfig,
		})
	if result.Error != nil {
		return fmt.Errorf("agents: update heartbeat state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAgentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Agent{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("agents: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormAgentRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.Agent, int64, error) {
	var agents []db.Agent
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Agent{}).Where("organization_id = ?", orgID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("agents: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&agents).Error; err != nil {
		return nil, 0, fmt.Errorf("agents: list: %w", err)
	}

	return agents, total, nil
}

func (r *gormAgentRepository) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]db.Agent, error) {
	var agents []db.Agent
	if err := r.db.WithContext(ctx).Where("board_id = ?", boardID).Order("created_at ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("agents: list by board: %w", err)
	}
	return agents, nil
}

// ListGovernable returns every agent eligible for a heartbeat-governor tick:
// auto-heartbeat enabled, not soft-deleted. Agents not yet assigned to a
// board are included too; the tick applies package-default policy to them
// instead of a board's governor columns.
func (r *gormAgentRepository) ListGovernable(ctx context.Context) ([]db.Agent, error) {
	var agents []db.Agent
	err := r.db.WithContext(ctx).
		Where("auto_heartbeat_enabled = ?", true).
		Find(&agents).Error
	if err != nil {
		return nil, fmt.Errorf("agents: list governable: %w", err)
	}
	return agents, nil
}
