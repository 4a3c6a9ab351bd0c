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

// gormGatewayRepository is the GORM implementation of GatewayRepository.
type gormGatewayRepository struct {
	db *gorm.DB
}

// NewGatewayRepository returns a GatewayRepository backed by the provided *gorm.DB.
func NewGatewayRepository(db *gorm.DB) GatewayRepository {
	return &gormGatewayRepository{db: db}
}

func (r *gormGatewayRepository) Create(ctx context.Context, gw *db.Gateway) error {
	if err := r.db.WithContext(ctx).Create(gw).Error; err != nil {
		return fmt.Errorf("gateways: create: %w", err)
	}
	return nil
}

func (r *gormGatewayRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Gateway, error) {
	var gw db.Gateway
	err := r.db.WithContext(ctx).First(&gw, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gateways: get by id: %w", err)
	}
	return &gw, nil
}

// GetByRelayTokenHash looks up a gateway by the SHA-256 hash of its relay
// token. Used on the relay WS handshake to authenticate the gateway without
// ever comparing the raw secret.
func (r *gormGatewayRepository) GetByRelayTokenHash(ctx context.Context, hash string) (*db.Gateway, error) {
	var gw db.Gateway
	err := r.db.WithContext(ctx).First(&gw, "relay_token_hash = ?", hash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gateways: get by relay token hash: %w", err)
	}
	return &gw, nil
}

func (r *gormGatewayRepository) Update(ctx context.Context, gw *db.Gateway) error {
	result := r.db.WithContext(ctx).Save(gw)
	if result.Error != nil {
		return fmt.Errorf("gateways: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus updates only the status and last_heartbeat_at columns. The
// gateway relay handler calls it when a relay socket connects and when it
// disconnects; heartbeat frames on the socket do not call it.
func (r *gormGatewayRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, lastHeartbeatAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.Gateway{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            status,
			"last_heartbeat_at": lastHeartbeatAt,
		})
	if result.Error != nil {
		return fmt.Errorf("gateways: update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormGatewayRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Gateway{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("gateways: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormGatewayRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.Gateway, int64, error) {
	var gws []db.Gateway
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Gateway{}).Where("organization_id = ?", orgID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gateways: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&gws).Error; err != nil {
		return nil, 0, fmt.Errorf("gateways: list: %w", err)
	}

	return gws, total, nil
}
