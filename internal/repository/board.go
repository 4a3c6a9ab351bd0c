package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
	"gorm.io/gorm"
)

// gormBoardRepository is the GORM implementation of BoardRepository.
type gormBoardRepository struct {
	db *gorm.DB
}

// NewBoardRepository returns a BoardRepository backed by the provided *gorm.DB.
func NewBoardRepository(db *gorm.DB) BoardRepository {
	return &gormBoardRepository{db: db}
}

func (r *gormBoardRepository) Create(ctx context.Context, board *db.Board) error {
	if err := r.db.WithContext(ctx).Create(board).Error; err != nil {
		return fmt.Errorf("boards: create: %w", err)
	}
	return nil
}

func (r *gormBoardRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Board, error) {
	var board db.Board
	err := r.db.WithContext(ctx).First(&board, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("boards: get by id: %w", err)
	}
	return &board, nil
}

func (r *gormBoardRepository) Update(ctx context.Context, board *db.Board) error {
	result := r.db.WithContext(ctx).Save(board)
	if result.Error != nil {
		return fmt.Errorf("boards: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormBoardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Board{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("boards: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormBoardRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.Board, int64, error) {
	var boards []db.Board
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Board{}).Where("organization_id = ?", orgID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("boards: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&boards).Error; err != nil {
		return nil, 0, fmt.Errorf("boards: list: %w", err)
	}

	return boards, total, nil
}

func (r *gormBoardRepository) ListGovernorEnabled(ctx context.Context) ([]db.Board, error) {
	var boards []db.Board
	err := r.db.WithContext(ctx).Where("auto_heartbeat_governor_enabled = ?", true).Find(&boards).Error
	if err != nil {
		return nil, fmt.Errorf("boards: list governor enabled: %w", err)
	}
	return boards, nil
}
