package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
	"gorm.io/gorm"
)

// gormEndUserAssignmentRepository is the GORM implementation of
// EndUserAssignmentRepository.
type gormEndUserAssignmentRepository struct {
	db *gorm.DB
}

// NewEndUserAssignmentRepository returns an EndUserAssignmentRepository
// backed by the provided *gorm.DB.
func NewEndUserAssignmentRepository(db *gorm.DB) EndUserAssignmentRepository {
	return &gormEndUserAssignmentRepository{db: db}
}

// Create inserts a new assignment. The unique index on (end_user_id,
// agent_id) turns a duplicate insert into a driver error rather than a
// silent second row; callers should translate that into ErrConflict.
func (r *gormEndUserAssignmentRepository) Create(ctx context.Context, a *db.EndUserAssignment) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("end_user_assignments: create: %w", err)
	}
	return nil
}

func (r *gormEndUserAssignmentRepository) GetByUserAndAgent(ctx context.Context, endUserID, agentID uuid.UUID) (*db.EndUserAssignment, error) {
	var a db.EndUserAssignment
	err := r.db.WithContext(ctx).First(&a, "end_user_id = ? AND agent_id = ?", endUserID, agentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("end_user_assignments: get by user and agent: %w", err)
	}
	return &a, nil
}

func (r *gormEndUserAssignmentRepository) ListByEndUser(ctx context.Context, endUserID uuid.UUID) ([]db.EndUserAssignment, error) {
	var assignments []db.EndUserAssignment
	err := r.db.WithContext(ctx).Where("end_user_id = ?", endUserID).Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("end_user_assignments: list by end user: %w", err)
	}
	return assignments, nil
}

func (r *gormEndUserAssignmentRepository) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]db.EndUserAssignment, error) {
	var assignments []db.EndUserAssignment
	err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("end_user_assignments: list by agent: %w", err)
	}
	return assignments, nil
}

func (r *gormEndUserAssignmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.EndUserAssignment{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("end_user_assignments: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
