package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
	"gorm.io/gorm"
)

// gormTaskRepository is the GORM implementation of TaskRepository.
type gormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository returns a TaskRepository backed by the provided *gorm.DB.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

func (r *gormTaskRepository) Create(ctx context.Context, task *db.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("tasks: create: %w", err)
	}
	return nil
}

func (r *gormTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Task, error) {
	var task db.Task
	err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("tasks: get by id: %w", err)
	}
	return &task, nil
}

func (r *gormTaskRepository) Update(ctx context.Context, task *db.Task) error {
	result := r.db.WithContext(ctx).Save(task)
	if result.Error != nil {
		return fmt.Errorf("tasks: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormTaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Task{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("tasks: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByBoard returns the board's task snapshot in creation-descending order.
func (r *gormTaskRepository) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]db.Task, error) {
	var tasks []db.Task
	err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("created_at DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("tasks: list by board: %w", err)
	}
	return tasks, nil
}

// ListAgentIDsWithActiveWork groups non-deleted tasks in an active status by
// their assigned agent, returning the distinct set of agent ids with at
// least one such task.
func (r *gormTaskRepository) ListAgentIDsWithActiveWork(ctx context.Context) (map[uuid.UUID]bool, error) {
	var agentIDs []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&db.Task{}).
		Distinct("agent_id").
		Where("agent_id IS NOT NULL AND status IN ?", []string{"in_progress", "review"}).
		Pluck("agent_id", &agentIDs).Error
	if err != nil {
		return nil, fmt.Errorf("tasks: list agent ids with active work: %w", err)
	}

	out := make(map[uuid.UUID]bool, len(agentIDs))
	for _, id := range agentIDs {
		out[id] = true
	}
	return out, nil
}
