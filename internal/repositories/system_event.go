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

// gormSystemEventRepository is the GORM implementation of SystemEventRepository.
type gormSystemEventRepository struct {
	db *gorm.DB
}

// NewSystemEventRepository returns a SystemEventRepository backed by the
// provided *gorm.DB.
func NewSystemEventRepository(db *gorm.DB) SystemEventRepository {
	return &gormSystemEventRepository{db: db}
}

// Create inserts an immutable event row. Callers are expected to wrap this
// in the same transaction as whatever mutation produced the event.
func (r *gormSystemEventRepository) Create(ctx context.Context, event *db.SystemEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("system_events: create: %w", err)
	}
	return nil
}

func (r *gormSystemEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.SystemEvent, error) {
	var event db.SystemEvent
	err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("system_events: get by id: %w", err)
	}
	return &event, nil
}

func (r *gormSystemEventRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.SystemEvent, int64, error) {
	var events []db.SystemEvent
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.SystemEvent{}).Where("organization_id = ?", orgID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("system_events: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("system_events: list by organization: %w", err)
	}

	return events, total, nil
}

func (r *gormSystemEventRepository) ListByBoard(ctx context.Context, boardID uuid.UUID, opts ListOptions) ([]db.SystemEvent, int64, error) {
	var events []db.SystemEvent
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.SystemEvent{}).Where("board_id = ?", boardID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("system_events: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("system_events: list by board: %w", err)
	}

	return events, total, nil
}

// LatestEventTimeByBoard computes, per board, the timestamp of the most
// recent event whose type is in eventTypes. Boards with no matching event
// are absent from the result rather than zero-valued.
func (r *gormSystemEventRepository) LatestEventTimeByBoard(ctx context.Context, eventTypes []string) (map[uuid.UUID]time.Time, error) {
	type row struct {
		BoardID uuid.UUID
		MaxAt   time.Time
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Model(&db.SystemEvent{}).
		Select("board_id, MAX(created_at) as max_at").
		Where("board_id IS NOT NULL AND event_type IN ?", eventTypes).
		Group("board_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("system_events: latest event time by board: %w", err)
	}

	out := make(map[uuid.UUID]time.Time, len(rows))
	for _, rr := range rows {
		out[rr.BoardID] = rr.MaxAt
	}
	return out, nil
}
