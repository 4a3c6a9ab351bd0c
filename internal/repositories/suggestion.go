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

// gormSuggestionRepository is the GORM implementation of SuggestionRepository.
type gormSuggestionRepository struct {
	db *gorm.DB
}

// NewSuggestionRepository returns a SuggestionRepository backed by the
// provided *gorm.DB.
func NewSuggestionRepository(db *gorm.DB) SuggestionRepository {
	return &gormSuggestionRepository{db: db}
}

func (r *gormSuggestionRepository) Create(ctx context.Context, s *db.Suggestion) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("suggestions: create: %w", err)
	}
	return nil
}

func (r *gormSuggestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Suggestion, error) {
	var s db.Suggestion
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("suggestions: get by id: %w", err)
	}
	return &s, nil
}

func (r *gormSuggestionRepository) Update(ctx context.Context, s *db.Suggestion) error {
	result := r.db.WithContext(ctx).Save(s)
	if result.Error != nil {
		return fmt.Errorf("suggestions: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormSuggestionRepository) ListPendingByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.Suggestion, int64, error) {
	var suggestions []db.Suggestion
	var total int64

	q := r.db.WithContext(ctx).Model(&db.Suggestion{}).Where("organization_id = ? AND status = ?", orgID, "pending")
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("suggestions: list pending count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND status = ?", orgID, "pending").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&suggestions).Error; err != nil {
		return nil, 0, fmt.Errorf("suggestions: list pending: %w", err)
	}

	return suggestions, total, nil
}

// ExpirePending flips every pending suggestion whose ExpiresAt is before
// olderThan to status "expired" and stamps ResolvedAt, satisfying invariant
// I6 (ResolvedAt set iff status is terminal). Returns the number of rows
// touched.
func (r *gormSuggestionRepository) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&db.Suggestion{}).
		Where("status = ? AND expires_at < ?", "pending", olderThan).
		Updates(map[string]interface{}{
			"status":      "expired",
			"resolved_at": olderThan,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("suggestions: expire pending: %w", result.Error)
	}
	return result.RowsAffected, nil
}
