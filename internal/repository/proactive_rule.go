package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
	"gorm.io/gorm"
)

// gormProactiveRuleRepository is the GORM implementation of ProactiveRuleRepository.
type gormProactiveRuleRepository struct {
	db *gorm.DB
}

// NewProactiveRuleRepository returns a ProactiveRuleRepository backed by the
// provided *gorm.DB.
func NewProactiveRuleRepository(db *gorm.DB) ProactiveRuleRepository {
	return &gormProactiveRuleRepository{db: db}
}

func (r *gormProactiveRuleRepository) Create(ctx context.Context, rule *db.ProactiveRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("proactive_rules: create: %w", err)
	}
	return nil
}

func (r *gormProactiveRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.ProactiveRule, error) {
	var rule db.ProactiveRule
	err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("proactive_rules: get by id: %w", err)
	}
	return &rule, nil
}

func (r *gormProactiveRuleRepository) Update(ctx context.Context, rule *db.ProactiveRule) error {
	result := r.db.WithContext(ctx).Save(rule)
	if result.Error != nil {
		return fmt.Errorf("proactive_rules: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a rule. Builtin-rule protection (rules with IsBuiltin=true
// may not be deleted) is enforced by the caller before this is invoked, not
// here — the repository has no notion of a 409.
func (r *gormProactiveRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.ProactiveRule{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("proactive_rules: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormProactiveRuleRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.ProactiveRule, int64, error) {
	var rules []db.ProactiveRule
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.ProactiveRule{}).Where("organization_id = ?", orgID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("proactive_rules: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&rules).Error; err != nil {
		return nil, 0, fmt.Errorf("proactive_rules: list: %w", err)
	}

	return rules, total, nil
}

func (r *gormProactiveRuleRepository) ListEnabledByTrigger(ctx context.Context, eventType string) ([]db.ProactiveRule, error) {
	var rules []db.ProactiveRule
	err := r.db.WithContext(ctx).
		Where("is_enabled = ? AND trigger_event = ?", true, eventType).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("proactive_rules: list enabled by trigger: %w", err)
	}
	return rules, nil
}

func (r *gormProactiveRuleRepository) SetLastFiredAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.ProactiveRule{}).
		Where("id = ?", id).
		Update("last_fired_at", at)
	if result.Error != nil {
		return fmt.Errorf("proactive_rules: set last fired at: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
