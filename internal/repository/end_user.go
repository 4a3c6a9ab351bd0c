package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
	"gorm.io/gorm"
)

// gormEndUserRepository is the GORM implementation of EndUserRepository.
type gormEndUserRepository struct {
	db *gorm.DB
}

// NewEndUserRepository returns an EndUserRepository backed by the provided *gorm.DB.
func NewEndUserRepository(db *gorm.DB) EndUserRepository {
	return &gormEndUserRepository{db: db}
}

func (r *gormEndUserRepository) Create(ctx context.Context, u *db.EndUser) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("end_users: create: %w", err)
	}
	return nil
}

func (r *gormEndUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.EndUser, error) {
	var u db.EndUser
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("end_users: get by id: %w", err)
	}
	return &u, nil
}

// GetByOrgUsername looks up an end-user by the (organization_id, username)
// pair enforced unique at the database layer.
func (r *gormEndUserRepository) GetByOrgUsername(ctx context.Context, orgID uuid.UUID, username string) (*db.EndUser, error) {
	var u db.EndUser
	err := r.db.WithContext(ctx).First(&u, "organization_id = ? AND username = ?", orgID, username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("end_users: get by org username: %w", err)
	}
	return &u, nil
}

func (r *gormEndUserRepository) Update(ctx context.Context, u *db.EndUser) error {
	result := r.db.WithContext(ctx).Save(u)
	if result.Error != nil {
		return fmt.Errorf("end_users: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormEndUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.EndUser{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("end_users: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormEndUserRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]db.EndUser, int64, error) {
	var users []db.EndUser
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.EndUser{}).Where("organization_id = ?", orgID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("end_users: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("end_users: list: %w", err)
	}

	return users, total, nil
}
