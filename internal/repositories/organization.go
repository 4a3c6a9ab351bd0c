package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/relaycore/core/internal/db"
	"gorm.io/gorm"
)

// gormOrganizationRepository is the GORM implementation of OrganizationRepository.
type gormOrganizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository returns an OrganizationRepository backed by the
// provided *gorm.DB.
func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &gormOrganizationRepository{db: db}
}

func (r *gormOrganizationRepository) Create(ctx context.Context, org *db.Organization) error {
	if err := r.db.WithContext(ctx).Create(org).Error; err != nil {
		return fmt.Errorf("organizations: create: %w", err)
	}
	return nil
}

func (r *gormOrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Organization, error) {
	var org db.Organization
	err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("organizations: get by id: %w", err)
	}
	return &org, nil
}

func (r *gormOrganizationRepository) Update(ctx context.Context, org *db.Organization) error {
	result := r.db.WithContext(ctx).Save(org)
	if result.Error != nil {
		return fmt.Errorf("organizations: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormOrganizationRepository) List(ctx context.Context, opts ListOptions) ([]db.Organization, int64, error) {
	var orgs []db.Organization
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Organization{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("organizations: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&orgs).Error; err != nil {
		return nil, 0, fmt.Errorf("organizations: list: %w", err)
	}

	return orgs, total, nil
}
