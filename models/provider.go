package models

import (
	"context"
	"time"

	"bitbucket.org/easybudget/billing_backend/config"
	"bitbucket.org/easybudget/billing_backend/utils"
	"github.com/google/uuid"
)

// Provider is the professional enrolled in plans within a tenant. The
// at-most-one-active subscription invariant is scoped to one provider.
type Provider struct {
	ID        uuid.UUID `gorm:"primary_key" json:"id"`
	TenantId  string    `gorm:"size:64;index;not null" json:"tenant_id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:255" json:"email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProvider struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
}

func CreateProvider(ctx context.Context, tenantId string, input *NewProvider) (*Provider, error) {
	db := config.GetDB()

	active := true
	provider := Provider{
		ID:       uuid.New(),
		TenantId: tenantId,
		Name:     input.Name,
		Email:    input.Email,
		IsActive: &active,
	}
	if err := db.WithContext(ctx).Create(&provider).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

func GetProvider(ctx context.Context, tenantId string, providerId string) (*Provider, error) {
	db := config.GetDB()

	var provider Provider
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantId, providerId).
		First(&provider).Error
	if err != nil {
		return nil, utils.ReplaceNotFound(err)
	}
	return &provider, nil
}
