package models

import (
	"context"
	"time"

	"bitbucket.org/easybudget/billing_backend/config"
	"github.com/google/uuid"
)

type Tenant struct {
	ID        uuid.UUID `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:255" json:"email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTenant struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
}

func CreateTenant(ctx context.Context, input *NewTenant) (*Tenant, error) {
	db := config.GetDB()

	active := true
	tenant := Tenant{
		ID:       uuid.New(),
		Name:     input.Name,
		Email:    input.Email,
		IsActive: &active,
	}
	if err := db.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}
