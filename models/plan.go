package models

import (
	"context"
	"time"

	"bitbucket.org/easybudget/billing_backend/config"
	"bitbucket.org/easybudget/billing_backend/utils"
	"github.com/shopspring/decimal"
)

const PlanSlugFree = "free"

// Plan is a catalog entry. Immutable from the reconciler's point of view.
type Plan struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Slug      string          `gorm:"size:100;uniqueIndex;not null" json:"slug" binding:"required"`
	Name      string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Price     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Plan) IsFree() bool {
	return p.Slug == PlanSlugFree || p.Price.IsZero()
}

func (p *Plan) StoreRedis() error {
	return config.SetRedisObject("Plan:"+p.Slug, p, 12*time.Hour)
}

type NewPlan struct {
	Slug  string          `json:"slug" binding:"required"`
	Name  string          `json:"name" binding:"required"`
	Price decimal.Decimal `json:"price"`
}

func CreatePlan(ctx context.Context, input *NewPlan) (*Plan, error) {
	db := config.GetDB()

	active := true
	plan := Plan{
		Slug:     input.Slug,
		Name:     input.Name,
		Price:    input.Price,
		IsActive: &active,
	}
	if err := db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, err
	}
	_ = plan.StoreRedis()
	return &plan, nil
}

// GetPlanBySlug reads through the Redis cache. The catalog is tiny and almost
// never changes, so a stale read is acceptable.
func GetPlanBySlug(ctx context.Context, slug string) (*Plan, error) {
	var plan Plan
	exists, err := config.GetRedisObject("Plan:"+slug, &plan)
	if err == nil && exists {
		return &plan, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("slug = ?", slug).First(&plan).Error; err != nil {
		return nil, utils.ReplaceNotFound(err)
	}
	_ = plan.StoreRedis()
	return &plan, nil
}

func GetPlan(ctx context.Context, id int) (*Plan, error) {
	return utils.FetchSingleModel[Plan](ctx, id)
}
