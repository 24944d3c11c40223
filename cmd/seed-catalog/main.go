// seed-catalog seeds a development tenant, a provider, and the plan catalog.
// Running it against a database that already has the rows is a no-op for the
// pieces that exist.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-catalog
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/easybudget/billing_backend/config"
	"bitbucket.org/easybudget/billing_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	seedTenantName   = "EasyBudget Dev"
	seedProviderName = "Dev Provider"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	var tenant models.Tenant
	err := db.WithContext(ctx).Where("name = ?", seedTenantName).First(&tenant).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup tenant: %v\n", err)
			os.Exit(1)
		}
		created, err := models.CreateTenant(ctx, &models.NewTenant{Name: seedTenantName})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create tenant: %v\n", err)
			os.Exit(1)
		}
		tenant = *created
		fmt.Printf("Created tenant %q (%s)\n", tenant.Name, tenant.ID)
	}

	var provider models.Provider
	err = db.WithContext(ctx).Where("tenant_id = ? AND name = ?", tenant.ID.String(), seedProviderName).First(&provider).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup provider: %v\n", err)
			os.Exit(1)
		}
		created, err := models.CreateProvider(ctx, tenant.ID.String(), &models.NewProvider{Name: seedProviderName})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create provider: %v\n", err)
			os.Exit(1)
		}
		provider = *created
		fmt.Printf("Created provider %q (%s)\n", provider.Name, provider.ID)
	}

	plans := []models.NewPlan{
		{Slug: models.PlanSlugFree, Name: "Free", Price: decimal.Zero},
		{Slug: "basic", Name: "Basic", Price: decimal.NewFromInt(990)},
		{Slug: "professional", Name: "Professional", Price: decimal.NewFromInt(1990)},
	}
	for i := range plans {
		var existing models.Plan
		err := db.WithContext(ctx).Where("slug = ?", plans[i].Slug).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup plan %q: %v\n", plans[i].Slug, err)
			os.Exit(1)
		}
		if _, err := models.CreatePlan(ctx, &plans[i]); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create plan %q: %v\n", plans[i].Slug, err)
			os.Exit(1)
		}
		fmt.Printf("Created plan %q\n", plans[i].Slug)
	}

	fmt.Println("Seed complete")
}
